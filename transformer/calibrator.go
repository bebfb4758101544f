// Package transformer applies an optional user script to each sensor reading
// before it is published, typically to correct sensor self-heating offsets.
//
// The script must define a function calibrate(r) that receives
// {temp, humi, pres} and returns an object with the same three fields:
//
//	function calibrate(r) {
//	    return {temp: r.temp - 1.2, humi: r.humi, pres: r.pres};
//	}
package transformer

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/eddielth/edge-nodes/config"
	"github.com/eddielth/edge-nodes/logger"
	"github.com/eddielth/edge-nodes/sensor"
)

const entryPoint = "calibrate"

// Calibrator runs a calibration script. A nil *Calibrator passes readings through.
type Calibrator struct {
	vm        *goja.Runtime
	calibrate goja.Callable
	source    string
	mu        sync.Mutex
}

// New loads the script described by cfg. It returns nil, nil when no script
// is configured. Inline code takes precedence over a script path.
func New(cfg config.CalibrationConfig) (*Calibrator, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	code, source := cfg.ScriptCode, "inline"
	if code == "" {
		raw, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("load calibration script %s: %w", cfg.ScriptPath, err)
		}
		code, source = string(raw), cfg.ScriptPath
	}

	return compile(code, source)
}

func compile(code, source string) (*Calibrator, error) {
	vm := goja.New()
	installHelpers(vm)

	if _, err := vm.RunString(code); err != nil {
		return nil, fmt.Errorf("run calibration script %s: %w", source, err)
	}

	fn, ok := goja.AssertFunction(vm.Get(entryPoint))
	if !ok {
		return nil, fmt.Errorf("calibration script %s does not define %s(reading)", source, entryPoint)
	}

	logger.Info("loaded calibration script: %s", source)
	return &Calibrator{vm: vm, calibrate: fn, source: source}, nil
}

// installHelpers exposes small utilities to scripts.
func installHelpers(vm *goja.Runtime) {
	_ = vm.Set("log", func(msg string) {
		logger.Info("[JS] %s", msg)
	})

	_ = vm.Set("convertTemperature", func(value float64, fromUnit, toUnit string) float64 {
		var celsius float64
		switch strings.ToUpper(fromUnit) {
		case "C":
			celsius = value
		case "F":
			celsius = (value - 32) * 5 / 9
		case "K":
			celsius = value - 273.15
		default:
			return value
		}

		switch strings.ToUpper(toUnit) {
		case "F":
			return celsius*9/5 + 32
		case "K":
			return celsius + 273.15
		default:
			return celsius
		}
	})

	_ = vm.Set("clamp", func(value, min, max float64) float64 {
		return math.Max(min, math.Min(max, value))
	})
}

// Apply returns the calibrated reading. Any script failure, missing field or
// non-finite value fails the whole reading.
func (c *Calibrator) Apply(r sensor.Reading) (sensor.Reading, error) {
	if c == nil {
		return r, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	arg := c.vm.ToValue(map[string]interface{}{
		"temp": r.Temperature,
		"humi": r.Humidity,
		"pres": r.Pressure,
	})
	result, err := c.calibrate(goja.Undefined(), arg)
	if err != nil {
		return sensor.Reading{}, fmt.Errorf("calibrate: %w", err)
	}

	fields, ok := result.Export().(map[string]interface{})
	if !ok {
		return sensor.Reading{}, fmt.Errorf("calibrate: script %s returned %T, want object", c.source, result.Export())
	}

	var out sensor.Reading
	for key, dst := range map[string]*float64{
		"temp": &out.Temperature,
		"humi": &out.Humidity,
		"pres": &out.Pressure,
	} {
		v, err := toFloat(fields[key])
		if err != nil {
			return sensor.Reading{}, fmt.Errorf("calibrate: field %s: %w", key, err)
		}
		*dst = v
	}
	return out, nil
}

func toFloat(v interface{}) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int64:
		f = float64(n)
	case int:
		f = float64(n)
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not finite: %v", f)
	}
	return f, nil
}
