package validator

import (
	"errors"
	"math"
	"testing"

	"github.com/eddielth/edge-nodes/config"
	"github.com/eddielth/edge-nodes/sensor"
)

func bme280Limits() config.LimitsConfig {
	return config.LimitsConfig{
		Temperature: config.RangeConfig{Min: -40, Max: 85},
		Humidity:    config.RangeConfig{Min: 0, Max: 100},
		Pressure:    config.RangeConfig{Min: 300, Max: 1100},
	}
}

func TestReadingRules(t *testing.T) {
	rules := ReadingRules(bme280Limits())

	tests := []struct {
		name    string
		reading sensor.Reading
		wantErr bool
	}{
		{"typical", sensor.Reading{Temperature: 23.5, Humidity: 40.2, Pressure: 1013.2}, false},
		{"boundaries", sensor.Reading{Temperature: -40, Humidity: 100, Pressure: 300}, false},
		{"too hot", sensor.Reading{Temperature: 120, Humidity: 40, Pressure: 1000}, true},
		{"humidity over 100", sensor.Reading{Temperature: 20, Humidity: 100.5, Pressure: 1000}, true},
		{"pressure zero", sensor.Reading{Temperature: 20, Humidity: 40, Pressure: 0}, true},
		{"nan", sensor.Reading{Temperature: math.NaN(), Humidity: 40, Pressure: 1000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rules.Validate(tt.reading)
			if tt.wantErr != (err != nil) {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrOutOfRange) {
				t.Errorf("Validate() error = %v, want ErrOutOfRange", err)
			}
		})
	}
}

func TestReadingRulesSkipsUnsetRanges(t *testing.T) {
	rules := ReadingRules(config.LimitsConfig{Humidity: config.RangeConfig{Min: 0, Max: 100}})
	if len(rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(rules))
	}
	if err := rules.Validate(&sensor.Reading{Temperature: 500, Humidity: 50, Pressure: -1}); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestRangeValidatorRejectsBadTargets(t *testing.T) {
	rv := &RangeValidator{Field: "Temperature", Min: 0, Max: 1}

	if err := rv.Validate(42); err == nil {
		t.Error("Validate(non-struct) expected error")
	}
	if err := (&RangeValidator{Field: "Altitude"}).Validate(sensor.Reading{}); err == nil {
		t.Error("Validate(missing field) expected error")
	}

	type labelled struct{ Temperature string }
	if err := rv.Validate(labelled{"hot"}); err == nil {
		t.Error("Validate(non-numeric field) expected error")
	}
}
