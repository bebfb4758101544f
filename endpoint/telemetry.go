package endpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eddielth/edge-nodes/gpio"
	"github.com/eddielth/edge-nodes/logger"
	"github.com/eddielth/edge-nodes/mqtt"
	"github.com/eddielth/edge-nodes/sensor"
	"github.com/eddielth/edge-nodes/transformer"
	"github.com/eddielth/edge-nodes/validator"
)

// DefaultSettle is the pause after the indicator is cleared.
const DefaultSettle = 50 * time.Millisecond

// Telemetry is the context of one telemetry cycle.
type Telemetry struct {
	Sensor    sensor.Source
	Publisher mqtt.Publisher
	Topic     string

	// Indicator is lit for the duration of the cycle. Optional.
	Indicator gpio.Output
	// Calibrator adjusts the reading before publishing. Optional.
	Calibrator *transformer.Calibrator
	// Rules reject implausible readings before they are sent. Optional.
	Rules validator.Validator
	// Settle defaults to DefaultSettle.
	Settle time.Duration

	sleep func(time.Duration)
}

// RunCycle performs one sample-publish step: light the indicator, read the
// sensor once, publish once over a transient session, then clear the
// indicator and settle. The indicator is cleared on every exit path. A
// failed read aborts the cycle before anything is published.
func (t *Telemetry) RunCycle(ctx context.Context) error {
	log := logger.Named("telemetry")

	t.indicate(log, true)
	release := sync.OnceFunc(func() {
		t.indicate(log, false)
		t.pause(t.settle())
	})
	defer release()

	reading, err := t.Sensor.Read(ctx)
	if err != nil {
		return fmt.Errorf("read sensor: %w", err)
	}
	log.Debug("raw reading %s", reading)

	reading, err = t.Calibrator.Apply(reading)
	if err != nil {
		return fmt.Errorf("calibrate reading: %w", err)
	}

	if t.Rules != nil {
		if err := t.Rules.Validate(reading); err != nil {
			return fmt.Errorf("reading %s rejected: %w", reading, err)
		}
	}

	payload, err := sensor.EncodePayload(reading)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}

	if err := mqtt.PublishOnce(ctx, t.Publisher, t.Topic, payload); err != nil {
		return fmt.Errorf("publish reading: %w", err)
	}

	log.Info("published %s to %s", payload, t.Topic)
	return nil
}

// indicate drives the indicator. Failures are logged only; the indicator
// carries no state the cycle depends on.
func (t *Telemetry) indicate(log logger.Entry, on bool) {
	if t.Indicator == nil {
		return
	}
	if err := t.Indicator.Set(on); err != nil {
		log.Warn("set indicator %v: %v", on, err)
	}
}

func (t *Telemetry) settle() time.Duration {
	if t.Settle > 0 {
		return t.Settle
	}
	return DefaultSettle
}

func (t *Telemetry) pause(d time.Duration) {
	if t.sleep != nil {
		t.sleep(d)
		return
	}
	time.Sleep(d)
}
