package endpoint

import (
	"context"
	"errors"
	"sync"

	"github.com/eddielth/edge-nodes/logger"
	"github.com/eddielth/edge-nodes/mqtt"
	"github.com/eddielth/edge-nodes/sensor"
	"github.com/eddielth/edge-nodes/storage"
	"github.com/eddielth/edge-nodes/validator"
)

// Recorder persists collected readings.
type Recorder interface {
	Store(ctx context.Context, rec storage.Record) error
}

// Collector subscribes to the telemetry topic and records every valid
// reading it receives.
type Collector struct {
	Session  mqtt.Session
	Recorder Recorder
	Topic    string
	// Rules drop implausible readings. Optional.
	Rules validator.Validator
}

// Run opens the session and records readings until the session fails or
// ctx ends. Malformed or rejected payloads are dropped; storage failures are
// logged. The session is closed on every exit.
func (c *Collector) Run(ctx context.Context) error {
	log := logger.Named("collector")

	cleanup := sync.OnceFunc(func() {
		if err := c.Session.Close(); err != nil {
			log.Error("close session: %v", err)
		}
	})
	defer cleanup()

	if err := c.Session.Open(ctx); err != nil {
		return err
	}

	router := mqtt.NewRouter()
	router.Handle(c.Topic, func(ctx context.Context, msg mqtt.Message) error {
		reading, err := sensor.DecodePayload(msg.Payload)
		if err != nil {
			log.Warn("drop payload %q: %v", msg.Payload, err)
			return nil
		}
		if c.Rules != nil {
			if err := c.Rules.Validate(reading); err != nil {
				log.Warn("drop reading %s: %v", reading, err)
				return nil
			}
		}

		rec := storage.NewRecord(msg.Topic, reading)
		if err := c.Recorder.Store(ctx, rec); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Error("record %s: %v", rec.ID, err)
			return nil
		}
		log.Info("recorded %s from %s", reading, msg.Topic)
		return nil
	})

	log.Info("collecting %s", c.Topic)
	return mqtt.Listen(ctx, c.Session, router)
}
