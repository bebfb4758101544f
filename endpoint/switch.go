package endpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/eddielth/edge-nodes/actuator"
	"github.com/eddielth/edge-nodes/logger"
	"github.com/eddielth/edge-nodes/mqtt"
)

// Switch is the context of the command loop: a persistent session feeding
// decoded commands to the output controller.
type Switch struct {
	Session    mqtt.Session
	Controller *actuator.Controller
	Decoder    actuator.Decoder
	Topic      string
}

// Run forces the output off, opens the session and dispatches commands until
// the session fails or ctx ends. On every exit the output is forced off and
// the session closed, exactly once.
func (s *Switch) Run(ctx context.Context) error {
	log := logger.Named("switch")

	cleanup := sync.OnceFunc(func() {
		if err := s.Controller.ForceOff(); err != nil {
			log.Error("force output off: %v", err)
		}
		if err := s.Session.Close(); err != nil {
			log.Error("close session: %v", err)
		}
		log.Info("output off, session closed")
	})
	defer cleanup()

	if err := s.Controller.ForceOff(); err != nil {
		return fmt.Errorf("force output off: %w", err)
	}

	if err := s.Session.Open(ctx); err != nil {
		return err
	}

	router := mqtt.NewRouter()
	router.Handle(s.Topic, func(ctx context.Context, msg mqtt.Message) error {
		cmd := s.Decoder.Decode(msg.Payload)
		log.Info("command %s on %s", cmd, msg.Topic)
		return s.Controller.Apply(cmd)
	})

	log.Info("listening on %s", s.Topic)
	return mqtt.Listen(ctx, s.Session, router)
}
