package mqtt

import (
	"context"
	"errors"
	"fmt"
)

// Message is one inbound publication.
type Message struct {
	Topic   string
	Payload []byte
}

// Publisher is the transient half of a session: open, publish, close.
type Publisher interface {
	Open(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Session adds subscription and a blocking receive for persistent listeners.
// At most one inbound message is held; a slow consumer stalls delivery.
type Session interface {
	Publisher
	Subscribe(ctx context.Context, topic string) error
	Receive(ctx context.Context) (Message, error)
}

// PublishOnce opens p, publishes a single payload and closes p again,
// whatever the outcome of the publish.
func PublishOnce(ctx context.Context, p Publisher, topic string, payload []byte) (err error) {
	if err := p.Open(ctx); err != nil {
		// Open may have half-initialised the transport.
		if cerr := p.Close(); cerr != nil {
			return errors.Join(err, cerr)
		}
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return p.Publish(ctx, topic, payload)
}

// Handler processes one message delivered on a routed topic.
type Handler func(ctx context.Context, msg Message) error

// Router dispatches received messages synchronously by exact topic.
type Router struct {
	routes    map[string]Handler
	unmatched Handler
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Handler)}
}

// Handle registers h for topic, replacing any earlier handler.
func (r *Router) Handle(topic string, h Handler) {
	r.routes[topic] = h
}

// HandleUnmatched sets the handler for topics without a route.
func (r *Router) HandleUnmatched(h Handler) {
	r.unmatched = h
}

// Topics lists the routed topics.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for topic := range r.routes {
		topics = append(topics, topic)
	}
	return topics
}

// Dispatch runs the handler for msg.Topic. Messages with no route are
// passed to the unmatched handler, or dropped if none is set.
func (r *Router) Dispatch(ctx context.Context, msg Message) error {
	h, ok := r.routes[msg.Topic]
	if !ok {
		h = r.unmatched
	}
	if h == nil {
		return nil
	}
	if err := h(ctx, msg); err != nil {
		return fmt.Errorf("handle %s: %w", msg.Topic, err)
	}
	return nil
}

// Listen subscribes s to every routed topic and then blocks, dispatching each
// received message, until Receive or a handler fails.
func Listen(ctx context.Context, s Session, r *Router) error {
	if len(r.routes) == 0 {
		return errors.New("mqtt: router has no routes")
	}
	for _, topic := range r.Topics() {
		if err := s.Subscribe(ctx, topic); err != nil {
			return err
		}
	}

	for {
		msg, err := s.Receive(ctx)
		if err != nil {
			return err
		}
		if err := r.Dispatch(ctx, msg); err != nil {
			return err
		}
	}
}
