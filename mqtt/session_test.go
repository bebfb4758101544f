package mqtt

import (
	"context"
	"errors"
	"testing"
)

// scriptedSession replays queued messages, then fails Receive with endErr.
type scriptedSession struct {
	queue      []Message
	endErr     error
	subscribed []string
	opened     int
	closed     int
}

func (s *scriptedSession) Open(context.Context) error { s.opened++; return nil }
func (s *scriptedSession) Close() error               { s.closed++; return nil }
func (s *scriptedSession) Publish(context.Context, string, []byte) error {
	return nil
}

func (s *scriptedSession) Subscribe(_ context.Context, topic string) error {
	s.subscribed = append(s.subscribed, topic)
	return nil
}

func (s *scriptedSession) Receive(context.Context) (Message, error) {
	if len(s.queue) == 0 {
		return Message{}, s.endErr
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, nil
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter()

	var got []string
	r.Handle(TopicCommand, func(_ context.Context, msg Message) error {
		got = append(got, string(msg.Payload))
		return nil
	})

	ctx := context.Background()
	if err := r.Dispatch(ctx, Message{Topic: TopicCommand, Payload: []byte("rsw03_on")}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if err := r.Dispatch(ctx, Message{Topic: "elsewhere", Payload: []byte("ignored")}); err != nil {
		t.Fatalf("Dispatch() unrouted error = %v", err)
	}

	if len(got) != 1 || got[0] != "rsw03_on" {
		t.Errorf("handled = %v, want [rsw03_on]", got)
	}
}

func TestRouterUnmatched(t *testing.T) {
	r := NewRouter()
	var unmatched []string
	r.HandleUnmatched(func(_ context.Context, msg Message) error {
		unmatched = append(unmatched, msg.Topic)
		return nil
	})

	r.Dispatch(context.Background(), Message{Topic: "stray"})
	if len(unmatched) != 1 || unmatched[0] != "stray" {
		t.Errorf("unmatched = %v", unmatched)
	}
}

func TestRouterHandlerError(t *testing.T) {
	boom := errors.New("gpio write failed")
	r := NewRouter()
	r.Handle(TopicCommand, func(context.Context, Message) error { return boom })

	err := r.Dispatch(context.Background(), Message{Topic: TopicCommand})
	if !errors.Is(err, boom) {
		t.Errorf("Dispatch() error = %v, want %v", err, boom)
	}
}

func TestListenDispatchesUntilReceiveFails(t *testing.T) {
	s := &scriptedSession{
		queue: []Message{
			{Topic: TopicCommand, Payload: []byte("a")},
			{Topic: TopicCommand, Payload: []byte("b")},
		},
		endErr: ErrSessionLost,
	}
	r := NewRouter()
	var n int
	r.Handle(TopicCommand, func(context.Context, Message) error { n++; return nil })

	err := Listen(context.Background(), s, r)
	if !errors.Is(err, ErrSessionLost) {
		t.Fatalf("Listen() error = %v, want ErrSessionLost", err)
	}
	if n != 2 {
		t.Errorf("dispatched = %d, want 2", n)
	}
	if len(s.subscribed) != 1 || s.subscribed[0] != TopicCommand {
		t.Errorf("subscribed = %v", s.subscribed)
	}
}

func TestListenWithoutRoutes(t *testing.T) {
	if err := Listen(context.Background(), &scriptedSession{}, NewRouter()); err == nil {
		t.Error("Listen() with empty router expected error")
	}
}

type failingOpen struct {
	scriptedSession
}

func (f *failingOpen) Open(context.Context) error { return ErrConnectionFailed }

func TestPublishOnceOpenFailure(t *testing.T) {
	s := &failingOpen{}
	err := PublishOnce(context.Background(), s, TopicTelemetry, []byte("{}"))
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("PublishOnce() error = %v, want ErrConnectionFailed", err)
	}
	if s.closed != 1 {
		t.Errorf("closed = %d, want 1", s.closed)
	}
}

// brokenPublisher fails Open and Close with the given errors.
type brokenPublisher struct {
	openErr  error
	closeErr error
	closed   int
}

func (p *brokenPublisher) Open(context.Context) error { return p.openErr }
func (p *brokenPublisher) Close() error               { p.closed++; return p.closeErr }
func (p *brokenPublisher) Publish(context.Context, string, []byte) error {
	return nil
}

func TestPublishOnceReportsCloseAfterFailedOpen(t *testing.T) {
	openErr := errors.New("connection refused")
	closeErr := errors.New("socket already closed")
	p := &brokenPublisher{openErr: openErr, closeErr: closeErr}

	err := PublishOnce(context.Background(), p, TopicTelemetry, []byte("{}"))
	if !errors.Is(err, openErr) || !errors.Is(err, closeErr) {
		t.Fatalf("PublishOnce() error = %v, want both open and close failures", err)
	}
	if p.closed != 1 {
		t.Errorf("closed = %d, want 1", p.closed)
	}
}

func TestPublishOnceFailedOpenCleanClose(t *testing.T) {
	openErr := errors.New("connection refused")
	p := &brokenPublisher{openErr: openErr}

	if err := PublishOnce(context.Background(), p, TopicTelemetry, []byte("{}")); err != openErr {
		t.Fatalf("PublishOnce() error = %v, want %v unwrapped", err, openErr)
	}
	if p.closed != 1 {
		t.Errorf("closed = %d, want 1", p.closed)
	}
}
