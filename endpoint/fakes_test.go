package endpoint

import (
	"context"
	"errors"

	"github.com/eddielth/edge-nodes/mqtt"
	"github.com/eddielth/edge-nodes/sensor"
	"github.com/eddielth/edge-nodes/storage"
)

// events is a shared, ordered log of what the fakes saw.
type events []string

func (e *events) add(s string) { *e = append(*e, s) }

func (e events) count(s string) int {
	n := 0
	for _, v := range e {
		if v == s {
			n++
		}
	}
	return n
}

type fakeSource struct {
	log     *events
	reading sensor.Reading
	err     error
}

func (s *fakeSource) Read(context.Context) (sensor.Reading, error) {
	s.log.add("read")
	return s.reading, s.err
}

type fakeOutput struct {
	log  *events
	name string
	err  error
	high bool
}

func (o *fakeOutput) Set(high bool) error {
	if o.err != nil {
		return o.err
	}
	o.high = high
	if high {
		o.log.add(o.name + " on")
	} else {
		o.log.add(o.name + " off")
	}
	return nil
}

// fakeSession records every call. Messages are replayed in order; once the
// queue is drained Receive fails with endErr.
type fakeSession struct {
	log        *events
	openErr    error
	publishErr error
	endErr     error
	queue      []mqtt.Message
	published  [][]byte
	subscribed []string
	onReceive  func()
}

func (s *fakeSession) Open(context.Context) error {
	s.log.add("open")
	return s.openErr
}

func (s *fakeSession) Publish(_ context.Context, topic string, payload []byte) error {
	s.log.add("publish " + topic)
	if s.publishErr != nil {
		return s.publishErr
	}
	s.published = append(s.published, payload)
	return nil
}

func (s *fakeSession) Subscribe(_ context.Context, topic string) error {
	s.log.add("subscribe " + topic)
	s.subscribed = append(s.subscribed, topic)
	return nil
}

func (s *fakeSession) Receive(ctx context.Context) (mqtt.Message, error) {
	if s.onReceive != nil {
		s.onReceive()
	}
	if err := ctx.Err(); err != nil {
		return mqtt.Message{}, err
	}
	if len(s.queue) == 0 {
		if s.endErr == nil {
			return mqtt.Message{}, errors.New("end of script")
		}
		return mqtt.Message{}, s.endErr
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, nil
}

func (s *fakeSession) Close() error {
	s.log.add("close")
	return nil
}

type fakeRecorder struct {
	records []storage.Record
	err     error
}

func (r *fakeRecorder) Store(_ context.Context, rec storage.Record) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}
