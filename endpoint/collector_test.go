package endpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/eddielth/edge-nodes/config"
	"github.com/eddielth/edge-nodes/mqtt"
	"github.com/eddielth/edge-nodes/sensor"
	"github.com/eddielth/edge-nodes/validator"
)

func TestCollectorRecordsValidReadings(t *testing.T) {
	var log events
	sess := &fakeSession{log: &log, endErr: mqtt.ErrSessionLost, queue: []mqtt.Message{
		{Topic: mqtt.TopicTelemetry, Payload: []byte(`{"temp":23.5,"humi":40.2,"pres":1013.2}`)},
		{Topic: mqtt.TopicTelemetry, Payload: []byte(`not json`)},
		{Topic: mqtt.TopicTelemetry, Payload: []byte(`{"temp":23.5,"humi":40.2}`)},
		{Topic: mqtt.TopicTelemetry, Payload: []byte(`{"temp":500,"humi":40.2,"pres":1013.2}`)},
		{Topic: mqtt.TopicTelemetry, Payload: []byte(`{"temp":19,"humi":55,"pres":990,"vbat":3.7}`)},
	}}
	rec := &fakeRecorder{}
	c := &Collector{
		Session:  sess,
		Recorder: rec,
		Topic:    mqtt.TopicTelemetry,
		Rules:    validator.ReadingRules(config.LimitsConfig{Temperature: config.RangeConfig{Min: -40, Max: 85}}),
	}

	err := c.Run(context.Background())
	if !errors.Is(err, mqtt.ErrSessionLost) {
		t.Fatalf("Run() error = %v, want ErrSessionLost", err)
	}

	if len(rec.records) != 2 {
		t.Fatalf("recorded %d readings, want 2", len(rec.records))
	}
	if rec.records[0].Reading != (sensor.Reading{Temperature: 23.5, Humidity: 40.2, Pressure: 1013.2}) {
		t.Errorf("first record = %+v", rec.records[0].Reading)
	}
	if rec.records[1].Topic != mqtt.TopicTelemetry {
		t.Errorf("topic = %q", rec.records[1].Topic)
	}
	if log.count("close") != 1 {
		t.Errorf("session closed %d times, want 1", log.count("close"))
	}
}

func TestCollectorStorageFailureIsNotFatal(t *testing.T) {
	var log events
	sess := &fakeSession{log: &log, endErr: mqtt.ErrSessionLost, queue: []mqtt.Message{
		{Topic: mqtt.TopicTelemetry, Payload: []byte(`{"temp":1,"humi":2,"pres":3}`)},
		{Topic: mqtt.TopicTelemetry, Payload: []byte(`{"temp":1,"humi":2,"pres":3}`)},
	}}
	c := &Collector{Session: sess, Recorder: &fakeRecorder{err: errors.New("db down")}, Topic: mqtt.TopicTelemetry}

	if err := c.Run(context.Background()); !errors.Is(err, mqtt.ErrSessionLost) {
		t.Fatalf("Run() error = %v, want ErrSessionLost", err)
	}
	if len(sess.queue) != 0 {
		t.Errorf("%d messages left unprocessed", len(sess.queue))
	}
}

func TestCollectorOpenFailureClosesSession(t *testing.T) {
	var log events
	sess := &fakeSession{log: &log, openErr: mqtt.ErrConnectionFailed}
	c := &Collector{Session: sess, Recorder: &fakeRecorder{}, Topic: mqtt.TopicTelemetry}

	if err := c.Run(context.Background()); !errors.Is(err, mqtt.ErrConnectionFailed) {
		t.Fatalf("Run() error = %v", err)
	}
	if log.count("close") != 1 {
		t.Errorf("events = %v", log)
	}
}
