package endpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/eddielth/edge-nodes/actuator"
	"github.com/eddielth/edge-nodes/mqtt"
)

func newTestSwitch(log *events, payloads ...string) (*Switch, *fakeSession, *fakeOutput) {
	out := &fakeOutput{log: log, name: "relay"}
	sess := &fakeSession{log: log, endErr: mqtt.ErrSessionLost}
	for _, p := range payloads {
		sess.queue = append(sess.queue, mqtt.Message{Topic: mqtt.TopicCommand, Payload: []byte(p)})
	}
	sw := &Switch{
		Session:    sess,
		Controller: actuator.NewController(out, actuator.DefaultSettle),
		Decoder:    actuator.DefaultDecoder(),
		Topic:      mqtt.TopicCommand,
	}
	return sw, sess, out
}

// stateAfterEach snapshots the controller state before every Receive after
// the first, i.e. after each dispatched message has settled.
func stateAfterEach(sw *Switch, sess *fakeSession) *[]actuator.State {
	var states []actuator.State
	first := true
	sess.onReceive = func() {
		if first {
			first = false
			return
		}
		states = append(states, sw.Controller.State())
	}
	return &states
}

func TestSwitchActivate(t *testing.T) {
	var log events
	sw, sess, out := newTestSwitch(&log, "rsw03_on")
	states := stateAfterEach(sw, sess)

	err := sw.Run(context.Background())
	if !errors.Is(err, mqtt.ErrSessionLost) {
		t.Fatalf("Run() error = %v, want ErrSessionLost", err)
	}
	if len(*states) != 1 || (*states)[0] != actuator.On {
		t.Errorf("state after rsw03_on = %v, want [on]", *states)
	}
	if out.high {
		t.Error("output left high after exit")
	}
	if len(sess.subscribed) != 1 || sess.subscribed[0] != mqtt.TopicCommand {
		t.Errorf("subscribed = %v", sess.subscribed)
	}
}

func TestSwitchUnrecognizedForcesOff(t *testing.T) {
	var log events
	sw, sess, _ := newTestSwitch(&log, "rsw03_on", "garbage123", "rsw03_on", "", "rsw03_off")
	states := stateAfterEach(sw, sess)

	sw.Run(context.Background())

	want := []actuator.State{actuator.On, actuator.Off, actuator.On, actuator.Off, actuator.Off}
	if len(*states) != len(want) {
		t.Fatalf("states = %v, want %v", *states, want)
	}
	for i := range want {
		if (*states)[i] != want[i] {
			t.Errorf("state %d = %v, want %v", i, (*states)[i], want[i])
		}
	}
}

func TestSwitchCleanupOnSessionFault(t *testing.T) {
	var log events
	sw, _, out := newTestSwitch(&log, "rsw03_on")

	sw.Run(context.Background())

	if sw.Controller.State() != actuator.Off || out.high {
		t.Errorf("final state = %v, high = %v", sw.Controller.State(), out.high)
	}
	if log.count("close") != 1 {
		t.Errorf("session closed %d times, want 1", log.count("close"))
	}
	if last := log[len(log)-1]; last != "close" {
		t.Errorf("last event = %q, want close", last)
	}
}

func TestSwitchOpenFailure(t *testing.T) {
	var log events
	sw, sess, _ := newTestSwitch(&log, "rsw03_on")
	sess.openErr = mqtt.ErrConnectionFailed

	err := sw.Run(context.Background())
	if !errors.Is(err, mqtt.ErrConnectionFailed) {
		t.Fatalf("Run() error = %v, want ErrConnectionFailed", err)
	}

	// Entry force-off, open, then one cleanup.
	want := events{"relay off", "open", "relay off", "close"}
	if len(log) != len(want) {
		t.Fatalf("events = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, log[i], want[i])
		}
	}
	if sw.Controller.State() != actuator.Off {
		t.Errorf("state = %v, want off", sw.Controller.State())
	}
}

func TestSwitchCanceledContext(t *testing.T) {
	var log events
	sw, _, out := newTestSwitch(&log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sw.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if out.high || log.count("close") != 1 {
		t.Errorf("events = %v", log)
	}
}

func TestSwitchOutputFailureIsFatal(t *testing.T) {
	var log events
	sw, _, out := newTestSwitch(&log, "rsw03_on")
	out.err = errors.New("gpio13: device busy")

	if err := sw.Run(context.Background()); !errors.Is(err, out.err) {
		t.Fatalf("Run() error = %v, want %v", err, out.err)
	}
	if log.count("close") != 1 {
		t.Errorf("session closed %d times, want 1", log.count("close"))
	}
}
