package actuator

import (
	"fmt"
	"time"

	"github.com/eddielth/edge-nodes/gpio"
	"github.com/eddielth/edge-nodes/logger"
)

// DefaultSettle is the pause after every output change.
const DefaultSettle = 50 * time.Millisecond

// State is the last level the controller drove.
type State int

const (
	// Unknown is the state before the output was first forced.
	Unknown State = iota
	Off
	On
)

func (s State) String() string {
	switch s {
	case On:
		return "on"
	case Off:
		return "off"
	default:
		return "unknown"
	}
}

// Controller owns one output line and the state it was last driven to.
// It is not safe for concurrent use; the command loop is its only writer.
type Controller struct {
	out    gpio.Output
	settle time.Duration
	sleep  func(time.Duration)
	state  State
	log    logger.Entry
}

// NewController returns a controller for out in the Unknown state. A
// non-positive settle uses DefaultSettle.
func NewController(out gpio.Output, settle time.Duration) *Controller {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Controller{
		out:    out,
		settle: settle,
		sleep:  time.Sleep,
		log:    logger.Named("actuator"),
	}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Apply drives the output for cmd, then waits the settle delay.
func (c *Controller) Apply(cmd Command) error {
	if cmd.Kind == Unrecognized {
		c.log.Warn("unrecognized command %q, forcing output off", cmd.Raw)
	}
	if cmd.Kind == Activate {
		return c.drive(On)
	}
	return c.drive(Off)
}

// ForceOff drives the output low regardless of the current state.
func (c *Controller) ForceOff() error {
	return c.drive(Off)
}

func (c *Controller) drive(s State) error {
	if err := c.out.Set(s == On); err != nil {
		// The line level is now uncertain.
		c.state = Unknown
		return fmt.Errorf("drive output %s: %w", s, err)
	}
	if c.state != s {
		c.log.Info("output %s", s)
	}
	c.state = s
	c.sleep(c.settle)
	return nil
}
