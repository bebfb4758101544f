// Package suspend models the telemetry endpoint's low-power suspension as a
// relaunch: after each cycle nothing is kept, and the next wake runs the
// whole boot again from scratch.
package suspend

import (
	"context"
	"time"

	"github.com/eddielth/edge-nodes/logger"
)

// DefaultInterval is the suspension between two wakes.
const DefaultInterval = 30 * time.Minute

// BootFunc builds every handle, runs one cycle and releases everything.
type BootFunc func(ctx context.Context) error

// Scheduler relaunches a BootFunc at a fixed interval.
type Scheduler struct {
	Interval time.Duration

	// after is swapped in tests.
	after func(time.Duration) <-chan time.Time
}

// New returns a scheduler waking every interval. A non-positive interval
// uses DefaultInterval.
func New(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{Interval: interval, after: time.After}
}

// Run boots immediately, then again every Interval, until ctx ends. A failed
// boot is logged and the next wake is still scheduled, like a device whose
// wake timer fires whether or not the last cycle succeeded. Run only returns
// ctx's error.
func (s *Scheduler) Run(ctx context.Context, boot BootFunc) error {
	log := logger.Named("suspend")
	after := s.after
	if after == nil {
		after = time.After
	}

	for wake := 1; ; wake++ {
		err := boot(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Error("wake %d failed: %v", wake, err)
		}

		log.Info("suspending for %s", s.Interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-after(s.Interval):
		}
	}
}
