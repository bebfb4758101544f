// Package network brings the device onto its network before any broker
// traffic is attempted.
//
// The default RetryPolicy polls the link until it reports an address and
// never gives up: a node with no network has nothing else to do. Bounded
// attempts and exponential backoff are available through RetryPolicy for
// deployments that would rather exit and be relaunched.
package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eddielth/edge-nodes/logger"
)

// ErrUnreachable is returned when a bounded RetryPolicy runs out of attempts.
var ErrUnreachable = errors.New("network: link did not come up")

// Credentials identify the network to join. They are read-only for the connector.
type Credentials struct {
	SSID   string
	Secret string
}

// Handle describes an established link. Address is for diagnostics only.
type Handle struct {
	Interface string
	Address   string
}

// Link is the radio or interface driver the connector drives.
type Link interface {
	// Name is the interface name, e.g. wlan0.
	Name() string
	// Connected reports whether the link is associated and addressed.
	Connected() bool
	// Activate brings the interface up.
	Activate(ctx context.Context) error
	// Join starts association with the given network.
	Join(ctx context.Context, creds Credentials) error
	// Address returns the assigned address, or "" if none.
	Address() string
}

// RetryPolicy controls how long EnsureConnected waits for the link.
type RetryPolicy struct {
	// MaxAttempts is the number of polls before giving up. 0 polls forever.
	MaxAttempts int
	// Interval is the delay between the first polls.
	Interval time.Duration
	// MaxInterval caps the delay once Multiplier has grown it. 0 means no cap.
	MaxInterval time.Duration
	// Multiplier scales the delay after every poll. Values <= 1 keep it fixed.
	Multiplier float64
	// RejoinInterval is the minimum time between two activate/join attempts
	// after one has failed. Polls in between only check the link.
	RejoinInterval time.Duration
}

// DefaultRetryPolicy polls every 100ms without limit and retries a failed
// join every 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Interval:       100 * time.Millisecond,
		Multiplier:     1,
		RejoinInterval: 5 * time.Second,
	}
}

// next returns the delay that follows d.
func (p RetryPolicy) next(d time.Duration) time.Duration {
	if p.Multiplier > 1 {
		d = time.Duration(float64(d) * p.Multiplier)
	}
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// Connector joins the network through a Link.
type Connector struct {
	link   Link
	policy RetryPolicy
	log    logger.Entry
}

// NewConnector returns a connector for link. Zero Interval and
// RejoinInterval fall back to DefaultRetryPolicy's values.
func NewConnector(link Link, policy RetryPolicy) *Connector {
	if policy.Interval <= 0 {
		policy.Interval = DefaultRetryPolicy().Interval
	}
	if policy.RejoinInterval <= 0 {
		policy.RejoinInterval = DefaultRetryPolicy().RejoinInterval
	}
	return &Connector{
		link:   link,
		policy: policy,
		log:    logger.Named("network"),
	}
}

// EnsureConnected blocks until the link is associated and addressed.
// It returns immediately when the link is already up.
//
// A failed activate or join does not end the wait: the link is treated as
// not connected yet and the attempt is repeated every RejoinInterval. Only a
// bounded policy gives up, with ErrUnreachable wrapping the last failure.
func (c *Connector) EnsureConnected(ctx context.Context, creds Credentials) (Handle, error) {
	if c.link.Connected() {
		return c.handle(), nil
	}

	c.log.Info("connecting to network %s on %s...", creds.SSID, c.link.Name())

	var (
		joined   bool
		lastErr  error
		lastJoin time.Time
	)

	delay := c.policy.Interval
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		if !joined && (lastJoin.IsZero() || time.Since(lastJoin) >= c.policy.RejoinInterval) {
			lastJoin = time.Now()
			if err := c.join(ctx, creds); err != nil {
				lastErr = err
				c.log.Warn("%v, retrying", err)
			} else {
				joined, lastErr = true, nil
			}
		}

		if c.link.Connected() {
			h := c.handle()
			c.log.Info("network config: interface=%s address=%s", h.Interface, h.Address)
			return h, nil
		}
		if c.policy.MaxAttempts > 0 && attempt >= c.policy.MaxAttempts {
			if lastErr != nil {
				return Handle{}, fmt.Errorf("%w: %s after %d attempts: %w", ErrUnreachable, c.link.Name(), attempt, lastErr)
			}
			return Handle{}, fmt.Errorf("%w: %s after %d attempts", ErrUnreachable, c.link.Name(), attempt)
		}

		select {
		case <-ctx.Done():
			return Handle{}, ctx.Err()
		case <-timer.C:
		}

		delay = c.policy.next(delay)
		timer.Reset(delay)
	}
}

// join brings the interface up and starts association.
func (c *Connector) join(ctx context.Context, creds Credentials) error {
	if err := c.link.Activate(ctx); err != nil {
		return fmt.Errorf("activate %s: %w", c.link.Name(), err)
	}
	if err := c.link.Join(ctx, creds); err != nil {
		return fmt.Errorf("join %s: %w", creds.SSID, err)
	}
	return nil
}

func (c *Connector) handle() Handle {
	return Handle{
		Interface: c.link.Name(),
		Address:   c.link.Address(),
	}
}
