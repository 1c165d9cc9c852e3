// Package flow encapsulates per-turn pacing as a single "wait for permission
// to proceed" primitive with three modes: manual (wait for an explicit
// advance), timed (short fixed delay), and paced (configurable delay).
package flow

import (
	"context"
	"sync"
	"time"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/session"
)

const (
	timedDelay      = 300 * time.Millisecond
	timedDelayRapid = 100 * time.Millisecond
	pacedDefault    = 3 * time.Second
	pacedRapid      = time.Second
	stepDelay       = 500 * time.Millisecond
	stepDelayRapid  = 150 * time.Millisecond
)

type Controller struct {
	mu    sync.Mutex
	mode  session.FlowMode
	delay time.Duration
	rapid bool

	// advance is a single-slot release valve for manual mode. Buffered so
	// Advance never blocks and a release delivered between waits is not lost.
	advance chan struct{}
}

func NewController(mode session.FlowMode, delay time.Duration, rapid bool) *Controller {
	c := &Controller{
		mode:    mode,
		delay:   delay,
		rapid:   rapid,
		advance: make(chan struct{}, 1),
	}
	if c.mode == "" {
		c.mode = session.FlowPaced
	}
	return c
}

func (c *Controller) Mode() session.FlowMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode reconfigures pacing live. Switching away from manual releases any
// outstanding manual wait immediately.
func (c *Controller) SetMode(mode session.FlowMode, delay time.Duration) {
	c.mu.Lock()
	wasManual := c.mode == session.FlowManual
	c.mode = mode
	if delay > 0 {
		c.delay = delay
	}
	c.mu.Unlock()

	if wasManual && mode != session.FlowManual {
		c.Advance()
	}
}

// Advance releases a pending manual wait, or arms the next one. Never blocks.
func (c *Controller) Advance() {
	select {
	case c.advance <- struct{}{}:
	default:
	}
}

// Wait blocks until the current pacing mode permits the next turn.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	mode := c.mode
	delay := c.delay
	rapid := c.rapid
	c.mu.Unlock()

	switch mode {
	case session.FlowManual:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.advance:
			return nil
		}
	case session.FlowTimed:
		if rapid {
			return sleep(ctx, timedDelayRapid)
		}
		return sleep(ctx, timedDelay)
	default: // paced
		if delay <= 0 {
			delay = pacedDefault
			if rapid {
				delay = pacedRapid
			}
		}
		return sleep(ctx, delay)
	}
}

// StepDelay is the small pause between scripted closing-phase steps.
func (c *Controller) StepDelay(ctx context.Context) error {
	c.mu.Lock()
	rapid := c.rapid
	c.mu.Unlock()
	if rapid {
		return sleep(ctx, stepDelayRapid)
	}
	return sleep(ctx, stepDelay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
