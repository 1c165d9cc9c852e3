package llm

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"time"
)

func SleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func ExpBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		return initial
	}
	d := initial << attempt
	if d <= 0 {
		return max
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func WithJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	// +/-20% jitter.
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	j := 0.8 + r.Float64()*0.4
	return time.Duration(float64(d) * j)
}

type RetryOptions struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	LogPrefix      string
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 250 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Second
	}
	return o
}

// Retry runs fn until it succeeds or the attempt budget is spent, sleeping
// with jittered exponential backoff between attempts.
func Retry(ctx context.Context, opts RetryOptions, fn func() error) error {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt >= opts.MaxRetries-1 {
			return lastErr
		}

		backoff := WithJitter(ExpBackoff(attempt, opts.InitialBackoff, opts.MaxBackoff))
		if strings.TrimSpace(opts.LogPrefix) != "" {
			log.Printf("%s llm transient failure: retry=%d/%d err=%v backoff=%s",
				opts.LogPrefix, attempt+1, opts.MaxRetries, lastErr, backoff)
		}
		if !SleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
	}
	return lastErr
}
