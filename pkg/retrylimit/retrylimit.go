// Package retrylimit retries platform calls behind an adaptive rate limit.
// The limit grows while calls succeed and shrinks when the platform pushes
// back, so bursts of work (publishing commands to many guilds) slow down on
// their own instead of hammering a rate-limited API.
//
//	lim := retrylimit.NewLimiter(5, 1, 20)
//	err := retrylimit.Do(ctx, lim, retrylimit.DefaultPolicy(), func(ctx context.Context) error {
//		return publish(ctx)
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	min, max  rate.Limit
	lastPush  time.Time
	cooldown  time.Duration
	now       func() time.Time
}

// NewLimiter returns a limiter starting at initial calls per second, kept
// between floor and ceiling.
func NewLimiter(initial, floor, ceiling rate.Limit) *Limiter {
	floor = max(floor, 0.1)
	ceiling = max(ceiling, floor)
	initial = clamp(initial, floor, ceiling)
	return &Limiter{
		limiter:  rate.NewLimiter(initial, burst(initial)),
		min:      floor,
		max:      ceiling,
		cooldown: 10 * time.Second,
		now:      time.Now,
	}
}

// Wait blocks until the next call may start.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Limit returns the current calls per second.
func (l *Limiter) Limit() rate.Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limiter.Limit()
}

// succeeded raises the limit by one call per second, unless the platform
// pushed back recently.
func (l *Limiter) succeeded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.now().Sub(l.lastPush) < l.cooldown {
		return
	}
	l.set(l.limiter.Limit() + 1)
}

// throttled halves the limit.
func (l *Limiter) throttled() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastPush = l.now()
	l.set(l.limiter.Limit() / 2)
}

func (l *Limiter) set(r rate.Limit) {
	r = clamp(r, l.min, l.max)
	if r == l.limiter.Limit() {
		return
	}
	l.limiter.SetLimit(r)
	l.limiter.SetBurst(burst(r))
}

// Verdict is how a failed call should be handled.
type Verdict int

const (
	// Fail stops retrying and returns the error.
	Fail Verdict = iota
	// Retry backs off and tries again.
	Retry
	// Throttle lowers the limit, then retries.
	Throttle
)

// Classifier decides what to do with a failed call.
type Classifier func(error) Verdict

// Policy configures Do.
type Policy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Classify     Classifier
}

// DefaultPolicy retries anything that is not Permanent, up to five times.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:     5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Classify:     func(error) Verdict { return Retry },
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying regardless of the classifier.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ErrAttemptsExhausted wraps the last error once every attempt failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Do calls fn until it succeeds, the classifier gives up, ctx ends or the
// attempts run out. lim may be nil.
func Do(ctx context.Context, lim *Limiter, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Classify == nil {
		p.Classify = DefaultPolicy().Classify
	}
	delay := p.InitialDelay

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if lim != nil {
			if werr := lim.Wait(ctx); werr != nil {
				return werr
			}
		}
		if err = fn(ctx); err == nil {
			if lim != nil {
				lim.succeeded()
			}
			if attempt > 1 {
				log.Printf("[INFO] Call succeeded after %d attempts", attempt)
			}
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		switch p.Classify(err) {
		case Fail:
			return err
		case Throttle:
			if lim != nil {
				lim.throttled()
				log.Printf("[WARN] Throttled (attempt %d), limit now %.2f/s: %v", attempt, float64(lim.Limit()), err)
			}
		default:
			log.Printf("[WARN] Call failed (attempt %d), retrying in %v: %v", attempt, delay, err)
		}
		if attempt == p.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(delay)):
		}
		delay = min(delay*2, max(p.MaxDelay, p.InitialDelay))
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, p.Attempts, err)
}

// jitter adds up to a quarter of d.
func jitter(d time.Duration) time.Duration {
	if d < 4 {
		return d
	}
	return d + rand.N(d/4)
}

func burst(r rate.Limit) int {
	return max(1, int(r))
}

func clamp(r, lo, hi rate.Limit) rate.Limit {
	return min(max(r, lo), hi)
}
