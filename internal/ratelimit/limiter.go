// Package ratelimit gates outgoing GitHub requests on the primary rate limit
// reported by the server.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/naka-gawa/org-stats/internal/domain"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxWait caps how long Acquire is willing to wait for a reset.
	DefaultMaxWait = time.Hour
	// resetBuffer is added to the reset time to absorb clock skew.
	resetBuffer = time.Second
)

// State is the most recent rate limit snapshot.
// Known is false until a response with rate headers has been seen.
type State struct {
	Remaining int
	Reset     time.Time
	Known     bool
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Limiter tracks the remaining quota shared by every concurrent request.
type Limiter struct {
	mu      sync.Mutex
	state   State
	maxWait time.Duration
	now     func() time.Time
	sleep   SleepFunc
	log     zerolog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleep overrides the context-aware sleep.
func WithSleep(s SleepFunc) Option {
	return func(l *Limiter) { l.sleep = s }
}

// WithMaxWait sets the longest acceptable wait for a reset.
func WithMaxWait(d time.Duration) Option {
	return func(l *Limiter) { l.maxWait = d }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

// New creates a Limiter with an unknown state.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		maxWait: DefaultMaxWait,
		now:     time.Now,
		sleep:   Sleep,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Acquire reserves one request. When the quota is exhausted and the reset is
// still ahead it blocks once until the reset. It fails with a
// RateLimitExceeded error when the reset is further away than the max wait.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	for {
		now := l.now()
		if !l.state.Known {
			l.mu.Unlock()
			return nil
		}
		if !now.Before(l.state.Reset) {
			// window rolled over; wait for a fresh response to tell us the new quota
			l.state.Known = false
			l.mu.Unlock()
			return nil
		}
		if l.state.Remaining > 0 {
			l.state.Remaining--
			l.mu.Unlock()
			return nil
		}

		wait := l.state.Reset.Sub(now) + resetBuffer
		if wait > l.maxWait {
			reset := l.state.Reset
			l.mu.Unlock()
			return domain.Newf(domain.ErrorCodeRateLimitExceeded,
				"rate limit resets at %s, more than %s away", reset.Format(time.RFC3339), l.maxWait)
		}
		l.mu.Unlock()

		l.log.Warn().Dur("wait", wait).Msg("rate limit exhausted, waiting for reset")
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
		l.mu.Lock()
	}
}

// Update overwrites the state with the values of the freshest response.
func (l *Limiter) Update(remaining int, reset time.Time) {
	l.mu.Lock()
	l.state = State{Remaining: remaining, Reset: reset, Known: true}
	l.mu.Unlock()
}

// State returns a copy of the current state.
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// ParseHeaders reads the primary rate limit headers.
// ok is false when either header is missing or malformed.
func ParseHeaders(h http.Header) (remaining int, reset time.Time, ok bool) {
	rs, rr := h.Get("X-RateLimit-Remaining"), h.Get("X-RateLimit-Reset")
	if rs == "" || rr == "" {
		return 0, time.Time{}, false
	}
	remaining, err := strconv.Atoi(rs)
	if err != nil {
		return 0, time.Time{}, false
	}
	sec, err := strconv.ParseInt(rr, 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	return remaining, time.Unix(sec, 0).UTC(), true
}

// Sleep waits for d, returning early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
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
