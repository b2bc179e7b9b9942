package rate

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/robalyx/rolesync/pkg/utils"
)

// Quota is a snapshot of the GitHub request quota shared by every caller.
type Quota struct {
	Limit        int       `json:"limit"`
	Remaining    int       `json:"remaining"`
	Reset        time.Time `json:"reset"`
	BlockedUntil time.Time `json:"blockedUntil"`
}

// Limiter spaces GitHub requests to a per-minute ceiling and holds every caller
// while the quota is exhausted or a secondary limit asked us to back off.
type Limiter struct {
	mu           sync.Mutex
	nextSlot     time.Time
	minInterval  time.Duration
	maxJitter    time.Duration
	resetBuffer  time.Duration
	blockedUntil time.Time
	quota        Quota
	rng          *rand.Rand
	sleep        utils.SleepFunc
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithJitter adds up to the given random delay to each slot.
func WithJitter(jitter time.Duration) Option {
	return func(l *Limiter) {
		l.maxJitter = jitter
	}
}

// WithResetBuffer sets the delay added after a primary limit reset.
func WithResetBuffer(buffer time.Duration) Option {
	return func(l *Limiter) {
		l.resetBuffer = buffer
	}
}

// WithSleep replaces the function used to wait.
func WithSleep(sleep utils.SleepFunc) Option {
	return func(l *Limiter) {
		l.sleep = sleep
	}
}

// New creates a limiter allowing requestsPerMinute requests. Zero or less disables spacing.
func New(requestsPerMinute int, opts ...Option) *Limiter {
	var interval time.Duration
	if requestsPerMinute > 0 {
		interval = time.Minute / time.Duration(requestsPerMinute)
	}

	l := &Limiter{
		minInterval: interval,
		resetBuffer: 5 * time.Second,
		quota:       Quota{Remaining: -1},
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:       utils.Sleep,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Wait blocks until the caller may send the next request.
// Slots are reserved under the lock so concurrent callers never share one.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()

	now := time.Now()

	target := now
	if l.nextSlot.After(target) {
		target = l.nextSlot
	}

	if l.blockedUntil.After(target) {
		target = l.blockedUntil
	}

	interval := l.minInterval
	if l.maxJitter > 0 {
		interval += time.Duration(l.rng.Int63n(int64(l.maxJitter)))
	}

	l.nextSlot = target.Add(interval)
	l.mu.Unlock()

	if wait := target.Sub(now); wait > 0 {
		return l.sleep(ctx, wait)
	}

	return ctx.Err()
}

// Update records the quota reported by a response.
// An exhausted quota blocks every caller until the reset plus the buffer.
func (l *Limiter) Update(limit, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.quota.Limit = limit
	l.quota.Remaining = remaining
	l.quota.Reset = reset

	if remaining == 0 && !reset.IsZero() {
		l.blockLocked(reset.Add(l.resetBuffer))
	}
}

// BlockFor holds every caller for the given duration, as requested by a Retry-After header.
func (l *Limiter) BlockFor(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.blockLocked(time.Now().Add(d))
}

// Quota returns the latest known quota.
func (l *Limiter) Quota() Quota {
	l.mu.Lock()
	defer l.mu.Unlock()

	quota := l.quota
	quota.BlockedUntil = l.blockedUntil

	return quota
}

func (l *Limiter) blockLocked(until time.Time) {
	if until.After(l.blockedUntil) {
		l.blockedUntil = until
	}
}
