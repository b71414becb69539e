// Package revive decides when a silent counterpart may be relaunched.
//
// Policy combines a consecutive-failure circuit breaker with a token bucket
// so that a counterpart that dies on startup is not respawned in a tight loop.
package revive

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	// TripFailures opens the breaker after this many consecutive failures.
	// Negative disables the breaker.
	TripFailures int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	// ResetAfter forgets failures older than this.
	ResetAfter time.Duration
	// RatePerSec bounds revival attempts. <= 0 means unlimited.
	RatePerSec float64
	Burst      int
}

func DefaultConfig() Config {
	return Config{
		TripFailures: 3,
		BaseDelay:    5 * time.Second,
		MaxDelay:     2 * time.Minute,
		ResetAfter:   5 * time.Minute,
		RatePerSec:   1,
		Burst:        3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TripFailures == 0 {
		c.TripFailures = d.TripFailures
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.ResetAfter <= 0 {
		c.ResetAfter = d.ResetAfter
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// Breaker is a consecutive-failure circuit breaker.
//   - Success closes it and forgets past failures.
//   - Once failures reach the trip count it opens for BaseDelay, doubling
//     with every further failure up to MaxDelay.
type Breaker struct {
	mu          sync.Mutex
	cfg         Config
	fails       int
	openUntil   time.Time
	lastFailure time.Time
}

func NewBreaker(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// Open reports whether attempts are currently blocked and until when.
func (b *Breaker) Open(now time.Time) (bool, time.Time) {
	if b.cfg.TripFailures < 0 {
		return false, time.Time{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(now)
	if !b.openUntil.IsZero() && now.Before(b.openUntil) {
		return true, b.openUntil
	}
	return false, time.Time{}
}

// Record feeds the outcome of one attempt.
func (b *Breaker) Record(now time.Time, err error) {
	if b.cfg.TripFailures < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(now)

	if err == nil {
		b.fails = 0
		b.openUntil = time.Time{}
		b.lastFailure = time.Time{}
		return
	}
	b.fails++
	b.lastFailure = now
	if b.fails < b.cfg.TripFailures {
		return
	}
	d := b.cfg.BaseDelay
	for i := b.cfg.TripFailures; i < b.fails && d < b.cfg.MaxDelay; i++ {
		d *= 2
	}
	if d > b.cfg.MaxDelay {
		d = b.cfg.MaxDelay
	}
	b.openUntil = now.Add(d)
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fails
}

func (b *Breaker) expireLocked(now time.Time) {
	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.cfg.ResetAfter {
		b.fails = 0
		b.openUntil = time.Time{}
	}
}

// Policy gates revival attempts.
type Policy struct {
	breaker *Breaker
	limiter *rate.Limiter
}

func NewPolicy(cfg Config) *Policy {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Policy{
		breaker: NewBreaker(cfg),
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}
}

// Allow reports whether an attempt may start at now. When it may not,
// retryAt tells the earliest useful time to ask again.
func (p *Policy) Allow(now time.Time) (ok bool, retryAt time.Time) {
	if open, until := p.breaker.Open(now); open {
		return false, until
	}
	r := p.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Time{}
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, now.Add(d)
	}
	return true, time.Time{}
}

func (p *Policy) Record(now time.Time, err error) { p.breaker.Record(now, err) }

func (p *Policy) Failures() int { return p.breaker.Failures() }
