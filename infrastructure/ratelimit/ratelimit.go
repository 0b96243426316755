// Package ratelimit enforces the per-user request budgets described in the
// retrieval API contract: a general-purpose bucket for all requests and a
// stricter bucket for photo submissions, each refilled at its own rate.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/toolcat/visimatch/domain/pipeline"
)

// Bucket names a token bucket within a Limiter.
type Bucket string

const (
	// BucketGeneral governs all requests: refills 1 token/sec, caps at 5.
	BucketGeneral Bucket = "general"
	// BucketPhoto governs photo submissions: refills 1 token/10sec, caps
	// at 3. Admin callers bypass this bucket but not BucketGeneral.
	BucketPhoto Bucket = "photo"
)

// entry pairs a user's two token buckets with the time they were last
// touched, so the cleanup goroutine can evict idle users.
type entry struct {
	general    *rate.Limiter
	photo      *rate.Limiter
	lastAccess time.Time
}

// Limiter enforces per-user general and photo rate limits and evicts
// buckets for users who have gone quiet.
type Limiter struct {
	mu      sync.Mutex
	users   map[string]*entry
	general rate.Limit
	photo   rate.Limit

	generalBurst int
	photoBurst   int

	stopOnce  sync.Once
	stopClean chan struct{}
}

// Option configures a Limiter at construction time.
type Option func(*config)

type config struct {
	generalRefill time.Duration
	generalBurst  int
	photoRefill   time.Duration
	photoBurst    int
	cleanupEvery  time.Duration
	idleAfter     time.Duration
}

func defaultConfig() config {
	return config{
		generalRefill: time.Second,
		generalBurst:  5,
		photoRefill:   10 * time.Second,
		photoBurst:    3,
		cleanupEvery:  10 * time.Minute,
		idleAfter:     time.Hour,
	}
}

// WithGeneralRate overrides the default general-bucket refill interval and
// burst size (default: one token per second, burst 5).
func WithGeneralRate(refill time.Duration, burst int) Option {
	return func(c *config) {
		c.generalRefill = refill
		c.generalBurst = burst
	}
}

// WithPhotoRate overrides the default photo-bucket refill interval and
// burst size (default: one token per ten seconds, burst 3).
func WithPhotoRate(refill time.Duration, burst int) Option {
	return func(c *config) {
		c.photoRefill = refill
		c.photoBurst = burst
	}
}

// WithIdleEviction overrides how often the cleanup goroutine runs and how
// long a user's buckets may sit untouched before eviction.
func WithIdleEviction(every, after time.Duration) Option {
	return func(c *config) {
		c.cleanupEvery = every
		c.idleAfter = after
	}
}

// New creates a Limiter and starts its background eviction goroutine.
// Callers must call Stop when done.
func New(opts ...Option) *Limiter {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	l := &Limiter{
		users:     make(map[string]*entry),
		general:   rate.Every(cfg.generalRefill),
		photo:     rate.Every(cfg.photoRefill),
		stopClean: make(chan struct{}),

		generalBurst: cfg.generalBurst,
		photoBurst:   cfg.photoBurst,
	}

	go l.runCleanup(cfg.cleanupEvery, cfg.idleAfter)

	return l
}

func (l *Limiter) entryFor(userID string, generalBurst, photoBurst int) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.users[userID]
	if !ok {
		e = &entry{
			general: rate.NewLimiter(l.general, generalBurst),
			photo:   rate.NewLimiter(l.photo, photoBurst),
		}
		l.users[userID] = e
	}
	e.lastAccess = time.Now()
	return e
}

// AllowGeneral consumes one token from userID's general bucket. It returns
// a pipeline.RateLimited error carrying the wait time until the next token
// when the bucket is empty.
func (l *Limiter) AllowGeneral(userID string) error {
	e := l.entryFor(userID, l.generalBurst, l.photoBurst)
	if e.general.Allow() {
		return nil
	}
	return pipeline.RateLimited(e.general.Reserve().Delay())
}

// AllowPhoto consumes one token from userID's photo bucket unless isAdmin
// is true, in which case the photo bucket is bypassed entirely. Admins
// still draw from the general bucket via a separate AllowGeneral call.
func (l *Limiter) AllowPhoto(userID string, isAdmin bool) error {
	if isAdmin {
		return nil
	}
	e := l.entryFor(userID, l.generalBurst, l.photoBurst)
	if e.photo.Allow() {
		return nil
	}
	return pipeline.RateLimited(e.photo.Reserve().Delay())
}

func (l *Limiter) runCleanup(every, idleAfter time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(idleAfter)
		case <-l.stopClean:
			return
		}
	}
}

func (l *Limiter) cleanup(idleAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := time.Now().Add(-idleAfter)
	for userID, e := range l.users {
		if e.lastAccess.Before(threshold) {
			delete(l.users, userID)
		}
	}
}

// Stop terminates the background eviction goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopClean)
	})
}
