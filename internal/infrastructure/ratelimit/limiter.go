// Package ratelimit implements a token bucket per client key, built on
// golang.org/x/time/rate, with a fixed per-key (never global) admission
// model that returns a RetryAfter duration rather than a bare bool.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

// Config configures the limiter. Defaults to a 10 burst / 60-per-minute bucket.
type Config struct {
	BurstSize         int
	RequestsPerMinute float64
	KeyTimeout        time.Duration // idle per-key limiter eviction window
}

func (c Config) withDefaults() Config {
	if c.BurstSize <= 0 {
		c.BurstSize = 10
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 60
	}
	if c.KeyTimeout <= 0 {
		c.KeyTimeout = 10 * time.Minute
	}
	return c
}

type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter is a per-client-key token bucket admission gate.
type Limiter struct {
	cfg    Config
	mu     sync.Mutex
	byKey  map[string]*keyedLimiter
	stopCh chan struct{}
	once   sync.Once
}

// New creates a Limiter and starts its idle-key eviction loop.
func New(cfg Config) *Limiter {
	cfg = cfg.withDefaults()
	l := &Limiter{
		cfg:    cfg,
		byKey:  make(map[string]*keyedLimiter),
		stopCh: make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

// Allow checks admission for clientKey without blocking, returning a
// RateLimited gateway error carrying retry_after_seconds on rejection.
func (l *Limiter) Allow(clientKey string) error {
	kl := l.limiterFor(clientKey)

	reservation := kl.limiter.Reserve()
	if !reservation.OK() {
		return gwerrors.NewRateLimited(1)
	}
	delay := reservation.Delay()
	if delay <= 0 {
		return nil
	}
	reservation.Cancel()

	retryAfter := int(delay.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return gwerrors.NewRateLimited(retryAfter)
}

// Remaining reports the current fractional token count for clientKey,
// rounded down, for the X-RateLimit-Remaining response header.
func (l *Limiter) Remaining(clientKey string) int {
	kl := l.limiterFor(clientKey)
	tokens := kl.limiter.Tokens()
	if tokens < 0 {
		return 0
	}
	return int(tokens)
}

func (l *Limiter) limiterFor(clientKey string) *keyedLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.byKey[clientKey]
	if !ok {
		kl = &keyedLimiter{
			limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerMinute/60.0), l.cfg.BurstSize),
		}
		l.byKey[clientKey] = kl
	}
	kl.lastAccess = time.Now()
	return kl
}

func (l *Limiter) evictLoop() {
	ticker := time.NewTicker(l.cfg.KeyTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) evictIdle() {
	cutoff := time.Now().Add(-l.cfg.KeyTimeout)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, kl := range l.byKey {
		if kl.lastAccess.Before(cutoff) {
			delete(l.byKey, key)
		}
	}
}

// Stop terminates the eviction goroutine.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stopCh) })
}
