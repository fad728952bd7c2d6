// Package ratelimit throttles operator API clients with one token bucket per
// client, method and endpoint pattern.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Info describes the bucket a request was charged to.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time // when the bucket will be full again
	RetryAfter time.Duration
}

// Config controls the limiter. Whitelisted clients are never limited;
// blacklisted ones are always refused.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	IdleTTL         time.Duration // buckets unused this long are dropped; default 1h
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// Validate rejects limits whose window is not positive. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.DefaultLimit > 0 && c.DefaultWindow <= 0 {
		return fmt.Errorf("rate limit: default window must be positive, got %s", c.DefaultWindow)
	}
	for _, ep := range c.EndpointConfigs {
		if ep.Limit > 0 && ep.Window <= 0 {
			return fmt.Errorf("rate limit: window for %s %s must be positive, got %s", ep.Method, ep.Path, ep.Window)
		}
	}
	return nil
}

// Paths matched by prefix share a bucket, so the key holds the pattern, not the path.
type bucketKey struct {
	client, method, pattern string
}

type bucket struct {
	limiter  *rate.Limiter
	burst    int
	lastUsed time.Time
}

// Limiter is safe for concurrent use. Stop ends its sweep goroutine.
type Limiter struct {
	config *Config
	now    func() time.Time

	mu      sync.Mutex
	buckets map[bucketKey]*bucket

	done     chan struct{}
	stopOnce sync.Once
}

// NewLimiter starts a limiter. A nil config allows 1000 requests a minute per client.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{Enabled: true, DefaultLimit: 1000, DefaultWindow: time.Minute, CleanupInterval: 5 * time.Minute}
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = time.Hour
	}

	l := &Limiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[bucketKey]*bucket),
		done:    make(chan struct{}),
	}
	if config.Enabled && config.CleanupInterval > 0 {
		go l.sweepEvery(config.CleanupInterval)
	}
	return l
}

// Allow charges one request by clientID to the bucket for method and path.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	switch {
	case !l.config.Enabled, l.config.Whitelist[clientID]:
		return true, Info{Allowed: true}
	case l.config.Blacklist[clientID]:
		return false, Info{}
	}

	rule := MatchEndpoint(path, method, l.config.EndpointConfigs)
	if rule == nil {
		rule = &EndpointConfig{Path: "*", Limit: l.config.DefaultLimit, Window: l.config.DefaultWindow}
	}
	if rule.Limit <= 0 {
		return true, Info{Allowed: true}
	}

	now := l.now()
	b := l.bucketFor(bucketKey{client: clientID, method: method, pattern: rule.Path}, rule, now)

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	refill := float64(b.limiter.Limit()) // tokens per second

	info := Info{Allowed: allowed, Limit: rule.Limit, Remaining: max(int(tokens), 0), ResetTime: now}
	if refill > 0 {
		if missing := float64(b.burst) - tokens; missing > 0 {
			info.ResetTime = now.Add(secondsToDuration(missing / refill))
		}
		if !allowed {
			info.RetryAfter = secondsToDuration((1 - tokens) / refill)
		}
	}
	return allowed, info
}

func (l *Limiter) bucketFor(key bucketKey, rule *EndpointConfig, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[key]
	if b == nil {
		burst := rule.Burst
		if burst <= 0 {
			burst = rule.Limit
		}
		perSecond := rate.Limit(float64(rule.Limit) / rule.Window.Seconds())
		b = &bucket{limiter: rate.NewLimiter(perSecond, burst), burst: burst}
		l.buckets[key] = b
	}
	b.lastUsed = now
	return b
}

func (l *Limiter) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

// sweep drops buckets idle for longer than IdleTTL.
func (l *Limiter) sweep() {
	cutoff := l.now().Add(-l.config.IdleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Stop may be called more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
