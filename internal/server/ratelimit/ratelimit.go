// Package ratelimit limits requests per client and endpoint with token buckets
// from golang.org/x/time/rate.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

type bucket struct {
	limiter    *rate.Limiter
	burst      int
	lastAccess time.Time
}

// Limiter manages one token bucket per client, endpoint and method.
type Limiter struct {
	config    Config
	whitelist map[string]bool
	blacklist map[string]bool
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	stop     chan struct{}
}

// NewLimiter creates a new rate limiter with the given configuration.
// A nil config uses DefaultConfig.
func NewLimiter(config *Config) *Limiter {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = time.Hour
	}

	l := &Limiter{
		config:    cfg,
		whitelist: toSet(cfg.Whitelist),
		blacklist: toSet(cfg.Blacklist),
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		stop:      make(chan struct{}),
	}

	if cfg.Enabled && cfg.CleanupInterval > 0 {
		go l.cleanup(cfg.CleanupInterval)
	}
	return l
}

// Enabled reports whether requests are limited at all.
func (l *Limiter) Enabled() bool {
	return l != nil && l.config.Enabled
}

// Allow checks if a request from the given client is allowed for the specified endpoint.
// Returns true if allowed, false if rate limited, along with rate limit information.
func (l *Limiter) Allow(clientID string, endpoint string, method string) (bool, Info) {
	if !l.Enabled() || l.whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.blacklist[clientID] {
		return false, Info{}
	}

	endpointConfig := MatchEndpoint(endpoint, method, l.config.EndpointConfigs)
	if endpointConfig == nil {
		endpointConfig = &EndpointConfig{
			Path:   endpoint,
			Limit:  l.config.DefaultLimit,
			Window: l.config.DefaultWindow,
		}
	}
	if endpointConfig.Limit <= 0 {
		return true, Info{Allowed: true}
	}

	// Prefix rules share one bucket across the ids under them.
	key := clientID + ":" + method + ":" + endpointConfig.Path
	now := l.now()

	l.mu.Lock()
	b := l.getBucket(key, endpointConfig)
	b.lastAccess = now
	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	l.mu.Unlock()

	perSecond := float64(b.limiter.Limit())
	info := Info{
		Allowed:   allowed,
		Limit:     endpointConfig.Limit,
		Remaining: max(0, int(math.Floor(tokens))),
		ResetTime: now.Add(secondsToDuration((float64(b.burst) - tokens) / perSecond)),
	}
	if !allowed {
		info.RetryAfter = secondsToDuration((1 - tokens) / perSecond)
	}
	return allowed, info
}

// getBucket returns the bucket for key, creating it on first use. l.mu must be held.
func (l *Limiter) getBucket(key string, cfg *EndpointConfig) *bucket {
	if b, ok := l.buckets[key]; ok {
		return b
	}
	window := cfg.Window
	if window <= 0 {
		window = l.config.DefaultWindow
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Limit
	}
	b := &bucket{
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.Limit)/window.Seconds()), burst),
		burst:   burst,
	}
	l.buckets[key] = b
	return b
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(s * float64(time.Second)))
}

func (l *Limiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanupBuckets()
		case <-l.stop:
			return
		}
	}
}

// cleanupBuckets drops buckets idle for longer than IdleTTL.
func (l *Limiter) cleanupBuckets() {
	cutoff := l.now().Add(-l.config.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
}
