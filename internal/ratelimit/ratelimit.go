// Package ratelimit provides a per-process sliding window request throttle
// with a bounded key space.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Config represents rate limiter configuration
type Config struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
	MaxKeys     int           `mapstructure:"max_keys"`
}

// DefaultConfig returns default rate limiter configuration
func DefaultConfig() Config {
	return Config{
		Window:      time.Minute,
		MaxRequests: 60,
		MaxKeys:     10000,
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive")
	}
	if c.MaxKeys <= 0 {
		return fmt.Errorf("max keys must be positive")
	}
	return nil
}

// Result is the outcome of a Limit call
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter implements a sliding window log per key. Keys idle for a whole
// window expire, and the least recently used key is evicted once MaxKeys is hit.
type Limiter struct {
	mu     sync.Mutex
	config Config
	hits   *expirable.LRU[string, []time.Time]
	now    func() time.Time
}

// New creates a new rate limiter
func New(cfg Config) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	return &Limiter{
		config: cfg,
		hits:   expirable.NewLRU[string, []time.Time](cfg.MaxKeys, nil, cfg.Window),
		now:    time.Now,
	}, nil
}

// Limit records a request for key and reports whether it is allowed
func (l *Limiter) Limit(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stamps, _ := l.hits.Get(key)

	// Drop timestamps that left the window
	valid := make([]time.Time, 0, len(stamps)+1)
	for _, ts := range stamps {
		if now.Sub(ts) < l.config.Window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= l.config.MaxRequests {
		l.hits.Add(key, valid)
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   valid[0].Add(l.config.Window),
		}
	}

	valid = append(valid, now)
	l.hits.Add(key, valid)
	return Result{
		Allowed:   true,
		Remaining: l.config.MaxRequests - len(valid),
		ResetAt:   valid[0].Add(l.config.Window),
	}
}

// Reset clears the window of key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits.Remove(key)
}

// Len returns the number of tracked keys
func (l *Limiter) Len() int {
	return l.hits.Len()
}
