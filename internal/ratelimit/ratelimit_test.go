package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *fakeClock) {
	t.Helper()
	l, err := New(cfg)
	require.NoError(t, err)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	l.now = clock.Now
	return l, clock
}

func TestLimit(t *testing.T) {
	l, clock := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 3, MaxKeys: 10})
	start := clock.Now()

	for i := 0; i < 3; i++ {
		res := l.Limit("10.0.0.1")
		require.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
		assert.Equal(t, start.Add(time.Minute), res.ResetAt)
		clock.Advance(10 * time.Second)
	}

	res := l.Limit("10.0.0.1")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, start.Add(time.Minute), res.ResetAt)

	// Other keys have their own window
	assert.True(t, l.Limit("10.0.0.2").Allowed)
}

func TestLimitSlidingWindow(t *testing.T) {
	l, clock := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 2, MaxKeys: 10})

	require.True(t, l.Limit("k").Allowed)
	clock.Advance(30 * time.Second)
	require.True(t, l.Limit("k").Allowed)
	require.False(t, l.Limit("k").Allowed)

	// The first request leaves the window, the second one still counts
	clock.Advance(31 * time.Second)
	res := l.Limit("k")
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.False(t, l.Limit("k").Allowed)
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Window: time.Hour, MaxRequests: 1, MaxKeys: 10})

	require.True(t, l.Limit("admin@example.com").Allowed)
	require.False(t, l.Limit("admin@example.com").Allowed)

	l.Reset("admin@example.com")
	assert.True(t, l.Limit("admin@example.com").Allowed)
}

func TestBoundedKeys(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Window: time.Hour, MaxRequests: 1, MaxKeys: 3})

	for i := 0; i < 10; i++ {
		l.Limit(fmt.Sprintf("key-%d", i))
	}
	assert.Equal(t, 3, l.Len())

	// The oldest key was evicted, so it starts a fresh window
	assert.True(t, l.Limit("key-0").Allowed)
	assert.False(t, l.Limit("key-9").Allowed)
}

func TestConcurrentLimit(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Window: time.Hour, MaxRequests: 50, MaxKeys: 10})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Limit("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"zero window", Config{MaxRequests: 1, MaxKeys: 1}, true},
		{"zero requests", Config{Window: time.Second, MaxKeys: 1}, true},
		{"zero keys", Config{Window: time.Second, MaxRequests: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
