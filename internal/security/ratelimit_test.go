package security

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(max int, refill time.Duration) (*RateLimiter, *fakeClock) {
	clock := newFakeClock()
	rl := NewRateLimiter(max, refill)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	limiter, clock := newTestLimiter(5, time.Second)
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("192.168.1.100"), "request %d", i+1)
	}
	assert.False(t, limiter.Allow("192.168.1.100"), "6th request should be denied")

	clock.Advance(1100 * time.Millisecond)
	assert.True(t, limiter.Allow("192.168.1.100"), "request after refill")
}

func TestRateLimiter_MultipleIdentifiers(t *testing.T) {
	limiter, _ := newTestLimiter(3, time.Second)
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Allow("ip1"))
	}
	assert.False(t, limiter.Allow("ip1"))

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("ip2"), "separate bucket")
	}
	assert.Equal(t, 2, limiter.Len())
}

func TestRateLimiter_Reset(t *testing.T) {
	limiter, _ := newTestLimiter(3, time.Second)
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("session-1")
	}
	require.False(t, limiter.Allow("session-1"))

	limiter.Reset("session-1")
	assert.True(t, limiter.Allow("session-1"))
}

func TestRateLimiter_TokenRefill(t *testing.T) {
	limiter, clock := newTestLimiter(3, time.Second)
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("user_1")
	}
	require.Equal(t, 0, limiter.Remaining("user_1"))

	clock.Advance(2100 * time.Millisecond)
	assert.Equal(t, 2, limiter.Remaining("user_1"))
	assert.True(t, limiter.Allow("user_1"))
	assert.True(t, limiter.Allow("user_1"))
	assert.False(t, limiter.Allow("user_1"))

	// the 100ms left over counts toward the next token
	clock.Advance(900 * time.Millisecond)
	assert.True(t, limiter.Allow("user_1"))
}

func TestRateLimiter_RefillCapsAtMax(t *testing.T) {
	limiter, clock := newTestLimiter(3, time.Second)
	defer limiter.Stop()

	limiter.Allow("user_1")
	clock.Advance(time.Hour)
	assert.Equal(t, 3, limiter.Remaining("user_1"))
}

func TestRateLimiter_SweepDropsIdleBuckets(t *testing.T) {
	limiter, clock := newTestLimiter(3, time.Second)
	defer limiter.Stop()

	limiter.Allow("old")
	clock.Advance(2 * time.Hour)
	limiter.Allow("new")

	limiter.sweep()
	assert.Equal(t, 1, limiter.Len())
}

func TestRateLimiter_Concurrent(t *testing.T) {
	limiter, _ := newTestLimiter(100, time.Hour)
	defer limiter.Stop()

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowed)
}

func TestRateLimiter_StopTwice(t *testing.T) {
	limiter := NewRateLimiter(1, time.Second)
	limiter.Stop()
	assert.NotPanics(t, limiter.Stop)
}

func newTestLockout(threshold int, d time.Duration) (*AccountLockout, *fakeClock) {
	clock := newFakeClock()
	al := NewAccountLockout(threshold, d)
	al.now = clock.Now
	return al, clock
}

func TestAccountLockout_RecordFailedAttempt(t *testing.T) {
	lockout, _ := newTestLockout(5, 10*time.Minute)

	for i := 0; i < 4; i++ {
		assert.False(t, lockout.RecordFailedAttempt("advisor@example.com"), "attempt %d", i+1)
	}
	assert.True(t, lockout.RecordFailedAttempt("advisor@example.com"))
	assert.True(t, lockout.IsLocked("advisor@example.com"))
	assert.False(t, lockout.IsLocked("client@example.com"))
}

func TestAccountLockout_Expires(t *testing.T) {
	lockout, clock := newTestLockout(2, 10*time.Minute)

	lockout.RecordFailedAttempt("a@example.com")
	lockout.RecordFailedAttempt("a@example.com")
	assert.Equal(t, 10*time.Minute, lockout.GetLockoutTimeRemaining("a@example.com"))

	clock.Advance(4 * time.Minute)
	assert.Equal(t, 6*time.Minute, lockout.GetLockoutTimeRemaining("a@example.com"))

	clock.Advance(7 * time.Minute)
	assert.False(t, lockout.IsLocked("a@example.com"))
	assert.False(t, lockout.RecordFailedAttempt("a@example.com"), "counter restarts after expiry")
}

func TestAccountLockout_ResetAttempts(t *testing.T) {
	lockout, _ := newTestLockout(2, 10*time.Minute)

	lockout.RecordFailedAttempt("a@example.com")
	lockout.RecordFailedAttempt("a@example.com")
	lockout.ResetAttempts("a@example.com")

	assert.False(t, lockout.IsLocked("a@example.com"))
	assert.Zero(t, lockout.GetLockoutTimeRemaining("a@example.com"))
}

func TestAccountLockout_OldFailuresForgotten(t *testing.T) {
	lockout, clock := newTestLockout(3, 10*time.Minute)

	lockout.RecordFailedAttempt("a@example.com")
	lockout.RecordFailedAttempt("a@example.com")
	clock.Advance(31 * time.Minute)

	assert.False(t, lockout.RecordFailedAttempt("a@example.com"))
	assert.False(t, lockout.IsLocked("a@example.com"))
}

func TestAccountLockout_Concurrent(t *testing.T) {
	lockout, _ := newTestLockout(1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lockout.RecordFailedAttempt(fmt.Sprintf("user%d@example.com", i%5))
			lockout.IsLocked(fmt.Sprintf("user%d@example.com", i%5))
		}(i)
	}
	wg.Wait()

	assert.False(t, lockout.IsLocked("user0@example.com"))
}
