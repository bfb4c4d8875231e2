package security

import (
	"sync"
	"time"
)

// RateLimiter implements the token bucket algorithm per identifier (IP
// address, user id or form session id). Safe for concurrent use.
type RateLimiter struct {
	limiters map[string]*bucketState
	mu       sync.Mutex

	maxTokens  int           // Bucket capacity
	refillRate time.Duration // Time to earn back one token
	idleTTL    time.Duration // Buckets untouched this long are dropped
	now        func() time.Time

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// bucketState tracks the token bucket of a single identifier.
type bucketState struct {
	tokens     int
	lastRefill time.Time
	lastSeen   time.Time
}

// NewRateLimiter creates a new rate limiter with specified configuration.
//
// Parameters:
//   - maxTokens: Maximum number of tokens (requests) allowed in the bucket
//   - refillRate: How often to add a token back to the bucket
//
// Example:
//
//	// Allow 5 login attempts per minute
//	limiter := NewRateLimiter(5, 12*time.Second) // 60s / 5 requests = 12s per token
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limiters:    make(map[string]*bucketState),
		maxTokens:   maxTokens,
		refillRate:  refillRate,
		idleTTL:     time.Hour,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	if ttl := time.Duration(maxTokens) * refillRate; ttl > rl.idleTTL {
		rl.idleTTL = ttl
	}

	rl.cleanupTicker = time.NewTicker(10 * time.Minute)
	go rl.cleanup()

	return rl
}

// Allow reports whether a request from identifier may proceed and consumes a
// token if so.
func (rl *RateLimiter) Allow(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket := rl.refill(identifier, now)
	bucket.lastSeen = now

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}
	return false
}

// Remaining returns how many requests identifier can still make right now.
func (rl *RateLimiter) Remaining(identifier string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.refill(identifier, rl.now()).tokens
}

// refill tops up the bucket for elapsed time. Only whole tokens are added and
// lastRefill advances by exactly the time they cost, so partial progress
// toward the next token is kept. Callers hold rl.mu.
func (rl *RateLimiter) refill(identifier string, now time.Time) *bucketState {
	bucket, ok := rl.limiters[identifier]
	if !ok {
		bucket = &bucketState{tokens: rl.maxTokens, lastRefill: now, lastSeen: now}
		rl.limiters[identifier] = bucket
		return bucket
	}

	if rl.refillRate <= 0 {
		bucket.tokens = rl.maxTokens
		return bucket
	}
	earned := int(now.Sub(bucket.lastRefill) / rl.refillRate)
	if earned > 0 {
		bucket.tokens += earned
		bucket.lastRefill = bucket.lastRefill.Add(time.Duration(earned) * rl.refillRate)
		if bucket.tokens >= rl.maxTokens {
			bucket.tokens = rl.maxTokens
			bucket.lastRefill = now
		}
	}
	return bucket
}

// Reset removes the rate limit state for a given identifier.
func (rl *RateLimiter) Reset(identifier string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, identifier)
}

// Len returns the number of tracked identifiers.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// sweep removes buckets idle for longer than the TTL.
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for id, bucket := range rl.limiters {
		if now.Sub(bucket.lastSeen) > rl.idleTTL {
			delete(rl.limiters, id)
		}
	}
}

func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.sweep()
		case <-rl.stopCleanup:
			return
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		rl.cleanupTicker.Stop()
		close(rl.stopCleanup)
	})
}

// AccountLockout tracks failed login attempts per account and locks the
// account once a threshold is reached.
type AccountLockout struct {
	lockouts map[string]*lockoutState
	mu       sync.Mutex

	threshold int           // Failed attempts before lockout
	duration  time.Duration // How long account stays locked
	window    time.Duration // Failures older than this are forgotten
	now       func() time.Time
}

type lockoutState struct {
	failedAttempts int
	lockedUntil    time.Time
	lastAttempt    time.Time
}

// NewAccountLockout creates a new account lockout tracker.
//
// Example:
//
//	// Lock account for 30 minutes after 10 failed attempts
//	lockout := NewAccountLockout(10, 30*time.Minute)
func NewAccountLockout(threshold int, duration time.Duration) *AccountLockout {
	return &AccountLockout{
		lockouts:  make(map[string]*lockoutState),
		threshold: threshold,
		duration:  duration,
		window:    30 * time.Minute,
		now:       time.Now,
	}
}

// RecordFailedAttempt records a failed login attempt and reports whether the
// account is now locked.
func (al *AccountLockout) RecordFailedAttempt(identifier string) bool {
	al.mu.Lock()
	defer al.mu.Unlock()

	now := al.now()
	state, ok := al.lockouts[identifier]
	if !ok || now.Sub(state.lastAttempt) > al.window {
		state = &lockoutState{}
		al.lockouts[identifier] = state
	}

	state.failedAttempts++
	state.lastAttempt = now
	if state.failedAttempts >= al.threshold {
		state.lockedUntil = now.Add(al.duration)
		return true
	}
	return false
}

// IsLocked reports whether the account is currently locked. An expired lock
// clears the failure count.
func (al *AccountLockout) IsLocked(identifier string) bool {
	return al.GetLockoutTimeRemaining(identifier) > 0
}

// ResetAttempts forgets all failures for identifier. Call on successful login.
func (al *AccountLockout) ResetAttempts(identifier string) {
	al.mu.Lock()
	defer al.mu.Unlock()
	delete(al.lockouts, identifier)
}

// GetLockoutTimeRemaining returns how much time is left on the lockout, or 0.
func (al *AccountLockout) GetLockoutTimeRemaining(identifier string) time.Duration {
	al.mu.Lock()
	defer al.mu.Unlock()

	state, ok := al.lockouts[identifier]
	if !ok || state.lockedUntil.IsZero() {
		return 0
	}
	remaining := state.lockedUntil.Sub(al.now())
	if remaining <= 0 {
		delete(al.lockouts, identifier)
		return 0
	}
	return remaining
}
