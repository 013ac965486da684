package rate

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count        int
	windowEnd    time.Time
	blockedUntil time.Time
}

// MemoryLimiter keeps counters in process memory. Budgets reset on restart
// and are not shared between replicas.
type MemoryLimiter struct {
	policy Policy
	now    func() time.Time

	mu        sync.Mutex
	entries   map[string]*memoryEntry
	nextSweep time.Time
}

// NewMemoryLimiter creates a [MemoryLimiter]. A nil now defaults to time.Now.
func NewMemoryLimiter(policy Policy, now func() time.Time) (*MemoryLimiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		policy:  policy,
		now:     now,
		entries: make(map[string]*memoryEntry),
	}, nil
}

// Consume spends one point for key.
func (l *MemoryLimiter) Consume(_ context.Context, key string) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	e, ok := l.entries[key]
	if !ok {
		e = &memoryEntry{}
		l.entries[key] = e
	}
	if now.Before(e.blockedUntil) {
		return Result{}, &LimitedError{RetryAfter: e.blockedUntil.Sub(now)}
	}
	if !now.Before(e.windowEnd) {
		e.count = 0
		e.windowEnd = now.Add(l.policy.Duration)
	}

	e.count++
	if e.count > l.policy.Points {
		if l.policy.BlockDuration > 0 {
			e.blockedUntil = now.Add(l.policy.BlockDuration)
			e.count = 0
			e.windowEnd = time.Time{}
			return Result{}, &LimitedError{RetryAfter: l.policy.BlockDuration}
		}
		return Result{}, &LimitedError{RetryAfter: e.windowEnd.Sub(now)}
	}
	return Result{Remaining: l.policy.Points - e.count, ResetIn: e.windowEnd.Sub(now)}, nil
}

// Reset forgets key.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
	return nil
}

// sweepLocked drops idle entries at most once per window.
func (l *MemoryLimiter) sweepLocked(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	for k, e := range l.entries {
		if !now.Before(e.windowEnd) && !now.Before(e.blockedUntil) {
			delete(l.entries, k)
		}
	}
	l.nextSweep = now.Add(l.policy.Duration)
}
