package rate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited matches every *LimitedError under errors.Is.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport or script failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// LimitedError reports a rejected request and how long the caller should wait.
type LimitedError struct {
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) true.
func (e *LimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
