package helpdesk

import (
	"fmt"
	"time"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

// RateLimitError is returned for a "too many requests" response. RetryAfter
// carries the server hint when one was present, zero otherwise.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("helpdesk rate limited, retry after %s", e.RetryAfter)
	}
	return "helpdesk rate limited"
}

func (e *RateLimitError) Unwrap() error { return domain.ErrRateLimited }

// RetryHint exposes the server hint to backoff loops that only know the
// error chain.
func (e *RateLimitError) RetryHint() time.Duration { return e.RetryAfter }
