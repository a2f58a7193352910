package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTextTooLong         = errors.New("text too long")
	ErrNotEntitled         = errors.New("not entitled")
	ErrQualityNotPermitted = errors.New("quality not permitted")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrProviderTransient   = errors.New("synthesis provider unavailable")
	ErrProviderPermanent   = errors.New("synthesis provider rejected request")
)

// QuotaExceededError reports a failed reservation together with the caller's
// remaining allowance and the instant the daily budget resets.
type QuotaExceededError struct {
	Remaining int
	ResetsAt  time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d characters remaining, resets at %s",
		e.Remaining, e.ResetsAt.Format(time.RFC3339))
}

// Is lets errors.Is(err, ErrQuotaExceeded) match the structured form.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
