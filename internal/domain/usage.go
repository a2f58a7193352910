package domain

import (
	"time"

	"github.com/google/uuid"
)

// UsageDay is the durable per-user, per-UTC-date consumption record. It is
// created lazily by the first reservation of a day and mutated only through
// the UsageLedger reserve/release protocol.
type UsageDay struct {
	UserID         string
	Date           time.Time // UTC midnight of the calendar date
	CharactersUsed int
	RequestCount   int
}

// Reservation is the hold created by a successful quota check. It lives for
// the span of one orchestrated request; the token exists so a release can be
// retried without double-crediting the day.
type Reservation struct {
	ID             uuid.UUID
	UserID         string
	Date           time.Time
	Characters     int
	CharactersUsed int // day total after the reserve
	RequestCount   int // day total after the reserve
}
