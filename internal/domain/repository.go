package domain

import (
	"context"
	"time"
)

// UserRepository reads principal records. Account creation and subscription
// changes belong to the identity service; this core only reads.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// UsageLedger is the only component allowed to mutate consumption state.
type UsageLedger interface {
	// Reserve atomically charges characters against the (user, day) budget
	// and counts the request, or returns a *QuotaExceededError without any
	// mutation. Two concurrent reserves for the same key must observe each
	// other's effects.
	Reserve(ctx context.Context, userID string, day time.Time, characters, limit int) (*Reservation, error)
	// Release backs a reservation out of its usage day. Idempotent:
	// releasing an already-released or unknown reservation is a no-op.
	Release(ctx context.Context, res *Reservation) error
	// Today returns the usage record for the given day, zero-valued when no
	// request has been made yet.
	Today(ctx context.Context, userID string, day time.Time) (*UsageDay, error)
	// History returns up to limit most recent usage days, newest first.
	History(ctx context.Context, userID string, limit int) ([]UsageDay, error)
}
