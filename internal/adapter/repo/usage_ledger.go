package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"speechd/internal/domain"
)

const dateLayout = "2006-01-02"

// DB is the slice of pgxpool.Pool the ledger uses. Narrowed so tests can
// substitute a fake.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// UsageLedgerPG implements domain.UsageLedger backed by PostgreSQL. Reserve
// and Release are the only writers of usage state in the whole service.
type UsageLedgerPG struct {
	db DB
}

// NewUsageLedger creates a ledger on a pgx pool.
func NewUsageLedger(pool *pgxpool.Pool) *UsageLedgerPG {
	return &UsageLedgerPG{db: pool}
}

// NewUsageLedgerDB creates a ledger on an arbitrary DB, used by tests.
func NewUsageLedgerDB(db DB) *UsageLedgerPG {
	return &UsageLedgerPG{db: db}
}

// QReserveUsage charges characters against the (user, date) row in a single
// conditional upsert. The row lock taken by the update linearizes concurrent
// reserves: the second in line re-evaluates the WHERE clause against the
// first's committed total, so two requests can never both squeeze into a
// remainder only one fits. No row returned means the charge would exceed the
// limit and nothing was mutated. The request count rides in the same
// statement as the character charge.
const QReserveUsage = `
INSERT INTO usage_days (user_id, date, characters_used, request_count)
VALUES ($1, $2::date, $3, 1)
ON CONFLICT (user_id, date) DO UPDATE
SET characters_used = usage_days.characters_used + EXCLUDED.characters_used,
    request_count   = usage_days.request_count + 1,
    updated_at      = NOW()
WHERE usage_days.characters_used + EXCLUDED.characters_used <= $4
RETURNING characters_used, request_count;
`

const QInsertReservation = `
INSERT INTO usage_reservations (id, user_id, date, characters)
VALUES ($1, $2, $3::date, $4);
`

const QSelectUsedToday = `
SELECT COALESCE(MAX(characters_used), 0)
FROM usage_days
WHERE user_id = $1 AND date = $2::date;
`

// QReleaseReservation flips the released flag. Returning no row means the
// reservation was unknown or already released, in which case the usage day
// must not be touched again.
const QReleaseReservation = `
UPDATE usage_reservations
SET released = TRUE, released_at = NOW()
WHERE id = $1 AND released = FALSE
RETURNING user_id, date::text, characters;
`

const QReleaseUsage = `
UPDATE usage_days
SET characters_used = GREATEST(characters_used - $3, 0),
    request_count   = GREATEST(request_count - 1, 0),
    updated_at      = NOW()
WHERE user_id = $1 AND date = $2::date;
`

const QSelectUsageDay = `
SELECT characters_used, request_count
FROM usage_days
WHERE user_id = $1 AND date = $2::date;
`

const QSelectUsageHistory = `
SELECT date::text, characters_used, request_count
FROM usage_days
WHERE user_id = $1
ORDER BY date DESC
LIMIT $2;
`

// Reserve atomically charges characters against the (user, day) budget and
// records the reservation row that makes the eventual release idempotent.
func (l *UsageLedgerPG) Reserve(ctx context.Context, userID string, day time.Time, characters, limit int) (*domain.Reservation, error) {
	date := day.UTC().Format(dateLayout)
	if characters > limit {
		// Cannot fit even into an untouched day; skip the write entirely.
		return nil, l.exceeded(ctx, userID, date, day, limit)
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res := &domain.Reservation{
		ID:         uuid.New(),
		UserID:     userID,
		Date:       midnightUTC(day),
		Characters: characters,
	}
	row := tx.QueryRow(ctx, QReserveUsage, userID, date, characters, limit)
	if err := row.Scan(&res.CharactersUsed, &res.RequestCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, l.exceeded(ctx, userID, date, day, limit)
		}
		return nil, fmt.Errorf("reserve usage: %w", err)
	}

	if _, err := tx.Exec(ctx, QInsertReservation, res.ID, userID, date, characters); err != nil {
		return nil, fmt.Errorf("record reservation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}
	return res, nil
}

// Release backs a reservation's charge out of its usage day. Releasing an
// already-released or unknown reservation is a no-op so compensation can be
// retried after a failure without double-crediting.
func (l *UsageLedgerPG) Release(ctx context.Context, res *domain.Reservation) error {
	if res == nil {
		return nil
	}
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin release: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID, date string
	var characters int
	row := tx.QueryRow(ctx, QReleaseReservation, res.ID)
	if err := row.Scan(&userID, &date, &characters); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("release reservation: %w", err)
	}
	if _, err := tx.Exec(ctx, QReleaseUsage, userID, date, characters); err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit release: %w", err)
	}
	return nil
}

// Today returns the usage record for the given day. Absent rows read as zero:
// usage days are created lazily by the first reservation.
func (l *UsageLedgerPG) Today(ctx context.Context, userID string, day time.Time) (*domain.UsageDay, error) {
	out := &domain.UsageDay{UserID: userID, Date: midnightUTC(day)}
	row := l.db.QueryRow(ctx, QSelectUsageDay, userID, day.UTC().Format(dateLayout))
	if err := row.Scan(&out.CharactersUsed, &out.RequestCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, nil
		}
		return nil, fmt.Errorf("select usage day: %w", err)
	}
	return out, nil
}

// History returns up to limit most recent usage days, newest first.
func (l *UsageLedgerPG) History(ctx context.Context, userID string, limit int) ([]domain.UsageDay, error) {
	rows, err := l.db.Query(ctx, QSelectUsageHistory, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select usage history: %w", err)
	}
	defer rows.Close()

	var days []domain.UsageDay
	for rows.Next() {
		var date string
		d := domain.UsageDay{UserID: userID}
		if err := rows.Scan(&date, &d.CharactersUsed, &d.RequestCount); err != nil {
			return nil, fmt.Errorf("scan usage day: %w", err)
		}
		if d.Date, err = time.ParseInLocation(dateLayout, date, time.UTC); err != nil {
			return nil, fmt.Errorf("parse usage date %q: %w", date, err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (l *UsageLedgerPG) exceeded(ctx context.Context, userID, date string, day time.Time, limit int) error {
	var used int
	row := l.db.QueryRow(ctx, QSelectUsedToday, userID, date)
	if err := row.Scan(&used); err != nil {
		return fmt.Errorf("select used characters: %w", err)
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return &domain.QuotaExceededError{
		Remaining: remaining,
		ResetsAt:  midnightUTC(day).Add(24 * time.Hour),
	}
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
