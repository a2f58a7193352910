package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const qSelectUserByID = `
SELECT id, email, tier, status FROM users WHERE id = $1;
`

const qSelectUserByEmail = `
SELECT id, email, tier, status FROM users WHERE email = $1;
`

const qUpdateUserPlan = `
UPDATE users
SET tier = $2,
    status = $3,
    trial_started_at = CASE WHEN $4 THEN NOW() ELSE trial_started_at END,
    updated_at = NOW()
WHERE id = $1
RETURNING id, email, tier, status, trial_started_at;
`

func main() {
	var (
		idFlag           string
		emailFlag        string
		tierFlag         string
		statusFlag       string
		restartTrialFlag bool
	)

	flag.StringVar(&idFlag, "id", "", "user ID to update (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to update")
	flag.StringVar(&tierFlag, "tier", "paid", "tier to assign (trial, paid)")
	flag.StringVar(&statusFlag, "status", "active", "subscription status (active, expired, cancelled)")
	flag.BoolVar(&restartTrialFlag, "restart-trial", false, "reset the trial window to start now")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)
	tier := strings.ToLower(strings.TrimSpace(tierFlag))
	status := strings.ToLower(strings.TrimSpace(statusFlag))

	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	switch tier {
	case "trial", "paid":
	default:
		exitWithError(fmt.Errorf("unsupported tier %q", tier))
	}
	switch status {
	case "active", "expired", "cancelled":
	default:
		exitWithError(fmt.Errorf("unsupported status %q", status))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	var current struct {
		ID     string
		Email  string
		Tier   string
		Status string
	}
	lookupCtx, cancelLookup := context.WithTimeout(context.Background(), 5*time.Second)
	var scanErr error
	if userID != "" {
		scanErr = pool.QueryRow(lookupCtx, qSelectUserByID, userID).
			Scan(&current.ID, &current.Email, &current.Tier, &current.Status)
	} else {
		scanErr = pool.QueryRow(lookupCtx, qSelectUserByEmail, email).
			Scan(&current.ID, &current.Email, &current.Tier, &current.Status)
	}
	cancelLookup()
	if scanErr != nil {
		exitWithError(fmt.Errorf("failed to load user: %w", scanErr))
	}

	updateCtx, cancelUpdate := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelUpdate()

	var (
		updatedID      string
		updatedEmail   string
		updatedTier    string
		updatedStatus  string
		trialStartedAt time.Time
	)
	row := pool.QueryRow(updateCtx, qUpdateUserPlan, current.ID, tier, status, restartTrialFlag)
	if err := row.Scan(&updatedID, &updatedEmail, &updatedTier, &updatedStatus, &trialStartedAt); err != nil {
		exitWithError(fmt.Errorf("failed to update user: %w", err))
	}

	fmt.Printf("User %s (%s) updated to tier=%s status=%s\n", updatedID, updatedEmail, updatedTier, updatedStatus)
	if updatedTier == "trial" {
		fmt.Printf("trial window: %s to %s\n",
			trialStartedAt.UTC().Format(time.RFC3339),
			trialStartedAt.UTC().Add(7*24*time.Hour).Format(time.RFC3339))
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
