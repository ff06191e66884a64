package storage

import (
	"fmt"
	"loginguard/internal/models"
	"time"
)

// prepareAccount validates account and normalizes its email in place.
func prepareAccount(account *models.Account) error {
	if account == nil {
		return fmt.Errorf("%w: nil account", ErrInvalidAccount)
	}
	account.Email = models.NormalizeEmail(account.Email)
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	return nil
}

// formatTime renders a timestamp for TEXT columns.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime reads a timestamp written by formatTime.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// boolToInt converts a bool for INTEGER columns.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// copyAccount returns a detached copy so callers cannot mutate stored state.
func copyAccount(a *models.Account) *models.Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
