package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"loginguard/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             TEXT PRIMARY KEY,
	email          TEXT NOT NULL UNIQUE,
	password_hash  TEXT NOT NULL,
	email_verified INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
)`

// SQLiteDirectory implements the Directory interface on SQLite through the
// pure-Go modernc driver.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLiteDirectory opens the database and creates the accounts table if needed.
func NewSQLiteDirectory(config Config) (*SQLiteDirectory, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteDirectory{db: db}, nil
}

// FindByEmail returns the account registered under email.
func (s *SQLiteDirectory) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, email_verified, created_at, updated_at
		 FROM accounts WHERE email = ?`, models.NormalizeEmail(email))

	var (
		account          models.Account
		verified         int
		created, updated string
	)
	err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &verified, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account.EmailVerified = verified != 0
	if account.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if account.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &account, nil
}

// SaveAccount stores or updates an account (upsert on email).
func (s *SQLiteDirectory) SaveAccount(ctx context.Context, account *models.Account) error {
	if err := prepareAccount(account); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, email_verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
			password_hash = excluded.password_hash,
			email_verified = excluded.email_verified,
			updated_at = excluded.updated_at`,
		account.ID, account.Email, account.PasswordHash, boolToInt(account.EmailVerified),
		formatTime(account.CreatedAt), formatTime(account.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// DeleteAccount removes an account
func (s *SQLiteDirectory) DeleteAccount(ctx context.Context, email string) error {
	key := models.NormalizeEmail(email)
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE email = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteDirectory) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the storage connection
func (s *SQLiteDirectory) Close() error {
	return s.db.Close()
}
