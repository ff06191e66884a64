package storage

import (
	"context"
	"errors"
	"fmt"
	"loginguard/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             TEXT PRIMARY KEY,
	email          TEXT NOT NULL UNIQUE,
	password_hash  TEXT NOT NULL,
	email_verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
)`

// PostgresDirectory implements the Directory interface using PostgreSQL via pgx.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a new PostgreSQL directory and ensures the schema.
func NewPostgresDirectory(config Config) (*PostgresDirectory, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 && int32(config.MaxIdleConns) <= poolConfig.MaxConns {
		poolConfig.MinConns = int32(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}
	if config.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresDirectory{pool: pool}, nil
}

// FindByEmail returns the account registered under email.
func (ps *PostgresDirectory) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := ps.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, email_verified, created_at, updated_at
		 FROM accounts WHERE email = $1`, models.NormalizeEmail(email)).
		Scan(&account.ID, &account.Email, &account.PasswordHash, &account.EmailVerified,
			&account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// SaveAccount stores or updates an account (upsert on email).
func (ps *PostgresDirectory) SaveAccount(ctx context.Context, account *models.Account) error {
	if err := prepareAccount(account); err != nil {
		return err
	}

	_, err := ps.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, password_hash, email_verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (email) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			email_verified = EXCLUDED.email_verified,
			updated_at = EXCLUDED.updated_at`,
		account.ID, account.Email, account.PasswordHash, account.EmailVerified,
		account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// DeleteAccount removes an account
func (ps *PostgresDirectory) DeleteAccount(ctx context.Context, email string) error {
	key := models.NormalizeEmail(email)
	tag, err := ps.pool.Exec(ctx, `DELETE FROM accounts WHERE email = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete account %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return nil
}

// Ping checks the database connection.
func (ps *PostgresDirectory) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresDirectory) Close() error {
	ps.pool.Close()
	return nil
}
