// Package storage provides the account directory: lookup of login identities by
// email, backed by memory, a JSON file, SQLite, or PostgreSQL.
package storage

import (
	"context"
	"loginguard/internal/models"
	"time"
)

// Directory defines the interface for account persistence and lookup.
// It provides a clean abstraction that can be implemented by different backends
// such as JSON files or databases.
type Directory interface {
	// FindByEmail returns the account registered under email, or (nil, nil)
	// when no such account exists. The email is normalized before lookup.
	FindByEmail(ctx context.Context, email string) (*models.Account, error)

	// SaveAccount stores or updates an account, keyed by its email.
	SaveAccount(ctx context.Context, account *models.Account) error

	// DeleteAccount removes the account registered under email.
	DeleteAccount(ctx context.Context, email string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}

// Config holds configuration for directory backends
type Config struct {
	// Type specifies the backend type (json, memory, sqlite, postgres)
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// CacheTTL specifies how long the JSON backend trusts its in-memory copy
	CacheTTL string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`

	// Pool settings for database backends
	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time,omitempty" yaml:"conn_max_idle_time,omitempty"`
}
