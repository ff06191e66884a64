package storage

import (
	"context"
	"fmt"
	"loginguard/internal/models"
	"sync"
)

// MemoryDirectory implements the Directory interface using an in-memory map.
// This provider is ideal for development, testing, and seeded demo accounts;
// data is lost on restart.
type MemoryDirectory struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account // keyed by normalized email
}

// NewMemoryDirectory creates a new memory-based directory, optionally seeded.
func NewMemoryDirectory(config Config, seed ...*models.Account) (*MemoryDirectory, error) {
	m := &MemoryDirectory{
		accounts: make(map[string]*models.Account),
	}
	for _, account := range seed {
		if err := m.SaveAccount(context.Background(), account); err != nil {
			return nil, fmt.Errorf("failed to seed account: %w", err)
		}
	}
	return m, nil
}

// FindByEmail returns a copy of the stored account.
func (m *MemoryDirectory) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[models.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return copyAccount(account), nil
}

// SaveAccount stores or updates an account
func (m *MemoryDirectory) SaveAccount(ctx context.Context, account *models.Account) error {
	if err := prepareAccount(account); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.accounts[account.Email]; ok {
		account.CreatedAt = existing.CreatedAt
	}
	m.accounts[account.Email] = copyAccount(account)
	return nil
}

// DeleteAccount removes an account
func (m *MemoryDirectory) DeleteAccount(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := models.NormalizeEmail(email)
	if _, ok := m.accounts[key]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	delete(m.accounts, key)
	return nil
}

// Ping always succeeds.
func (m *MemoryDirectory) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for memory storage
func (m *MemoryDirectory) Close() error {
	return nil
}
