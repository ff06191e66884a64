package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"loginguard/internal/models"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONDirectory implements the Directory interface on a JSON file. It keeps an
// in-memory copy of the file and re-reads it once the cache TTL has passed and
// the file's modification time has moved, so operators can edit it live.
type JSONDirectory struct {
	filePath     string
	cacheTTL     time.Duration
	mu           sync.RWMutex
	data         *JSONData
	lastModified time.Time
	cacheExpiry  time.Time
}

// JSONData represents the structure of data stored in JSON format
type JSONData struct {
	Accounts    []*models.Account `json:"accounts"`
	LastUpdated time.Time         `json:"last_updated"`
}

// NewJSONDirectory creates a new JSON-based directory instance
func NewJSONDirectory(config Config) (*JSONDirectory, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("path is required for JSON accounts")
	}

	cacheTTL := 30 * time.Second
	if config.CacheTTL != "" {
		if duration, err := time.ParseDuration(config.CacheTTL); err == nil {
			cacheTTL = duration
		}
	}

	dir := &JSONDirectory{
		filePath: config.Path,
		cacheTTL: cacheTTL,
	}

	// Initialize with empty data if file doesn't exist
	if err := dir.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}

	// Load initial data
	if err := dir.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}

	return dir, nil
}

// ensureFileExists creates the JSON file with empty data if it doesn't exist
func (j *JSONDirectory) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return j.saveData(&JSONData{Accounts: []*models.Account{}})
	}
	return nil
}

// loadData loads data from the JSON file with caching.
// It uses double-checked locking: a fast read-lock path for cache hits,
// and a write-lock slow path with re-validation to prevent TOCTOU races.
func (j *JSONDirectory) loadData() error {
	j.mu.RLock()
	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		j.mu.RUnlock()
		return nil
	}
	j.mu.RUnlock()

	j.mu.Lock()
	defer j.mu.Unlock()

	// Another goroutine may have loaded while we waited for the write lock.
	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		return nil
	}

	info, err := os.Stat(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	if j.data != nil && !info.ModTime().After(j.lastModified) {
		j.cacheExpiry = time.Now().Add(j.cacheTTL)
		return nil
	}

	fileData, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data JSONData
	if err := json.Unmarshal(fileData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	for _, account := range data.Accounts {
		account.Email = models.NormalizeEmail(account.Email)
	}

	j.data = &data
	j.lastModified = info.ModTime()
	j.cacheExpiry = time.Now().Add(j.cacheTTL)
	return nil
}

// saveData writes data to a temporary file and renames it into place.
func (j *JSONDirectory) saveData(data *JSONData) error {
	data.LastUpdated = time.Now().UTC()

	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmp := j.filePath + ".tmp"
	if err := os.WriteFile(tmp, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, j.filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}

	if info, err := os.Stat(j.filePath); err == nil {
		j.lastModified = info.ModTime()
	}
	return nil
}

// FindByEmail returns the account registered under email.
func (j *JSONDirectory) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	if err := j.loadData(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	key := models.NormalizeEmail(email)
	for _, account := range j.data.Accounts {
		if account.Email == key {
			return copyAccount(account), nil
		}
	}
	return nil, nil
}

// SaveAccount stores or updates an account
func (j *JSONDirectory) SaveAccount(ctx context.Context, account *models.Account) error {
	if err := prepareAccount(account); err != nil {
		return err
	}
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for i, existing := range j.data.Accounts {
		if existing.Email == account.Email {
			account.CreatedAt = existing.CreatedAt
			j.data.Accounts[i] = copyAccount(account)
			return j.saveData(j.data)
		}
	}

	j.data.Accounts = append(j.data.Accounts, copyAccount(account))
	return j.saveData(j.data)
}

// DeleteAccount removes an account
func (j *JSONDirectory) DeleteAccount(ctx context.Context, email string) error {
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	key := models.NormalizeEmail(email)
	for i, existing := range j.data.Accounts {
		if existing.Email == key {
			j.data.Accounts = append(j.data.Accounts[:i], j.data.Accounts[i+1:]...)
			return j.saveData(j.data)
		}
	}
	return fmt.Errorf("%w: %s", ErrAccountNotFound, key)
}

// Ping verifies the backing file is still readable.
func (j *JSONDirectory) Ping(ctx context.Context) error {
	if _, err := os.Stat(j.filePath); err != nil {
		return fmt.Errorf("accounts file unavailable: %w", err)
	}
	return nil
}

// Close is a no-op for JSON storage
func (j *JSONDirectory) Close() error {
	return nil
}
