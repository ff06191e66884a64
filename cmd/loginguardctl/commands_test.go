package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"loginguard/internal/counter"
	"loginguard/internal/models"
	"loginguard/internal/password"
	"loginguard/internal/storage"
	"loginguard/internal/throttle"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp(strings.NewReader(stdin), &out)
	err := app.Run(t.Context(), append([]string{"loginguardctl"}, args...))
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		stdin      string
		wantPrefix string
	}{
		{
			name:       "bcrypt from flag",
			args:       []string{"hash-password", "--password", "s3cret", "--cost", "4"},
			wantPrefix: "$2a$04$",
		},
		{
			name:       "bcrypt from stdin",
			args:       []string{"hash-password", "--cost", "4"},
			stdin:      "s3cret\n",
			wantPrefix: "$2a$04$",
		},
		{
			name:       "argon2id",
			args:       []string{"hash-password", "--password", "s3cret", "--algorithm", "argon2id"},
			wantPrefix: "$argon2id$",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.stdin, tt.args...)
			require.NoError(t, err)

			hash := strings.TrimSpace(out)
			assert.True(t, strings.HasPrefix(hash, tt.wantPrefix), "unexpected hash %q", hash)

			ok, err := password.Compare("s3cret", hash)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestHashPassword_Errors(t *testing.T) {
	_, err := run(t, "", "hash-password", "--password", "x", "--algorithm", "md5")
	assert.ErrorContains(t, err, "unknown algorithm")

	_, err = run(t, "\n", "hash-password")
	assert.ErrorContains(t, err, "password is empty")
}

func TestCreateAccount(t *testing.T) {
	accountsPath := filepath.Join(t.TempDir(), "accounts.json")
	cfgPath := writeConfig(t, fmt.Sprintf(`
accounts:
  type: json
  path: %s
password:
  bcrypt_cost: 4
`, accountsPath))

	out, err := run(t, "", "--config", cfgPath, "create-account",
		"--email", "Ops@Example.com", "--password", "s3cret")
	require.NoError(t, err)
	assert.Contains(t, out, "ops@example.com")

	directory, err := storage.NewJSONDirectory(storage.Config{Path: accountsPath})
	require.NoError(t, err)
	defer directory.Close()

	account, err := directory.FindByEmail(t.Context(), "ops@example.com")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.True(t, account.EmailVerified)
	assert.True(t, password.NewVerifier(4).Verify("s3cret", account.PasswordHash))

	// Re-running replaces the hash and keeps the ID.
	_, err = run(t, "", "--config", cfgPath, "create-account",
		"--email", "ops@example.com", "--password", "changed", "--verified=false")
	require.NoError(t, err)

	directory2, err := storage.NewJSONDirectory(storage.Config{Path: accountsPath})
	require.NoError(t, err)
	defer directory2.Close()

	updated, err := directory2.FindByEmail(t.Context(), "ops@example.com")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, account.ID, updated.ID)
	assert.False(t, updated.EmailVerified)
	assert.True(t, password.NewVerifier(4).Verify("changed", updated.PasswordHash))
}

func TestCreateAccount_MemoryDirectory(t *testing.T) {
	cfgPath := writeConfig(t, "accounts:\n  type: memory\n")

	_, err := run(t, "", "--config", cfgPath, "create-account", "--email", "a@example.com", "--password", "x")
	assert.ErrorContains(t, err, "memory")
}

func TestStatusAndUnlock(t *testing.T) {
	mr := miniredis.RunT(t)
	cfgPath := writeConfig(t, fmt.Sprintf(`
store:
  key_prefix: "ctl:"
  redis:
    addr: %s
throttle:
  email_ceiling: 2
`, mr.Addr()))

	client, err := counter.NewRedisClient(counter.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	store := counter.NewRedisStore(client, time.Second)
	defer store.Close()

	keys := throttle.NewKeys("ctl:")
	lockout := throttle.NewLockout(store, keys, 30*time.Second, time.Hour, nil)
	accountant := throttle.NewAccountant(store, keys, throttle.Limits{
		IPWindow:     time.Hour,
		IPCeiling:    100,
		EmailWindow:  15 * time.Minute,
		EmailCeiling: 2,
	}, lockout)
	for i := 0; i < 2; i++ {
		_, err := accountant.RecordEmailAttempt(t.Context(), "user@example.com")
		require.NoError(t, err)
		_, err = accountant.RecordFailure(t.Context(), "user@example.com")
		require.NoError(t, err)
	}

	out, err := run(t, "", "--config", cfgPath, "status", "--email", "USER@example.com", "--json")
	require.NoError(t, err)

	var status statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "user@example.com", status.Email)
	assert.True(t, status.Locked)
	assert.Equal(t, "30s", status.LockRemaining)
	assert.NotNil(t, status.LockedAt)
	assert.Equal(t, int64(2), status.Attempts)
	assert.Equal(t, int64(2), status.Failures)
	assert.Equal(t, "15m0s", status.WindowRemaining)

	out, err = run(t, "", "--config", cfgPath, "status", "--email", "user@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "locked:    yes, 30s remaining")
	assert.Contains(t, out, "failures:  2")

	out, err = run(t, "", "--config", cfgPath, "unlock", "--email", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "unlocked user@example.com\n", out)
	for _, key := range keys.Account("user@example.com") {
		assert.False(t, mr.Exists(key), "%s should be removed", key)
	}

	out, err = run(t, "", "--config", cfgPath, "status", "--email", "user@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "locked:    no")
	assert.Contains(t, out, "attempts:  0")
}

func TestStatus_RequiresSharedStore(t *testing.T) {
	cfgPath := writeConfig(t, "accounts:\n  type: memory\n")

	_, err := run(t, "", "--config", cfgPath, "status", "--email", "user@example.com")
	assert.ErrorIs(t, err, errNoSharedStore)

	_, err = run(t, "", "--config", cfgPath, "unlock", "--email", "user@example.com")
	assert.ErrorIs(t, err, errNoSharedStore)
}

func TestExampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := run(t, "", "example-config", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cfg models.Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, models.AccountsTypeSQLite, cfg.Accounts.Type)
	assert.NotEmpty(t, cfg.Store.Redis.Addr)
}
