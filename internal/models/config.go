// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every loginguard component.
//
// Configuration Philosophy:
// - Hierarchical configuration grouped by component (server, store, throttle, lockout, ...)
// - Defaults that run out of the box in local mode with no external services
// - Validation that rejects misconfigurations at startup rather than at the first login
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Account directory type constants
const (
	AccountsTypeJSON     = "json"
	AccountsTypeMemory   = "memory"
	AccountsTypePostgres = "postgres"
	AccountsTypeSQLite   = "sqlite"
)

// Cookie SameSite modes
const (
	SameSiteLax    = "lax"
	SameSiteStrict = "strict"
	SameSiteNone   = "none"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Store: shared counter store (Redis) connection
// - Throttle: per-IP and per-account windows and ceilings
// - Lockout: escalating lock durations
// - Accounts: account directory backend
// - Session, Password: login collaborators
// - Logging, Metrics, Observability: operational output
// - RequestLimit: optional per-IP burst guard in front of the API
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Store         StoreConfig         `yaml:"store" json:"store"`
	Throttle      ThrottleConfig      `yaml:"throttle" json:"throttle"`
	Lockout       LockoutConfig       `yaml:"lockout" json:"lockout"`
	Accounts      AccountsConfig      `yaml:"accounts" json:"accounts"`
	Session       SessionConfig       `yaml:"session" json:"session"`
	Password      PasswordConfig      `yaml:"password" json:"password"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	RequestLimit  RequestLimitConfig  `yaml:"request_limit" json:"request_limit"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	// TrustProxyHeaders makes the client IP come from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`
}

// StoreConfig configures the counter store. An empty Redis address runs the
// service in permanent local mode.
type StoreConfig struct {
	KeyPrefix string      `yaml:"key_prefix" json:"key_prefix"`
	Redis     RedisConfig `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr           string        `yaml:"addr" json:"addr"`
	Password       string        `yaml:"password" json:"password"`
	DB             int           `yaml:"db" json:"db"`
	PoolSize       int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout    time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout" json:"command_timeout"`
}

type ThrottleConfig struct {
	IPWindow     time.Duration `yaml:"ip_window" json:"ip_window"`
	IPCeiling    int64         `yaml:"ip_ceiling" json:"ip_ceiling"`
	EmailWindow  time.Duration `yaml:"email_window" json:"email_window"`
	EmailCeiling int64         `yaml:"email_ceiling" json:"email_ceiling"`
}

type LockoutConfig struct {
	Base time.Duration `yaml:"base" json:"base"`
	Cap  time.Duration `yaml:"cap" json:"cap"`
	// FailClosed rejects attempts when the lock state cannot be read at all.
	FailClosed bool `yaml:"fail_closed" json:"fail_closed"`
}

type AccountsConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Path     string         `yaml:"path" json:"path"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

type SessionConfig struct {
	Secret     string        `yaml:"secret" json:"-"`
	Issuer     string        `yaml:"issuer" json:"issuer"`
	TTL        time.Duration `yaml:"ttl" json:"ttl"`
	CookieName string        `yaml:"cookie_name" json:"cookie_name"`
	CookiePath string        `yaml:"cookie_path" json:"cookie_path"`
	Domain     string        `yaml:"domain" json:"domain"`
	Secure     bool          `yaml:"secure" json:"secure"`
	SameSite   string        `yaml:"same_site" json:"same_site"`
}

type PasswordConfig struct {
	BcryptCost int `yaml:"bcrypt_cost" json:"bcrypt_cost"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	Output     string `yaml:"output" json:"output"`
	FilePath   string `yaml:"file_path" json:"file_path"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// RequestLimitConfig configures the token-bucket burst guard. It limits raw
// request rate per IP and is independent of the login throttle.
type RequestLimitConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - No Redis address: local mode, counters kept in process memory
// - 100 attempts per IP per hour, 5 per account per 15 minutes
// - 30 second base lock doubling up to one day
// - Memory account directory so the service starts without a database
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Store: StoreConfig{
			KeyPrefix: "loginguard:",
			Redis: RedisConfig{
				PoolSize:       10,
				DialTimeout:    2 * time.Second,
				CommandTimeout: 250 * time.Millisecond,
			},
		},
		Throttle: ThrottleConfig{
			IPWindow:     time.Hour,
			IPCeiling:    100,
			EmailWindow:  15 * time.Minute,
			EmailCeiling: 5,
		},
		Lockout: LockoutConfig{
			Base: 30 * time.Second,
			Cap:  24 * time.Hour,
		},
		Accounts: AccountsConfig{
			Type: AccountsTypeMemory,
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
		},
		Session: SessionConfig{
			Issuer:     "loginguard",
			TTL:        24 * time.Hour,
			CookieName: "session",
			CookiePath: "/",
			Secure:     true,
			SameSite:   SameSiteLax,
		},
		Password: PasswordConfig{
			BcryptCost: 12,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "loginguard",
			Tracing: TracingConfig{
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
		RequestLimit: RequestLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 120,
			BurstSize:         20,
			CleanupInterval:   5 * time.Minute,
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("invalid store config: %w", err)
	}

	if err := c.Throttle.Validate(); err != nil {
		return fmt.Errorf("invalid throttle config: %w", err)
	}

	if err := c.Lockout.Validate(); err != nil {
		return fmt.Errorf("invalid lockout config: %w", err)
	}

	if err := c.Accounts.Validate(); err != nil {
		return fmt.Errorf("invalid accounts config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}

	if err := c.Password.Validate(); err != nil {
		return fmt.Errorf("invalid password config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	if err := c.RequestLimit.Validate(); err != nil {
		return fmt.Errorf("invalid request limit config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (s *StoreConfig) Validate() error {
	if s.KeyPrefix == "" {
		return errors.New("key prefix cannot be empty")
	}

	if s.Redis.DB < 0 {
		return errors.New("redis db cannot be negative")
	}

	if s.Redis.PoolSize < 0 {
		return errors.New("redis pool size cannot be negative")
	}

	if s.Redis.DialTimeout < 0 || s.Redis.CommandTimeout < 0 {
		return errors.New("redis timeouts cannot be negative")
	}

	return nil
}

// LocalOnly reports whether no shared store is configured.
func (s *StoreConfig) LocalOnly() bool {
	return s.Redis.Addr == ""
}

func (t *ThrottleConfig) Validate() error {
	if t.IPWindow <= 0 {
		return errors.New("ip window must be positive")
	}

	if t.IPCeiling <= 0 {
		return errors.New("ip ceiling must be positive")
	}

	if t.EmailWindow <= 0 {
		return errors.New("email window must be positive")
	}

	if t.EmailCeiling <= 0 {
		return errors.New("email ceiling must be positive")
	}

	return nil
}

func (l *LockoutConfig) Validate() error {
	if l.Base <= 0 {
		return errors.New("lockout base must be positive")
	}

	if l.Cap < l.Base {
		return errors.New("lockout cap cannot be smaller than base")
	}

	return nil
}

func (ac *AccountsConfig) Validate() error {
	validTypes := []string{AccountsTypeJSON, AccountsTypeMemory, AccountsTypePostgres, AccountsTypeSQLite}
	if !lo.Contains(validTypes, ac.Type) {
		return fmt.Errorf("invalid accounts type: %s", ac.Type)
	}

	if ac.Type == AccountsTypeJSON && ac.Path == "" {
		return errors.New("path is required for JSON accounts")
	}

	if (ac.Type == AccountsTypePostgres || ac.Type == AccountsTypeSQLite) && ac.Database.DSN == "" {
		return errors.New("database DSN is required for database accounts")
	}

	return nil
}

func (sc *SessionConfig) Validate() error {
	if sc.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}

	if sc.CookieName == "" {
		return errors.New("cookie name cannot be empty")
	}

	if !lo.Contains([]string{SameSiteLax, SameSiteStrict, SameSiteNone}, sc.SameSite) {
		return fmt.Errorf("invalid same_site mode: %s", sc.SameSite)
	}

	if sc.SameSite == SameSiteNone && !sc.Secure {
		return errors.New("same_site none requires secure cookies")
	}

	// An empty secret is allowed; a random one is generated at startup.
	if sc.Secret != "" && len(sc.Secret) < 32 {
		return errors.New("session secret must be at least 32 bytes")
	}

	return nil
}

func (pc *PasswordConfig) Validate() error {
	// bcrypt.MinCost and bcrypt.MaxCost
	if pc.BcryptCost < 4 || pc.BcryptCost > 31 {
		return errors.New("bcrypt cost must be between 4 and 31")
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !lo.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !lo.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !lo.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}

	if !oc.Tracing.Enabled {
		return nil
	}

	if !lo.Contains([]string{"stdout", "otlp"}, oc.Tracing.Exporter) {
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.Exporter == "otlp" && oc.Tracing.OTLPEndpoint == "" {
		return errors.New("OTLP endpoint is required for the otlp exporter")
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}

func (rc *RequestLimitConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}

	if rc.RequestsPerMinute <= 0 {
		return errors.New("requests per minute must be positive")
	}

	if rc.BurstSize < 0 {
		return errors.New("burst size cannot be negative")
	}

	return nil
}
