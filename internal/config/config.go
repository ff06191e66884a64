// Package config loads the loginguard configuration from defaults, an optional
// .env file, a YAML file and LOGINGUARD_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"loginguard/internal/models"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "LOGINGUARD_"

// DefaultEnvFile is read before the environment is consulted, when present.
const DefaultEnvFile = ".env"

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	return LoadWithEnvFile(configPath, DefaultEnvFile)
}

// LoadWithEnvFile is Load with an explicit dotenv file. Variables already set
// in the process environment win over the file. A missing file is ignored.
func LoadWithEnvFile(configPath, envFile string) (*models.Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadFromEnvironment(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadDotEnv(envFile string) error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

// deprecatedConfig mirrors config keys that moved, for detecting stale operator configs.
type deprecatedConfig struct {
	Redis    interface{} `yaml:"redis"`
	Throttle struct {
		LockBase interface{} `yaml:"lock_base"`
		LockCap  interface{} `yaml:"lock_cap"`
	} `yaml:"throttle"`
	Security struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"security"`
}

// warnDeprecatedKeys logs a warning for each moved config key found in the YAML data.
// The service still starts; the main decoder ignores these keys.
func warnDeprecatedKeys(data []byte) {
	var dep deprecatedConfig
	if err := yaml.Unmarshal(data, &dep); err != nil {
		return
	}
	if dep.Redis != nil {
		slog.Warn("Config key has moved and is ignored; use store.redis instead.", "config_key", "redis")
	}
	if dep.Throttle.LockBase != nil {
		slog.Warn("Config key has moved and is ignored; use lockout.base instead.", "config_key", "throttle.lock_base")
	}
	if dep.Throttle.LockCap != nil {
		slog.Warn("Config key has moved and is ignored; use lockout.cap instead.", "config_key", "throttle.lock_cap")
	}
	if dep.Security.JWTSecret != "" {
		slog.Warn("Config key has moved and is ignored; use session.secret instead.", "config_key", "security.jwt_secret")
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnDeprecatedKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// envLoader applies LOGINGUARD_* variables and remembers the first value that
// failed to parse.
type envLoader struct {
	err error
}

func (l *envLoader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	return v, ok && v != ""
}

func (l *envLoader) fail(name, value string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, value, err)
	}
}

func (l *envLoader) stringVar(name string, dst *string) {
	if v, ok := l.lookup(name); ok {
		*dst = v
	}
}

func (l *envLoader) intVar(name string, dst *int) {
	if v, ok := l.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (l *envLoader) int64Var(name string, dst *int64) {
	if v, ok := l.lookup(name); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (l *envLoader) floatVar(name string, dst *float64) {
	if v, ok := l.lookup(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = f
	}
}

func (l *envLoader) boolVar(name string, dst *bool) {
	if v, ok := l.lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (l *envLoader) durationVar(name string, dst *time.Duration) {
	if v, ok := l.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = d
	}
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) error {
	env := &envLoader{}

	// Server configuration
	env.intVar("PORT", &config.Server.Port)
	env.stringVar("HOST", &config.Server.Host)
	env.durationVar("READ_TIMEOUT", &config.Server.ReadTimeout)
	env.durationVar("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	env.durationVar("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	env.boolVar("TLS_ENABLED", &config.Server.TLSEnabled)
	env.stringVar("TLS_CERT_FILE", &config.Server.TLSCertFile)
	env.stringVar("TLS_KEY_FILE", &config.Server.TLSKeyFile)
	env.boolVar("TRUST_PROXY_HEADERS", &config.Server.TrustProxyHeaders)

	// Counter store configuration
	env.stringVar("STORE_KEY_PREFIX", &config.Store.KeyPrefix)
	env.stringVar("REDIS_ADDR", &config.Store.Redis.Addr)
	env.stringVar("REDIS_PASSWORD", &config.Store.Redis.Password)
	env.intVar("REDIS_DB", &config.Store.Redis.DB)
	env.intVar("REDIS_POOL_SIZE", &config.Store.Redis.PoolSize)
	env.durationVar("REDIS_DIAL_TIMEOUT", &config.Store.Redis.DialTimeout)
	env.durationVar("REDIS_COMMAND_TIMEOUT", &config.Store.Redis.CommandTimeout)

	// Throttle and lockout configuration
	env.durationVar("IP_WINDOW", &config.Throttle.IPWindow)
	env.int64Var("IP_CEILING", &config.Throttle.IPCeiling)
	env.durationVar("EMAIL_WINDOW", &config.Throttle.EmailWindow)
	env.int64Var("EMAIL_CEILING", &config.Throttle.EmailCeiling)
	env.durationVar("LOCKOUT_BASE", &config.Lockout.Base)
	env.durationVar("LOCKOUT_CAP", &config.Lockout.Cap)
	env.boolVar("LOCKOUT_FAIL_CLOSED", &config.Lockout.FailClosed)

	// Account directory configuration
	env.stringVar("ACCOUNTS_TYPE", &config.Accounts.Type)
	env.stringVar("ACCOUNTS_PATH", &config.Accounts.Path)
	env.stringVar("DATABASE_DSN", &config.Accounts.Database.DSN)
	env.intVar("DATABASE_MAX_OPEN_CONNS", &config.Accounts.Database.MaxOpenConns)
	env.intVar("DATABASE_MAX_IDLE_CONNS", &config.Accounts.Database.MaxIdleConns)

	// Session and password configuration
	env.stringVar("SESSION_SECRET", &config.Session.Secret)
	env.stringVar("SESSION_ISSUER", &config.Session.Issuer)
	env.durationVar("SESSION_TTL", &config.Session.TTL)
	env.stringVar("SESSION_COOKIE_NAME", &config.Session.CookieName)
	env.stringVar("SESSION_DOMAIN", &config.Session.Domain)
	env.boolVar("SESSION_SECURE", &config.Session.Secure)
	env.stringVar("SESSION_SAME_SITE", &config.Session.SameSite)
	env.intVar("BCRYPT_COST", &config.Password.BcryptCost)

	// Logging configuration
	env.stringVar("LOG_LEVEL", &config.Logging.Level)
	env.stringVar("LOG_FORMAT", &config.Logging.Format)
	env.stringVar("LOG_OUTPUT", &config.Logging.Output)
	env.stringVar("LOG_FILE_PATH", &config.Logging.FilePath)
	env.intVar("LOG_MAX_SIZE", &config.Logging.MaxSize)
	env.intVar("LOG_MAX_BACKUPS", &config.Logging.MaxBackups)
	env.intVar("LOG_MAX_AGE", &config.Logging.MaxAge)
	env.boolVar("LOG_COMPRESS", &config.Logging.Compress)

	// Metrics and tracing configuration
	env.boolVar("METRICS_ENABLED", &config.Metrics.Enabled)
	env.stringVar("METRICS_PATH", &config.Metrics.Path)
	env.intVar("METRICS_PORT", &config.Metrics.Port)
	env.stringVar("SERVICE_NAME", &config.Observability.ServiceName)
	env.boolVar("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	env.stringVar("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	env.stringVar("OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	env.floatVar("TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)

	// Request burst guard
	env.boolVar("REQUEST_LIMIT_ENABLED", &config.RequestLimit.Enabled)
	env.intVar("REQUEST_LIMIT_RPM", &config.RequestLimit.RequestsPerMinute)
	env.intVar("REQUEST_LIMIT_BURST", &config.RequestLimit.BurstSize)

	return env.err
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	// Shared store and a persistent account directory, as run in production
	config.Store.Redis.Addr = "localhost:6379"
	config.Accounts.Type = models.AccountsTypeSQLite
	config.Accounts.Database.DSN = "file:./data/accounts.db"
	config.Session.Secret = "replace-with-a-random-secret-of-32-bytes-or-more"

	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
