package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrNotReady is returned when required PCE credentials are missing.
var ErrNotReady = errors.New("configuration not ready")

const defaultJWTSecret = "supersecretkey"

type Config struct {
	Port string `toml:"port"`

	// Env is "dev" (default) or "prod". When "prod", JWT_SECRET must be set and not the default.
	Env string `toml:"env"`

	JWTSecret string `toml:"jwt_secret"`
	// JWTExpireHours is the token lifetime in hours (default 24). Set via JWT_EXPIRE_HOURS.
	JWTExpireHours int `toml:"jwt_expire_hours"`

	// AdminUser and AdminPasswordHash (bcrypt) guard POST /auth/login.
	AdminUser         string `toml:"admin_user"`
	AdminPasswordHash string `toml:"admin_password_hash"`

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string `toml:"tls_cert_file"`
	TLSKeyFile  string `toml:"tls_key_file"`

	// LogFormat is "text" (default) or "json".
	LogFormat string `toml:"log_format"`
	LogLevel  string `toml:"log_level"`

	// CORSAllowedOrigins is set via CORS_ALLOWED_ORIGINS (comma-separated).
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`

	Store   StoreConfig   `toml:"store"`
	PCE     PCEConfig     `toml:"pce"`
	Monitor MonitorConfig `toml:"monitor"`
}

// StoreConfig selects the schedule store backend.
type StoreConfig struct {
	// Driver is "file" (default), "postgres" or "sqlite".
	Driver string `toml:"driver"`
	// Path is the JSON file or sqlite database path.
	Path string `toml:"path"`

	DBHost string `toml:"db_host"`
	DBPort string `toml:"db_port"`
	DBName string `toml:"db_name"`
	DBUser string `toml:"db_user"`
	DBPass string `toml:"db_pass"`

	DBMaxOpenConns int `toml:"db_max_open_conns"`
	DBMaxIdleConns int `toml:"db_max_idle_conns"`
}

// DatabaseURL is the postgres URL form used by migrations.
func (s StoreConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", s.DBUser, s.DBPass, s.DBHost, s.DBPort, s.DBName)
}

// PCEConfig holds the policy compute engine credentials.
type PCEConfig struct {
	URL       string `toml:"url"`
	OrgID     string `toml:"org_id"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`

	InsecureTLS    bool `toml:"insecure_tls"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
	RatePerMinute  int  `toml:"rate_per_minute"`
}

// Ready reports ErrNotReady naming every missing credential.
func (p PCEConfig) Ready() error {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"pce url", p.URL}, {"org id", p.OrgID}, {"api key", p.APIKey}, {"api secret", p.APISecret},
	} {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotReady, strings.Join(missing, ", "))
	}
	return nil
}

func (p PCEConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// MonitorConfig drives the reconciliation daemon.
type MonitorConfig struct {
	// Enabled makes the API server run the daemon too.
	Enabled bool `toml:"enabled"`
	// IntervalSeconds is ILLUMIO_CHECK_INTERVAL (default 300).
	IntervalSeconds int `toml:"interval_seconds"`
	// RetryMax is the number of attempts per PCE call.
	RetryMax int `toml:"retry_max"`
	// Workers bounds how many records one pass reconciles at once.
	Workers int `toml:"workers"`
	// Timezone names the zone windows are evaluated in. Empty means Local.
	Timezone string `toml:"timezone"`
}

func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

// Location resolves Timezone.
func (m MonitorConfig) Location() (*time.Location, error) {
	if m.Timezone == "" || strings.EqualFold(m.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(m.Timezone)
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:           "8080",
		Env:            "dev",
		JWTSecret:      defaultJWTSecret,
		JWTExpireHours: 24,
		AdminUser:      "admin",
		LogFormat:      "text",
		LogLevel:       "info",
		Store: StoreConfig{
			Driver:         "file",
			Path:           "rule_schedules.json",
			DBHost:         "localhost",
			DBPort:         "5432",
			DBName:         "rulesched",
			DBUser:         "rulesched",
			DBPass:         "rulesched",
			DBMaxOpenConns: 25,
			DBMaxIdleConns: 5,
		},
		PCE: PCEConfig{
			TimeoutSeconds: 15,
			RatePerMinute:  120,
		},
		Monitor: MonitorConfig{
			IntervalSeconds: 300,
			RetryMax:        3,
			Workers:         1,
		},
	}
}

// Load reads configuration from the environment only.
func Load() Config {
	cfg := Default()
	applyEnv(&cfg)
	return cfg
}

// LoadFile layers defaults, the TOML file at path (if any), then the environment.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file: %w", err)
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// Validate rejects configurations the server must not start with.
func (c Config) Validate() error {
	if c.Env == "prod" && (c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret) {
		return errors.New("JWT_SECRET must be set to a non-default value when ENV=prod")
	}
	switch c.Store.Driver {
	case "file", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if _, err := c.Monitor.Location(); err != nil {
		return fmt.Errorf("SCHEDULE_TZ: %w", err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Port = getEnv("PORT", c.Port)
	c.Env = getEnv("ENV", c.Env)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTExpireHours = getEnvInt("JWT_EXPIRE_HOURS", c.JWTExpireHours)
	c.AdminUser = getEnv("ADMIN_USER", c.AdminUser)
	c.AdminPasswordHash = getEnv("ADMIN_PASSWORD_HASH", c.AdminPasswordHash)
	c.TLSCertFile = getEnv("TLS_CERT_FILE", c.TLSCertFile)
	c.TLSKeyFile = getEnv("TLS_KEY_FILE", c.TLSKeyFile)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = parseCORSOrigins(v)
	}

	c.Store.Driver = strings.ToLower(getEnv("STORE_DRIVER", c.Store.Driver))
	c.Store.Path = getEnv("STORE_PATH", c.Store.Path)
	c.Store.DBHost = getEnv("DB_HOST", c.Store.DBHost)
	c.Store.DBPort = getEnv("DB_PORT", c.Store.DBPort)
	c.Store.DBName = getEnv("DB_NAME", c.Store.DBName)
	c.Store.DBUser = getEnv("DB_USER", c.Store.DBUser)
	c.Store.DBPass = getEnv("DB_PASS", c.Store.DBPass)
	c.Store.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Store.DBMaxOpenConns)
	c.Store.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Store.DBMaxIdleConns)

	c.PCE.URL = strings.TrimRight(getEnv("PCE_URL", c.PCE.URL), "/")
	c.PCE.OrgID = getEnv("PCE_ORG_ID", c.PCE.OrgID)
	c.PCE.APIKey = getEnv("PCE_API_KEY", c.PCE.APIKey)
	c.PCE.APISecret = getEnv("PCE_API_SECRET", c.PCE.APISecret)
	c.PCE.InsecureTLS = getEnvBool("PCE_INSECURE_TLS", c.PCE.InsecureTLS)
	c.PCE.TimeoutSeconds = getEnvInt("PCE_TIMEOUT_SECONDS", c.PCE.TimeoutSeconds)
	c.PCE.RatePerMinute = getEnvInt("PCE_RATE_PER_MINUTE", c.PCE.RatePerMinute)

	c.Monitor.Enabled = getEnvBool("MONITOR", c.Monitor.Enabled)
	c.Monitor.IntervalSeconds = getEnvInt("ILLUMIO_CHECK_INTERVAL", c.Monitor.IntervalSeconds)
	c.Monitor.RetryMax = getEnvInt("RETRY_MAX", c.Monitor.RetryMax)
	c.Monitor.Workers = getEnvInt("RECONCILE_WORKERS", c.Monitor.Workers)
	c.Monitor.Timezone = getEnv("SCHEDULE_TZ", c.Monitor.Timezone)
}

// parseCORSOrigins splits a comma-separated list of origins and trims spaces. Empty strings are omitted.
func parseCORSOrigins(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if o := strings.TrimSpace(p); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
