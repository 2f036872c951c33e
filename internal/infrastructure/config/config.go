package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for YardBooks.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"` // "development" or "production"
}

// IsProduction reports whether the app runs in production mode.
// Production enables HSTS and defaults cookies to Secure.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Environment, "production")
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	TwoFactor TwoFactorConfig `yaml:"two_factor"`
	Cookies   CookieConfig    `yaml:"cookies"`
}

// JWTConfig contains token signing settings.
//
// Lifetimes are deliberately asymmetric: access tokens are short so a
// leaked bearer token has a bounded blast radius, refresh tokens are long
// but only valid while their backing session row exists.
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	Issuer            string `yaml:"issuer"`
	AccessTokenTTL    int    `yaml:"access_token_ttl"`     // minutes
	RefreshTokenTTL   int    `yaml:"refresh_token_ttl"`    // hours
	TwoFactorTokenTTL int    `yaml:"two_factor_token_ttl"` // minutes
}

// AccessTTL returns the access token lifetime as a Duration.
func (c JWTConfig) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Minute
}

// RefreshTTL returns the refresh token lifetime as a Duration.
func (c JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTL) * time.Hour
}

// TwoFactorTTL returns the intermediate two-factor token lifetime as a Duration.
func (c JWTConfig) TwoFactorTTL() time.Duration {
	return time.Duration(c.TwoFactorTokenTTL) * time.Minute
}

// RateLimitConfig contains login-endpoint rate limiting settings.
// This throttles request volume at the edge; the durable lockout tracker
// is the per-principal control and is not configurable here.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// TwoFactorConfig contains TOTP provisioning settings.
type TwoFactorConfig struct {
	// Issuer is the name shown in authenticator apps.
	Issuer string `yaml:"issuer"`
}

// CookieConfig contains auth cookie settings.
type CookieConfig struct {
	// Secure marks auth cookies as HTTPS-only. Defaults to true in
	// production regardless of this value.
	Secure bool `yaml:"secure"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: YARDBOOKS_SECTION_KEY
// For example: YARDBOOKS_DATABASE_PATH, YARDBOOKS_JWT_SECRET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "YardBooks",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:        "./data/yardbooks.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer:            "yardbooks",
				AccessTokenTTL:    15,
				RefreshTokenTTL:   168, // 7 days
				TwoFactorTokenTTL: 5,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
				Burst:             10,
			},
			TwoFactor: TwoFactorConfig{
				Issuer: "YardBooks",
			},
			Cookies: CookieConfig{
				Secure: false,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: YARDBOOKS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// App
	if v := os.Getenv("YARDBOOKS_ENVIRONMENT"); v != "" {
		cfg.App.Environment = v
	}

	// Database
	if v := os.Getenv("YARDBOOKS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("YARDBOOKS_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("YARDBOOKS_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("YARDBOOKS_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// JWT secret is REQUIRED. An empty or weak secret would let anyone
	// forge tokens and reach tenant financial data.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set YARDBOOKS_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.Security.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "security.jwt.access_token_ttl must be positive")
	}
	if c.Security.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, "security.jwt.refresh_token_ttl must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// CookiesSecure reports whether auth cookies must carry the Secure flag.
func (c *Config) CookiesSecure() bool {
	return c.Security.Cookies.Secure || c.App.IsProduction()
}
