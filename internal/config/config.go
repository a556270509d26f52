// Package config loads service configuration from an optional YAML file
// overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	AutoMigrate bool   `yaml:"auto_migrate"`
	LogLevel    string `yaml:"log_level"`

	Auth      AuthConfig      `yaml:"auth"`
	HTTP      HTTPConfig      `yaml:"http"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

type AuthConfig struct {
	AccessTokenSecret  string        `yaml:"access_token_secret"`
	RefreshTokenSecret string        `yaml:"refresh_token_secret"`
	Issuer             string        `yaml:"issuer"`
	AccessTokenTTL     time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `yaml:"refresh_token_ttl"`
	CookieSecure       bool          `yaml:"cookie_secure"`
	PrivilegedRoles    []string      `yaml:"privileged_roles"`
	BcryptCost         int           `yaml:"bcrypt_cost"`
}

type HTTPConfig struct {
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// BootstrapConfig provisions a first inspector so a fresh deployment can log in.
type BootstrapConfig struct {
	InspectorName     string `yaml:"inspector_name"`
	InspectorEmail    string `yaml:"inspector_email"`
	InspectorPassword string `yaml:"inspector_password"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		HTTPAddr: ":8080",
		LogLevel: "info",
		Auth: AuthConfig{
			Issuer:          "neocompliance",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 30 * 24 * time.Hour,
			CookieSecure:    true,
			PrivilegedRoles: []string{"inspector"},
		},
		HTTP: HTTPConfig{
			MaxBodyBytes:    1 << 20,
			RateLimitPerSec: 5,
			RateLimitBurst:  10,
		},
		Bootstrap: BootstrapConfig{
			InspectorName: "Inspector",
		},
	}
}

// Load reads CONFIG_FILE (if set) and applies environment overrides on top.
func Load() (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getenv("GRPC_ADDR", c.GRPCAddr)
	c.DatabaseURL = getenv("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getenv("REDIS_URL", c.RedisURL)
	c.AutoMigrate = getenvBool("AUTO_MIGRATE", c.AutoMigrate)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)

	c.Auth.AccessTokenSecret = getenv("ACCESS_TOKEN_SECRET", c.Auth.AccessTokenSecret)
	c.Auth.RefreshTokenSecret = getenv("REFRESH_TOKEN_SECRET", c.Auth.RefreshTokenSecret)
	c.Auth.Issuer = getenv("TOKEN_ISSUER", c.Auth.Issuer)
	c.Auth.AccessTokenTTL = getenvDuration("ACCESS_TOKEN_TTL", c.Auth.AccessTokenTTL)
	c.Auth.RefreshTokenTTL = getenvDuration("REFRESH_TOKEN_TTL", c.Auth.RefreshTokenTTL)
	c.Auth.CookieSecure = getenvBool("COOKIE_SECURE", c.Auth.CookieSecure)
	c.Auth.PrivilegedRoles = getenvList("PRIVILEGED_ROLES", c.Auth.PrivilegedRoles)
	c.Auth.BcryptCost = getenvInt("BCRYPT_COST", c.Auth.BcryptCost)

	c.HTTP.MaxBodyBytes = int64(getenvInt("MAX_BODY_BYTES", int(c.HTTP.MaxBodyBytes)))
	c.HTTP.RateLimitPerSec = getenvFloat("RATE_LIMIT_PER_SEC", c.HTTP.RateLimitPerSec)
	c.HTTP.RateLimitBurst = getenvInt("RATE_LIMIT_BURST", c.HTTP.RateLimitBurst)
	c.HTTP.CORSOrigins = getenvList("CORS_ORIGINS", c.HTTP.CORSOrigins)

	c.Bootstrap.InspectorName = getenv("BOOTSTRAP_INSPECTOR_NAME", c.Bootstrap.InspectorName)
	c.Bootstrap.InspectorEmail = getenv("BOOTSTRAP_INSPECTOR_EMAIL", c.Bootstrap.InspectorEmail)
	c.Bootstrap.InspectorPassword = getenv("BOOTSTRAP_INSPECTOR_PASSWORD", c.Bootstrap.InspectorPassword)
}

// Validate reports configuration that would make the token lifecycle unsafe.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.AccessTokenSecret) == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET is required"))
	}
	if strings.TrimSpace(c.Auth.RefreshTokenSecret) == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_SECRET is required"))
	}
	if c.Auth.AccessTokenSecret != "" && c.Auth.AccessTokenSecret == c.Auth.RefreshTokenSecret {
		errs = append(errs, errors.New("access and refresh token secrets must differ"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be positive"))
	}
	if c.Auth.AccessTokenTTL > 0 && c.Auth.RefreshTokenTTL > 0 && c.Auth.AccessTokenTTL >= c.Auth.RefreshTokenTTL {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL"))
	}
	if len(c.Auth.PrivilegedRoles) == 0 {
		errs = append(errs, errors.New("PRIVILEGED_ROLES must name at least one role"))
	}
	if (c.Bootstrap.InspectorEmail == "") != (c.Bootstrap.InspectorPassword == "") {
		errs = append(errs, errors.New("BOOTSTRAP_INSPECTOR_EMAIL and BOOTSTRAP_INSPECTOR_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
