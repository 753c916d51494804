// Package config loads server settings from flags, an optional YAML file,
// a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all server settings. Durations are stored in seconds.
type Config struct {
	SecretKey string `koanf:"secret_key"`
	Algorithm string `koanf:"algorithm"`

	AccessTokenTTLSeconds   int `koanf:"access_token_ttl_seconds"`
	RefreshTokenTTLSeconds  int `koanf:"refresh_token_ttl_seconds"`
	EmailTokenTTLSeconds    int `koanf:"email_token_ttl_seconds"`
	IdentityCacheTTLSeconds int `koanf:"identity_cache_ttl_seconds"`

	HTTPAddr           string `koanf:"http_addr"`
	BaseURL            string `koanf:"base_url"`
	AuthTimeoutSeconds int    `koanf:"auth_timeout_seconds"`

	DatabaseDSN   string `koanf:"database_dsn"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	LoginWindowSeconds int `koanf:"login_window_seconds"`
	LoginMaxFails      int `koanf:"login_max_fails"`
	LoginBlockSeconds  int `koanf:"login_block_seconds"`

	SentryDSN   string `koanf:"sentry_dsn"`
	Environment string `koanf:"environment"`
}

// ConfigFlag names the flag holding the optional YAML file path.
const ConfigFlag = "config"

// RegisterFlags defines one flag per setting on fs. Flag names use dashes;
// the matching keys and environment variables use underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFlag, "", "YAML config file path")

	fs.String("secret-key", "", "token signing secret (required)")
	fs.String("algorithm", "HS256", "token signing algorithm (HS256, HS384, HS512)")
	fs.Int("access-token-ttl-seconds", 900, "access token lifetime")
	fs.Int("refresh-token-ttl-seconds", 86400, "refresh token lifetime")
	fs.Int("email-token-ttl-seconds", 604800, "email confirmation token lifetime")
	fs.Int("identity-cache-ttl-seconds", 900, "cached identity lifetime")

	fs.String("http-addr", ":8000", "HTTP listen address")
	fs.String("base-url", "http://localhost:8000", "public URL used in confirmation links")
	fs.Int("auth-timeout-seconds", 5, "deadline for resolving the caller of a request")

	fs.String("database-dsn", "", "PostgreSQL DSN (required)")
	fs.String("redis-addr", "localhost:6379", "Redis address")
	fs.String("redis-password", "", "Redis password")
	fs.Int("redis-db", 0, "Redis database number")

	fs.Int("login-window-seconds", 900, "window for counting failed logins")
	fs.Int("login-max-fails", 5, "failed logins within the window before blocking")
	fs.Int("login-block-seconds", 900, "block duration after too many failures")

	fs.String("sentry-dsn", "", "Sentry DSN (empty disables reporting)")
	fs.String("environment", "development", "deployment environment name")
}

// Load builds a Config. Precedence, lowest first: flag defaults, YAML file,
// .env file, process environment, explicitly set flags.
func Load(fs *pflag.FlagSet) (*Config, error) {
	if fs == nil {
		fs = pflag.NewFlagSet("config", pflag.ContinueOnError)
		RegisterFlags(fs)
	}

	// .env never overrides variables already present in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	if path, _ := fs.GetString(ConfigFlag); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	known := knownKeys(fs)
	if err := k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if !known[key] {
			return ""
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	// Unchanged flags only fill keys no other source has set.
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		if f.Name == ConfigFlag {
			return "", nil
		}
		return flagKey(f.Name), posflag.FlagVal(fs, f)
	}), nil); err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	var problems []error
	if strings.TrimSpace(c.SecretKey) == "" {
		problems = append(problems, errors.New("secret_key is required"))
	}
	switch c.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		problems = append(problems, fmt.Errorf("algorithm must be HS256, HS384 or HS512, got %q", c.Algorithm))
	}
	for name, v := range map[string]int{
		"access_token_ttl_seconds":   c.AccessTokenTTLSeconds,
		"refresh_token_ttl_seconds":  c.RefreshTokenTTLSeconds,
		"email_token_ttl_seconds":    c.EmailTokenTTLSeconds,
		"identity_cache_ttl_seconds": c.IdentityCacheTTLSeconds,
		"auth_timeout_seconds":       c.AuthTimeoutSeconds,
		"login_window_seconds":       c.LoginWindowSeconds,
		"login_max_fails":            c.LoginMaxFails,
		"login_block_seconds":        c.LoginBlockSeconds,
	} {
		if v <= 0 {
			problems = append(problems, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if c.HTTPAddr == "" {
		problems = append(problems, errors.New("http_addr is required"))
	}
	if c.DatabaseDSN == "" {
		problems = append(problems, errors.New("database_dsn is required"))
	}
	if c.RedisAddr == "" {
		problems = append(problems, errors.New("redis_addr is required"))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(problems...))
	}
	return nil
}

func (c *Config) AccessTokenTTL() time.Duration  { return seconds(c.AccessTokenTTLSeconds) }
func (c *Config) RefreshTokenTTL() time.Duration { return seconds(c.RefreshTokenTTLSeconds) }
func (c *Config) EmailTokenTTL() time.Duration   { return seconds(c.EmailTokenTTLSeconds) }
func (c *Config) IdentityCacheTTL() time.Duration {
	return seconds(c.IdentityCacheTTLSeconds)
}
func (c *Config) AuthTimeout() time.Duration { return seconds(c.AuthTimeoutSeconds) }
func (c *Config) LoginWindow() time.Duration { return seconds(c.LoginWindowSeconds) }
func (c *Config) LoginBlock() time.Duration  { return seconds(c.LoginBlockSeconds) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func flagKey(name string) string { return strings.ReplaceAll(name, "-", "_") }

func knownKeys(fs *pflag.FlagSet) map[string]bool {
	keys := map[string]bool{}
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name != ConfigFlag {
			keys[flagKey(f.Name)] = true
		}
	})
	return keys
}
