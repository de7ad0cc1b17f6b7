// Package config loads gateway configuration from a YAML file with
// environment-variable overrides. Secrets live in env vars (or a local
// .env file); the YAML carries the non-secret shape of a deployment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the gateway.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Link      LinkConfig      `yaml:"link"`
	Mail      MailConfig      `yaml:"mail"`
	Store     StoreConfig     `yaml:"store"`
	Excerpt   ExcerptConfig   `yaml:"excerpt"`
	Turnstile TurnstileConfig `yaml:"turnstile"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the listen host, with container detection.
func (c ServerConfig) GetHost() string {
	// On ECS/Lambda, listen on all interfaces.
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// LinkConfig holds link signing and URL construction settings.
type LinkConfig struct {
	// SigningSecret is the shared HMAC key. Required for every operation
	// that issues or verifies a link; its absence is a fatal configuration
	// error at the call site, never a silent bypass.
	SigningSecret string `yaml:"signing_secret"`
	// SiteURL is the public base URL embedded in outbound links.
	SiteURL string `yaml:"site_url"`
	// ConfirmURL is where unsubscribe redirects land.
	ConfirmURL string `yaml:"confirm_url"`
}

// MailConfig holds SES and addressing settings.
type MailConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	From             string `yaml:"from"`
	NotifyAddress    string `yaml:"notify_address"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// StoreConfig holds DynamoDB table settings. The recipients table also
// carries the ip# rate counters.
type StoreConfig struct {
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile"`
	RecipientsTable string `yaml:"recipients_table"`
	PreordersTable  string `yaml:"preorders_table"`
}

// ExcerptConfig locates the gated PDF per language.
type ExcerptConfig struct {
	Bucket string            `yaml:"bucket"`
	Keys   map[string]string `yaml:"keys"`
}

// TurnstileConfig holds bot-gate settings. An empty secret disables the
// gate entirely.
type TurnstileConfig struct {
	Secret         string `yaml:"secret"`
	VerifyURL      string `yaml:"verify_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the verification call timeout as a duration.
func (c TurnstileConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateLimitConfig bounds submissions per IP. RedisURL switches the
// limiter to atomic counting.
type RateLimitConfig struct {
	WindowMinutes int    `yaml:"window_minutes"`
	Limit         int    `yaml:"limit"`
	RedisURL      string `yaml:"redis_url"`
}

// Window returns the rate window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// CORSConfig lists the browser origins allowed to call the gateway.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads and parses the configuration file and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Mail.Region == "" {
		cfg.Mail.Region = "us-east-1"
	}
	if cfg.Store.Region == "" {
		cfg.Store.Region = cfg.Mail.Region
	}
	if cfg.Turnstile.TimeoutSeconds == 0 {
		cfg.Turnstile.TimeoutSeconds = 10
	}
	if cfg.RateLimit.WindowMinutes == 0 {
		cfg.RateLimit.WindowMinutes = 5
	}
	if cfg.RateLimit.Limit == 0 {
		cfg.RateLimit.Limit = 10
	}
	if len(cfg.Excerpt.Keys) == 0 {
		cfg.Excerpt.Keys = map[string]string{
			"fr": "excerpt-fr.pdf",
			"en": "excerpt-en.pdf",
		}
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars on ECS/Lambda. A missing config file is
// not an error; env-only deployments start from defaults.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = &Config{}
		applyDefaults(cfg)
	} else if err != nil {
		return nil, err
	}

	if v := os.Getenv("LINK_SIGNING_SECRET"); v != "" {
		cfg.Link.SigningSecret = v
	}
	if v := os.Getenv("SITE_URL"); v != "" {
		cfg.Link.SiteURL = v
	}
	if v := os.Getenv("FROM_EMAIL"); v != "" {
		cfg.Mail.From = v
	}
	if v := os.Getenv("NOTIFY_EMAIL"); v != "" {
		cfg.Mail.NotifyAddress = v
	}
	if v := os.Getenv("SES_CONFIGURATION_SET"); v != "" {
		cfg.Mail.ConfigurationSet = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Mail.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Mail.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Mail.Region = v
	}
	if v := os.Getenv("RECIPIENTS_TABLE"); v != "" {
		cfg.Store.RecipientsTable = v
	}
	if v := os.Getenv("PREORDERS_TABLE"); v != "" {
		cfg.Store.PreordersTable = v
	}
	if v := os.Getenv("EXCERPT_BUCKET"); v != "" {
		cfg.Excerpt.Bucket = v
	}
	if v := os.Getenv("TURNSTILE_SECRET_KEY"); v != "" {
		cfg.Turnstile.Secret = v
	}
	if v := os.Getenv("TURNSTILE_VERIFY_URL"); v != "" {
		cfg.Turnstile.VerifyURL = v
	}
	if v := os.Getenv("TURNSTILE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Turnstile.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.WindowMinutes = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.Limit = n
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RateLimit.RedisURL = v
	}

	return cfg, nil
}

// ValidateForServing checks the options every deployment needs before the
// server starts. Per-operation requirements (signing secret, sender) are
// additionally enforced at the call sites that need them.
func (c *Config) ValidateForServing() error {
	if c.Link.SiteURL == "" {
		return fmt.Errorf("link.site_url (SITE_URL) is required")
	}
	if c.Store.RecipientsTable == "" {
		return fmt.Errorf("store.recipients_table (RECIPIENTS_TABLE) is required")
	}
	return nil
}
