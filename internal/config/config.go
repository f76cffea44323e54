// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL           string `yaml:"url"`
	MaxConns      int32  `yaml:"max_conns"`
	MigrateOnBoot bool   `yaml:"migrate_on_boot"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type PaymentConfig struct {
	Provider        string        `yaml:"provider"` // stripe | noop
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	RefundWindow    time.Duration `yaml:"refund_window"`
	Stripe          StripeConfig  `yaml:"stripe"`
}

type MembershipConfig struct {
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	ReconcileInterval  time.Duration `yaml:"reconcile_interval"`
	StalePendingAfter  time.Duration `yaml:"stale_pending_after"`
	ExpiringSoonWindow time.Duration `yaml:"expiring_soon_window"`
	ReminderInterval   time.Duration `yaml:"reminder_interval"`
	AutoRenewWindow    time.Duration `yaml:"auto_renew_window"`
	AutoRenewInterval  time.Duration `yaml:"auto_renew_interval"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	AdminChatID int64  `yaml:"admin_chat_id"`
}

type NotificationConfig struct {
	Workers  int            `yaml:"workers"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type AuthConfig struct {
	JWTSecret   string   `yaml:"jwt_secret"`
	AdminEmails []string `yaml:"admin_emails"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Payment      PaymentConfig      `yaml:"payment"`
	Membership   MembershipConfig   `yaml:"membership"`
	Notification NotificationConfig `yaml:"notification"`
	Auth         AuthConfig         `yaml:"auth"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. An optional .env next to the
// process is loaded first and ${VAR} references in the file are expanded.
func LoadConfig(path string, dev bool) (*Config, error) {
	// a missing .env is normal in production
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse expands env references in raw, decodes it and applies defaults.
func Parse(raw []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	c.Server.RequestTimeout = orDefault(c.Server.RequestTimeout, 15*time.Second)
	c.Server.ShutdownGrace = orDefault(c.Server.ShutdownGrace, 10*time.Second)

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = orDefault(c.Redis.TTL, 5*time.Minute)

	if c.Payment.Provider == "" {
		c.Payment.Provider = "stripe"
	}
	c.Payment.Provider = strings.ToLower(c.Payment.Provider)
	c.Payment.ProviderTimeout = orDefault(c.Payment.ProviderTimeout, 10*time.Second)
	c.Payment.RefundWindow = orDefault(c.Payment.RefundWindow, 30*24*time.Hour)

	m := &c.Membership
	m.SweepInterval = orDefault(m.SweepInterval, 15*time.Minute)
	m.ReconcileInterval = orDefault(m.ReconcileInterval, 5*time.Minute)
	m.StalePendingAfter = orDefault(m.StalePendingAfter, 30*time.Minute)
	m.ExpiringSoonWindow = orDefault(m.ExpiringSoonWindow, 30*24*time.Hour)
	m.ReminderInterval = orDefault(m.ReminderInterval, 24*time.Hour)
	m.AutoRenewWindow = orDefault(m.AutoRenewWindow, 3*24*time.Hour)
	m.AutoRenewInterval = orDefault(m.AutoRenewInterval, 6*time.Hour)

	if c.Notification.Workers <= 0 {
		c.Notification.Workers = 4
	}
	if c.Notification.SMTP.Port == 0 {
		c.Notification.SMTP.Port = 587
	}

	if c.RateLimit.Requests <= 0 {
		c.RateLimit.Requests = 20
	}
	c.RateLimit.Window = orDefault(c.RateLimit.Window, time.Minute)
}

// Minimal validation
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	switch c.Payment.Provider {
	case "stripe":
		if c.Payment.Stripe.SecretKey == "" {
			return errors.New("payment.stripe.secret_key is required")
		}
		if c.Payment.Stripe.WebhookSecret == "" {
			return errors.New("payment.stripe.webhook_secret is required")
		}
	case "noop":
	default:
		return fmt.Errorf("payment.provider %q is not supported", c.Payment.Provider)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
