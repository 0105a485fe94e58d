// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"

	"github.com/rohilsavliya09/smarty-dash/pkg/database"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StoreMemory   = "memory"
	StorePostgres = "postgres"

	// used when EMAIL_USER is set without an SMTP host
	defaultSMTPHost = "smtp.gmail.com"
	devJWTSecret    = "dev-only-insecure-secret"
)

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:"0.0.0.0:5000"`
	Store    string `env:"STORE"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	JWTSecret  string        `env:"JWT_SECRET"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"10"`

	CodeTTL         time.Duration `env:"CODE_TTL" envDefault:"10m"`
	DeliveryTimeout time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"10s"`
	SMTPHost        string        `env:"SMTP_HOST"`
	SMTPPort        int           `env:"SMTP_PORT" envDefault:"465"`
	SMTPUser        string        `env:"SMTP_USER"`
	SMTPPass        string        `env:"SMTP_PASS"`
	EmailUser       string        `env:"EMAIL_USER"`
	EmailPass       string        `env:"EMAIL_PASS"`
	EmailFrom       string        `env:"EMAIL_FROM"`

	TaskDoneTTL   time.Duration `env:"TASK_DONE_TTL" envDefault:"10m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`
	SweepTimeout  time.Duration `env:"SWEEP_TIMEOUT" envDefault:"30s"`

	Database database.Config
}

// Load parses the environment, fills derived defaults and validates.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Database = database.ConfigFromEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env == "" {
		c.Env = EnvDevelopment
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store == "" {
		c.Store = StoreMemory
		if c.Database.DSN != "" {
			c.Store = StorePostgres
		}
	}
	if c.SMTPUser == "" {
		c.SMTPUser = c.EmailUser
	}
	if c.SMTPPass == "" {
		c.SMTPPass = c.EmailPass
	}
	// app passwords are often pasted in groups of four
	c.SMTPPass = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, c.SMTPPass)
	if c.SMTPHost == "" && c.SMTPUser != "" {
		c.SMTPHost = defaultSMTPHost
	}
	if c.EmailFrom == "" {
		c.EmailFrom = c.SMTPUser
	}
	if c.JWTSecret == "" && !c.Production() {
		c.JWTSecret = devJWTSecret
	}
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store))
	}
	if c.Store == StorePostgres && c.Database.DSN == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
	}
	if c.Production() {
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		if c.Store != StorePostgres {
			errs = append(errs, errors.New("production requires the postgres store"))
		}
		if c.SMTPHost == "" {
			errs = append(errs, errors.New("SMTP_HOST or EMAIL_USER is required in production"))
		}
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	for name, d := range map[string]time.Duration{
		"TOKEN_TTL":        c.TokenTTL,
		"CODE_TTL":         c.CodeTTL,
		"TASK_DONE_TTL":    c.TaskDoneTTL,
		"SWEEP_INTERVAL":   c.SweepInterval,
		"SWEEP_TIMEOUT":    c.SweepTimeout,
		"DELIVERY_TIMEOUT": c.DeliveryTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

func (c Config) Production() bool { return c.Env == EnvProduction }

// Development enables error detail in responses and the log-only sender.
func (c Config) Development() bool { return c.Env == EnvDevelopment }

// InsecureJWTSecret reports whether the built-in development secret is in use.
func (c Config) InsecureJWTSecret() bool { return c.JWTSecret == devJWTSecret }
