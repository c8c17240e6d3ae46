package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full runtime configuration, read from the environment.
// Credential-signing settings are validated at startup: a missing secret is
// a fatal configuration error, never a per-request one.
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	CronSecret  string `envconfig:"CRON_SECRET"`

	JWTSecret             string `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer             string `envconfig:"JWT_ISSUER" required:"true"`
	JWTAudience           string `envconfig:"JWT_AUDIENCE" required:"true"`
	AccessTokenTTLMinutes int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"15"`

	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `envconfig:"GOOGLE_REDIRECT_URL"`

	DBMaxOpenConns           int  `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	DBMaxIdleConns           int  `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetimeMinutes int  `envconfig:"DB_CONN_MAX_LIFETIME_MINUTES" default:"30"`
	DBConnMaxIdleTimeMinutes int  `envconfig:"DB_CONN_MAX_IDLE_TIME_MINUTES" default:"10"`
	RefreshRetentionDays     int  `envconfig:"REFRESH_TOKEN_RETENTION_DAYS" default:"14"`
	RunMigrationsOnStartup   bool `envconfig:"RUN_MIGRATIONS_ON_STARTUP" default:"false"`
}

// Load reads and validates configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.JWTIssuer == "" || c.JWTAudience == "" {
		return errors.New("JWT_ISSUER and JWT_AUDIENCE must not be empty")
	}
	if c.AccessTokenTTLMinutes <= 0 {
		return errors.New("ACCESS_TOKEN_TTL_MINUTES must be positive")
	}
	return nil
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) RefreshRetention() time.Duration {
	return time.Duration(c.RefreshRetentionDays) * 24 * time.Hour
}

func (c Config) DBConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeMinutes) * time.Minute
}

func (c Config) DBConnMaxIdleTime() time.Duration {
	return time.Duration(c.DBConnMaxIdleTimeMinutes) * time.Minute
}
