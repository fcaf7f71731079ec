package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

type Config struct {
	Port                string        `env:"PORT" envDefault:"8080"`
	ClinicAPIURL        string        `env:"CLINIC_API_URL,required,notEmpty"`
	PostalLookupURL     string        `env:"POSTAL_LOOKUP_URL" envDefault:"https://viacep.com.br"`
	PostalLookupRPS     float64       `env:"POSTAL_LOOKUP_RPS" envDefault:"5"`
	PostalLookupBurst   int           `env:"POSTAL_LOOKUP_BURST" envDefault:"5"`
	HTTPClientTimeout   time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"15s"`
	SessionStore        string        `env:"SESSION_STORE" envDefault:"memory"`
	RedisURL            string        `env:"REDIS_URL"`
	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	SessionCookieName   string        `env:"SESSION_COOKIE_NAME" envDefault:"clinic_session"`
	SessionCookieSecure bool          `env:"SESSION_COOKIE_SECURE" envDefault:"true"`
	OTelEnabled         bool          `env:"OTEL_ENABLED" envDefault:"true"`
	OTelServiceName     string        `env:"OTEL_SERVICE_NAME" envDefault:"clinic-web"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the environment, after a .env file in the working directory
// when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.SessionStore = strings.ToLower(strings.TrimSpace(c.SessionStore))
	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return errors.New("REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreMemory, SessionStoreRedis, c.SessionStore)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.PostalLookupRPS < 0 || c.PostalLookupBurst < 0 {
		return errors.New("POSTAL_LOOKUP_RPS and POSTAL_LOOKUP_BURST must not be negative")
	}
	return nil
}
