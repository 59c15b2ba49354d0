// Package config loads process configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultAPIURL is the local development backend.
const DefaultAPIURL = "http://localhost:8000"

// Web configures the front-end server.
type Web struct {
	Port               string        `env:"PORT" envDefault:"8080"`
	APIURL             string        `env:"AGUN_API_URL" envDefault:"http://localhost:8000"`
	DatabasePath       string        `env:"DATABASE_PATH" envDefault:"agun-web.db"`
	CookieSecure       bool          `env:"COOKIE_SECURE" envDefault:"true"`
	APITimeout         time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	LoginRatePerMinute int           `env:"LOGIN_RATE_PER_MINUTE" envDefault:"10"`
	LoginBurst         int           `env:"LOGIN_BURST" envDefault:"5"`
	SubmitTimeout      time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"2m"`
	DraftTTL           time.Duration `env:"DRAFT_TTL" envDefault:"72h"`
	OTELEndpoint       string        `env:"OTEL_ENDPOINT"`
}

// DevBackend configures the local stand-in authentication backend.
type DevBackend struct {
	Port         string `env:"PORT" envDefault:"8000"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"agun-devbackend.db"`
	JWTSecret    string `env:"JWT_SECRET,required"`
	BcryptCost   int    `env:"BCRYPT_COST" envDefault:"12"`
	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// CLI configures agunctl. Flags override these values.
type CLI struct {
	APIURL       string        `env:"AGUN_API_URL" envDefault:"http://localhost:8000"`
	DatabasePath string        `env:"AGUNCTL_DB" envDefault:"agunctl.db"`
	APITimeout   time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
}

// LoadWeb reads and validates the front-end configuration.
func LoadWeb() (Web, error) {
	var c Web
	if err := parse(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// LoadDevBackend reads and validates the dev backend configuration.
func LoadDevBackend() (DevBackend, error) {
	var c DevBackend
	if err := parse(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// LoadCLI reads the CLI configuration defaults.
func LoadCLI() (CLI, error) {
	var c CLI
	if err := parse(&c); err != nil {
		return c, err
	}
	return c, nil
}

func parse(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Web) Validate() error {
	var errs []error
	if err := ValidateAPIURL(c.APIURL); err != nil {
		errs = append(errs, err)
	}
	if c.APITimeout <= 0 {
		errs = append(errs, errors.New("API_TIMEOUT must be positive"))
	}
	if c.LoginRatePerMinute < 1 || c.LoginBurst < 1 {
		errs = append(errs, errors.New("LOGIN_RATE_PER_MINUTE and LOGIN_BURST must be at least 1"))
	}
	if c.SubmitTimeout <= 0 {
		errs = append(errs, errors.New("SUBMIT_TIMEOUT must be positive"))
	}
	if c.DraftTTL < c.SubmitTimeout {
		errs = append(errs, errors.New("DRAFT_TTL must not be shorter than SUBMIT_TIMEOUT"))
	}
	return errors.Join(errs...)
}

func (c DevBackend) Validate() error {
	var errs []error
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters for HMAC-SHA256 security"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 14 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 14, got %d", c.BcryptCost))
	}
	return errors.Join(errs...)
}

// ValidateAPIURL checks that u is an absolute http(s) URL.
func ValidateAPIURL(u string) error {
	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("AGUN_API_URL: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("AGUN_API_URL must be an absolute http(s) URL, got %q", u)
	}
	return nil
}
