// Package config loads server settings from the environment and an optional
// .env file.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"drinkmailer/internal/adapters/email"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const envFileKey = "DRINKMAILER_ENV_FILE"

var (
	ErrMissingScriptURL = errors.New("DRINKMAILER_SCRIPT_URL is required")
	ErrMissingCSRFKey   = errors.New("DRINKMAILER_CSRF_KEY is required in production")
)

// Config holds every runtime setting of the server.
type Config struct {
	Addr           string
	Env            string
	ScriptURL      string
	DBPath         string
	Location       *time.Location
	HTTPTimeout    time.Duration
	Delivery       string
	ResendKey      string
	SendGridKey    string
	MailFrom       string
	CSRFKey        []byte
	AccessHash     string
	LogLevel       slog.Level
	RateLimit      int
	SlowRequestMs  int
	SlowQueryMs    int
	IPLookup       bool
	TrustedOrigins []string

	// GeneratedCSRFKey is set when no key was configured and a random one was used.
	GeneratedCSRFKey bool
}

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool { return c.Env == EnvProduction }

// SecureCookies reports whether cookies must carry the Secure flag.
func (c *Config) SecureCookies() bool { return c.Production() }

// OrganizerGate reports whether an access hash enables the organizer login.
func (c *Config) OrganizerGate() bool { return c.AccessHash != "" }

// Load reads the optional .env file and then the process environment.
// Variables already present in the environment take precedence.
func Load() (*Config, error) {
	path := os.Getenv(envFileKey)
	if path == "" {
		path = ".env"
	}
	file, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		file = map[string]string{}
	}
	return FromLookup(func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return file[key]
	})
}

// FromLookup builds a Config from a key lookup function.
func FromLookup(get func(string) string) (*Config, error) {
	or := func(key, def string) string {
		if v := strings.TrimSpace(get(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Addr:        or("DRINKMAILER_ADDR", ":8080"),
		Env:         or("DRINKMAILER_ENV", EnvDevelopment),
		ScriptURL:   or("DRINKMAILER_SCRIPT_URL", ""),
		DBPath:      or("DRINKMAILER_DB", "drinkmailer.db"),
		Delivery:    or("DRINKMAILER_DELIVERY", email.DeliveryAppsScript),
		ResendKey:   or("DRINKMAILER_RESEND_KEY", ""),
		SendGridKey: or("DRINKMAILER_SENDGRID_KEY", ""),
		MailFrom:    or("DRINKMAILER_MAIL_FROM", ""),
		AccessHash:  or("DRINKMAILER_ACCESS_HASH", ""),
	}

	if cfg.Env != EnvDevelopment && cfg.Env != EnvProduction {
		return nil, fmt.Errorf("DRINKMAILER_ENV: unknown environment %q", cfg.Env)
	}
	if cfg.ScriptURL == "" {
		return nil, ErrMissingScriptURL
	}

	loc, err := time.LoadLocation(or("DRINKMAILER_TZ", "Local"))
	if err != nil {
		return nil, fmt.Errorf("DRINKMAILER_TZ: %w", err)
	}
	cfg.Location = loc

	if cfg.HTTPTimeout, err = time.ParseDuration(or("DRINKMAILER_HTTP_TIMEOUT", "30s")); err != nil {
		return nil, fmt.Errorf("DRINKMAILER_HTTP_TIMEOUT: %w", err)
	}
	if cfg.HTTPTimeout <= 0 {
		return nil, errors.New("DRINKMAILER_HTTP_TIMEOUT must be positive")
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(or("DRINKMAILER_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("DRINKMAILER_LOG_LEVEL: %w", err)
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"DRINKMAILER_RATE_LIMIT", 10, &cfg.RateLimit},
		{"DRINKMAILER_SLOW_REQUEST_MS", 500, &cfg.SlowRequestMs},
		{"DRINKMAILER_SLOW_QUERY_MS", 50, &cfg.SlowQueryMs},
	}
	for _, i := range ints {
		raw := or(i.key, "")
		if raw == "" {
			*i.dst = i.def
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%s: expected a positive integer, got %q", i.key, raw)
		}
		*i.dst = n
	}

	switch strings.ToLower(or("DRINKMAILER_IP_LOOKUP", "on")) {
	case "on", "true", "1", "yes":
		cfg.IPLookup = true
	case "off", "false", "0", "no":
		cfg.IPLookup = false
	default:
		return nil, fmt.Errorf("DRINKMAILER_IP_LOOKUP: expected on or off, got %q", get("DRINKMAILER_IP_LOOKUP"))
	}

	for _, o := range strings.Split(or("DRINKMAILER_TRUSTED_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.TrustedOrigins = append(cfg.TrustedOrigins, o)
		}
	}

	if err := cfg.validateDelivery(); err != nil {
		return nil, err
	}
	if cfg.AccessHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.AccessHash)); err != nil {
			return nil, fmt.Errorf("DRINKMAILER_ACCESS_HASH: %w", err)
		}
	}
	if err := cfg.loadCSRFKey(or("DRINKMAILER_CSRF_KEY", "")); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validateDelivery() error {
	switch c.Delivery {
	case email.DeliveryAppsScript, email.DeliveryNoop:
		return nil
	case email.DeliveryResend:
		if c.ResendKey == "" {
			return errors.New("DRINKMAILER_RESEND_KEY is required for resend delivery")
		}
	case email.DeliverySendGrid:
		if c.SendGridKey == "" {
			return errors.New("DRINKMAILER_SENDGRID_KEY is required for sendgrid delivery")
		}
	default:
		return fmt.Errorf("DRINKMAILER_DELIVERY: unknown delivery %q", c.Delivery)
	}
	if c.MailFrom == "" {
		return fmt.Errorf("DRINKMAILER_MAIL_FROM is required for %s delivery", c.Delivery)
	}
	return nil
}

func (c *Config) loadCSRFKey(keyHex string) error {
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return errors.New("DRINKMAILER_CSRF_KEY must be 64 hex characters (32 bytes)")
		}
		c.CSRFKey = key
		return nil
	}
	if c.Production() {
		return ErrMissingCSRFKey
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generate CSRF key: %w", err)
	}
	c.CSRFKey = key
	c.GeneratedCSRFKey = true
	return nil
}
