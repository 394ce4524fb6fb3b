// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the accounts service configuration.
//
// Precedence, lowest first: flag defaults, the YAML file, flags set on the
// command line, then the DATABASE_URL, ACCOUNTS_SECRET_KEY and
// ACCOUNTS_SMTP_PASSWORD environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/logging"
	"github.com/holomush/accounts/internal/xdg"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Environment overrides.
const (
	EnvDatabaseURL  = "DATABASE_URL"
	EnvSecretKey    = "ACCOUNTS_SECRET_KEY" //nolint:gosec // G101: variable name, not a credential
	EnvSMTPPassword = "ACCOUNTS_SMTP_PASSWORD"
)

// Config is the complete service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Mail     MailConfig     `koanf:"mail"`
	Events   EventsConfig   `koanf:"events"`
}

// HTTPConfig configures the web server.
type HTTPConfig struct {
	Addr          string        `koanf:"addr"`
	BaseURL       string        `koanf:"base_url"`
	CSRF          bool          `koanf:"csrf"`
	SecureCookies bool          `koanf:"secure_cookies"`
	SessionTTL    time.Duration `koanf:"session_ttl"`
}

// MetricsConfig configures the observability listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig selects and locates the credential store.
// For sqlite, URL is a file path or DSN; empty uses the XDG data directory.
type DatabaseConfig struct {
	Driver         string `koanf:"driver"`
	URL            string `koanf:"url"`
	ConnectRetries uint64 `koanf:"connect_retries"`
}

// AuthConfig holds the signing secret and password rules.
type AuthConfig struct {
	SecretKey         string        `koanf:"secret_key"`
	ResetTokenTTL     time.Duration `koanf:"reset_token_ttl"`
	MinPasswordLength int           `koanf:"min_password_length"`
}

// MailConfig configures email delivery. Empty Host selects the log notifier.
type MailConfig struct {
	From      string `koanf:"from"`
	Host      string `koanf:"host"`
	Port      int    `koanf:"port"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
	QueueSize int    `koanf:"queue_size"`
}

// EventsConfig configures account event publishing. No brokers selects the
// log publisher.
type EventsConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:       ":8080",
			BaseURL:    "http://localhost:8080/",
			CSRF:       true,
			SessionTTL: auth.SessionTokenExpiry,
		},
		Metrics:  MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:      LogConfig{Format: "json", Level: "info"},
		Database: DatabaseConfig{Driver: DriverPostgres, ConnectRetries: 5},
		Auth: AuthConfig{
			ResetTokenTTL:     auth.DefaultResetTokenTTL,
			MinPasswordLength: auth.DefaultMinPasswordLength,
		},
		Mail:   MailConfig{Port: 587, QueueSize: 64},
		Events: EventsConfig{Topic: "account-events"},
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"http-addr":           "http.addr",
	"base-url":            "http.base_url",
	"csrf":                "http.csrf",
	"secure-cookies":      "http.secure_cookies",
	"session-ttl":         "http.session_ttl",
	"metrics-addr":        "metrics.addr",
	"log-format":          "log.format",
	"log-level":           "log.level",
	"db-driver":           "database.driver",
	"database-url":        "database.url",
	"db-connect-retries":  "database.connect_retries",
	"reset-token-ttl":     "auth.reset_token_ttl",
	"min-password-length": "auth.min_password_length",
	"mail-from":           "mail.from",
	"mail-host":           "mail.host",
	"mail-port":           "mail.port",
	"mail-username":       "mail.username",
	"mail-queue-size":     "mail.queue_size",
	"event-brokers":       "events.brokers",
	"event-topic":         "events.topic",
}

// RegisterFlags adds the configuration flags to fs with the built-in defaults.
// Secrets have no flags; they come from the file or the environment.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("config", "", "path to config.yaml (default $XDG_CONFIG_HOME/holomush-accounts/config.yaml if present)")
	fs.String("http-addr", d.HTTP.Addr, "web server listen address")
	fs.String("base-url", d.HTTP.BaseURL, "absolute site URL used in emailed links, ending in /")
	fs.Bool("csrf", d.HTTP.CSRF, "require CSRF tokens on form posts")
	fs.Bool("secure-cookies", d.HTTP.SecureCookies, "mark cookies Secure (serve behind HTTPS)")
	fs.Duration("session-ttl", d.HTTP.SessionTTL, "web session lifetime")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("db-driver", d.Database.Driver, "credential store driver (postgres or sqlite)")
	fs.String("database-url", "", "postgres URL or sqlite path")
	fs.Uint64("db-connect-retries", d.Database.ConnectRetries, "database connection retries at startup")
	fs.Duration("reset-token-ttl", d.Auth.ResetTokenTTL, "password reset link lifetime")
	fs.Int("min-password-length", d.Auth.MinPasswordLength, "minimum password length")
	fs.String("mail-from", "", "sender address for account email")
	fs.String("mail-host", "", "SMTP relay host (empty logs email instead)")
	fs.Int("mail-port", d.Mail.Port, "SMTP relay port")
	fs.String("mail-username", "", "SMTP username")
	fs.Int("mail-queue-size", d.Mail.QueueSize, "outgoing email queue capacity")
	fs.StringSlice("event-brokers", nil, "Kafka brokers for account events (empty logs events)")
	fs.String("event-topic", d.Events.Topic, "Kafka topic for account events")
}

// Load builds the configuration from fs (registered with RegisterFlags), the
// YAML file and the environment, then validates it.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, explicit, err := configPath(fs)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil || explicit {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
			}
		}
	}

	// Unchanged flags only fill keys the file did not set.
	err = k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}), nil)
	if err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load flags").Wrap(err)
	}

	for env, key := range map[string]string{
		EnvDatabaseURL:  "database.url",
		EnvSecretKey:    "auth.secret_key",
		EnvSMTPPassword: "mail.password",
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("env", env).Wrap(err)
			}
		}
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configPath(fs *pflag.FlagSet) (path string, explicit bool, err error) {
	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		return f.Value.String(), true, nil
	}
	path, err = xdg.ConfigFile()
	if err != nil {
		// No HOME: run on flags and environment alone.
		return "", false, nil //nolint:nilerr // missing default location is not an error
	}
	return path, false, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []error
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if !slices.Contains([]string{DriverPostgres, DriverSQLite}, c.Database.Driver) {
		fail("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
	if c.Database.Driver == DriverPostgres && c.Database.URL == "" {
		fail("database.url is required for the postgres driver (or set %s)", EnvDatabaseURL)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		fail("log.format must be json or text, got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		fail("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if len(c.Auth.SecretKey) < auth.MinSecretKeyLength {
		fail("auth.secret_key must be at least %d bytes (set %s)", auth.MinSecretKeyLength, EnvSecretKey)
	}
	if err := validateBaseURL(c.HTTP.BaseURL); err != nil {
		problems = append(problems, err)
	}
	if c.HTTP.SessionTTL <= 0 {
		fail("http.session_ttl must be positive")
	}
	if c.Auth.ResetTokenTTL <= 0 {
		fail("auth.reset_token_ttl must be positive")
	}
	if c.Auth.MinPasswordLength < 1 || c.Auth.MinPasswordLength > auth.MaxPasswordLength {
		fail("auth.min_password_length must be between 1 and %d", auth.MaxPasswordLength)
	}
	if c.Mail.Host != "" {
		if c.Mail.From == "" {
			fail("mail.from is required when mail.host is set")
		}
		if c.Mail.Port < 1 || c.Mail.Port > 65535 {
			fail("mail.port must be a valid TCP port, got %d", c.Mail.Port)
		}
	}
	if c.Mail.QueueSize < 1 {
		fail("mail.queue_size must be positive")
	}
	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		fail("events.topic is required when events.brokers is set")
	}

	if len(problems) > 0 {
		return oops.Code("CONFIG_INVALID").Wrap(errors.Join(problems...))
	}
	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("http.base_url must be an absolute http(s) URL, got %q", raw)
	}
	if !strings.HasSuffix(raw, "/") {
		return fmt.Errorf("http.base_url must end with /, got %q", raw)
	}
	return nil
}

// SQLiteDSN returns the sqlite database location, defaulting to the XDG data directory.
func (c *Config) SQLiteDSN() (string, error) {
	if c.Database.URL != "" {
		return c.Database.URL, nil
	}
	path, err := xdg.SQLitePath()
	if err != nil {
		return "", oops.Code("CONFIG_INVALID").With("operation", "default sqlite path").Wrap(err)
	}
	return path, nil
}
