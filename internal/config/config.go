// Package config loads the notification client configuration from TASKNOTIFY_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/broker"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/subject"
)

// Prefix is prepended to every environment variable name
const Prefix = "TASKNOTIFY_"

var (
	// ErrOriginRequired is returned when no page origin is configured
	ErrOriginRequired = errors.New("origin is required")
	// ErrHubRequired is returned when no broker path is configured
	ErrHubRequired = errors.New("hub path is required")
)

// Config holds the client configuration
type Config struct {
	// Origin is the page origin the broker path is resolved against
	Origin string `env:"ORIGIN" envDefault:"http://localhost:8080"`
	// Hub is the broker path (or an absolute ws:// URL)
	Hub string `env:"HUB" envDefault:"/hub/v1"`

	Token string `env:"TOKEN"`
	User  string `env:"USER"`
	Pass  string `env:"PASS"`
	Name  string `env:"NAME" envDefault:"ui"`

	// UserID selects the per-user subject task.<UserID>.>
	UserID string `env:"USER_ID"`
	// Subject overrides the subscription pattern
	Subject string `env:"SUBJECT"`

	ConnectTimeout       time.Duration `env:"CONNECT_TIMEOUT" envDefault:"120s"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"-1"`
	WaitForFirstConnect  bool          `env:"WAIT_FOR_FIRST_CONNECT" envDefault:"true"`
	ReconnectDelay       time.Duration `env:"RECONNECT_DELAY" envDefault:"2s"`
	MaxReconnectDelay    time.Duration `env:"MAX_RECONNECT_DELAY" envDefault:"30s"`

	ToastTimeout time.Duration `env:"TOAST_TIMEOUT" envDefault:"5s"`
	ReloadDelay  time.Duration `env:"RELOAD_DELAY" envDefault:"5s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load reads the configuration from the process environment
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads the configuration from environ, or from the process
// environment when environ is nil
func LoadFrom(environ map[string]string) (Config, error) {
	opts := env.Options{Prefix: Prefix}
	if environ != nil {
		opts.Environment = environ
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Identity returns the broker credentials
func (c Config) Identity() broker.Identity {
	return broker.Identity{Token: c.Token, User: c.User, Pass: c.Pass, Name: c.Name}
}

// BrokerOptions returns the connection policy
func (c Config) BrokerOptions() broker.Options {
	opts := broker.DefaultOptions()
	opts.ConnectTimeout = c.ConnectTimeout
	opts.MaxReconnectAttempts = c.MaxReconnectAttempts
	opts.WaitForFirstConnect = c.WaitForFirstConnect
	opts.ReconnectDelay = c.ReconnectDelay
	opts.MaxReconnectDelay = c.MaxReconnectDelay
	return opts
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Origin == "" {
		return ErrOriginRequired
	}
	if c.Hub == "" {
		return ErrHubRequired
	}
	if c.Subject != "" {
		if err := subject.ValidatePattern(c.Subject); err != nil {
			return fmt.Errorf("invalid subject: %w", err)
		}
	}
	if c.UserID != "" {
		if err := subject.ValidateToken(c.UserID); err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
	}
	opts := c.BrokerOptions()
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid connection options: %w", err)
	}
	if c.ToastTimeout < 0 || c.ReloadDelay < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	return nil
}

// HasCredentials reports whether any credential form is configured
func (c Config) HasCredentials() bool {
	return c.Token != "" || c.User != "" || c.Pass != ""
}
