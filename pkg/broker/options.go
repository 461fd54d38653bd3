package broker

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a Conn. Start from DefaultOptions.
type Options struct {
	// ConnectTimeout bounds the first connection, including its retries
	ConnectTimeout time.Duration

	// MaxReconnectAttempts limits redials after a failure (negative = unlimited)
	MaxReconnectAttempts int

	// WaitForFirstConnect keeps retrying the first connection instead of failing on the first error
	WaitForFirstConnect bool

	// ReconnectDelay is the initial backoff between attempts; it doubles up to MaxReconnectDelay
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// PingInterval is how often the client pings the broker
	PingInterval time.Duration

	// MaxPingsOut is the number of unanswered pings after which the socket is considered stale
	MaxPingsOut int

	// WriteTimeout bounds buffered writes and Flush round trips
	WriteTimeout time.Duration

	// Logger receives connection lifecycle logs (disabled when nil)
	Logger *zerolog.Logger

	// DisconnectHandler is called when an established connection drops.
	// Handlers run on their own goroutine, in order, and may call Close.
	DisconnectHandler func(err error)

	// ReconnectHandler is called after the connection has been replaced and subscriptions re-sent
	ReconnectHandler func(url string)
}

// DefaultOptions returns the default policy: unlimited reconnects and waiting for the first connection
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:       120 * time.Second,
		MaxReconnectAttempts: -1,
		WaitForFirstConnect:  true,
		ReconnectDelay:       2 * time.Second,
		MaxReconnectDelay:    30 * time.Second,
		PingInterval:         2 * time.Minute,
		MaxPingsOut:          2,
		WriteTimeout:         10 * time.Second,
	}
}

// SetDefaults fills zero durations and limits with their default values
func (o *Options) SetDefaults() {
	d := DefaultOptions()
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = d.ReconnectDelay
	}
	if o.MaxReconnectDelay == 0 {
		o.MaxReconnectDelay = d.MaxReconnectDelay
	}
	if o.PingInterval == 0 {
		o.PingInterval = d.PingInterval
	}
	if o.MaxPingsOut == 0 {
		o.MaxPingsOut = d.MaxPingsOut
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
}

// Validate checks the options after SetDefaults
func (o *Options) Validate() error {
	if o.ConnectTimeout < 0 {
		return errors.New("connect timeout cannot be negative")
	}
	if o.ReconnectDelay < 0 || o.MaxReconnectDelay < 0 {
		return errors.New("reconnect delay cannot be negative")
	}
	if o.MaxReconnectDelay < o.ReconnectDelay {
		return errors.New("max reconnect delay must not be lower than reconnect delay")
	}
	if o.PingInterval < 0 {
		return errors.New("ping interval cannot be negative")
	}
	return nil
}

// unlimited reports whether reconnection attempts are unbounded
func (o *Options) unlimited() bool {
	return o.MaxReconnectAttempts < 0
}

func (o *Options) nextDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > o.MaxReconnectDelay {
		return o.MaxReconnectDelay
	}
	return next
}
