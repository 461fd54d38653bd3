package broker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

var (
	// ErrConnectTimeout is returned when the first connection does not complete within ConnectTimeout
	ErrConnectTimeout = errors.New("connect timeout")
	// ErrAttemptsExhausted is returned when MaxReconnectAttempts is reached
	ErrAttemptsExhausted = errors.New("reconnect attempts exhausted")
	// ErrConnectionClosed ends every stream of a closed connection
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSubscriptionClosed ends the stream of an unsubscribed subscription
	ErrSubscriptionClosed = errors.New("subscription closed")
	// ErrNotConnected is returned by Publish while the connection is reconnecting
	ErrNotConnected = errors.New("not connected")
	// ErrMaxPayload is returned when a published payload exceeds the server limit
	ErrMaxPayload = errors.New("payload exceeds server max_payload")
	// ErrStaleConnection is reported when pings go unanswered
	ErrStaleConnection = errors.New("stale connection")
	// ErrAuthorization is returned when the broker rejects the credentials.
	// It is never retried.
	ErrAuthorization = errors.New("authorization rejected")
)

// ConnectionError reports that the first connection could not be established.
// Delivery does not resume on its own after a ConnectionError.
type ConnectionError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// natsError maps a client library error onto the package sentinels, keeping the cause
func natsError(err error) error {
	switch {
	case err == nil:
		return nil
	case isAuthorization(err):
		return fmt.Errorf("%w: %w", ErrAuthorization, err)
	case errors.Is(err, nats.ErrMaxPayload):
		return fmt.Errorf("%w: %w", ErrMaxPayload, err)
	case errors.Is(err, nats.ErrStaleConnection):
		return fmt.Errorf("%w: %w", ErrStaleConnection, err)
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrConnectionReconnecting):
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return err
}

// isAuthorization matches both the library sentinels and the "-ERR" text nats.go
// returns verbatim when the CONNECT is refused.
func isAuthorization(err error) bool {
	if errors.Is(err, nats.ErrAuthorization) ||
		errors.Is(err, nats.ErrAuthExpired) ||
		errors.Is(err, nats.ErrAuthRevoked) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "authorization violation") || strings.Contains(msg, "authentication")
}
