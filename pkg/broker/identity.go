package broker

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nats-io/nats.go"
)

// DefaultClientName identifies the notification client to the broker
const DefaultClientName = "ui"

var (
	// ErrNoCredentials is returned when neither a token nor a user/pass pair is set
	ErrNoCredentials = errors.New("identity requires a token or a user/pass pair")
	// ErrAmbiguousCredentials is returned when both credential forms are set
	ErrAmbiguousCredentials = errors.New("identity must use either a token or a user/pass pair, not both")
	// ErrIncompleteCredentials is returned when only half of a user/pass pair is set
	ErrIncompleteCredentials = errors.New("user and pass must both be set")
)

// Identity holds the connection credentials and the client display name.
// Exactly one credential form is used: Token, or User and Pass.
type Identity struct {
	Token string
	User  string
	Pass  string
	Name  string
}

// Validate checks that exactly one non-empty credential form is present
func (i Identity) Validate() error {
	hasToken := i.Token != ""
	hasUser := i.User != "" || i.Pass != ""

	switch {
	case hasToken && hasUser:
		return ErrAmbiguousCredentials
	case hasUser && (i.User == "" || i.Pass == ""):
		return ErrIncompleteCredentials
	case !hasToken && !hasUser:
		return ErrNoCredentials
	}
	return nil
}

// ClientName returns Name or DefaultClientName
func (i Identity) ClientName() string {
	if i.Name == "" {
		return DefaultClientName
	}
	return i.Name
}

// IsJWT reports whether the token is a JWT the subscription subject can be derived from
func (i Identity) IsJWT() bool {
	if i.Token == "" {
		return false
	}
	_, err := i.Claims()
	return err == nil
}

// Claims decodes the token's claims without verifying its signature.
// The broker verifies the token; the client only reads it.
func (i Identity) Claims() (jwt.MapClaims, error) {
	if i.Token == "" {
		return nil, ErrNoCredentials
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(i.Token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

// UserID returns the user the token was issued for: the "user_id" claim, else "sub"
func (i Identity) UserID() (string, error) {
	claims, err := i.Claims()
	if err != nil {
		return "", err
	}
	if id, ok := claims["user_id"].(string); ok && id != "" {
		return id, nil
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("read subject claim: %w", err)
	}
	if sub == "" {
		return "", errors.New("token carries no user id")
	}
	return sub, nil
}

// natsOptions turns the identity into client options. A JWT is presented as a plain
// token: the client holds no signing seed, so it cannot answer a user-JWT challenge.
func (i Identity) natsOptions() []nats.Option {
	opts := []nats.Option{nats.Name(i.ClientName())}
	if i.Token != "" {
		return append(opts, nats.Token(i.Token))
	}
	return append(opts, nats.UserInfo(i.User, i.Pass))
}
