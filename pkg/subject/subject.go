package subject

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Separator splits subject tokens
	Separator = "."

	// SingleWildcard matches exactly one token
	SingleWildcard = "*"

	// FullWildcard matches one or more trailing tokens
	FullWildcard = ">"
)

var (
	// ErrEmpty is returned for empty subjects or patterns
	ErrEmpty = errors.New("subject cannot be empty")
	// ErrEmptyToken is returned when a subject contains an empty token ("a..b")
	ErrEmptyToken = errors.New("subject contains an empty token")
	// ErrWildcardInSubject is returned when a publish subject carries a wildcard
	ErrWildcardInSubject = errors.New("subject cannot contain wildcards")
	// ErrFullWildcardNotLast is returned when ">" is not the final token
	ErrFullWildcardNotLast = errors.New("'>' wildcard must be the last token")
	// ErrInvalidToken is returned by ValidateToken
	ErrInvalidToken = errors.New("invalid subject token")
)

// ValidateSubject checks a literal subject, as used when publishing.
func ValidateSubject(s string) error {
	tokens, err := split(s)
	if err != nil {
		return err
	}
	for _, tok := range tokens {
		if tok == SingleWildcard || tok == FullWildcard {
			return fmt.Errorf("%q: %w", s, ErrWildcardInSubject)
		}
	}
	return nil
}

// ValidatePattern checks a subscription pattern.
func ValidatePattern(p string) error {
	tokens, err := split(p)
	if err != nil {
		return err
	}
	for i, tok := range tokens {
		if tok == FullWildcard && i != len(tokens)-1 {
			return fmt.Errorf("%q: %w", p, ErrFullWildcardNotLast)
		}
	}
	return nil
}

// ValidateToken checks that s can be used as a single subject token.
func ValidateToken(s string) error {
	if s == "" || strings.ContainsAny(s, " \t\r\n.*>") {
		return fmt.Errorf("%q: %w", s, ErrInvalidToken)
	}
	return nil
}

// Match reports whether subject matches pattern.
func Match(pattern, subject string) bool {
	pt := strings.Split(pattern, Separator)
	st := strings.Split(subject, Separator)

	for i, tok := range pt {
		if tok == FullWildcard {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != SingleWildcard && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

// HasWildcard reports whether p contains a wildcard token.
func HasWildcard(p string) bool {
	for _, tok := range strings.Split(p, Separator) {
		if tok == SingleWildcard || tok == FullWildcard {
			return true
		}
	}
	return false
}

// ForUser returns the per-user pattern "<prefix>.<userID>.>".
func ForUser(prefix, userID string) string {
	return prefix + Separator + userID + Separator + FullWildcard
}

func split(s string) ([]string, error) {
	if s == "" {
		return nil, ErrEmpty
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return nil, fmt.Errorf("%q: subject cannot contain whitespace", s)
	}
	tokens := strings.Split(s, Separator)
	for _, tok := range tokens {
		if tok == "" {
			return nil, fmt.Errorf("%q: %w", s, ErrEmptyToken)
		}
	}
	return tokens, nil
}
