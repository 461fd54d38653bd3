// Package endpoint resolves the broker WebSocket endpoint from a page-relative path.
//
// The broker is reached over the same host that served the page, so a path such as
// "/ws" or "/hub/v1" is joined with the page origin and its scheme is switched from
// http(s) to ws(s). Paths that already carry a ws scheme are used as-is.
//
// Example:
//
//	url, err := endpoint.Resolve("https://tasks.example.com", "/hub/v1")
//	// url == "wss://tasks.example.com/hub/v1"
package endpoint

import (
	"errors"
	"strings"
)

// ErrEmptyPath is returned when Resolve is called without a path
var ErrEmptyPath = errors.New("endpoint path cannot be empty")

// Resolve returns the WebSocket URL for path relative to origin.
func Resolve(origin, path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if strings.HasPrefix(path, "ws") {
		return path, nil
	}

	base := origin
	if rest, ok := strings.CutPrefix(base, "http"); ok {
		base = "ws" + rest
	}
	base = strings.TrimSuffix(base, "/")

	return base + "/" + strings.TrimPrefix(path, "/"), nil
}

// Resolver binds Resolve to a fixed page origin.
type Resolver struct {
	Origin string
}

// Resolve resolves path against the resolver's origin
func (r Resolver) Resolve(path string) (string, error) {
	return Resolve(r.Origin, path)
}
