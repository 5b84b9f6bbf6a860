package channel

import (
	"errors"
	"net/url"
	"strings"
)

// DefaultPath is the path of the live event endpoint
const DefaultPath = "/ws"

// ErrNoAddress is returned when no websocket base address is configured
var ErrNoAddress = errors.New("channel: no websocket address configured")

// URL builds the address of the live stream. A non-empty target scopes the
// stream to one project through the projectName query parameter.
func URL(base, path, target string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", ErrNoAddress
	}
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u := base + path
	if target != "" {
		u += "?" + url.Values{"projectName": {target}}.Encode()
	}
	return u, nil
}

// WebsocketBase converts an http(s) backend address into its ws(s) form.
// Addresses that already use a websocket scheme are returned unchanged.
func WebsocketBase(backend string) string {
	switch {
	case strings.HasPrefix(backend, "https://"):
		return "wss://" + strings.TrimPrefix(backend, "https://")
	case strings.HasPrefix(backend, "http://"):
		return "ws://" + strings.TrimPrefix(backend, "http://")
	default:
		return backend
	}
}
