package channel

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// Conn is a receive-only view of a live connection. *websocket.Conn
// satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens connections to the live stream
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f(ctx, url)
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// WebsocketDialer dials with gorilla/websocket
type WebsocketDialer struct {
	Dialer   *websocket.Dialer
	Header   http.Header
	Username string
	Password string
	// ReadLimit caps the size of a single frame; zero keeps the library default.
	ReadLimit int64
}

// Dial opens a websocket connection to url
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := d.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if d.Username != "" || d.Password != "" {
		token := base64.StdEncoding.EncodeToString([]byte(d.Username + ":" + d.Password))
		header.Set("Authorization", "Basic "+token)
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return conn, nil
}
