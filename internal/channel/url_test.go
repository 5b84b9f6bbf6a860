package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		path   string
		target string
		want   string
	}{
		{"unscoped", "ws://localhost:9999", "/ws", "", "ws://localhost:9999/ws"},
		{"scoped", "ws://localhost:9999", "/ws", "proj1", "ws://localhost:9999/ws?projectName=proj1"},
		{"trailing slash", "wss://audit.example.com/", "/ws", "proj1", "wss://audit.example.com/ws?projectName=proj1"},
		{"default path", "ws://localhost:9999", "", "", "ws://localhost:9999/ws"},
		{"relative path", "ws://localhost:9999", "live", "", "ws://localhost:9999/live"},
		{"escaped target", "ws://h", "/ws", "a b&c", "ws://h/ws?projectName=a+b%26c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := URL(tt.base, tt.path, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestURLRequiresBase(t *testing.T) {
	_, err := URL("  ", "/ws", "proj1")
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestWebsocketBase(t *testing.T) {
	assert.Equal(t, "ws://localhost:9999", WebsocketBase("http://localhost:9999"))
	assert.Equal(t, "wss://audit.example.com", WebsocketBase("https://audit.example.com"))
	assert.Equal(t, "ws://already", WebsocketBase("ws://already"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "reconnect_pending", ReconnectPending.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.Len(t, stateNames(), 4)
}
