package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewChannel(reg)

	c.FrameApplied("VulnAdd", true)
	c.FrameApplied("VulnAdd", false)
	c.FrameApplied("VulnAdd", true)
	c.FrameMalformed()
	c.FrameUnknown("ScanProgress")
	c.Dial("ok")
	c.Dial("error")
	c.Dial("error")
	c.ReconnectScheduled()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.frames.WithLabelValues("VulnAdd", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.frames.WithLabelValues("VulnAdd", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.malformed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.unknown.WithLabelValues("ScanProgress")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.dials.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconnects))
}

func TestChannelStateGauges(t *testing.T) {
	c := NewChannel(prometheus.NewRegistry())
	states := []string{"disconnected", "connecting", "connected"}

	c.SetState("connecting", states)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("connecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.state.WithLabelValues("connected")))

	c.SetState("connected", states)
	c.SetConnected(true)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.state.WithLabelValues("connecting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connected))

	c.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.connected))
}

func TestNilChannelIsSafe(t *testing.T) {
	var c *Channel
	assert.NotPanics(t, func() {
		c.FrameApplied("string", true)
		c.FrameMalformed()
		c.FrameUnknown("x")
		c.Dial("ok")
		c.ReconnectScheduled()
		c.SetState("connected", []string{"connected"})
		c.SetConnected(true)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewChannel(reg)
	c.FrameApplied("string", true)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `auditwatch_frames_total{changed="true",tag="string"} 1`)
}
