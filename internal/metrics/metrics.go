// Package metrics exposes prometheus collectors for the live event channel.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auditwatch"

// Channel groups the collectors updated by the channel manager and the
// dispatcher. A nil *Channel is valid and records nothing.
type Channel struct {
	frames     *prometheus.CounterVec
	malformed  prometheus.Counter
	unknown    *prometheus.CounterVec
	dials      *prometheus.CounterVec
	reconnects prometheus.Counter
	connected  prometheus.Gauge
	state      *prometheus.GaugeVec
}

// NewChannel creates the collectors and registers them with reg
func NewChannel(reg prometheus.Registerer) *Channel {
	c := &Channel{
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Envelopes received on the live channel by tag and whether they changed the snapshot",
			},
			[]string{"tag", "changed"},
		),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_malformed_total",
			Help:      "Frames dropped because they could not be parsed",
		}),
		unknown: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_unknown_total",
				Help:      "Frames ignored because their tag is not recognised",
			},
			[]string{"tag"},
		),
		dials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dials_total",
				Help:      "Connection attempts by result (ok, error, superseded)",
			},
			[]string{"result"},
		),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect timers armed after an unexpected close",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the live channel has an open connection",
		}),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "channel_state",
				Help:      "Current channel state (1 for the active state, 0 otherwise)",
			},
			[]string{"state"},
		),
	}

	if reg != nil {
		reg.MustRegister(c.frames, c.malformed, c.unknown, c.dials, c.reconnects, c.connected, c.state)
	}
	return c
}

// FrameApplied counts a decoded envelope
func (c *Channel) FrameApplied(tag string, changed bool) {
	if c == nil {
		return
	}
	label := "false"
	if changed {
		label = "true"
	}
	c.frames.WithLabelValues(tag, label).Inc()
}

// FrameMalformed counts a frame that failed to parse
func (c *Channel) FrameMalformed() {
	if c == nil {
		return
	}
	c.malformed.Inc()
}

// FrameUnknown counts a frame with an unrecognised tag
func (c *Channel) FrameUnknown(tag string) {
	if c == nil {
		return
	}
	c.unknown.WithLabelValues(tag).Inc()
}

// Dial counts a connection attempt outcome
func (c *Channel) Dial(result string) {
	if c == nil {
		return
	}
	c.dials.WithLabelValues(result).Inc()
}

// ReconnectScheduled counts an armed reconnect timer
func (c *Channel) ReconnectScheduled() {
	if c == nil {
		return
	}
	c.reconnects.Inc()
}

// SetState records the active channel state. states lists every state name
// so that inactive ones are reset to zero.
func (c *Channel) SetState(active string, states []string) {
	if c == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == active {
			v = 1
		}
		c.state.WithLabelValues(s).Set(v)
	}
}

// SetConnected records the connectivity flag
func (c *Channel) SetConnected(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

// Handler serves the metrics gathered by g in the prometheus text format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
