package mockserver

import (
	"sync"

	"go.uber.org/zap"
)

// subscriber is one websocket client. An empty project receives every event.
type subscriber struct {
	project string
	send    chan []byte
}

// hub fans encoded envelopes out to websocket subscribers
type hub struct {
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func newHub(logger *zap.Logger) *hub {
	return &hub{logger: logger, subs: make(map[*subscriber]struct{})}
}

func (h *hub) subscribe(project string) *subscriber {
	sub := &subscriber{project: project, send: make(chan []byte, 256)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.send)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
}

// broadcast queues data for every subscriber of project. A subscriber that
// has fallen too far behind loses the frame.
func (h *hub) broadcast(project string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.project != "" && sub.project != project {
			continue
		}
		select {
		case sub.send <- data:
		default:
			h.logger.Warn("subscriber too slow, dropping frame", zap.String("project", sub.project))
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.send)
	}
}
