package engine

import (
	"sync"
	"time"

	"github.com/loomworks/loom/pkg/api"
)

type (
	// DispatchRecord summarizes one dispatch for observers: which topic
	// fired, under which trace, how many subscribers ran, and which of
	// them failed
	DispatchRecord struct {
		Timestamp   time.Time     `json:"timestamp"`
		Topic       api.Topic     `json:"topic"`
		TraceID     api.TraceID   `json:"trace_id"`
		Failed      []api.Name    `json:"failed,omitempty"`
		Subscribers int           `json:"subscribers"`
		Duration    time.Duration `json:"duration"`
	}

	// Hub fans dispatch records out to registered observers. Delivery is
	// best-effort: a slow observer drops records rather than stalling
	// dispatch
	Hub struct {
		subs map[chan DispatchRecord]struct{}
		mu   sync.Mutex
	}
)

const hubBufferSize = 64

// NewHub creates an observer hub with no subscribers
func NewHub() *Hub {
	return &Hub{
		subs: map[chan DispatchRecord]struct{}{},
	}
}

// Subscribe registers an observer. The returned cancel function must be
// called to release the subscription; the channel is closed by it
func (h *Hub) Subscribe() (<-chan DispatchRecord, func()) {
	ch := make(chan DispatchRecord, hubBufferSize)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers a record to every observer that has buffer room
func (h *Hub) Publish(rec DispatchRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}
