package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub defaults.
const (
	DefaultRecentCapacity   = 200
	DefaultSubscriberBuffer = 64
)

// Hub fans received events out to monitor streams and keeps a ring of the
// most recent ones for GET /webhooks/monitor.
type Hub struct {
	mu       sync.Mutex
	subs     map[*Subscriber]struct{}
	recent   []EventView
	capacity int
	closed   bool

	metrics *Metrics
	logger  *slog.Logger
}

// NewHub creates a hub remembering up to capacity events.
func NewHub(capacity int, metrics *Metrics, logger *slog.Logger) *Hub {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:     make(map[*Subscriber]struct{}),
		capacity: capacity,
		metrics:  metrics,
		logger:   logger,
	}
}

// Subscriber is one open monitor stream.
type Subscriber struct {
	hub    *Hub
	source string
	ch     chan []byte
}

// Events yields encoded events. It is closed when the subscriber or the hub
// is closed.
func (s *Subscriber) Events() <-chan []byte {
	return s.ch
}

// Close detaches the subscriber. It is safe to call more than once.
func (s *Subscriber) Close() {
	s.hub.remove(s)
}

// Subscribe registers a stream. An empty source receives every event.
func (h *Hub) Subscribe(source string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	s := &Subscriber{hub: h, source: source, ch: make(chan []byte, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s
	}
	h.subs[s] = struct{}{}
	h.metrics.Subscribers.Inc()
	return s
}

func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
	h.metrics.Subscribers.Dec()
}

// Publish records v and hands it to every matching subscriber. A subscriber
// whose buffer is full misses the event; the sender never blocks.
func (h *Hub) Publish(v EventView) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("encode broadcast event", "event_id", v.EventID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.recent = append(h.recent, v)
	if over := len(h.recent) - h.capacity; over > 0 {
		h.recent = append(h.recent[:0:0], h.recent[over:]...)
	}

	for s := range h.subs {
		if s.source != "" && s.source != v.Source {
			continue
		}
		select {
		case s.ch <- data:
		default:
			h.metrics.Dropped.Inc()
			h.logger.Warn("monitor subscriber too slow, event dropped", "event_id", v.EventID)
		}
	}
}

// Recent returns the number of remembered events and up to limit of the
// newest ones, oldest first.
func (h *Hub) Recent(limit int) (int, []EventView) {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := len(h.recent)
	start := 0
	if limit > 0 && limit < count {
		start = count - limit
	}
	out := make([]EventView, count-start)
	copy(out, h.recent[start:])
	return count, out
}

// Subscribers returns the number of open streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every stream. Later subscribers get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
		h.metrics.Subscribers.Dec()
	}
}
