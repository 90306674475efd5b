package notifications

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const subscriberBuffer = 16

// Hub fans inserted rows out to the streams of their recipient.
type Hub struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[uuid.UUID]map[uint64]chan Notification
	closed bool
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, subs: make(map[uuid.UUID]map[uint64]chan Notification)}
}

// Subscribe registers a stream for userID. The returned function removes it
// and closes the channel. After Close the channel is already closed.
func (h *Hub) Subscribe(userID uuid.UUID) (<-chan Notification, func()) {
	ch := make(chan Notification, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]chan Notification)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[userID][id]; !ok {
			return
		}
		delete(h.subs[userID], id)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
		close(ch)
	}
}

// Close ends every open stream. Used on shutdown so SSE handlers return
// before the server drains.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, set := range h.subs {
		for _, ch := range set {
			close(ch)
		}
		delete(h.subs, userID)
	}
}

// Publish delivers n to every stream of its recipient. Slow streams drop it.
func (h *Hub) Publish(n Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
			delivered++
		default:
			h.logger.Warn("notification stream full, dropping event",
				slog.String("user_id", n.UserID.String()), slog.String("notification_id", n.ID.String()))
		}
	}
	return delivered
}

// Subscribers counts open streams.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, set := range h.subs {
		total += len(set)
	}
	return total
}
