// Package broadcast fans values out from one producer to any number of
// subscribers, each with its own buffered channel.
package broadcast

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"tailscale.com/tsweb"
)

// DefaultBuffer is the per-subscriber channel capacity used by NewHub.
const DefaultBuffer = 16

// Hub delivers every published value to all current subscribers. A subscriber
// whose buffer is full misses the value rather than stalling the producer.
type Hub[T any] struct {
	buffer      int
	mu          sync.Mutex
	subscribers map[string]chan T
	closed      bool
	dropped     uint64
}

// NewHub returns a Hub with DefaultBuffer capacity per subscriber.
func NewHub[T any]() *Hub[T] {
	return NewHubWithBuffer[T](DefaultBuffer)
}

// NewHubWithBuffer returns a Hub whose subscriber channels hold up to size
// values. A size below one is treated as one.
func NewHubWithBuffer[T any](size int) *Hub[T] {
	if size < 1 {
		size = 1
	}
	return &Hub[T]{
		buffer:      size,
		subscribers: make(map[string]chan T),
	}
}

// Subscribe registers a new channel. The returned ID is passed to
// Unsubscribe. Subscribing to a closed hub returns a closed channel.
func (h *Hub[T]) Subscribe() (string, <-chan T) {
	id := uuid.NewString()
	ch := make(chan T, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes the channel registered under id.
func (h *Hub[T]) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish sends v to every subscriber without blocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- v:
		default:
			h.dropped++
		}
	}
}

// Len returns the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (h *Hub[T]) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close closes all subscriber channels. Later publishes are ignored.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}

// ServeSSE streams published values to w as JSON server-sent events until the
// request ends or the hub closes.
func (h *Hub[T]) ServeSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := h.Subscribe()
	defer h.Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case v, ok := <-c:
			if !ok {
				return
			}
			payload, err := json.Marshal(v)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// AttachAdminRoutes mounts a live tail of the hub under /debug/<name>-tail.
func (h *Hub[T]) AttachAdminRoutes(mux *http.ServeMux, name string) {
	debug := tsweb.Debugger(mux)
	debug.HandleSilentFunc(name+"-tail", h.ServeSSE)
}
