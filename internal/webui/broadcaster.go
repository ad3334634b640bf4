package webui

import (
	"sync"

	"github.com/google/uuid"

	"github.com/aru-oka/occusight/vision-server/internal/logger"
	"github.com/aru-oka/occusight/vision-server/internal/metrics"
)

// FrameBroadcaster fans annotated JPEG frames out to stream clients.
// Slow clients drop frames instead of blocking the render loop.
type FrameBroadcaster struct {
	mu      sync.Mutex
	clients map[string]chan []byte
	buffer  int
	m       *metrics.Metrics
}

// NewFrameBroadcaster creates a broadcaster with the given per-client
// channel buffer.
func NewFrameBroadcaster(buffer int, m *metrics.Metrics) *FrameBroadcaster {
	if buffer <= 0 {
		buffer = 2
	}
	return &FrameBroadcaster{
		clients: make(map[string]chan []byte),
		buffer:  buffer,
		m:       m,
	}
}

// Subscribe adds a client and returns its id and frame channel.
func (fb *FrameBroadcaster) Subscribe() (string, <-chan []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan []byte, fb.buffer)
	fb.clients[id] = ch

	if fb.m != nil {
		fb.m.StreamClients.Store(uint64(len(fb.clients)))
	}
	logger.Debug("webui", "stream client %s connected (total %d)", id, len(fb.clients))
	return id, ch
}

// Unsubscribe removes a client and closes its channel.
func (fb *FrameBroadcaster) Unsubscribe(id string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if ch, ok := fb.clients[id]; ok {
		close(ch)
		delete(fb.clients, id)
		if fb.m != nil {
			fb.m.StreamClients.Store(uint64(len(fb.clients)))
		}
		logger.Debug("webui", "stream client %s disconnected (remaining %d)", id, len(fb.clients))
	}
}

// Publish delivers a frame to every client. A client whose buffer is
// full misses this frame.
func (fb *FrameBroadcaster) Publish(data []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	for _, ch := range fb.clients {
		select {
		case ch <- data:
		default:
			if fb.m != nil {
				fb.m.FramesDropped.Add(1)
			}
		}
	}
}

// ClientCount returns the number of connected stream clients.
func (fb *FrameBroadcaster) ClientCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.clients)
}

// Close disconnects every client.
func (fb *FrameBroadcaster) Close() {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	for id, ch := range fb.clients {
		close(ch)
		delete(fb.clients, id)
	}
	if fb.m != nil {
		fb.m.StreamClients.Store(0)
	}
}
