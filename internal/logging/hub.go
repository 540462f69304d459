package logging

import (
	"sync"
	"sync/atomic"
)

const defaultSubscriberBuffer = 100

// LogHub fans entries out to live log streams. Slow streams lose entries
// rather than stall the logger.
type LogHub struct {
	mu      sync.Mutex
	nextID  uint64
	streams map[uint64]chan LogEntry
	closed  bool
	dropped atomic.Int64
}

// HubStats describes the live log streams.
type HubStats struct {
	Subscribers int   `json:"subscribers"`
	Dropped     int64 `json:"dropped"`
}

func NewLogHub() *LogHub {
	return &LogHub{streams: make(map[uint64]chan LogEntry)}
}

func (h *LogHub) Subscribe(size int) (<-chan LogEntry, func()) {
	if h == nil {
		return nil, func() {}
	}
	if size <= 0 {
		size = defaultSubscriberBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan LogEntry, size)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	h.streams[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if stream, ok := h.streams[id]; ok {
				delete(h.streams, id)
				close(stream)
			}
		})
	}
}

// Broadcast sends entry to every stream without blocking.
func (h *LogHub) Broadcast(entry LogEntry) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, stream := range h.streams {
		select {
		case stream <- entry:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *LogHub) Stats() HubStats {
	if h == nil {
		return HubStats{}
	}
	h.mu.Lock()
	subscribers := len(h.streams)
	h.mu.Unlock()
	return HubStats{Subscribers: subscribers, Dropped: h.dropped.Load()}
}

func (h *LogHub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, stream := range h.streams {
		delete(h.streams, id)
		close(stream)
	}
}
