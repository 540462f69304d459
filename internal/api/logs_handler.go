package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"foldercache/internal/logging"

	"github.com/gorilla/websocket"
)

// LogsHandler replays the log buffer and then streams new entries. The
// replay can be limited with ?tail=N and the level changed mid-stream by
// sending {"level": "..."}.
type LogsHandler struct {
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

type logFilterMessage struct {
	Level string `json:"level"`
}

// levelFilter is shared by the reader and writer sides of one stream.
type levelFilter struct {
	mu    sync.RWMutex
	level logging.Level
}

func (f *levelFilter) set(level logging.Level) {
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
}

func (f *levelFilter) allows(entry logging.LogEntry) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return entry.Level.AtLeast(f.level)
}

// update applies a client filter message. Unknown levels clear the filter.
func (f *levelFilter) update(message []byte) {
	var payload logFilterMessage
	if err := json.Unmarshal(message, &payload); err != nil {
		return
	}
	level, _ := logging.ParseLevel(payload.Level)
	f.set(level)
}

func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.Logger == nil || h.Logger.Buffer() == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "log stream unavailable",
		})
		return
	}

	query := r.URL.Query()
	filter := &levelFilter{}
	if level, ok := logging.ParseLevel(query.Get("level")); ok {
		filter.set(level)
	}
	tail := -1
	if raw := query.Get("tail"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeWSError(w, r, nil, h.Logger, wsError{
				Status:  http.StatusBadRequest,
				Message: "tail must be a non-negative integer",
			})
			return
		}
		tail = parsed
	}

	// Subscribe before reading the buffer so no entry falls in between.
	output, cancel := h.Logger.Subscribe()
	defer cancel()
	backlog := h.Logger.Buffer().List()
	if tail >= 0 {
		backlog = h.Logger.Buffer().Tail(tail)
	}

	serveWSStream(w, r, wsStreamConfig[logging.LogEntry]{
		AllowedOrigins: h.AllowedOrigins,
		Logger:         h.Logger,
		Output:         output,
		Snapshot: func(conn *websocket.Conn) error {
			return writeLogBacklog(conn, backlog, filter)
		},
		BuildPayload: func(entry logging.LogEntry) (any, bool) {
			return entry, filter.allows(entry)
		},
		OnMessage: filter.update,
	})
}

func writeLogBacklog(conn *websocket.Conn, entries []logging.LogEntry, filter *levelFilter) error {
	for _, entry := range entries {
		if !filter.allows(entry) {
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		if err := conn.WriteJSON(entry); err != nil {
			return err
		}
	}
	return nil
}
