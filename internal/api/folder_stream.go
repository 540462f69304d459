package api

import (
	"net/http"
	"sync/atomic"

	"foldercache/internal/folder"
	"foldercache/internal/logging"

	"github.com/gorilla/websocket"
)

const folderStreamBuffer = 256

// FolderStreamHandler streams the events of one folder over a websocket.
// The connection holds a folder reference until it closes.
type FolderStreamHandler struct {
	Registry       *folder.Registry
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

type folderSnapshotMessage struct {
	Type string `json:"type"`
	folderResponse
}

func (h *FolderStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.Registry == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "folder registry unavailable",
		})
		return
	}
	path, apiErr := folderPath(r)
	if apiErr != nil {
		writeWSError(w, r, nil, h.Logger, wsError{Status: apiErr.Status, Message: apiErr.Message})
		return
	}

	current, err := h.Registry.Acquire(path)
	if err != nil {
		failure := folderError(path, err)
		writeWSError(w, r, nil, h.Logger, wsError{Status: failure.Status, Message: failure.Message, Err: err})
		return
	}
	defer current.Release()

	output := make(chan folder.Event, folderStreamBuffer)
	var dropped atomic.Int64
	cancel := current.Subscribe(func(event folder.Event) {
		select {
		case output <- event:
		default:
			if dropped.Add(1) == 1 && h.Logger != nil {
				h.Logger.Warn("folder stream client too slow, dropping events", map[string]string{
					"path": path,
				})
			}
		}
	})
	defer cancel()

	serveWSStream(w, r, wsStreamConfig[folder.Event]{
		AllowedOrigins: h.AllowedOrigins,
		Logger:         h.Logger,
		Output:         output,
		Snapshot: func(conn *websocket.Conn) error {
			return conn.WriteJSON(folderSnapshotMessage{
				Type:           "snapshot",
				folderResponse: snapshotResponse(current),
			})
		},
	})
}
