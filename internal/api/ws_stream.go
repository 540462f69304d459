package api

import (
	"net/http"
	"time"

	"foldercache/internal/logging"

	"github.com/gorilla/websocket"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 4096
	wsMaxMessageSize  = 4096
	wsWriteTimeout    = 10 * time.Second
	wsPongWait        = 60 * time.Second
	wsPingInterval    = wsPongWait * 9 / 10
	wsCloseGrace      = time.Second
)

// wsStreamConfig describes one server-to-client websocket stream.
type wsStreamConfig[T any] struct {
	AllowedOrigins []string
	Logger         *logging.Logger
	Output         <-chan T
	// Snapshot is written once, before any value from Output.
	Snapshot func(*websocket.Conn) error
	// BuildPayload maps a value to its JSON frame. Returning false skips it.
	BuildPayload func(T) (any, bool)
	// OnMessage receives text frames sent by the client.
	OnMessage    func([]byte)
	PingInterval time.Duration
}

func upgradeWebSocket(w http.ResponseWriter, r *http.Request, allowedOrigins []string) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, allowedOrigins)
		},
	}
	return upgrader.Upgrade(w, r, nil)
}

// serveWSStream upgrades the request and relays Output to the client. It
// returns once the client is gone, or shortly after Output closes.
func serveWSStream[T any](w http.ResponseWriter, r *http.Request, config wsStreamConfig[T]) {
	if config.Output == nil {
		writeWSError(w, r, nil, config.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "stream unavailable",
		})
		return
	}
	conn, err := upgradeWebSocket(w, r, config.AllowedOrigins)
	if err != nil {
		logWSError(config.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}
	defer conn.Close()

	if config.Snapshot != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := config.Snapshot(conn); err != nil {
			writeWSError(w, r, conn, config.Logger, wsError{
				Status:  http.StatusInternalServerError,
				Message: "snapshot failed",
				Err:     err,
			})
			return
		}
	}

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		pumpWSWrites(conn, config, stop)
	}()
	pumpWSReads(conn, config.OnMessage)
	close(stop)
	<-writerDone
}

// pumpWSReads consumes client frames until the connection fails or the read
// deadline passes without a pong.
func pumpWSReads(conn *websocket.Conn, onMessage func([]byte)) {
	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.TextMessage && onMessage != nil {
			onMessage(message)
		}
	}
}

func pumpWSWrites[T any](conn *websocket.Conn, config wsStreamConfig[T], stop <-chan struct{}) {
	interval := config.PingInterval
	if interval <= 0 {
		interval = wsPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	build := config.BuildPayload
	if build == nil {
		build = func(value T) (any, bool) { return value, true }
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		case value, ok := <-config.Output:
			if !ok {
				// Let the reader collect the client's close reply.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteTimeout))
				_ = conn.SetReadDeadline(time.Now().Add(wsCloseGrace))
				return
			}
			payload, keep := build(value)
			if !keep {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(payload); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
