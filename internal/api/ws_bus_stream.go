package api

import (
	"net/http"
	"strings"

	"foldercache/internal/event"
	"foldercache/internal/logging"
)

type wsBusStreamConfig[T any] struct {
	Logger            *logging.Logger
	AuthToken         string
	AllowedOrigins    []string
	Bus               *event.Bus[T]
	UnavailableReason string
	// Filter, when set, is applied before events reach the subscriber.
	Filter func(*http.Request) func(T) bool
	// Replay sends the bus history before live events.
	Replay bool
}

// serveWSBusStream subscribes to a bus and streams payloads to a websocket connection.
func serveWSBusStream[T any](w http.ResponseWriter, r *http.Request, config wsBusStreamConfig[T]) {
	if !requireWSToken(w, r, config.AuthToken, config.Logger) {
		return
	}

	bus := config.Bus
	if bus == nil {
		writeWSError(w, r, nil, config.Logger, wsError{
			Status:       http.StatusServiceUnavailable,
			Message:      unavailableReason(config.UnavailableReason),
			SendEnvelope: true,
		})
		return
	}

	var filter func(T) bool
	if config.Filter != nil {
		filter = config.Filter(r)
	}
	subscribe := bus.SubscribeFiltered
	if config.Replay {
		subscribe = bus.SubscribeWithReplay
	}
	output, cancel := subscribe(filter)
	if output == nil {
		writeWSError(w, r, nil, config.Logger, wsError{
			Status:       http.StatusServiceUnavailable,
			Message:      unavailableReason(config.UnavailableReason),
			SendEnvelope: true,
		})
		return
	}
	defer cancel()

	serveWSStream(w, r, wsStreamConfig[T]{
		AllowedOrigins: config.AllowedOrigins,
		Logger:         config.Logger,
		Output:         output,
	})
}

func unavailableReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "event stream unavailable"
	}
	return reason
}
