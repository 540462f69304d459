package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"foldercache/internal/logging"

	"github.com/gorilla/websocket"
)

// Close reasons must fit a control frame.
const maxCloseReasonBytes = 123

type wsError struct {
	Status    int
	CloseCode int
	Message   string
	Err       error
	// SendEnvelope writes a JSON error frame before the close frame.
	SendEnvelope bool
}

type wsErrorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	CloseCode int    `json:"close_code,omitempty"`
}

// withDefaults fills the status, message and close code.
func (e wsError) withDefaults() wsError {
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}
	e.Message = strings.TrimSpace(e.Message)
	if e.Message == "" {
		e.Message = http.StatusText(e.Status)
	}
	if e.Message == "" {
		e.Message = "websocket error"
	}
	if e.CloseCode == 0 {
		e.CloseCode = closeCodeForStatus(e.Status)
	}
	return e
}

func requireWSToken(w http.ResponseWriter, r *http.Request, token string, logger *logging.Logger) bool {
	if validateToken(r, token) {
		return true
	}
	writeWSError(w, r, nil, logger, wsError{Status: http.StatusUnauthorized, Message: "unauthorized"})
	return false
}

// writeWSError closes conn with a close frame, or answers with a plain HTTP
// error when the handshake has not happened yet.
func writeWSError(w http.ResponseWriter, r *http.Request, conn *websocket.Conn, logger *logging.Logger, failure wsError) {
	failure = failure.withDefaults()
	logWSError(logger, r, failure)

	if conn == nil {
		http.Error(w, failure.Message, failure.Status)
		return
	}
	deadline := time.Now().Add(wsWriteTimeout)
	if failure.SendEnvelope {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.WriteJSON(wsErrorPayload{
			Type:      "error",
			Message:   failure.Message,
			Status:    failure.Status,
			CloseCode: failure.CloseCode,
		})
	}
	frame := websocket.FormatCloseMessage(failure.CloseCode, truncateCloseReason(failure.Message))
	_ = conn.WriteControl(websocket.CloseMessage, frame, deadline)
	_ = conn.Close()
}

func logWSError(logger *logging.Logger, r *http.Request, failure wsError) {
	if logger == nil || r == nil {
		return
	}
	failure = failure.withDefaults()
	fields := map[string]string{
		"path":       r.URL.Path,
		"status":     strconv.Itoa(failure.Status),
		"close_code": strconv.Itoa(failure.CloseCode),
		"message":    failure.Message,
	}
	if r.RemoteAddr != "" {
		fields["remote_addr"] = r.RemoteAddr
	}
	if failure.Err != nil {
		fields["error"] = failure.Err.Error()
	}
	if failure.Status >= http.StatusInternalServerError {
		logger.Error("websocket error", fields)
		return
	}
	logger.Warn("websocket error", fields)
}

func closeCodeForStatus(status int) int {
	switch {
	case status == http.StatusBadRequest:
		return websocket.CloseProtocolError
	case status == http.StatusServiceUnavailable:
		return websocket.CloseTryAgainLater
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		return websocket.ClosePolicyViolation
	default:
		return websocket.CloseInternalServerErr
	}
}

// truncateCloseReason cuts reason to fit a close frame without splitting a
// UTF-8 sequence.
func truncateCloseReason(reason string) string {
	if len(reason) <= maxCloseReasonBytes {
		return reason
	}
	cut := maxCloseReasonBytes
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
