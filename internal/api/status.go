package api

import (
	"net/http"
	"time"

	"foldercache/internal/folder"
	"foldercache/internal/logging"
	"foldercache/internal/metrics"
	"foldercache/internal/version"
)

type StatusHandler struct {
	Registry  *folder.Registry
	Logger    *logging.Logger
	Metrics   *metrics.Registry
	StartedAt time.Time
}

type statusResponse struct {
	Version       version.VersionInfo `json:"version"`
	StartedAt     time.Time           `json:"started_at"`
	Uptime        string              `json:"uptime"`
	FoldersActive int                 `json:"folders_active"`
	LogStreams    logging.HubStats    `json:"log_streams"`
}

func (h *StatusHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	response := statusResponse{
		Version:   version.GetVersionInfo(),
		StartedAt: h.StartedAt,
	}
	if !h.StartedAt.IsZero() {
		response.Uptime = time.Since(h.StartedAt).Round(time.Second).String()
	}
	if h.Registry != nil {
		response.FoldersActive = len(h.Registry.Folders())
	}
	response.LogStreams = h.Logger.StreamStats()
	writeJSON(w, http.StatusOK, response)
	return nil
}

func (h *StatusHandler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	registry := h.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := registry.WritePrometheus(w); err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	return nil
}
