// Package api exposes the folder cache over HTTP and websockets.
package api

import (
	"net/http"
	"strings"
	"time"

	"foldercache/internal/event"
	"foldercache/internal/folder"
	"foldercache/internal/logging"
	"foldercache/internal/metrics"
)

type Dependencies struct {
	Registry       *folder.Registry
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	FolderBus      *event.Bus[folder.Event]
	MountBus       *event.Bus[event.MountEvent]
	AuthToken      string
	AllowedOrigins []string
	LoadTimeout    time.Duration
	StartedAt      time.Time
}

func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	logger := deps.Logger
	folders := &FolderHandler{
		Registry:    deps.Registry,
		Logger:      logger,
		LoadTimeout: deps.LoadTimeout,
	}
	status := &StatusHandler{
		Registry:  deps.Registry,
		Logger:    logger,
		Metrics:   deps.Metrics,
		StartedAt: deps.StartedAt,
	}
	wrap := func(handler http.Handler) http.Handler {
		return loggingMiddleware(logger, handler)
	}

	mux.Handle("/ws/folder", wrap(securityHeadersMiddleware(cacheControlNoStore, &FolderStreamHandler{
		Registry:       deps.Registry,
		Logger:         logger,
		AuthToken:      deps.AuthToken,
		AllowedOrigins: deps.AllowedOrigins,
	})))
	mux.Handle("/ws/events", wrap(securityHeadersMiddleware(cacheControlNoStore, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWSBusStream(w, r, wsBusStreamConfig[folder.Event]{
			Logger:            logger,
			AuthToken:         deps.AuthToken,
			AllowedOrigins:    deps.AllowedOrigins,
			Bus:               deps.FolderBus,
			UnavailableReason: "folder event stream unavailable",
			Filter:            folderEventFilter,
		})
	}))))
	mux.Handle("/ws/mounts", wrap(securityHeadersMiddleware(cacheControlNoStore, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWSBusStream(w, r, wsBusStreamConfig[event.MountEvent]{
			Logger:            logger,
			AuthToken:         deps.AuthToken,
			AllowedOrigins:    deps.AllowedOrigins,
			Bus:               deps.MountBus,
			UnavailableReason: "mount event stream unavailable",
			Replay:            true,
		})
	}))))
	mux.Handle("/ws/logs", securityHeadersMiddleware(cacheControlNoStore, &LogsHandler{
		Logger:         logger,
		AuthToken:      deps.AuthToken,
		AllowedOrigins: deps.AllowedOrigins,
	}))

	mux.Handle("/api/status", wrap(restHandler(deps.AuthToken, status.handleStatus)))
	mux.Handle("/api/folders", wrap(restHandler(deps.AuthToken, folders.handleFolders)))
	mux.Handle("/api/folder", wrap(restHandler(deps.AuthToken, folders.handleFolder)))
	mux.Handle("/api/folder/reload", wrap(restHandler(deps.AuthToken, folders.handleReload)))
	mux.Handle("/api/folder/mkdir", wrap(restHandler(deps.AuthToken, folders.handleMkdir)))
	mux.Handle("/api/", securityHeadersMiddleware(cacheControlNoStore, http.NotFoundHandler()))
	mux.Handle("/metrics", restHandler(deps.AuthToken, status.handleMetrics))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		setSecurityHeaders(w, cacheControlNoCache)
		if deps.AuthToken != "" {
			w.Header().Set("X-Foldercache-Auth", "required")
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("foldercache ok\n"))
	})
}

// folderEventFilter narrows the event stream by folder path prefix and
// event type when the request asks for it.
func folderEventFilter(r *http.Request) func(folder.Event) bool {
	query := r.URL.Query()
	root := strings.TrimSpace(query.Get("path"))
	types := make(map[string]struct{})
	for _, raw := range query["type"] {
		for _, value := range strings.Split(raw, ",") {
			if value = strings.TrimSpace(value); value != "" {
				types[value] = struct{}{}
			}
		}
	}
	if root == "" && len(types) == 0 {
		return nil
	}
	return func(current folder.Event) bool {
		if root != "" && current.Path != root && !strings.HasPrefix(current.Path, strings.TrimSuffix(root, "/")+"/") {
			return false
		}
		if len(types) > 0 {
			if _, ok := types[current.EventType]; !ok {
				return false
			}
		}
		return true
	}
}
