package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"foldercache/internal/folder"
	"foldercache/internal/logging"
)

func TestLoggingMiddlewareAddsCategory(t *testing.T) {
	buffer := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelDebug, io.Discard)

	handler := loggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/folder?path=/data", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	entries := buffer.List()
	if len(entries) == 0 {
		t.Fatalf("expected log entries")
	}
	entry := entries[0]
	if entry.Context["foldercache.category"] != "api" {
		t.Fatalf("expected foldercache.category api, got %q", entry.Context["foldercache.category"])
	}
	if entry.Context["http.route"] != "/api/folder" {
		t.Fatalf("expected http.route /api/folder, got %q", entry.Context["http.route"])
	}
	if entry.Context["folder"] != "/data" {
		t.Fatalf("expected folder /data, got %q", entry.Context["folder"])
	}
}

func TestRestHandlerWritesJSONErrors(t *testing.T) {
	handler := restHandler("", func(w http.ResponseWriter, r *http.Request) *apiError {
		return &apiError{Status: http.StatusConflict, Message: "exists", Path: "/data/x"}
	})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/folder/mkdir", nil))

	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected nosniff header")
	}
	body := recorder.Body.String()
	for _, want := range []string{`"code":"conflict"`, `"path":"/data/x"`, `"message":"exists"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
}

func TestFolderErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: %q", folder.ErrInvalidName, ".."), http.StatusBadRequest},
		{folder.ErrRegistryClosed, http.StatusServiceUnavailable},
		{&folder.CreateDirectoryError{Path: "/x", Err: folder.ErrUnsupported}, http.StatusNotImplemented},
		{&folder.CreateDirectoryError{Path: "/x", Err: os.ErrExist}, http.StatusConflict},
		{&os.PathError{Op: "open", Path: "/x", Err: os.ErrNotExist}, http.StatusNotFound},
		{os.ErrPermission, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := folderError("/x", tc.err).Status; got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestIsOriginAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://localhost:8788/ws/folder", nil)
	if !isOriginAllowed(req, nil) {
		t.Fatal("expected request without origin to be allowed")
	}

	req.Header.Set("Origin", "http://localhost:3000")
	if !isOriginAllowed(req, nil) {
		t.Fatal("expected same host origin to be allowed")
	}

	req.Header.Set("Origin", "http://evil.example")
	if isOriginAllowed(req, nil) {
		t.Fatal("expected foreign origin to be rejected")
	}
	if !isOriginAllowed(req, []string{"evil.example"}) {
		t.Fatal("expected explicitly allowed origin")
	}
}

func TestFolderEventFilter(t *testing.T) {
	noFilter := httptest.NewRequest(http.MethodGet, "/ws/events", nil)
	if folderEventFilter(noFilter) != nil {
		t.Fatal("expected nil filter without query")
	}

	req := httptest.NewRequest(http.MethodGet, "/ws/events?path=/data&type=files_added,files_removed", nil)
	filter := folderEventFilter(req)
	cases := []struct {
		event folder.Event
		want  bool
	}{
		{folder.Event{EventType: folder.EventFilesAdded, Path: "/data"}, true},
		{folder.Event{EventType: folder.EventFilesRemoved, Path: "/data/photos"}, true},
		{folder.Event{EventType: folder.EventFilesAdded, Path: "/database"}, false},
		{folder.Event{EventType: folder.EventFolderChanged, Path: "/data"}, false},
	}
	for _, tc := range cases {
		if got := filter(tc.event); got != tc.want {
			t.Fatalf("%s %s: expected %v, got %v", tc.event.EventType, tc.event.Path, tc.want, got)
		}
	}
}
