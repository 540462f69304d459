package api

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"foldercache/internal/fileinfo"
	"foldercache/internal/folder"
	"foldercache/internal/logging"
)

const defaultLoadTimeout = 10 * time.Second

// FolderHandler serves folder snapshots and folder operations.
type FolderHandler struct {
	Registry    *folder.Registry
	Logger      *logging.Logger
	LoadTimeout time.Duration
}

type folderResponse struct {
	Path        string             `json:"path"`
	State       string             `json:"state"`
	Loaded      bool               `json:"loaded"`
	Valid       bool               `json:"valid"`
	Incremental bool               `json:"incremental"`
	Info        *fileinfo.Info     `json:"info,omitempty"`
	Capacity    *fileinfo.Capacity `json:"capacity,omitempty"`
	Files       []*fileinfo.Info   `json:"files"`
}

type folderSummary struct {
	Path        string `json:"path"`
	State       string `json:"state"`
	Incremental bool   `json:"incremental"`
}

type mkdirResponse struct {
	Path string `json:"path"`
}

func (h *FolderHandler) requireRegistry() *apiError {
	if h.Registry == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "folder registry unavailable"}
	}
	return nil
}

func folderPath(r *http.Request) (string, *apiError) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		return "", &apiError{Status: http.StatusBadRequest, Message: "path is required"}
	}
	if !filepath.IsAbs(path) {
		return "", &apiError{Status: http.StatusBadRequest, Message: "path must be absolute", Path: path}
	}
	return filepath.Clean(path), nil
}

func (h *FolderHandler) handleFolder(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireRegistry(); err != nil {
		return err
	}
	path, apiErr := folderPath(r)
	if apiErr != nil {
		return apiErr
	}

	wait := true
	if raw := strings.TrimSpace(r.URL.Query().Get("wait")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return &apiError{Status: http.StatusBadRequest, Message: "wait must be true or false"}
		}
		wait = parsed
	}

	current, err := h.Registry.Acquire(path)
	if err != nil {
		return folderError(path, err)
	}
	defer current.Release()

	if wait {
		timeout := h.LoadTimeout
		if timeout <= 0 {
			timeout = defaultLoadTimeout
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		err := current.WaitLoaded(ctx)
		cancel()
		if err != nil && h.Logger != nil {
			h.Logger.Warn("folder load wait ended early", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
		}
	}

	writeJSON(w, http.StatusOK, snapshotResponse(current))
	return nil
}

func (h *FolderHandler) handleFolders(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireRegistry(); err != nil {
		return err
	}
	folders := h.Registry.Folders()
	summaries := make([]folderSummary, 0, len(folders))
	for _, current := range folders {
		summaries = append(summaries, folderSummary{
			Path:        current.Path(),
			State:       current.State().String(),
			Incremental: current.IsIncremental(),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
	return nil
}

func (h *FolderHandler) handleReload(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	if err := h.requireRegistry(); err != nil {
		return err
	}
	path, apiErr := folderPath(r)
	if apiErr != nil {
		return apiErr
	}

	current, err := h.Registry.Acquire(path)
	if err != nil {
		return folderError(path, err)
	}
	defer current.Release()

	current.Reload()
	writeJSON(w, http.StatusAccepted, folderSummary{
		Path:        current.Path(),
		State:       current.State().String(),
		Incremental: current.IsIncremental(),
	})
	return nil
}

func (h *FolderHandler) handleMkdir(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	if err := h.requireRegistry(); err != nil {
		return err
	}
	path, apiErr := folderPath(r)
	if apiErr != nil {
		return apiErr
	}
	name := r.URL.Query().Get("name")

	current, err := h.Registry.Acquire(path)
	if err != nil {
		return folderError(path, err)
	}
	defer current.Release()

	if err := current.MakeDirectory(name); err != nil {
		return folderError(path, err)
	}
	created := filepath.Join(current.Path(), name)
	if h.Logger != nil {
		h.Logger.Info("directory created", map[string]string{"path": created})
	}
	writeJSON(w, http.StatusCreated, mkdirResponse{Path: created})
	return nil
}

func snapshotResponse(current *folder.Folder) folderResponse {
	response := folderResponse{
		Path:        current.Path(),
		State:       current.State().String(),
		Loaded:      current.IsLoaded(),
		Valid:       current.IsValid(),
		Incremental: current.IsIncremental(),
		Info:        current.Info(),
		Files:       current.Snapshot(),
	}
	if capacity, ok := current.Capacity(); ok {
		response.Capacity = &capacity
	}
	return response
}
