package api

import (
	"errors"
	"io/fs"
	"net/http"

	"foldercache/internal/folder"
)

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusNotImplemented:
		return "unsupported"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
	}
	return ""
}

// folderError maps folder and filesystem errors onto HTTP responses.
func folderError(path string, err error) *apiError {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, folder.ErrInvalidName):
		status = http.StatusBadRequest
	case errors.Is(err, folder.ErrRegistryClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, folder.ErrUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, fs.ErrNotExist):
		status = http.StatusNotFound
	case errors.Is(err, fs.ErrExist):
		status = http.StatusConflict
	case errors.Is(err, fs.ErrPermission):
		status = http.StatusForbidden
	}
	return &apiError{Status: status, Message: err.Error(), Path: path}
}
