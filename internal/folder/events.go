package folder

import (
	"time"

	"foldercache/internal/fileinfo"
)

const (
	EventLoadingStarted    = "loading_started"
	EventLoadingFinished   = "loading_finished"
	EventFilesAdded        = "files_added"
	EventFilesChanged      = "files_changed"
	EventFilesRemoved      = "files_removed"
	EventContentChanged    = "content_changed"
	EventFolderChanged     = "folder_changed"
	EventFilesystemChanged = "filesystem_changed"
	EventRemoved           = "removed"
	EventUnmounted         = "unmounted"
	EventError             = "error"
)

// Event is a notification delivered to folder observers.
type Event struct {
	EventType  string           `json:"type"`
	Path       string           `json:"path"`
	Files      []*fileinfo.Info `json:"files,omitempty"`
	Err        error            `json:"-"`
	Message    string           `json:"error,omitempty"`
	OccurredAt time.Time        `json:"timestamp"`
}

func newEvent(eventType, path string) Event {
	return Event{
		EventType:  eventType,
		Path:       path,
		OccurredAt: time.Now().UTC(),
	}
}

func newFilesEvent(eventType, path string, files []*fileinfo.Info) Event {
	event := newEvent(eventType, path)
	event.Files = files
	return event
}

func newErrorEvent(path string, err error) Event {
	event := newEvent(EventError, path)
	event.Err = err
	if err != nil {
		event.Message = err.Error()
	}
	return event
}

func (e Event) Type() string {
	return e.EventType
}

func (e Event) Timestamp() time.Time {
	return e.OccurredAt
}
