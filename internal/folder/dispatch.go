package folder

import (
	"path/filepath"

	"foldercache/internal/watcher"
)

// handleChange classifies a change notification for the folder itself or
// one of its direct children.
func (f *Folder) handleChange(event watcher.Event) {
	path := filepath.Clean(event.Path)
	if path == f.path {
		f.handleSelfChange(event)
		return
	}
	if filepath.Dir(path) != f.path {
		return
	}
	name := filepath.Base(path)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	_, known := f.children[name]
	if _, looking := f.inflight[path]; looking {
		// The name is about to be applied by a flush in progress.
		known = true
	}
	switch event.Kind {
	case watcher.Created:
		f.pending.created(path, nil, known)
	case watcher.Changed, watcher.AttributeChanged:
		f.pending.changed(path, known)
	case watcher.Deleted:
		f.pending.deleted(path, known)
	default:
		f.mu.Unlock()
		return
	}
	schedule := f.scheduleFlushLocked()
	f.mu.Unlock()
	if schedule {
		f.post(f.flush)
	}
}

func (f *Folder) handleSelfChange(event watcher.Event) {
	switch event.Kind {
	case watcher.Deleted:
		f.logger.Info("folder removed", nil)
		f.postEvents(newEvent(EventRemoved, f.path))
	case watcher.Unmounted:
		f.logger.Info("folder unmounted", nil)
		f.postEvents(newEvent(EventUnmounted, f.path))
	case watcher.Rescan:
		f.logger.Debug("change notifications lost, reloading", nil)
		f.queueReload()
	case watcher.Changed, watcher.AttributeChanged:
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return
		}
		f.folderChanged = true
		schedule := f.scheduleFlushLocked()
		f.mu.Unlock()
		if schedule {
			f.post(f.flush)
		}
	}
}
