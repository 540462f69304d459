package folder

import (
	"time"

	"foldercache/internal/event"
	"foldercache/internal/mounts"
	"foldercache/internal/watcher"
)

func (r *Registry) handleMountEvent(change mounts.Event) {
	r.logger.Debug("mount changed", map[string]string{
		"kind": change.Kind.String(),
		"root": change.Mount.Root,
	})
	if r.options.MountBus != nil {
		eventType := event.MountAdded
		if change.Kind == mounts.Removed {
			eventType = event.MountRemoved
		}
		r.options.MountBus.Publish(event.NewMountEvent(
			eventType,
			change.Mount.Root,
			change.Mount.Source,
			change.Mount.FSType,
		))
	}

	for _, folder := range r.Folders() {
		if !watcher.IsWithinPath(change.Mount.Root, folder.path) {
			continue
		}
		switch change.Kind {
		case mounts.Added:
			folder.queueReload()
		case mounts.Removed:
			folder.mountRemoved()
		}
	}
}

// queueReload schedules one reload after the registry's reload delay.
// Requests made while one is queued join it.
func (f *Folder) queueReload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.reloadQueued {
		return
	}
	f.reloadQueued = true
	f.reloadTimer = time.AfterFunc(f.registry.reloadDelay(), func() {
		f.post(f.runQueuedReload)
	})
}

func (f *Folder) runQueuedReload() {
	f.mu.Lock()
	if !f.reloadQueued || f.closed {
		f.mu.Unlock()
		return
	}
	f.reloadQueued = false
	f.reloadTimer = nil
	f.mu.Unlock()
	f.Reload()
}

// mountRemoved synthesizes an unmount when the watch backend cannot report
// one itself.
func (f *Folder) mountRemoved() {
	f.mu.Lock()
	watch := f.watch
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return
	}
	if watch != nil && watch.DeliversUnmount() {
		return
	}
	f.handleChange(watcher.Event{Path: f.path, Kind: watcher.Unmounted, Timestamp: time.Now().UTC()})
}
