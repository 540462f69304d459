package folder

import (
	"path/filepath"

	"foldercache/internal/fileinfo"
)

// flushBatch is what one flush took from the folder.
type flushBatch struct {
	entries         []*pendingEntry
	folderChanged   bool
	capacityChanged bool
	epoch           *listJob
}

// flush runs on the consumer executor. Entries without metadata are looked
// up on a worker goroutine and applied in a follow-up task.
func (f *Folder) flush() {
	f.mu.Lock()
	if f.closed || f.blocked > 0 {
		f.flushScheduled = false
		f.mu.Unlock()
		return
	}
	batch := flushBatch{
		entries:         f.pending.take(),
		folderChanged:   f.folderChanged,
		capacityChanged: f.capacity.pending,
		epoch:           f.job,
	}
	for _, entry := range batch.entries {
		if entry.op != opRemove {
			f.inflight[entry.path] = struct{}{}
		}
	}
	f.folderChanged = false
	f.capacity.pending = false
	f.mu.Unlock()

	var lookups []string
	for _, entry := range batch.entries {
		if entry.op != opRemove && entry.info == nil {
			lookups = append(lookups, entry.path)
		}
	}
	if len(lookups) == 0 {
		f.apply(batch, nil, nil)
		return
	}

	go func() {
		infos, err := f.registry.options.Inspector.Inspect(f.registry.ctx, lookups)
		found := make(map[string]*fileinfo.Info, len(infos))
		for _, info := range infos {
			if info != nil {
				found[info.Path] = info
			}
		}
		f.post(func() {
			f.apply(batch, found, err)
		})
	}()
}

func (f *Folder) apply(batch flushBatch, found map[string]*fileinfo.Info, lookupErr error) {
	if lookupErr != nil && f.registry.ctx.Err() == nil {
		f.logger.Warn("metadata lookup failed", map[string]string{"error": lookupErr.Error()})
	}

	f.mu.Lock()
	clear(f.inflight)
	if f.closed {
		f.flushScheduled = false
		f.mu.Unlock()
		return
	}
	if f.blocked > 0 {
		f.requeueLocked(batch, found)
		f.flushScheduled = false
		f.mu.Unlock()
		return
	}
	stale := f.job != batch.epoch
	var removed, added, changed []*fileinfo.Info
	for _, entry := range batch.entries {
		name := filepath.Base(entry.path)
		existing, known := f.children[name]
		if entry.op == opRemove {
			if known {
				delete(f.children, name)
				removed = append(removed, existing)
			}
			continue
		}
		if stale {
			continue
		}
		info := entry.info
		if info == nil {
			info = found[entry.path]
		}
		if info == nil {
			// Lookups omit paths that no longer exist.
			if known && lookupErr == nil {
				delete(f.children, name)
				removed = append(removed, existing)
			}
			continue
		}
		info = info.Clone()
		f.children[name] = info
		if known {
			changed = append(changed, info.Clone())
		} else {
			added = append(added, info.Clone())
		}
	}

	f.flushScheduled = false
	reschedule := f.hasPendingLocked() && f.scheduleFlushLocked()
	f.mu.Unlock()

	f.registry.metrics.IncFlush()
	events := make([]Event, 0, 6)
	if len(removed) > 0 {
		events = append(events, newFilesEvent(EventFilesRemoved, f.path, removed))
	}
	if len(added) > 0 {
		events = append(events, newFilesEvent(EventFilesAdded, f.path, added))
	}
	if len(changed) > 0 {
		events = append(events, newFilesEvent(EventFilesChanged, f.path, changed))
	}
	if len(removed)+len(added)+len(changed) > 0 {
		events = append(events, newEvent(EventContentChanged, f.path))
	}
	if batch.folderChanged {
		events = append(events, newEvent(EventFolderChanged, f.path))
	}
	if batch.capacityChanged {
		events = append(events, newEvent(EventFilesystemChanged, f.path))
	}
	f.emit(events...)

	if batch.folderChanged {
		f.RefreshCapacity()
	}
	if reschedule {
		f.post(f.flush)
	}
}

// requeueLocked hands a batch back to the pending set when updates were
// blocked while its lookups ran. Intents recorded since the flush began win.
func (f *Folder) requeueLocked(batch flushBatch, found map[string]*fileinfo.Info) {
	stale := f.job != batch.epoch
	for _, entry := range batch.entries {
		if entry.op != opRemove && stale {
			continue
		}
		info := entry.info
		if info == nil {
			info = found[entry.path]
		}
		f.pending.restore(entry, info)
	}
	f.folderChanged = f.folderChanged || batch.folderChanged
	f.capacity.pending = f.capacity.pending || batch.capacityChanged
}
