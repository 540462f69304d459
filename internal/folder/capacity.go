package folder

import (
	"context"

	"foldercache/internal/fileinfo"
)

type capacityState struct {
	value       fileinfo.Capacity
	known       bool
	unsupported bool
	querying    bool
	pending     bool
	cancel      context.CancelFunc
}

// Capacity returns the last measured size of the filesystem holding the
// folder. ok is false until a query succeeds or after one failed.
func (f *Folder) Capacity() (fileinfo.Capacity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capacity.value, f.capacity.known
}

// RefreshCapacity starts a capacity query unless one is running or an
// earlier query failed.
func (f *Folder) RefreshCapacity() {
	querier := f.registry.options.Capacity

	f.mu.Lock()
	if f.closed || f.capacity.querying || f.capacity.unsupported {
		f.mu.Unlock()
		return
	}
	if querier == nil {
		f.capacity.unsupported = true
		f.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(f.registry.ctx)
	f.capacity.querying = true
	f.capacity.cancel = cancel
	f.mu.Unlock()

	go func() {
		value, err := querier.Query(ctx, f.path)
		cancel()
		f.registry.metrics.RecordCapacityQuery(err)

		f.mu.Lock()
		f.capacity.querying = false
		f.capacity.cancel = nil
		if f.closed {
			f.mu.Unlock()
			return
		}
		if err != nil {
			f.capacity.unsupported = true
			f.capacity.known = false
			f.capacity.value = fileinfo.Capacity{}
		} else {
			f.capacity.value = value
			f.capacity.known = true
		}
		f.capacity.pending = true
		schedule := f.scheduleFlushLocked()
		f.mu.Unlock()

		if err != nil {
			f.logger.Debug("capacity query unsupported", map[string]string{"error": err.Error()})
		}
		if schedule {
			f.post(f.flush)
		}
	}()
}
