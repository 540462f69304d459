package folder

import (
	"sort"
	"sync"
	"time"

	"foldercache/internal/fileinfo"
	"foldercache/internal/logging"
	"foldercache/internal/watcher"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
)

func (state State) String() string {
	switch state {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Folder is the cached state of one directory. Obtain folders from a
// Registry and Release them when done.
type Folder struct {
	path        string
	incremental bool
	registry    *Registry
	logger      *logging.Logger

	mu             sync.Mutex
	refs           int
	closed         bool
	self           *fileinfo.Info
	children       map[string]*fileinfo.Info
	state          State
	job            *listJob
	pending        *pendingSet
	inflight       map[string]struct{}
	folderChanged  bool
	blocked        int
	flushScheduled bool
	capacity       capacityState
	watch          watcher.Handle
	watchWarned    bool
	reloadQueued   bool
	reloadTimer    *time.Timer

	observersMu  sync.Mutex
	observers    []observer
	nextObserver uint64
}

type observer struct {
	id       uint64
	callback func(Event)
}

func newFolder(registry *Registry, path string, incremental bool) *Folder {
	return &Folder{
		path:        path,
		incremental: incremental,
		registry:    registry,
		logger:      registry.logger.With(map[string]string{"path": path}),
		refs:        1,
		children:    make(map[string]*fileinfo.Info),
		pending:     newPendingSet(),
		inflight:    make(map[string]struct{}),
	}
}

func (f *Folder) Path() string {
	return f.path
}

// Info returns the metadata of the directory itself, or nil before the
// first successful listing.
func (f *Folder) Info() *fileinfo.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.self.Clone()
}

func (f *Folder) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// IsLoaded reports whether a listing finished and no reload is running.
func (f *Folder) IsLoaded() bool {
	return f.State() == StateLoaded
}

func (f *Folder) IsValid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.self != nil
}

func (f *Folder) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.children) == 0
}

func (f *Folder) IsIncremental() bool {
	return f.incremental
}

func (f *Folder) Lookup(name string) (*fileinfo.Info, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.children[name]
	return info.Clone(), ok
}

// Snapshot returns a name-ordered copy of the children.
func (f *Folder) Snapshot() []*fileinfo.Info {
	f.mu.Lock()
	files := make([]*fileinfo.Info, 0, len(f.children))
	for _, info := range f.children {
		files = append(files, info.Clone())
	}
	f.mu.Unlock()

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files
}

// Subscribe registers callback for folder events. Callbacks run on the
// registry's consumer executor, one at a time.
func (f *Folder) Subscribe(callback func(Event)) func() {
	if callback == nil {
		return func() {}
	}
	f.observersMu.Lock()
	f.nextObserver++
	id := f.nextObserver
	f.observers = append(f.observers, observer{id: id, callback: callback})
	f.observersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.observersMu.Lock()
			defer f.observersMu.Unlock()
			for index, candidate := range f.observers {
				if candidate.id == id {
					f.observers = append(f.observers[:index:index], f.observers[index+1:]...)
					return
				}
			}
		})
	}
}

// BlockUpdates defers flushes until the matching UnblockUpdates. Changes
// keep accumulating meanwhile.
func (f *Folder) BlockUpdates() {
	f.mu.Lock()
	f.blocked++
	f.mu.Unlock()
}

func (f *Folder) UnblockUpdates() {
	f.mu.Lock()
	if f.blocked == 0 {
		f.mu.Unlock()
		f.logger.Warn("unblock without matching block", nil)
		return
	}
	f.blocked--
	schedule := f.blocked == 0 && f.hasPendingLocked() && f.scheduleFlushLocked()
	f.mu.Unlock()
	if schedule {
		f.post(f.flush)
	}
}

// Release drops one reference. The last release removes the folder from
// the registry and stops its listing, watch and capacity query.
func (f *Folder) Release() {
	registry := f.registry
	registry.mu.Lock()
	f.mu.Lock()
	if f.refs == 0 {
		f.mu.Unlock()
		registry.mu.Unlock()
		f.logger.Warn("folder released more times than acquired", nil)
		return
	}
	f.refs--
	if f.refs > 0 {
		f.mu.Unlock()
		registry.mu.Unlock()
		return
	}
	registry.forgetLocked(f)
	teardown := f.closeLocked()
	f.mu.Unlock()
	registry.mu.Unlock()

	teardown()
}

// closeLocked marks the folder closed and returns the cleanup to run after
// unlocking.
func (f *Folder) closeLocked() func() {
	f.closed = true
	job := f.job
	watch := f.watch
	f.watch = nil
	cancelCapacity := f.capacity.cancel
	f.capacity.cancel = nil
	if f.reloadTimer != nil {
		f.reloadTimer.Stop()
		f.reloadTimer = nil
	}
	return func() {
		if job != nil {
			job.cancel()
		}
		if cancelCapacity != nil {
			cancelCapacity()
		}
		if watch != nil {
			if err := watch.Close(); err != nil {
				f.logger.Debug("watch close failed", map[string]string{"error": err.Error()})
			}
		}
		f.registry.metrics.DecFolderActive()
		f.logger.Debug("folder released", nil)
	}
}

func (f *Folder) retain() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.refs++
	return true
}

func (f *Folder) post(task func()) {
	f.registry.executor.Post(task)
}

func (f *Folder) postEvents(events ...Event) {
	f.post(func() {
		f.emit(events...)
	})
}

// emit delivers events to observers and the bus. It runs on the consumer
// executor only.
func (f *Folder) emit(events ...Event) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed || len(events) == 0 {
		return
	}

	f.observersMu.Lock()
	observers := make([]observer, len(f.observers))
	copy(observers, f.observers)
	f.observersMu.Unlock()

	for _, event := range events {
		f.registry.metrics.IncNotification(event.EventType)
		for _, observer := range observers {
			observer.callback(event)
		}
		if f.registry.bus != nil {
			f.registry.bus.Publish(event)
		}
	}
}

func (f *Folder) hasPendingLocked() bool {
	return f.pending.len() > 0 || f.folderChanged || f.capacity.pending
}

// scheduleFlushLocked reports whether the caller must post a flush.
func (f *Folder) scheduleFlushLocked() bool {
	if f.flushScheduled || f.blocked > 0 || f.closed {
		return false
	}
	f.flushScheduled = true
	return true
}
