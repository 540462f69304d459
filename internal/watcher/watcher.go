package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"foldercache/internal/logging"
	"foldercache/internal/metrics"
	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounce   = 100 * time.Millisecond
	defaultMaxWatches = 1024
)

var (
	ErrMaxWatchesExceeded = errors.New("max watches exceeded")
	ErrClosed             = errors.New("watcher is closed")
)

// Watcher is the fsnotify-backed change monitor.
type Watcher struct {
	logger     *logging.Logger
	metrics    *metrics.Registry
	maxWatches int
	onFailure  func(error)
	debounce   *debouncer

	mu     sync.Mutex
	source *fsnotify.Watcher
	table  *watchTable
	closed bool

	failures chan error
	done     chan struct{}
	wg       sync.WaitGroup

	delivered atomic.Uint64
	collapsed atomic.Uint64
	overflows atomic.Uint64
	errors    atomic.Uint64
	restarts  atomic.Uint64
}

func New() (*Watcher, error) {
	return NewWithOptions(Options{})
}

func NewWithOptions(options Options) (*Watcher, error) {
	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if options.Logger == nil {
		options.Logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}
	if options.Debounce <= 0 {
		options.Debounce = defaultDebounce
	}
	if options.MaxWatches <= 0 {
		options.MaxWatches = defaultMaxWatches
	}

	w := &Watcher{
		logger:     options.Logger.With(map[string]string{"foldercache.category": "watcher", "foldercache.source": "fsnotify"}),
		metrics:    options.Metrics,
		maxWatches: options.MaxWatches,
		onFailure:  options.OnFailure,
		source:     source,
		table:      newWatchTable(),
		failures:   make(chan error, 1),
		done:       make(chan struct{}),
	}
	w.debounce = newDebouncer(options.Debounce, w.deliver)
	w.startPump(source)
	w.wg.Add(1)
	go w.supervise()
	return w, nil
}

type watchHandle struct {
	watcher *Watcher
	path    string
	id      uint64
	once    sync.Once
}

func (handle *watchHandle) Close() error {
	var err error
	handle.once.Do(func() {
		err = handle.watcher.unwatch(handle.path, handle.id)
	})
	return err
}

// DeliversUnmount is false: inotify reports an unmount only as IN_UNMOUNT,
// which fsnotify does not surface.
func (handle *watchHandle) DeliversUnmount() bool {
	return false
}

// Watch registers callback for changes of path. Watching a directory also
// delivers events for its direct children.
func (w *Watcher) Watch(path string, callback func(Event)) (Handle, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if callback == nil {
		return nil, errors.New("callback is required")
	}
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	if !w.table.has(path) && w.table.len() >= w.maxWatches {
		w.mu.Unlock()
		return nil, ErrMaxWatchesExceeded
	}
	id, fresh := w.table.add(path, callback, info.IsDir())
	source := w.source
	count := w.table.len()
	w.mu.Unlock()

	if fresh {
		if err := source.Add(path); err != nil {
			w.mu.Lock()
			w.table.remove(path, id)
			w.mu.Unlock()
			w.logger.Warn("watch add failed", map[string]string{"path": path, "error": err.Error()})
			return nil, err
		}
		w.metrics.SetWatchesActive(count)
		w.logger.Debug("watch added", map[string]string{"path": path, "active_watches": strconv.Itoa(count)})
	}
	return &watchHandle{watcher: w, path: path, id: id}, nil
}

func (w *Watcher) unwatch(path string, id uint64) error {
	w.mu.Lock()
	last := w.table.remove(path, id)
	closed := w.closed
	source := w.source
	count := w.table.len()
	w.mu.Unlock()
	if !last || closed {
		return nil
	}

	w.metrics.SetWatchesActive(count)
	if err := source.Remove(path); err != nil {
		// The kernel drops the watch itself when the directory goes away.
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, fsnotify.ErrNonExistentWatch) {
			return nil
		}
		w.logger.Warn("watch remove failed", map[string]string{"path": path, "error": err.Error()})
		return err
	}
	w.logger.Debug("watch removed", map[string]string{"path": path, "active_watches": strconv.Itoa(count)})
	return nil
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	source := w.source
	w.mu.Unlock()

	close(w.done)
	w.debounce.stop()
	err := source.Close()
	w.wg.Wait()
	w.metrics.SetWatchesActive(0)
	return err
}

func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	watches := w.table.len()
	w.mu.Unlock()
	return Stats{
		Watches:   watches,
		Delivered: w.delivered.Load(),
		Collapsed: w.collapsed.Load(),
		Overflows: w.overflows.Load(),
		Errors:    w.errors.Load(),
		Restarts:  w.restarts.Load(),
	}
}

func (w *Watcher) startPump(source *fsnotify.Watcher) {
	w.wg.Add(1)
	go w.pump(source)
}

// pump forwards one backend's events until it is closed or replaced.
func (w *Watcher) pump(source *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-source.Events:
			if !ok {
				return
			}
			w.dispatch(event)
		case err, ok := <-source.Errors:
			if !ok {
				return
			}
			w.sourceError(err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) dispatch(event fsnotify.Event) {
	kinds := kindsForOp(event.Op)
	if len(kinds) == 0 {
		return
	}
	path := filepath.Clean(event.Name)

	w.mu.Lock()
	interested := !w.closed && len(w.table.targets(path)) > 0
	w.mu.Unlock()
	if !interested {
		return
	}
	if collapsed := w.debounce.add(path, kinds...); collapsed > 0 {
		w.collapsed.Add(uint64(collapsed))
	}
}

func (w *Watcher) deliver(path string, kinds []Kind) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	callbacks := w.table.targets(path)
	w.mu.Unlock()

	now := time.Now().UTC()
	for _, kind := range kinds {
		for _, callback := range callbacks {
			callback(Event{Path: path, Kind: kind, Timestamp: now})
		}
	}
	delivered := len(kinds) * len(callbacks)
	w.delivered.Add(uint64(delivered))
	w.metrics.AddWatchEventsDelivered(delivered)
}

// rescanAll tells every watched directory that notifications were lost.
func (w *Watcher) rescanAll() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	directories := w.table.directories()
	w.mu.Unlock()

	now := time.Now().UTC()
	for path, callbacks := range directories {
		for _, callback := range callbacks {
			callback(Event{Path: path, Kind: Rescan, Timestamp: now})
		}
	}
}
