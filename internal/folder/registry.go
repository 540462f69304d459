package folder

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"weak"

	"foldercache/internal/executor"
	"foldercache/internal/fileinfo"
	"foldercache/internal/logging"
	"foldercache/internal/metrics"
)

// Registry maps canonical directory paths to live folders. The registry
// does not keep folders alive: a folder leaves it on its last Release.
type Registry struct {
	options  Options
	logger   *logging.Logger
	metrics  *metrics.Registry
	executor executor.Executor
	bus      busPublisher
	ownLoop  *executor.Loop

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	folders        map[string]weak.Pointer[Folder]
	closed         bool
	stopMountWatch func()
}

type busPublisher interface {
	Publish(Event)
}

func NewRegistry(options Options) (*Registry, error) {
	if options.Lister == nil {
		return nil, errors.New("folder lister is required")
	}
	if options.Inspector == nil {
		return nil, errors.New("folder inspector is required")
	}
	if options.ReloadDelay <= 0 {
		options.ReloadDelay = defaultReloadDelay
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), logging.LevelInfo, nil)
	}
	registryMetrics := options.Metrics
	if registryMetrics == nil {
		registryMetrics = metrics.Default
	}

	ctx, cancel := context.WithCancel(context.Background())
	registry := &Registry{
		options: options,
		logger:  logger.WithComponent("folder"),
		metrics: registryMetrics,
		ctx:     ctx,
		cancel:  cancel,
		folders: make(map[string]weak.Pointer[Folder]),
	}
	if options.Bus != nil {
		registry.bus = options.Bus
	}
	registry.executor = options.Executor
	if registry.executor == nil {
		registry.ownLoop = executor.NewLoop(registry.logger)
		registry.executor = registry.ownLoop
	}
	if options.Mounts != nil {
		registry.stopMountWatch = options.Mounts.Subscribe(registry.handleMountEvent)
	}
	return registry, nil
}

// Acquire returns the folder for path, creating and loading it on first use.
// Every successful Acquire must be paired with Folder.Release.
func (r *Registry) Acquire(path string) (*Folder, error) {
	return r.acquire(path, false)
}

// AcquireIncremental is Acquire for folders whose listing is merged as it
// streams in. A folder that is already live keeps its original mode.
func (r *Registry) AcquireIncremental(path string) (*Folder, error) {
	return r.acquire(path, true)
}

func (r *Registry) acquire(path string, incremental bool) (*Folder, error) {
	canonical, err := CanonicalPath(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if pointer, ok := r.folders[canonical]; ok {
		if existing := pointer.Value(); existing != nil && existing.retain() {
			r.mu.Unlock()
			return existing, nil
		}
	}
	folder := newFolder(r, canonical, incremental)
	r.folders[canonical] = weak.Make(folder)
	r.mu.Unlock()

	r.metrics.IncFolderCreated()
	r.logger.Debug("folder created", map[string]string{"path": canonical})
	folder.start()
	return folder, nil
}

// forgetLocked removes the entry for folder if it still refers to it.
func (r *Registry) forgetLocked(folder *Folder) {
	if pointer, ok := r.folders[folder.path]; ok && pointer.Value() == folder {
		delete(r.folders, folder.path)
	}
}

// Folders returns the live folders ordered by path.
func (r *Registry) Folders() []*Folder {
	r.mu.Lock()
	folders := make([]*Folder, 0, len(r.folders))
	for path, pointer := range r.folders {
		folder := pointer.Value()
		if folder == nil {
			delete(r.folders, path)
			continue
		}
		folders = append(folders, folder)
	}
	r.mu.Unlock()

	sort.Slice(folders, func(i, j int) bool {
		return folders[i].path < folders[j].path
	})
	return folders
}

// Close releases every folder and stops background work.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	stop := r.stopMountWatch
	r.stopMountWatch = nil
	var teardowns []func()
	for path, pointer := range r.folders {
		if folder := pointer.Value(); folder != nil {
			folder.mu.Lock()
			if !folder.closed {
				folder.refs = 0
				teardowns = append(teardowns, folder.closeLocked())
			}
			folder.mu.Unlock()
		}
		delete(r.folders, path)
	}
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, teardown := range teardowns {
		teardown()
	}
	r.cancel()
	if r.ownLoop != nil {
		r.ownLoop.Close()
	}
}

func (r *Registry) listingMode() fileinfo.Mode {
	if r.options.DeferContentTest {
		return fileinfo.ModeFast
	}
	return fileinfo.ModeDetailed
}

func (r *Registry) reloadDelay() time.Duration {
	return r.options.ReloadDelay
}

// CanonicalPath returns the absolute, cleaned form of path.
func CanonicalPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is required")
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(absolute), nil
}
