package folder

import (
	"bytes"
	"context"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"foldercache/internal/executor"
	"foldercache/internal/fileinfo"
	"foldercache/internal/metrics"
	"foldercache/internal/mounts"
	"foldercache/internal/watcher"
	"github.com/stretchr/testify/require"
)

var testModTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fileAt(dir, name string, size int64) *fileinfo.Info {
	return &fileinfo.Info{
		Name:    name,
		Path:    filepath.Join(dir, name),
		Size:    size,
		Mode:    0o644,
		ModTime: testModTime,
	}
}

func dirAt(path string) *fileinfo.Info {
	return &fileinfo.Info{
		Name:    filepath.Base(path),
		Path:    path,
		Mode:    fs.ModeDir | 0o755,
		ModTime: testModTime,
		IsDir:   true,
	}
}

func listingOf(dir string, names ...string) *fileinfo.Listing {
	files := make([]*fileinfo.Info, 0, len(names))
	for _, name := range names {
		files = append(files, fileAt(dir, name, 1))
	}
	return &fileinfo.Listing{Dir: dirAt(dir), Files: files}
}

type listFunc func(ctx context.Context, path string, found func([]*fileinfo.Info)) (*fileinfo.Listing, error)

type fakeLister struct {
	mu       sync.Mutex
	paths    []string
	modes    []fileinfo.Mode
	returned int
	list     listFunc
}

func (l *fakeLister) List(ctx context.Context, path string, mode fileinfo.Mode, found func([]*fileinfo.Info)) (*fileinfo.Listing, error) {
	l.mu.Lock()
	l.paths = append(l.paths, path)
	l.modes = append(l.modes, mode)
	list := l.list
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.returned++
		l.mu.Unlock()
	}()
	if list == nil {
		return listingOf(path), nil
	}
	return list(ctx, path, found)
}

func (l *fakeLister) callsFor(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, candidate := range l.paths {
		if candidate == path {
			count++
		}
	}
	return count
}

func (l *fakeLister) returnedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.returned
}

func (l *fakeLister) modeAt(index int) fileinfo.Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.modes[index]
}

type fakeInspector struct {
	mu    sync.Mutex
	files map[string]*fileinfo.Info
	calls [][]string
	err   error
	gate  chan struct{}
}

func newFakeInspector() *fakeInspector {
	return &fakeInspector{files: make(map[string]*fileinfo.Info)}
}

func (i *fakeInspector) set(infos ...*fileinfo.Info) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, info := range infos {
		i.files[info.Path] = info
	}
}

// hold makes lookups wait until gate is closed.
func (i *fakeInspector) hold(gate chan struct{}) {
	i.mu.Lock()
	i.gate = gate
	i.mu.Unlock()
}

func (i *fakeInspector) Inspect(ctx context.Context, paths []string) ([]*fileinfo.Info, error) {
	i.mu.Lock()
	i.calls = append(i.calls, append([]string(nil), paths...))
	gate := i.gate
	i.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	result := make([]*fileinfo.Info, 0, len(paths))
	for _, path := range paths {
		if info := i.files[path]; info != nil {
			result = append(result, info.Clone())
		}
	}
	return result, i.err
}

func (i *fakeInspector) recordedCalls() [][]string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([][]string(nil), i.calls...)
}

type fakeHandle struct {
	mu              sync.Mutex
	closed          bool
	deliversUnmount bool
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) DeliversUnmount() bool {
	return h.deliversUnmount
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeMonitor struct {
	mu              sync.Mutex
	callbacks       map[string]func(watcher.Event)
	handles         []*fakeHandle
	deliversUnmount bool
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{callbacks: make(map[string]func(watcher.Event))}
}

func (m *fakeMonitor) Watch(path string, callback func(watcher.Event)) (watcher.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[path] = callback
	handle := &fakeHandle{deliversUnmount: m.deliversUnmount}
	m.handles = append(m.handles, handle)
	return handle, nil
}

// send delivers a change to the subscription of the folder at root.
func (m *fakeMonitor) send(root, path string, kind watcher.Kind) {
	m.mu.Lock()
	callback := m.callbacks[root]
	m.mu.Unlock()
	if callback != nil {
		callback(watcher.Event{Path: path, Kind: kind, Timestamp: time.Now().UTC()})
	}
}

func (m *fakeMonitor) openHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	open := 0
	for _, handle := range m.handles {
		if !handle.isClosed() {
			open++
		}
	}
	return open
}

type fakeCapacity struct {
	mu    sync.Mutex
	calls int
	value fileinfo.Capacity
	err   error
}

func (c *fakeCapacity) Query(context.Context, string) (fileinfo.Capacity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.value, c.err
}

func (c *fakeCapacity) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeMounts struct {
	mu        sync.Mutex
	callbacks []func(mounts.Event)
	cancelled bool
}

func (m *fakeMounts) Subscribe(callback func(mounts.Event)) func() {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, callback)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.cancelled = true
		m.mu.Unlock()
	}
}

func (m *fakeMounts) fire(kind mounts.Kind, root string) {
	m.mu.Lock()
	callbacks := append([]func(mounts.Event){}, m.callbacks...)
	m.mu.Unlock()
	for _, callback := range callbacks {
		callback(mounts.Event{Kind: kind, Mount: mounts.Mount{Root: root, Source: "/dev/sdb1", FSType: "ext4"}})
	}
}

type fakeDirMaker struct {
	mu   sync.Mutex
	made []string
	err  error
}

func (m *fakeDirMaker) Mkdir(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.made = append(m.made, path)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.EventType)
	}
	return types
}

func (r *recorder) ofType(eventType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Event
	for _, event := range r.events {
		if event.EventType == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func (r *recorder) count(eventType string) int {
	return len(r.ofType(eventType))
}

func (r *recorder) has(eventType string) bool {
	return r.count(eventType) > 0
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func fileNames(files []*fileinfo.Info) []string {
	names := make([]string, 0, len(files))
	for _, info := range files {
		names = append(names, info.Name)
	}
	return names
}

type harness struct {
	t         *testing.T
	exec      *executor.Manual
	lister    *fakeLister
	inspector *fakeInspector
	monitor   *fakeMonitor
	metrics   *metrics.Registry
	registry  *Registry
}

func newHarness(t *testing.T, configure func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		exec:      executor.NewManual(),
		lister:    &fakeLister{},
		inspector: newFakeInspector(),
		monitor:   newFakeMonitor(),
		metrics:   &metrics.Registry{},
	}
	options := Options{
		Lister:      h.lister,
		Inspector:   h.inspector,
		Monitor:     h.monitor,
		Executor:    h.exec,
		Metrics:     h.metrics,
		ReloadDelay: 20 * time.Millisecond,
	}
	if configure != nil {
		configure(&options)
	}
	registry, err := NewRegistry(options)
	require.NoError(t, err)
	h.registry = registry
	t.Cleanup(func() {
		registry.Close()
		h.exec.RunPending()
	})
	return h
}

func (h *harness) open(path string) (*Folder, *recorder) {
	h.t.Helper()
	folder, err := h.registry.Acquire(path)
	require.NoError(h.t, err)
	events := &recorder{}
	folder.Subscribe(events.record)
	h.t.Cleanup(folder.Release)
	return folder, events
}

func (h *harness) openLoaded(path string) (*Folder, *recorder) {
	h.t.Helper()
	folder, events := h.open(path)
	h.settle(func() bool {
		return events.has(EventLoadingFinished)
	})
	return folder, events
}

// settle runs consumer tasks until condition holds.
func (h *harness) settle(condition func() bool) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.exec.RunPending()
		return condition()
	}, 2*time.Second, 5*time.Millisecond)
}

// flushCount reads the delivered flush counter from the metrics output.
func (h *harness) flushCount() int {
	h.t.Helper()
	var output bytes.Buffer
	require.NoError(h.t, h.metrics.WritePrometheus(&output))
	for _, line := range strings.Split(output.String(), "\n") {
		if value, ok := strings.CutPrefix(line, "foldercache_flushes_total "); ok {
			count, err := strconv.Atoi(value)
			require.NoError(h.t, err)
			return count
		}
	}
	h.t.Fatal("flush counter missing")
	return 0
}

// waitForLookups blocks until the inspector has been called n times.
func (h *harness) waitForLookups(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return len(h.inspector.recordedCalls()) == n
	}, 2*time.Second, 5*time.Millisecond)
}
