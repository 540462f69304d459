package folder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"foldercache/internal/fileinfo"
)

// listJob is one directory listing. The folder compares jobs by identity
// to drop results of superseded listings.
type listJob struct {
	ctx     context.Context
	cancel  context.CancelFunc
	mode    fileinfo.Mode
	started time.Time
	listed  map[string]struct{}
}

func newListJob(parent context.Context, mode fileinfo.Mode) *listJob {
	ctx, cancel := context.WithCancel(parent)
	return &listJob{
		ctx:     ctx,
		cancel:  cancel,
		mode:    mode,
		started: time.Now(),
		listed:  make(map[string]struct{}),
	}
}

func (f *Folder) start() {
	f.beginListing(false)
}

// Reload discards pending changes and lists the directory again. A listing
// still running is cancelled and its results are ignored. Info keeps the
// previous metadata until the new listing succeeds.
func (f *Folder) Reload() {
	f.beginListing(true)
}

func (f *Folder) beginListing(reload bool) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if reload {
		f.pending.reset()
		f.folderChanged = false
	}
	previous := f.job
	job := newListJob(f.registry.ctx, f.registry.listingMode())
	f.job = job
	f.state = StateLoading
	f.mu.Unlock()

	if previous != nil {
		previous.cancel()
	}
	if reload {
		f.registry.metrics.IncReload()
		f.logger.Debug("folder reload", nil)
	}
	f.resubscribe()
	f.postEvents(newEvent(EventLoadingStarted, f.path))
	go f.runListing(job)
	f.RefreshCapacity()
}

func (f *Folder) runListing(job *listJob) {
	var found func([]*fileinfo.Info)
	if f.incremental {
		found = func(batch []*fileinfo.Info) {
			f.ingest(job, batch)
		}
	}
	listing, err := f.registry.options.Lister.List(job.ctx, f.path, job.mode, found)
	cancelled := job.ctx.Err() != nil
	f.registry.metrics.RecordListing(job.mode.String(), time.Since(job.started), err, cancelled)
	if cancelled {
		return
	}
	if err == nil && listing == nil {
		err = errors.New("lister returned no result")
	}
	f.finishListing(job, listing, err)
}

// ingest merges a streamed batch from an incremental listing.
func (f *Folder) ingest(job *listJob, batch []*fileinfo.Info) {
	f.mu.Lock()
	if f.closed || f.job != job {
		f.mu.Unlock()
		return
	}
	f.mergeListedLocked(job, batch)
	schedule := f.pending.len() > 0 && f.scheduleFlushLocked()
	f.mu.Unlock()
	if schedule {
		f.post(f.flush)
	}
}

func (f *Folder) mergeListedLocked(job *listJob, files []*fileinfo.Info) {
	for _, info := range files {
		if info == nil || info.Name == "" {
			continue
		}
		job.listed[info.Name] = struct{}{}
		path := filepath.Join(f.path, info.Name)
		f.pending.listed(path, info, f.children[info.Name])
	}
}

func (f *Folder) finishListing(job *listJob, listing *fileinfo.Listing, err error) {
	f.mu.Lock()
	if f.closed || f.job != job {
		f.mu.Unlock()
		return
	}
	f.state = StateLoaded
	if err != nil {
		f.mu.Unlock()
		f.logger.Warn("folder listing failed", map[string]string{"error": err.Error()})
		f.postEvents(
			newErrorEvent(f.path, &ListingError{Path: f.path, Err: err}),
			newEvent(EventLoadingFinished, f.path),
		)
		return
	}

	if listing.Dir != nil {
		f.self = listing.Dir.Clone()
	}
	if !f.incremental {
		f.mergeListedLocked(job, listing.Files)
	}
	for name := range f.children {
		if _, ok := job.listed[name]; !ok {
			f.pending.vanished(filepath.Join(f.path, name))
		}
	}
	var refine []string
	if job.mode == fileinfo.ModeFast {
		refine = make([]string, 0, len(job.listed))
		for name := range job.listed {
			refine = append(refine, filepath.Join(f.path, name))
		}
	}
	schedule := f.hasPendingLocked() && f.scheduleFlushLocked()
	f.mu.Unlock()

	if schedule {
		f.post(f.flush)
	}
	f.postEvents(newEvent(EventLoadingFinished, f.path))
	if len(refine) > 0 {
		f.post(func() {
			f.refine(job, refine)
		})
	}
}

// refine queues listed paths for a detailed lookup after a fast listing.
func (f *Folder) refine(job *listJob, paths []string) {
	f.mu.Lock()
	if f.closed || f.job != job {
		f.mu.Unlock()
		return
	}
	for _, path := range paths {
		_, known := f.children[filepath.Base(path)]
		f.pending.changed(path, known)
	}
	schedule := f.scheduleFlushLocked()
	f.mu.Unlock()
	if schedule {
		f.post(f.flush)
	}
}

// resubscribe replaces the change notification subscription. The new
// handle is installed before the old one is closed so no change is missed.
func (f *Folder) resubscribe() {
	monitor := f.registry.options.Monitor
	if monitor == nil {
		f.warnWatchUnavailable(ErrUnsupported)
		return
	}
	handle, err := monitor.Watch(f.path, f.handleChange)
	if err != nil {
		f.warnWatchUnavailable(err)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		if handle != nil {
			_ = handle.Close()
		}
		return
	}
	previous := f.watch
	f.watch = handle
	f.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
}

func (f *Folder) warnWatchUnavailable(err error) {
	f.mu.Lock()
	warned := f.watchWarned
	f.watchWarned = true
	f.mu.Unlock()
	if warned {
		return
	}
	f.logger.Warn("change notifications unavailable", map[string]string{"error": err.Error()})
}

// WaitLoaded blocks until a listing has finished and no flush is
// outstanding, or ctx is done.
func (f *Folder) WaitLoaded(ctx context.Context) error {
	done := make(chan struct{})
	var once sync.Once
	check := func() {
		f.mu.Lock()
		ready := f.closed || (f.state == StateLoaded && !f.flushScheduled)
		f.mu.Unlock()
		if ready {
			once.Do(func() { close(done) })
		}
	}
	cancel := f.Subscribe(func(Event) { check() })
	defer cancel()
	f.post(check)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
