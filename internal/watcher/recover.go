package watcher

import (
	"errors"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
)

func restartDelay(attempt int) time.Duration {
	return restartBaseDelay << attempt
}

// sourceError handles an error reported by the backend. An overflow only
// loses events, so directories are rescanned; anything else replaces the
// backend.
func (w *Watcher) sourceError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		w.overflows.Add(1)
		w.metrics.IncWatchOverflow()
		w.logger.Warn("watch event queue overflowed", nil)
		w.rescanAll()
		return
	}
	w.errors.Add(1)
	select {
	case w.failures <- err:
	default:
		// A recovery is already queued.
	}
}

func (w *Watcher) supervise() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case err := <-w.failures:
			w.recoverFrom(err)
		}
	}
}

// recoverFrom retries the backend with exponential backoff and reports to
// OnFailure when every attempt failed.
func (w *Watcher) recoverFrom(cause error) {
	w.logger.Warn("watch backend error", map[string]string{"error": cause.Error()})
	for attempt := 0; attempt < maxRestartAttempts; attempt++ {
		timer := time.NewTimer(restartDelay(attempt))
		select {
		case <-w.done:
			timer.Stop()
			return
		case <-timer.C:
		}
		err := w.restart()
		if err == nil {
			return
		}
		cause = err
		w.logger.Warn("watch backend restart failed", map[string]string{
			"attempt": strconv.Itoa(attempt + 1),
			"error":   err.Error(),
		})
	}
	if w.onFailure != nil {
		w.onFailure(cause)
	}
}

// restart swaps in a fresh backend with every watched path re-added. Events
// from the gap are unknown, so directories are rescanned afterwards.
func (w *Watcher) restart() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	paths := w.table.sortedPaths()
	w.mu.Unlock()

	replacement, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := replacement.Add(path); err != nil {
			w.logger.Warn("watch re-add failed", map[string]string{"path": path, "error": err.Error()})
		}
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = replacement.Close()
		return nil
	}
	previous := w.source
	w.source = replacement
	w.mu.Unlock()

	w.startPump(replacement)
	_ = previous.Close()
	w.restarts.Add(1)
	w.metrics.IncWatchRestart()
	w.logger.Info("watch backend restarted", map[string]string{"watches": strconv.Itoa(len(paths))})
	w.rescanAll()
	return nil
}
