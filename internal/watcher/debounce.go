package watcher

import (
	"sync"
	"time"
)

// debouncer groups bursts of kinds per path and hands each burst to flush
// once the path has been quiet for the configured window. Consecutive
// duplicates inside a burst are collapsed; distinct kinds keep their order.
type debouncer struct {
	window time.Duration
	flush  func(path string, kinds []Kind)

	mu      sync.Mutex
	bursts  map[string]*burst
	stopped bool
}

type burst struct {
	kinds []Kind
	timer *time.Timer
}

func newDebouncer(window time.Duration, flush func(string, []Kind)) *debouncer {
	return &debouncer{
		window: window,
		flush:  flush,
		bursts: make(map[string]*burst),
	}
}

// add queues kinds for path and returns how many were collapsed.
func (d *debouncer) add(path string, kinds ...Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return 0
	}
	current, ok := d.bursts[path]
	if !ok {
		current = &burst{}
		d.bursts[path] = current
		current.timer = time.AfterFunc(d.window, func() { d.fire(path) })
	} else {
		current.timer.Reset(d.window)
	}
	collapsed := 0
	for _, kind := range kinds {
		if last := len(current.kinds) - 1; last >= 0 && current.kinds[last] == kind {
			collapsed++
			continue
		}
		current.kinds = append(current.kinds, kind)
	}
	return collapsed
}

// take removes and returns the pending burst for path.
func (d *debouncer) take(path string) []Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.bursts[path]
	if !ok {
		return nil
	}
	delete(d.bursts, path)
	current.timer.Stop()
	return current.kinds
}

func (d *debouncer) fire(path string) {
	if kinds := d.take(path); len(kinds) > 0 {
		d.flush(path, kinds)
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for path, current := range d.bursts {
		current.timer.Stop()
		delete(d.bursts, path)
	}
}
