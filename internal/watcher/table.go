package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type subscriber struct {
	id       uint64
	callback func(Event)
	dir      bool
}

// watchTable tracks the subscribers per watched path. A path is registered
// with the backend while it has at least one subscriber.
type watchTable struct {
	paths  map[string][]subscriber
	nextID uint64
}

func newWatchTable() *watchTable {
	return &watchTable{paths: make(map[string][]subscriber)}
}

// add returns the subscriber id and whether path is new to the table.
func (table *watchTable) add(path string, callback func(Event), dir bool) (uint64, bool) {
	table.nextID++
	_, known := table.paths[path]
	table.paths[path] = append(table.paths[path], subscriber{id: table.nextID, callback: callback, dir: dir})
	return table.nextID, !known
}

// remove reports whether path lost its last subscriber.
func (table *watchTable) remove(path string, id uint64) bool {
	subscribers, ok := table.paths[path]
	if !ok {
		return false
	}
	kept := subscribers[:0]
	for _, candidate := range subscribers {
		if candidate.id != id {
			kept = append(kept, candidate)
		}
	}
	if len(kept) > 0 {
		table.paths[path] = kept
		return false
	}
	delete(table.paths, path)
	return true
}

func (table *watchTable) len() int {
	return len(table.paths)
}

func (table *watchTable) has(path string) bool {
	_, ok := table.paths[path]
	return ok
}

// sortedPaths lists the watched paths in a stable order.
func (table *watchTable) sortedPaths() []string {
	paths := make([]string, 0, len(table.paths))
	for path := range table.paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// targets returns the callbacks interested in a change of path: its own
// subscribers plus directory subscribers of its parent.
func (table *watchTable) targets(path string) []func(Event) {
	var callbacks []func(Event)
	for _, sub := range table.paths[path] {
		callbacks = append(callbacks, sub.callback)
	}
	if parent := filepath.Dir(path); parent != path {
		for _, sub := range table.paths[parent] {
			if sub.dir {
				callbacks = append(callbacks, sub.callback)
			}
		}
	}
	return callbacks
}

// directories returns one callback per watched directory, keyed by path.
func (table *watchTable) directories() map[string][]func(Event) {
	out := make(map[string][]func(Event))
	for path, subscribers := range table.paths {
		for _, sub := range subscribers {
			if sub.dir {
				out[path] = append(out[path], sub.callback)
			}
		}
	}
	return out
}

// IsWithinPath reports whether child is parent or lies below it.
func IsWithinPath(parent, child string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(child))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
