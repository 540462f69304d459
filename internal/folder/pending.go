package folder

import (
	"sort"

	"foldercache/internal/fileinfo"
)

type pendingOp int

const (
	opAdd pendingOp = iota + 1
	opUpdate
	opRemove
)

func (op pendingOp) String() string {
	switch op {
	case opAdd:
		return "add"
	case opUpdate:
		return "update"
	case opRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// pendingEntry is the latest intent recorded for one child path. A nil info
// on an add or update means metadata must be looked up at flush time.
type pendingEntry struct {
	path string
	op   pendingOp
	info *fileinfo.Info
	seq  uint64
}

// pendingSet accumulates intents between flushes. Keeping one entry per
// path makes the add, update and remove sets disjoint.
type pendingSet struct {
	entries map[string]*pendingEntry
	seq     uint64
}

func newPendingSet() *pendingSet {
	return &pendingSet{entries: make(map[string]*pendingEntry)}
}

func (set *pendingSet) put(path string, op pendingOp, info *fileinfo.Info) {
	set.seq++
	entry := set.entries[path]
	if entry == nil {
		entry = &pendingEntry{path: path}
		set.entries[path] = entry
	}
	entry.op = op
	entry.info = info
	entry.seq = set.seq
}

// created records that path appeared. known reports whether the folder
// already lists the name.
func (set *pendingSet) created(path string, info *fileinfo.Info, known bool) {
	if entry := set.entries[path]; entry != nil && entry.op != opRemove {
		set.put(path, entry.op, info)
		return
	}
	set.put(path, addOrUpdate(known), info)
}

// changed records that path was modified. An add stays an add so that a
// create followed by writes reports the file once.
func (set *pendingSet) changed(path string, known bool) {
	if entry := set.entries[path]; entry != nil && entry.op != opRemove {
		set.put(path, entry.op, nil)
		return
	}
	set.put(path, addOrUpdate(known), nil)
}

// deleted records that path vanished. For a name the folder never listed
// the pending intent is simply cancelled.
func (set *pendingSet) deleted(path string, known bool) {
	if known {
		set.put(path, opRemove, nil)
		return
	}
	delete(set.entries, path)
}

// listed merges one listing result. Intents recorded from notifications are
// newer than the listing and win.
func (set *pendingSet) listed(path string, info *fileinfo.Info, existing *fileinfo.Info) {
	if _, ok := set.entries[path]; ok {
		return
	}
	switch {
	case existing == nil:
		set.put(path, opAdd, info)
	case !existing.Equal(info):
		set.put(path, opUpdate, info)
	}
}

// vanished queues the removal of a listed name missing from a finished
// listing, unless a newer intent exists.
func (set *pendingSet) vanished(path string) {
	if _, ok := set.entries[path]; ok {
		return
	}
	set.put(path, opRemove, nil)
}

// restore puts back an entry taken by a flush that did not apply it.
func (set *pendingSet) restore(entry *pendingEntry, info *fileinfo.Info) {
	if set.has(entry.path) {
		return
	}
	set.put(entry.path, entry.op, info)
}

func (set *pendingSet) has(path string) bool {
	_, ok := set.entries[path]
	return ok
}

func (set *pendingSet) len() int {
	return len(set.entries)
}

func (set *pendingSet) reset() {
	set.entries = make(map[string]*pendingEntry)
}

// take returns the entries in the order they were last touched and empties
// the set.
func (set *pendingSet) take() []*pendingEntry {
	if len(set.entries) == 0 {
		return nil
	}
	entries := make([]*pendingEntry, 0, len(set.entries))
	for _, entry := range set.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})
	set.reset()
	return entries
}

// paths lists pending paths for op, sorted.
func (set *pendingSet) paths(op pendingOp) []string {
	var result []string
	for path, entry := range set.entries {
		if entry.op == op {
			result = append(result, path)
		}
	}
	sort.Strings(result)
	return result
}

func addOrUpdate(known bool) pendingOp {
	if known {
		return opUpdate
	}
	return opAdd
}
