package watcher

import (
	"time"

	"foldercache/internal/logging"
	"foldercache/internal/metrics"
	"github.com/fsnotify/fsnotify"
)

// Kind classifies a change notification.
type Kind int

const (
	Created Kind = iota + 1
	Changed
	AttributeChanged
	Deleted
	Unmounted
	PreUnmount
	ChangesDoneHint
	// Rescan means notifications for the path were lost and its contents
	// must be listed again.
	Rescan
)

func (kind Kind) String() string {
	switch kind {
	case Created:
		return "created"
	case Changed:
		return "changed"
	case AttributeChanged:
		return "attribute_changed"
	case Deleted:
		return "deleted"
	case Unmounted:
		return "unmounted"
	case PreUnmount:
		return "pre_unmount"
	case ChangesDoneHint:
		return "changes_done_hint"
	case Rescan:
		return "rescan"
	default:
		return "unknown"
	}
}

// Event represents a single filesystem change.
type Event struct {
	Path      string
	OtherPath string
	Kind      Kind
	Timestamp time.Time
}

// Handle releases watcher resources for a registration.
type Handle interface {
	Close() error
	// DeliversUnmount reports whether the backend emits Unmounted for the
	// watched path on its own.
	DeliversUnmount() bool
}

// Watch registers a callback for filesystem events on a path.
type Watch interface {
	Watch(path string, callback func(Event)) (Handle, error)
}

type Options struct {
	Logger     *logging.Logger
	Metrics    *metrics.Registry
	Debounce   time.Duration
	MaxWatches int
	// OnFailure is called once the backend could not be recovered.
	OnFailure func(error)
}

// Stats is a point-in-time view of the watcher.
type Stats struct {
	Watches   int
	Delivered uint64
	Collapsed uint64
	Overflows uint64
	Errors    uint64
	Restarts  uint64
}

// kindsForOp maps one fsnotify operation to change kinds. A rename of the
// watched name is a deletion; the new name arrives as its own Create.
func kindsForOp(op fsnotify.Op) []Kind {
	var kinds []Kind
	if op.Has(fsnotify.Create) {
		kinds = append(kinds, Created)
	}
	if op.Has(fsnotify.Write) {
		kinds = append(kinds, Changed)
	}
	if op.Has(fsnotify.Chmod) {
		kinds = append(kinds, AttributeChanged)
	}
	if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		kinds = append(kinds, Deleted)
	}
	return kinds
}
