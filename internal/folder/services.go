package folder

import (
	"context"

	"foldercache/internal/fileinfo"
	"foldercache/internal/mounts"
	"foldercache/internal/watcher"
)

// Lister enumerates a directory. found, when non-nil, receives entries as
// they are read; the returned Listing holds every entry.
type Lister interface {
	List(ctx context.Context, path string, mode fileinfo.Mode, found func([]*fileinfo.Info)) (*fileinfo.Listing, error)
}

// Inspector fetches metadata for individual paths. Paths that do not exist
// are omitted from the result without an error.
type Inspector interface {
	Inspect(ctx context.Context, paths []string) ([]*fileinfo.Info, error)
}

type DirMaker interface {
	Mkdir(path string) error
}

// Monitor subscribes to change notifications for a path.
type Monitor interface {
	Watch(path string, callback func(watcher.Event)) (watcher.Handle, error)
}

type CapacityQuerier interface {
	Query(ctx context.Context, path string) (fileinfo.Capacity, error)
}

type MountSource interface {
	Subscribe(callback func(mounts.Event)) func()
}
