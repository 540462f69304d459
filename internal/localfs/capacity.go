package localfs

import (
	"context"
	"errors"

	"foldercache/internal/fileinfo"
)

// ErrUnsupported is returned when the filesystem cannot report its size.
var ErrUnsupported = errors.ErrUnsupported

// Capacity queries the host filesystem with statfs.
type Capacity struct{}

func (Capacity) Query(ctx context.Context, path string) (fileinfo.Capacity, error) {
	if err := ctx.Err(); err != nil {
		return fileinfo.Capacity{}, err
	}
	return statfs(path)
}
