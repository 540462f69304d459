//go:build linux || darwin || freebsd

package localfs

import (
	"foldercache/internal/fileinfo"

	"golang.org/x/sys/unix"
)

func statfs(path string) (fileinfo.Capacity, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fileinfo.Capacity{}, err
	}
	if stat.Blocks == 0 {
		return fileinfo.Capacity{}, ErrUnsupported
	}
	blockSize := uint64(stat.Bsize)
	return fileinfo.Capacity{
		TotalBytes: uint64(stat.Blocks) * blockSize,
		FreeBytes:  uint64(stat.Bavail) * blockSize,
	}, nil
}
