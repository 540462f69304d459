//go:build !(linux || darwin || freebsd)

package localfs

import "foldercache/internal/fileinfo"

func statfs(string) (fileinfo.Capacity, error) {
	return fileinfo.Capacity{}, ErrUnsupported
}
