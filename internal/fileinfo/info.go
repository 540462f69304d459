// Package fileinfo holds the metadata records exchanged between the folder
// cache and the collaborators that list, inspect and measure directories.
package fileinfo

import (
	"io/fs"
	"path/filepath"
	"time"
)

// Mode selects how much metadata a listing collects per entry.
type Mode int

const (
	// ModeDetailed resolves symlink targets and content types.
	ModeDetailed Mode = iota
	// ModeFast only records what the directory read returns.
	ModeFast
)

func (mode Mode) String() string {
	switch mode {
	case ModeDetailed:
		return "detailed"
	case ModeFast:
		return "fast"
	default:
		return "unknown"
	}
}

// Info describes one filesystem entry.
type Info struct {
	Name        string      `json:"name"`
	Path        string      `json:"path"`
	Size        int64       `json:"size"`
	Mode        fs.FileMode `json:"mode"`
	ModTime     time.Time   `json:"mod_time"`
	IsDir       bool        `json:"is_dir"`
	IsSymlink   bool        `json:"is_symlink,omitempty"`
	Target      string      `json:"target,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
}

// FromFileInfo builds an Info for path from an lstat result.
func FromFileInfo(path string, info fs.FileInfo) *Info {
	if info == nil {
		return nil
	}
	mode := info.Mode()
	return &Info{
		Name:      filepath.Base(path),
		Path:      path,
		Size:      info.Size(),
		Mode:      mode,
		ModTime:   info.ModTime().UTC(),
		IsDir:     info.IsDir(),
		IsSymlink: mode&fs.ModeSymlink != 0,
	}
}

// Equal reports whether two records describe the same metadata.
func (info *Info) Equal(other *Info) bool {
	if info == nil || other == nil {
		return info == other
	}
	return info.Name == other.Name &&
		info.Size == other.Size &&
		info.Mode == other.Mode &&
		info.ModTime.Equal(other.ModTime) &&
		info.IsDir == other.IsDir &&
		info.IsSymlink == other.IsSymlink &&
		info.Target == other.Target &&
		info.ContentType == other.ContentType
}

// Clone returns a copy that callers may keep after the original changes.
func (info *Info) Clone() *Info {
	if info == nil {
		return nil
	}
	clone := *info
	return &clone
}

// Listing is the terminal result of one directory listing.
type Listing struct {
	Dir   *Info
	Files []*Info
}

// Capacity reports the size of the filesystem holding a directory.
type Capacity struct {
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
}
