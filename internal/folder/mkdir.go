package folder

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"foldercache/internal/watcher"
)

// MakeDirectory creates name inside the folder. The new directory is
// reported through the next flush like any other created child.
func (f *Folder) MakeDirectory(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/`+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	path := filepath.Join(f.path, name)
	maker := f.registry.options.DirMaker
	if maker == nil {
		return &CreateDirectoryError{Path: path, Err: ErrUnsupported}
	}
	if err := maker.Mkdir(path); err != nil {
		return &CreateDirectoryError{Path: path, Err: err}
	}
	f.handleChange(watcher.Event{Path: path, Kind: watcher.Created, Timestamp: time.Now().UTC()})
	return nil
}
