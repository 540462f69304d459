// Package localfs lists, inspects and creates directories on an afero
// filesystem, and measures the capacity of the host filesystem.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"foldercache/internal/fileinfo"
	"foldercache/internal/logging"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	batchSize   = 64
	sniffLength = 512

	contentTypeDirectory = "inode/directory"
	contentTypeSymlink   = "inode/symlink"
	contentTypeUnknown   = "application/octet-stream"
)

var ErrNotDirectory = errors.New("not a directory")

type Options struct {
	// Workers bounds concurrent metadata lookups. Defaults to GOMAXPROCS.
	Workers int
	Logger  *logging.Logger
}

// FS serves directory listings and metadata lookups from an afero.Fs.
type FS struct {
	fs      afero.Fs
	workers int
	logger  *logging.Logger
}

func New(filesystem afero.Fs, options Options) *FS {
	if filesystem == nil {
		filesystem = afero.NewOsFs()
	}
	workers := options.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &FS{
		fs:      filesystem,
		workers: workers,
		logger:  options.Logger,
	}
}

// List reads the entries of dir. When found is non-nil it receives the
// entries in batches as they are read. Cancellation of ctx aborts the
// listing with ctx.Err().
func (local *FS) List(ctx context.Context, dir string, mode fileinfo.Mode, found func([]*fileinfo.Info)) (*fileinfo.Listing, error) {
	dirStat, err := local.lstat(dir)
	if err != nil {
		return nil, err
	}
	dirInfo := fileinfo.FromFileInfo(dir, dirStat)
	if dirInfo.IsSymlink {
		if target, err := local.fs.Stat(dir); err == nil && target.IsDir() {
			dirInfo.IsDir = true
		}
	}
	if !dirInfo.IsDir {
		return nil, &fs.PathError{Op: "list", Path: dir, Err: ErrNotDirectory}
	}
	if mode == fileinfo.ModeDetailed {
		local.fillDetails(dirInfo)
	}

	entries, err := afero.ReadDir(local.fs, dir)
	if err != nil {
		return nil, err
	}

	files := make([]*fileinfo.Info, 0, len(entries))
	for start := 0; start < len(entries); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, len(entries))
		batch := make([]*fileinfo.Info, 0, end-start)
		for _, entry := range entries[start:end] {
			batch = append(batch, fileinfo.FromFileInfo(filepath.Join(dir, entry.Name()), entry))
		}
		if mode == fileinfo.ModeDetailed {
			if err := local.detailAll(ctx, batch); err != nil {
				return nil, err
			}
		}
		files = append(files, batch...)
		if found != nil {
			found(cloneAll(batch))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &fileinfo.Listing{Dir: dirInfo, Files: files}, nil
}

// Inspect returns detailed metadata for paths in input order. Paths that no
// longer exist are omitted; other failures are joined into the error.
func (local *FS) Inspect(ctx context.Context, paths []string) ([]*fileinfo.Info, error) {
	results := make([]*fileinfo.Info, len(paths))
	failures := make([]error, len(paths))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(local.workers)
	for index, path := range paths {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			stat, err := local.lstat(path)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					failures[index] = err
				}
				return nil
			}
			info := fileinfo.FromFileInfo(path, stat)
			local.fillDetails(info)
			results[index] = info
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	found := make([]*fileinfo.Info, 0, len(paths))
	for _, info := range results {
		if info != nil {
			found = append(found, info)
		}
	}
	return found, errors.Join(failures...)
}

// Mkdir creates a single directory.
func (local *FS) Mkdir(path string) error {
	return local.fs.Mkdir(path, 0o755)
}

func (local *FS) detailAll(ctx context.Context, batch []*fileinfo.Info) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(local.workers)
	for _, info := range batch {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			local.fillDetails(info)
			return nil
		})
	}
	return group.Wait()
}

func (local *FS) fillDetails(info *fileinfo.Info) {
	switch {
	case info.IsSymlink:
		info.ContentType = contentTypeSymlink
		if reader, ok := local.fs.(afero.LinkReader); ok {
			if target, err := reader.ReadlinkIfPossible(info.Path); err == nil {
				info.Target = target
			}
		}
	case info.IsDir:
		info.ContentType = contentTypeDirectory
	case info.Mode.IsRegular():
		info.ContentType = local.sniff(info.Path)
	default:
		info.ContentType = contentTypeUnknown
	}
}

func (local *FS) sniff(path string) string {
	file, err := local.fs.Open(path)
	if err != nil {
		local.logDebug("content sniff failed", path, err)
		return contentTypeUnknown
	}
	defer file.Close()

	buffer := make([]byte, sniffLength)
	count, err := io.ReadFull(file, buffer)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		local.logDebug("content sniff failed", path, err)
		return contentTypeUnknown
	}
	if count == 0 {
		return "text/plain; charset=utf-8"
	}
	return http.DetectContentType(buffer[:count])
}

func (local *FS) lstat(path string) (os.FileInfo, error) {
	if lstater, ok := local.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(path)
		return info, err
	}
	return local.fs.Stat(path)
}

func (local *FS) logDebug(message, path string, err error) {
	if local.logger == nil {
		return
	}
	local.logger.Debug(message, map[string]string{
		"path":  path,
		"error": fmt.Sprint(err),
	})
}

func cloneAll(values []*fileinfo.Info) []*fileinfo.Info {
	clones := make([]*fileinfo.Info, len(values))
	for index, value := range values {
		clones[index] = value.Clone()
	}
	return clones
}
