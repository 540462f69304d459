package localfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"foldercache/internal/fileinfo"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newMemFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	memFS := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, memFS.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(memFS, path, []byte(content), 0o644))
	}
	return memFS
}

func names(infos []*fileinfo.Info) []string {
	result := make([]string, 0, len(infos))
	for _, info := range infos {
		result = append(result, info.Name)
	}
	sort.Strings(result)
	return result
}

func TestListDetailed(t *testing.T) {
	memFS := newMemFS(t, map[string]string{
		"/data/a.txt":      "hello world",
		"/data/b.html":     "<html><body>hi</body></html>",
		"/data/sub/c.txt":  "nested",
		"/other/ignored.x": "",
	})
	local := New(memFS, Options{Workers: 2})

	listing, err := local.List(context.Background(), "/data", fileinfo.ModeDetailed, nil)
	require.NoError(t, err)
	require.Equal(t, "data", listing.Dir.Name)
	require.True(t, listing.Dir.IsDir)
	require.Equal(t, []string{"a.txt", "b.html", "sub"}, names(listing.Files))

	byName := make(map[string]*fileinfo.Info)
	for _, info := range listing.Files {
		byName[info.Name] = info
	}
	require.Equal(t, "/data/a.txt", byName["a.txt"].Path)
	require.Equal(t, int64(11), byName["a.txt"].Size)
	require.Equal(t, "text/plain; charset=utf-8", byName["a.txt"].ContentType)
	require.Equal(t, "text/html; charset=utf-8", byName["b.html"].ContentType)
	require.Equal(t, "inode/directory", byName["sub"].ContentType)
}

func TestListFastSkipsContentType(t *testing.T) {
	memFS := newMemFS(t, map[string]string{"/data/a.txt": "x"})
	local := New(memFS, Options{})

	listing, err := local.List(context.Background(), "/data", fileinfo.ModeFast, nil)
	require.NoError(t, err)
	require.Len(t, listing.Files, 1)
	require.Empty(t, listing.Files[0].ContentType)
}

func TestListStreamsBatches(t *testing.T) {
	files := make(map[string]string)
	for index := 0; index < batchSize+10; index++ {
		files[filepath.Join("/big", "f"+string(rune('a'+index%26))+string(rune('a'+index/26)))] = ""
	}
	local := New(newMemFS(t, files), Options{})

	var batches [][]*fileinfo.Info
	listing, err := local.List(context.Background(), "/big", fileinfo.ModeFast, func(batch []*fileinfo.Info) {
		batches = append(batches, batch)
	})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	require.Len(t, batches[0], batchSize)
	require.Len(t, batches[1], 10)
	require.Len(t, listing.Files, batchSize+10)

	batches[0][0].Size = 999
	require.NotEqual(t, int64(999), listing.Files[0].Size)
}

func TestListErrors(t *testing.T) {
	local := New(newMemFS(t, map[string]string{"/data/a.txt": "x"}), Options{})

	_, err := local.List(context.Background(), "/missing", fileinfo.ModeFast, nil)
	require.ErrorIs(t, err, fs.ErrNotExist)

	_, err = local.List(context.Background(), "/data/a.txt", fileinfo.ModeFast, nil)
	require.ErrorIs(t, err, ErrNotDirectory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = local.List(ctx, "/data", fileinfo.ModeDetailed, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestInspectOmitsMissingPaths(t *testing.T) {
	local := New(newMemFS(t, map[string]string{
		"/data/a.txt": "a",
		"/data/b.txt": "bb",
	}), Options{})

	infos, err := local.Inspect(context.Background(), []string{"/data/b.txt", "/data/gone.txt", "/data/a.txt"})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, "b.txt", infos[0].Name)
	require.Equal(t, "a.txt", infos[1].Name)
	require.NotEmpty(t, infos[0].ContentType)
}

func TestMkdir(t *testing.T) {
	memFS := newMemFS(t, map[string]string{"/data/a.txt": "a"})
	local := New(memFS, Options{})

	require.NoError(t, local.Mkdir("/data/new"))
	info, err := memFS.Stat("/data/new")
	require.NoError(t, err)
	require.True(t, info.IsDir())

	err = local.Mkdir("/data/new")
	require.True(t, errors.Is(err, fs.ErrExist), "expected exist error, got %v", err)
}

func TestListResolvesSymlinkTarget(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink("target.txt", filepath.Join(dir, "link")))

	local := New(afero.NewOsFs(), Options{})
	listing, err := local.List(context.Background(), dir, fileinfo.ModeDetailed, nil)
	require.NoError(t, err)

	var link *fileinfo.Info
	for _, info := range listing.Files {
		if info.Name == "link" {
			link = info
		}
	}
	require.NotNil(t, link)
	require.True(t, link.IsSymlink)
	require.Equal(t, "target.txt", link.Target)
	require.Equal(t, "inode/symlink", link.ContentType)
}

func TestCapacityOnTempDir(t *testing.T) {
	capacity, err := Capacity{}.Query(context.Background(), t.TempDir())
	if errors.Is(err, ErrUnsupported) {
		t.Skip("statfs not supported here")
	}
	require.NoError(t, err)
	require.NotZero(t, capacity.TotalBytes)
	require.LessOrEqual(t, capacity.FreeBytes, capacity.TotalBytes)
}
