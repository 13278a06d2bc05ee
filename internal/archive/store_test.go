package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/ortho-api/internal/config"
	"github.com/phrazzld/ortho-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	base := t.TempDir()
	s, err := New(config.StorageConfig{
		UploadDir:  filepath.Join(base, "uploads"),
		OutputDir:  filepath.Join(base, "outputs"),
		ScratchDir: filepath.Join(base, "temp"),
		UnrarPath:  "unrar",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

// writeZip builds a zip archive holding the given entries. Names ending in "/"
// become directory entries.
func writeZip(t *testing.T, path string, names ...string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		if !strings.HasSuffix(name, "/") {
			_, err = w.Write([]byte("data:" + name))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestNewCreatesDirectories(t *testing.T) {
	s := newTestStore(t)
	for _, dir := range []string{s.uploadDir, s.outputDir, s.scratchDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	_, err := New(config.StorageConfig{}, nil)
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()

	assert.Equal(t, filepath.Join(s.uploadDir, id.String()+".rar"), s.UploadPath(id, domain.ArchiveFormatRar))
	assert.Equal(t, []string{
		filepath.Join(s.uploadDir, id.String()+".zip"),
		filepath.Join(s.uploadDir, id.String()+".rar"),
	}, s.UploadPaths(id))
	assert.Equal(t, filepath.Join(s.outputDir, id.String()+".zip"), s.OutputPath(id))
	assert.Equal(t, filepath.Join(s.scratchDir, id.String()), s.ScratchDir(id))
}

func TestSave(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()

	path, err := s.Save(id, domain.ArchiveFormatZip, strings.NewReader("archive-bytes"))
	require.NoError(t, err)
	assert.Equal(t, s.UploadPath(id, domain.ArchiveFormatZip), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSaveRemovesPartialFile(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()

	_, err := s.Save(id, domain.ArchiveFormatZip, io.MultiReader(strings.NewReader("half"), failingReader{}))
	require.Error(t, err)

	_, statErr := os.Stat(s.UploadPath(id, domain.ArchiveFormatZip))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractZip(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()
	archive := s.UploadPath(id, domain.ArchiveFormatZip)
	writeZip(t, archive, "flight/", "flight/IMG_0001.JPG", "flight/IMG_0002.jpg", "readme.txt")

	dir, err := s.Extract(context.Background(), id, archive)
	require.NoError(t, err)
	assert.Equal(t, s.ScratchDir(id), dir)

	data, err := os.ReadFile(filepath.Join(dir, "flight", "IMG_0002.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "data:flight/IMG_0002.jpg", string(data))
}

func TestExtractZipRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()
	archive := s.UploadPath(id, domain.ArchiveFormatZip)
	writeZip(t, archive, "ok.jpg", "../../escaped.jpg")

	_, err := s.Extract(context.Background(), id, archive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExtractionFailed))
	assert.Contains(t, err.Error(), "Illegal path")

	_, statErr := os.Stat(filepath.Join(filepath.Dir(s.scratchDir), "escaped.jpg"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractCorruptZip(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()
	archive := s.UploadPath(id, domain.ArchiveFormatZip)
	require.NoError(t, os.WriteFile(archive, []byte("not a zip"), 0o644))

	_, err := s.Extract(context.Background(), id, archive)
	require.Error(t, err)

	var extErr *ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, archive, extErr.Archive)
	assert.True(t, strings.HasPrefix(extErr.Reason, "Invalid ZIP archive"))
	assert.True(t, errors.Is(err, ErrExtractionFailed))
}

func TestExtractRarMissingTool(t *testing.T) {
	s := newTestStore(t)
	s.unrarPath = filepath.Join(t.TempDir(), "no-such-unrar")
	id := uuid.New()
	archive := s.UploadPath(id, domain.ArchiveFormatRar)
	require.NoError(t, os.WriteFile(archive, []byte("Rar!"), 0o644))

	_, err := s.Extract(context.Background(), id, archive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExtractionFailed))
	assert.Equal(t, "RAR extraction failed: unrar is not installed", err.Error())
}

func TestExtractRarWithTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the unrar stand-in")
	}

	s := newTestStore(t)
	script := filepath.Join(t.TempDir(), "unrar")
	// Arguments are: x -y <archive> <dir>/
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nmkdir -p \"$4/imgs\" && touch \"$4/imgs/a.tif\"\n"), 0o755))
	s.unrarPath = script

	id := uuid.New()
	archive := s.UploadPath(id, domain.ArchiveFormatRar)
	require.NoError(t, os.WriteFile(archive, []byte("Rar!"), 0o644))

	dir, err := s.Extract(context.Background(), id, archive)
	require.NoError(t, err)

	images, err := s.DiscoverImages(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, images.Len())
}

func TestExtractRarToolFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the unrar stand-in")
	}

	s := newTestStore(t)
	script := filepath.Join(t.TempDir(), "unrar")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'scanning'\necho 'bad archive header' >&2\nexit 3\n"), 0o755))
	s.unrarPath = script

	id := uuid.New()
	archive := s.UploadPath(id, domain.ArchiveFormatRar)
	require.NoError(t, os.WriteFile(archive, []byte("junk"), 0o644))

	_, err := s.Extract(context.Background(), id, archive)
	require.Error(t, err)
	assert.Equal(t, "RAR extraction failed: bad archive header", err.Error())
}

func TestExtractUnsupportedFormat(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Extract(context.Background(), uuid.New(), filepath.Join(s.uploadDir, "x.7z"))
	assert.True(t, errors.Is(err, ErrExtractionFailed))
	assert.True(t, errors.Is(err, domain.ErrUnsupportedArchive))
}

func TestDiscoverImages(t *testing.T) {
	s := newTestStore(t)

	t.Run("shallowest directory wins", func(t *testing.T) {
		root := t.TempDir()
		touch(t, filepath.Join(root, "notes.txt"))
		touch(t, filepath.Join(root, "b", "deep", "x.jpg"))
		touch(t, filepath.Join(root, "a", "IMG_2.JPEG"))
		touch(t, filepath.Join(root, "a", "IMG_1.jpg"))
		touch(t, filepath.Join(root, "a", "nested", "IMG_3.jpg"))
		touch(t, filepath.Join(root, "c", "z.tiff"))

		images, err := s.DiscoverImages(root)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "a"), images.Dir)
		assert.Equal(t, []string{
			filepath.Join(root, "a", "IMG_1.jpg"),
			filepath.Join(root, "a", "IMG_2.JPEG"),
		}, images.Paths, "only the chosen directory's own files are listed")
	})

	t.Run("images at root", func(t *testing.T) {
		root := t.TempDir()
		for _, name := range []string{"1.jpg", "2.png", "3.tif", "4.TIF", "5.jpeg"} {
			touch(t, filepath.Join(root, name))
		}
		touch(t, filepath.Join(root, "sub", "6.jpg"))

		images, err := s.DiscoverImages(root)
		require.NoError(t, err)
		assert.Equal(t, root, images.Dir)
		assert.Equal(t, 5, images.Len())
	})

	t.Run("no images", func(t *testing.T) {
		root := t.TempDir()
		touch(t, filepath.Join(root, "doc", "readme.md"))

		images, err := s.DiscoverImages(root)
		require.NoError(t, err)
		assert.Equal(t, 0, images.Len())
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := s.DiscoverImages(filepath.Join(t.TempDir(), "absent"))
		assert.Error(t, err)
	})
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()
	touch(t, filepath.Join(s.ScratchDir(id), "a", "b.jpg"))

	require.NoError(t, s.Delete(s.ScratchDir(id)))
	_, err := os.Stat(s.ScratchDir(id))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, s.Delete(s.ScratchDir(id)), "deleting a missing path is not an error")
	assert.NoError(t, s.Delete(""))
}
