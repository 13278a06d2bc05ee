package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/ortho-api/internal/config"
	"github.com/phrazzld/ortho-api/internal/domain"
)

// imageExtensions lists the file extensions treated as input imagery.
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".tif":  {},
	".tiff": {},
}

// ImageSet is the list of images found in a single directory.
type ImageSet struct {
	Dir   string
	Paths []string
}

// Len returns the number of images in the set.
func (s ImageSet) Len() int {
	return len(s.Paths)
}

// Store owns the upload, output and scratch directories.
type Store struct {
	uploadDir  string
	outputDir  string
	scratchDir string
	unrarPath  string
	logger     *slog.Logger
}

// New creates a Store and makes sure its directories exist.
func New(cfg config.StorageConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	for _, dir := range []string{cfg.UploadDir, cfg.OutputDir, cfg.ScratchDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	unrar := cfg.UnrarPath
	if unrar == "" {
		unrar = "unrar"
	}

	return &Store{
		uploadDir:  cfg.UploadDir,
		outputDir:  cfg.OutputDir,
		scratchDir: cfg.ScratchDir,
		unrarPath:  unrar,
		logger:     logger.With("component", "archive_store"),
	}, nil
}

// UploadPath returns where the uploaded archive for id is stored.
func (s *Store) UploadPath(id uuid.UUID, format domain.ArchiveFormat) string {
	return filepath.Join(s.uploadDir, id.String()+format.Extension())
}

// UploadPaths returns every candidate upload location for id, one per format.
func (s *Store) UploadPaths(id uuid.UUID) []string {
	paths := make([]string, 0, len(domain.ArchiveFormats))
	for _, f := range domain.ArchiveFormats {
		paths = append(paths, s.UploadPath(id, f))
	}
	return paths
}

// OutputPath returns where the result archive for id is written.
func (s *Store) OutputPath(id uuid.UUID) string {
	return filepath.Join(s.outputDir, id.String()+".zip")
}

// ScratchDir returns the extraction directory for id.
func (s *Store) ScratchDir(id uuid.UUID) string {
	return filepath.Join(s.scratchDir, id.String())
}

// Save streams r into the upload location for id and returns the path.
// A partially written file is removed on error.
func (s *Store) Save(id uuid.UUID, format domain.ArchiveFormat, r io.Reader) (string, error) {
	path := s.UploadPath(id, format)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	written, err := io.Copy(f, r)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}

	s.logger.Debug("archive saved", "task_id", id, "path", path, "bytes", written)
	return path, nil
}

// Extract unpacks archivePath into the scratch directory for id and returns
// that directory. The format is taken from the archive's extension.
func (s *Store) Extract(ctx context.Context, id uuid.UUID, archivePath string) (string, error) {
	format, err := domain.ArchiveFormatFromFilename(archivePath)
	if err != nil {
		return "", newExtractionError(archivePath, "Unsupported archive format", err)
	}

	dest := s.ScratchDir(id)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", newExtractionError(archivePath, "Failed to create extraction directory", err)
	}

	switch format {
	case domain.ArchiveFormatZip:
		err = extractZip(ctx, archivePath, dest)
	case domain.ArchiveFormatRar:
		err = s.extractRar(ctx, archivePath, dest)
	}
	if err != nil {
		return "", err
	}

	s.logger.Debug("archive extracted", "task_id", id, "format", format, "dir", dest)
	return dest, nil
}

func extractZip(ctx context.Context, archivePath, dest string) error {
	// Entries with non-local names are rejected below, one by one.
	r, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return newExtractionError(archivePath, fmt.Sprintf("Invalid ZIP archive: %v", err), err)
	}
	defer func() { _ = r.Close() }()

	root, err := filepath.Abs(dest)
	if err != nil {
		return newExtractionError(archivePath, "Failed to resolve extraction directory", err)
	}

	for _, entry := range r.File {
		if err := ctx.Err(); err != nil {
			return newExtractionError(archivePath, "Extraction interrupted", err)
		}

		target := filepath.Join(root, filepath.FromSlash(entry.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return newExtractionError(archivePath,
				fmt.Sprintf("Illegal path in archive: %s", entry.Name), nil)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return newExtractionError(archivePath, "Failed to create directory", err)
			}
			continue
		}

		if err := writeZipEntry(entry, target); err != nil {
			return newExtractionError(archivePath,
				fmt.Sprintf("Failed to extract %s: %v", entry.Name, err), err)
		}
	}
	return nil
}

func writeZipEntry(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func (s *Store) extractRar(ctx context.Context, archivePath, dest string) error {
	cmd := exec.CommandContext(ctx, s.unrarPath, "x", "-y", archivePath, dest+string(os.PathSeparator))
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return newExtractionError(archivePath, "RAR extraction failed: unrar is not installed", err)
	}

	detail := strings.TrimSpace(string(out))
	if detail == "" {
		detail = err.Error()
	}
	s.logger.Warn("unrar failed", "archive", archivePath, "error", err)
	return newExtractionError(archivePath, fmt.Sprintf("RAR extraction failed: %s", lastLine(detail)), err)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// DiscoverImages searches root breadth-first, visiting siblings in lexical
// order, and returns the images of the first directory holding any. Only that
// directory's own files are listed. An empty set means no images were found.
func (s *Store) DiscoverImages(root string) (ImageSet, error) {
	queue := []string{root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			if dir == root {
				return ImageSet{}, fmt.Errorf("failed to read %s: %w", dir, err)
			}
			s.logger.Warn("skipping unreadable directory", "dir", dir, "error", err)
			continue
		}

		var images, subdirs []string
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			if e.IsDir() {
				subdirs = append(subdirs, path)
				continue
			}
			if isImage(e.Name()) {
				images = append(images, path)
			}
		}

		if len(images) > 0 {
			sort.Strings(images)
			return ImageSet{Dir: dir, Paths: images}, nil
		}
		sort.Strings(subdirs)
		queue = append(queue, subdirs...)
	}
	return ImageSet{}, nil
}

func isImage(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Delete removes a file or directory tree. A missing path is not an error.
func (s *Store) Delete(path string) error {
	if path == "" {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}
