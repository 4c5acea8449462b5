package artifactfs

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tphakala/birdnet-artifacts/internal/logger"
)

// GetLogger returns the artifactfs package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("artifactfs")
}

// Directory permissions for artifact directories.
const dirPerm = 0o755

// FS provides filesystem operations on the artifact tree through os.Root,
// so relative paths read from the record store can never reach outside it,
// whether by "../" components or by symlinks.
//
// Every method takes forward-slash paths relative to the artifact root,
// the same form stored in audio_segment_path and spectrogram_path.
type FS struct {
	baseDir string   // absolute artifact root
	root    *os.Root // sandbox over baseDir
}

// New opens the artifact root, creating it when missing.
func New(baseDir string) (*FS, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}

	if err := os.MkdirAll(absPath, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem sandbox: %w", err)
	}

	return &FS{baseDir: absPath, root: root}, nil
}

// Close closes the underlying Root.
func (a *FS) Close() error {
	if a.root != nil {
		return a.root.Close()
	}
	return nil
}

// BaseDir returns the absolute artifact root.
func (a *FS) BaseDir() string {
	return a.baseDir
}

// Abs returns the absolute OS path of a stored relative path.
func (a *FS) Abs(rel string) (string, error) {
	clean, err := cleanRel(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(a.baseDir, clean), nil
}

// cleanRel validates a stored relative path and converts it to OS form.
func cleanRel(rel string) (string, error) {
	if rel == "" || strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}

	// Accept both separators regardless of platform; stored paths use '/'.
	slashed := path.Clean(strings.ReplaceAll(rel, `\`, "/"))
	if path.IsAbs(slashed) || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: path must be relative, got %q", ErrInvalidPath, rel)
	}
	if slashed == ".." || strings.HasPrefix(slashed, "../") {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, rel)
	}
	return filepath.FromSlash(slashed), nil
}

// MkdirAll creates a directory and all missing parents.
func (a *FS) MkdirAll(rel string) error {
	clean, err := cleanRel(rel)
	if err != nil {
		return err
	}
	if clean == "." {
		return nil
	}
	if err := a.root.MkdirAll(clean, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", rel, err)
	}
	return nil
}

// Remove deletes a single file.
func (a *FS) Remove(rel string) error {
	clean, err := cleanRel(rel)
	if err != nil {
		return err
	}
	return a.root.Remove(clean)
}

// Stat returns file info, following symlinks inside the sandbox only.
func (a *FS) Stat(rel string) (fs.FileInfo, error) {
	clean, err := cleanRel(rel)
	if err != nil {
		return nil, err
	}
	return a.root.Stat(clean)
}

// Exists reports whether rel exists. Validation errors are returned
// rather than reported as absence.
func (a *FS) Exists(rel string) (bool, error) {
	_, err := a.Stat(rel)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

// Open opens a file for reading.
func (a *FS) Open(rel string) (*os.File, error) {
	clean, err := cleanRel(rel)
	if err != nil {
		return nil, err
	}
	return a.root.Open(clean)
}

// ReadDir lists a directory. A missing directory yields no entries.
func (a *FS) ReadDir(rel string) ([]fs.DirEntry, error) {
	clean, err := cleanRel(rel)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(a.root.FS(), filepath.ToSlash(clean))
	if err != nil && os.IsNotExist(err) {
		return nil, nil
	}
	return entries, err
}

// WriteAtomic writes rel through a uniquely named sibling temp file that is
// renamed over rel once write succeeds. Parent directories are created.
// On any failure the temp file is removed and rel is left untouched.
func (a *FS) WriteAtomic(rel string, write func(f *os.File) error) error {
	clean, err := cleanRel(rel)
	if err != nil {
		return err
	}

	dir := filepath.Dir(clean)
	if dir != "." {
		if err := a.root.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", filepath.ToSlash(dir), err)
		}
	}

	tmp := filepath.Join(dir, "."+filepath.Base(clean)+"."+uuid.NewString()+".tmp")
	f, err := a.root.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	cleanup := func() {
		if rmErr := a.root.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			GetLogger().Warn("Failed to remove temporary file",
				logger.String("path", filepath.ToSlash(tmp)),
				logger.Error(rmErr))
		}
	}

	if err := write(f); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := a.root.Rename(tmp, clean); err != nil {
		cleanup()
		return fmt.Errorf("failed to move %s into place: %w", rel, err)
	}
	return nil
}
