package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// AtomicWriter replaces files without ever exposing a partial write.
// Data is written to a temp file in the target directory, synced and
// renamed over the target. When a backup directory is set, the version
// being replaced is kept there as "<name>.bak" and served by ReadFile if
// the current file is missing, empty or rejected by Check.
type AtomicWriter struct {
	backupDir string

	// Check validates file contents on read. Nil accepts anything.
	Check func([]byte) error

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAtomicWriter creates a writer. An empty backupDir disables backups.
func NewAtomicWriter(backupDir string) *AtomicWriter {
	return &AtomicWriter{
		backupDir: backupDir,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (w *AtomicWriter) lock(path string) func() {
	w.mu.Lock()
	l, ok := w.locks[path]
	if !ok {
		l = &sync.Mutex{}
		w.locks[path] = l
	}
	w.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (w *AtomicWriter) backupPath(path string) string {
	if w.backupDir == "" {
		return ""
	}
	return filepath.Join(w.backupDir, filepath.Base(path)+".bak")
}

// WriteFile atomically replaces path with data.
func (w *AtomicWriter) WriteFile(path string, data []byte, perm os.FileMode) error {
	unlock := w.lock(path)
	defer unlock()
	return w.replace(path, data, perm)
}

func (w *AtomicWriter) replace(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}

	if backup := w.backupPath(path); backup != "" {
		if err := keepBackup(path, backup); err != nil {
			cleanup()
			return fmt.Errorf("failed to create backup: %w", err)
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// keepBackup copies the current file to backup. A missing file is fine.
func keepBackup(path, backup string) error {
	current, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(backup), 0755); err != nil {
		return err
	}
	return os.WriteFile(backup, current, 0644)
}

// ReadFile returns the contents of path. A missing, empty or invalid file
// is restored from its backup when one exists; otherwise the original
// error is returned.
func (w *AtomicWriter) ReadFile(path string) ([]byte, error) {
	unlock := w.lock(path)
	defer unlock()

	data, err := os.ReadFile(path)
	if err == nil && len(data) > 0 && w.valid(data) == nil {
		return data, nil
	}
	if err == nil {
		if len(data) == 0 {
			err = errors.New("file is empty")
		} else {
			err = w.valid(data)
		}
	}

	backup := w.backupPath(path)
	if backup == "" {
		return nil, err
	}
	saved, berr := os.ReadFile(backup)
	if berr != nil || w.valid(saved) != nil {
		return nil, err
	}
	if rerr := w.replace(path, saved, 0644); rerr != nil {
		return nil, fmt.Errorf("failed to restore backup: %w", rerr)
	}
	return saved, nil
}

func (w *AtomicWriter) valid(data []byte) error {
	if w.Check == nil {
		return nil
	}
	return w.Check(data)
}

// Remove deletes path and its backup. Missing files are not an error.
func (w *AtomicWriter) Remove(path string) error {
	unlock := w.lock(path)
	defer unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if backup := w.backupPath(path); backup != "" {
		if err := os.Remove(backup); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
