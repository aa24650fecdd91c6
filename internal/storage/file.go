package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileKV stores one JSON file per key under a base directory.
// File names are hashes of the key; the key itself lives inside the file so
// arbitrary cache keys (JSON option blobs, accents, slashes) are safe.
type FileKV struct {
	baseDir string
	writer  *AtomicWriter
}

type fileRecord struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// NewFileKV creates the directory if needed.
func NewFileKV(baseDir, backupDir string) (*FileKV, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("storage base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	writer := NewAtomicWriter(backupDir)
	writer.Check = func(b []byte) error {
		if !json.Valid(b) {
			return fmt.Errorf("corrupt entry file")
		}
		return nil
	}
	return &FileKV{baseDir: baseDir, writer: writer}, nil
}

func (f *FileKV) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.baseDir, hex.EncodeToString(sum[:])+".json")
}

func (f *FileKV) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := f.writer.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return rec.Value, nil
}

func (f *FileKV) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(fileRecord{Key: key, Value: value})
	if err != nil {
		return err
	}
	if err := f.writer.WriteFile(f.path(key), data, 0644); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (f *FileKV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.writer.Remove(f.path(key))
}

func (f *FileKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(f.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(f.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		var rec fileRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue // Skip foreign or corrupt files
		}
		if strings.HasPrefix(rec.Key, prefix) {
			keys = append(keys, rec.Key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}
