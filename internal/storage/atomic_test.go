package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriter_WriteKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	writer := NewAtomicWriter(backupDir)
	path := filepath.Join(dir, "entry.json")

	require.NoError(t, writer.WriteFile(path, []byte(`{"v":1}`), 0644))
	_, err := os.Stat(filepath.Join(backupDir, "entry.json.bak"))
	assert.True(t, os.IsNotExist(err), "first write has nothing to back up")

	require.NoError(t, writer.WriteFile(path, []byte(`{"v":2}`), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	backup, err := os.ReadFile(filepath.Join(backupDir, "entry.json.bak"))
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(backup))
}

func TestAtomicWriter_ConcurrentWrites(t *testing.T) {
	writer := NewAtomicWriter("")
	path := filepath.Join(t.TempDir(), "concurrent.json")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, writer.WriteFile(path, []byte(fmt.Sprintf("writer-%d", i)), 0644))
		}(i)
	}
	wg.Wait()

	data, err := writer.ReadFile(path)
	require.NoError(t, err)
	assert.Regexp(t, `^writer-\d$`, string(data))

	leftovers, _ := filepath.Glob(path + ".tmp.*")
	assert.Empty(t, leftovers)
}

func TestAtomicWriter_RecoversCorruptFile(t *testing.T) {
	dir := t.TempDir()
	writer := NewAtomicWriter(filepath.Join(dir, "backups"))
	writer.Check = func(b []byte) error {
		if !json.Valid(b) {
			return fmt.Errorf("invalid json")
		}
		return nil
	}
	path := filepath.Join(dir, "recover.json")

	require.NoError(t, writer.WriteFile(path, []byte(`"original"`), 0644))
	require.NoError(t, writer.WriteFile(path, []byte(`"second"`), 0644))

	require.NoError(t, os.WriteFile(path, []byte(`{"trunc`), 0644))
	data, err := writer.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `"original"`, string(data))

	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `"original"`, string(restored))
}

func TestAtomicWriter_EmptyWithoutBackup(t *testing.T) {
	writer := NewAtomicWriter("")
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := writer.ReadFile(path)
	assert.Error(t, err)

	_, err = writer.ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestAtomicWriter_Remove(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	writer := NewAtomicWriter(backupDir)
	path := filepath.Join(dir, "gone.json")

	require.NoError(t, writer.WriteFile(path, []byte("a"), 0644))
	require.NoError(t, writer.WriteFile(path, []byte("b"), 0644))

	require.NoError(t, writer.Remove(path))
	_, err := writer.ReadFile(path)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(backupDir, "gone.json.bak"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, writer.Remove(path))
}

func BenchmarkAtomicWriter_WriteFile(b *testing.B) {
	writer := NewAtomicWriter("")
	path := filepath.Join(b.TempDir(), "bench.json")
	data := []byte(`{"data":{"cep":"01310-100"},"priority":5}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := writer.WriteFile(path, data, 0644); err != nil {
			b.Fatal(err)
		}
	}
}
