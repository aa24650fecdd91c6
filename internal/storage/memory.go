package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryKV is a process-local KV. With maxBytes > 0 it rejects writes that
// would exceed the budget with ErrQuotaExceeded, like browser storage does.
type MemoryKV struct {
	mu       sync.RWMutex
	data     map[string][]byte
	used     int
	maxBytes int
}

func NewMemoryKV(maxBytes int) *MemoryKV {
	return &MemoryKV{
		data:     make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := len(key) + len(value)
	prev := 0
	if old, ok := m.data[key]; ok {
		prev = len(key) + len(old)
	}
	if m.maxBytes > 0 && m.used-prev+size > m.maxBytes {
		return ErrQuotaExceeded
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	m.used += size - prev
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.data[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryKV) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len reports the number of stored keys.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
