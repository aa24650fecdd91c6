package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/acessivel/mobility/internal/clock"
	"github.com/acessivel/mobility/internal/logger"
	"github.com/acessivel/mobility/internal/storage"
)

// persistTimeout bounds each durable storage call made on behalf of a
// non-context cache operation.
const persistTimeout = 10 * time.Second

// Store is a bounded TTL cache with priority-weighted eviction and optional
// write-through persistence to a storage.KV.
type Store struct {
	mu          sync.Mutex
	entries     map[string]*Entry
	config      Config
	initialized bool

	kv       storage.KV
	clock    clock.Clock
	log      logger.Logger
	observer Observer

	stopChan chan struct{}
	sweepWG  sync.WaitGroup
}

// Option configures a Store
type Option func(*Store)

// WithKV attaches durable storage.
func WithKV(kv storage.KV) Option {
	return func(s *Store) { s.kv = kv }
}

func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// New creates a store. Call Initialize to rehydrate and start the sweep;
// the first Set does it lazily otherwise.
func New(config Config, opts ...Option) *Store {
	s := &Store{
		entries:  make(map[string]*Entry),
		config:   config.withDefaults(),
		clock:    clock.Real(),
		log:      logger.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("namespace", s.config.Namespace)
	return s
}

func (s *Store) Namespace() string { return s.config.Namespace }

func (s *Store) Config() Config { return s.config }

func (s *Store) persistent() bool {
	return s.config.EnablePersistence && s.kv != nil
}

func (s *Store) nowMs() int64 {
	return clock.Millis(s.clock.Now())
}

// Initialize loads live durable entries of this namespace and starts the
// background sweep. Calling it again is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	s.mu.Unlock()

	if s.persistent() {
		s.loadFromStorage(ctx)
	}

	s.startCleanup()
	return ctx.Err()
}

func (s *Store) loadFromStorage(ctx context.Context) {
	keys, err := s.kv.Keys(ctx, s.config.Namespace)
	if err != nil {
		s.log.Warn(fmt.Sprintf("failed to list persisted cache entries: %v", err))
		return
	}

	now := s.nowMs()
	loaded := make(map[string]*Entry, len(keys))
	var stale []string

	for _, storageKey := range keys {
		raw, err := s.kv.Get(ctx, storageKey)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				s.log.WithField("key", storageKey).Warn(fmt.Sprintf("failed to read persisted cache entry: %v", err))
			}
			continue
		}

		var pe persistedEntry
		if err := json.Unmarshal(raw, &pe); err != nil {
			s.log.WithField("key", storageKey).Warn("skipping undecodable cache entry")
			continue
		}

		entry := &Entry{
			Data:        pe.Data,
			Timestamp:   pe.Timestamp,
			Expiration:  pe.Expiration,
			AccessCount: pe.AccessCount,
			LastAccess:  pe.LastAccess,
			Priority:    pe.Priority,
		}
		if entry.expired(now) {
			stale = append(stale, storageKey)
			continue
		}
		loaded[strings.TrimPrefix(storageKey, s.config.Namespace)] = entry
	}

	for _, storageKey := range stale {
		if err := s.kv.Delete(ctx, storageKey); err != nil {
			s.log.WithField("key", storageKey).Warn(fmt.Sprintf("failed to delete expired cache entry: %v", err))
		}
	}

	s.mu.Lock()
	for k, e := range loaded {
		if _, exists := s.entries[k]; !exists {
			s.entries[k] = e
		}
	}
	// Storage can hold more than MaxSize when several processes share it.
	var evicted []string
	for len(s.entries) > s.config.MaxSize {
		evicted = append(evicted, s.evictLocked(now))
	}
	s.mu.Unlock()

	for _, key := range evicted {
		s.observer.CacheEviction(s.config.Namespace)
		if err := s.kv.Delete(ctx, s.config.Namespace+key); err != nil {
			s.log.WithField("key", key).Warn(fmt.Sprintf("failed to delete evicted cache entry: %v", err))
		}
	}

	s.log.Debug(fmt.Sprintf("loaded %d persisted cache entries, dropped %d expired, evicted %d over capacity",
		len(loaded), len(stale), len(evicted)))
}

// Set inserts or overwrites key. When the store is full and key is new,
// the entry with the lowest eviction score is dropped first.
func (s *Store) Set(key string, data any, opts SetOptions) {
	s.ensureInitialized()

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}
	priority := opts.Priority
	if priority == 0 {
		priority = s.config.DefaultPriority
	}
	priority = clampPriority(priority)
	persist := opts.Persist == nil || *opts.Persist

	now := s.nowMs()
	entry := &Entry{
		Data:        data,
		Timestamp:   now,
		Expiration:  now + ttl.Milliseconds(),
		AccessCount: 0,
		LastAccess:  now,
		Priority:    priority,
	}

	s.mu.Lock()
	var evicted string
	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.config.MaxSize {
		evicted = s.evictLocked(now)
	}
	s.entries[key] = entry
	s.mu.Unlock()

	if evicted != "" {
		s.observer.CacheEviction(s.config.Namespace)
		s.deleteDurable(evicted)
	}

	if persist && s.persistent() {
		s.writeDurable(key, entry)
	}
}

// Get returns the cached value. Expired entries are purged on the way.
func (s *Store) Get(key string) (any, bool) {
	now := s.nowMs()

	s.mu.Lock()
	entry, exists := s.entries[key]
	if !exists {
		s.mu.Unlock()
		s.observer.CacheMiss(s.config.Namespace)
		return nil, false
	}
	if entry.expired(now) {
		delete(s.entries, key)
		s.mu.Unlock()
		s.observer.CacheExpired(s.config.Namespace, 1)
		s.observer.CacheMiss(s.config.Namespace)
		s.deleteDurable(key)
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccess = now
	data := entry.Data
	s.mu.Unlock()

	s.observer.CacheHit(s.config.Namespace)
	return data, true
}

// GetAs reads key as a T. Values rehydrated from durable storage are raw
// JSON and are decoded into T, replacing the in-memory payload.
func GetAs[T any](s *Store, key string) (T, bool) {
	var zero T

	data, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	if typed, ok := data.(T); ok {
		return typed, true
	}

	raw, isRaw := data.(json.RawMessage)
	if !isRaw {
		b, err := json.Marshal(data)
		if err != nil {
			return zero, false
		}
		raw = b
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		s.log.WithField("key", key).Warn(fmt.Sprintf("cached value has unexpected shape: %v", err))
		return zero, false
	}

	s.mu.Lock()
	if entry, exists := s.entries[key]; exists {
		entry.Data = out
	}
	s.mu.Unlock()

	return out, true
}

// Has reports whether key is live without touching access statistics.
func (s *Store) Has(key string) bool {
	now := s.nowMs()

	s.mu.Lock()
	entry, exists := s.entries[key]
	if !exists {
		s.mu.Unlock()
		return false
	}
	if entry.expired(now) {
		delete(s.entries, key)
		s.mu.Unlock()
		s.observer.CacheExpired(s.config.Namespace, 1)
		s.deleteDurable(key)
		return false
	}
	s.mu.Unlock()
	return true
}

// Delete removes key from memory and durable storage.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	_, existed := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()

	s.deleteDurable(key)
	return existed
}

// Clear drops every entry of this namespace, in memory and durable.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()

	if !s.persistent() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	keys, err := s.kv.Keys(ctx, s.config.Namespace)
	if err != nil {
		s.log.Warn(fmt.Sprintf("failed to list persisted cache entries: %v", err))
		return
	}
	for _, storageKey := range keys {
		if err := s.kv.Delete(ctx, storageKey); err != nil {
			s.log.WithField("key", storageKey).Warn(fmt.Sprintf("failed to delete persisted cache entry: %v", err))
		}
	}
}

// CleanExpired removes every expired entry and returns how many were removed.
func (s *Store) CleanExpired() int {
	now := s.nowMs()

	s.mu.Lock()
	var expired []string
	for key, entry := range s.entries {
		if entry.expired(now) {
			expired = append(expired, key)
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()

	for _, key := range expired {
		s.deleteDurable(key)
	}
	if len(expired) > 0 {
		s.observer.CacheExpired(s.config.Namespace, len(expired))
	}
	return len(expired)
}

// InvalidatePattern removes every key containing substr.
func (s *Store) InvalidatePattern(substr string) int {
	s.mu.Lock()
	var matched []string
	for key := range s.entries {
		if strings.Contains(key, substr) {
			matched = append(matched, key)
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()

	for _, key := range matched {
		s.deleteDurable(key)
	}
	return len(matched)
}

// Keys returns the in-memory keys, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Size returns the number of entries held in memory, expired or not.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns cache statistics
func (s *Store) Stats() Stats {
	now := s.nowMs()

	s.mu.Lock()
	stats := Stats{
		Size:    len(s.entries),
		MaxSize: s.config.MaxSize,
	}
	var totalAge int64
	snapshot := make(map[string]Entry, len(s.entries))
	for key, entry := range s.entries {
		if entry.expired(now) {
			stats.Expired++
		}
		stats.TotalAccessCount += entry.AccessCount
		totalAge += now - entry.Timestamp
		snapshot[key] = *entry
	}
	s.mu.Unlock()

	if stats.Size > 0 {
		stats.AverageAge = time.Duration(totalAge/int64(stats.Size)) * time.Millisecond
	}
	if b, err := json.Marshal(snapshot); err == nil {
		stats.MemoryUsage = len(b)
	}
	stats.MemoryUsageHuman = FormatBytes(stats.MemoryUsage)
	return stats
}

// CleanupStorage deletes expired or undecodable durable entries of this
// namespace and returns how many were removed.
func (s *Store) CleanupStorage(ctx context.Context) int {
	if !s.persistent() {
		return 0
	}

	keys, err := s.kv.Keys(ctx, s.config.Namespace)
	if err != nil {
		s.log.Warn(fmt.Sprintf("failed to list persisted cache entries: %v", err))
		return 0
	}

	now := s.nowMs()
	removed := 0
	for _, storageKey := range keys {
		raw, err := s.kv.Get(ctx, storageKey)
		if err != nil {
			continue
		}
		var pe persistedEntry
		if err := json.Unmarshal(raw, &pe); err == nil && now <= pe.Expiration {
			continue
		}
		if err := s.kv.Delete(ctx, storageKey); err != nil {
			s.log.WithField("key", storageKey).Warn(fmt.Sprintf("failed to delete persisted cache entry: %v", err))
			continue
		}
		removed++
	}
	return removed
}

// StopCleanup stops the background sweep. Safe to call more than once.
func (s *Store) StopCleanup() {
	s.mu.Lock()
	stop := s.stopChan
	s.stopChan = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		s.sweepWG.Wait()
	}
}

// Close stops the sweep
func (s *Store) Close() error {
	s.StopCleanup()
	return nil
}

// Destroy stops the sweep, clears every entry and marks the store
// uninitialized.
func (s *Store) Destroy() {
	s.StopCleanup()
	s.Clear()

	s.mu.Lock()
	s.initialized = false
	s.mu.Unlock()
}

func (s *Store) ensureInitialized() {
	s.mu.Lock()
	ready := s.initialized
	s.mu.Unlock()

	if !ready {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		_ = s.Initialize(ctx)
	}
}

func (s *Store) startCleanup() {
	if s.config.CleanupInterval <= 0 {
		return
	}

	s.mu.Lock()
	if s.stopChan != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.stopChan = stop
	s.mu.Unlock()

	ticker := s.clock.NewTicker(s.config.CleanupInterval)
	s.sweepWG.Add(1)
	go func() {
		defer s.sweepWG.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C():
				s.sweep()
			case <-stop:
				return
			}
		}
	}()
}

func (s *Store) sweep() {
	removed := s.CleanExpired()
	if s.persistent() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		removed += s.CleanupStorage(ctx)
	}
	if removed > 0 {
		s.log.Debug(fmt.Sprintf("sweep removed %d expired cache entries", removed))
	}
}

// evictLocked removes the lowest-scoring entry and returns its key.
func (s *Store) evictLocked(now int64) string {
	victim := ""
	lowest := math.Inf(1)
	for key, entry := range s.entries {
		if sc := entry.score(now); sc < lowest {
			lowest = sc
			victim = key
		}
	}
	if victim != "" {
		delete(s.entries, victim)
	}
	return victim
}

func (s *Store) writeDurable(key string, entry *Entry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		s.log.WithField("key", key).Warn(fmt.Sprintf("failed to encode cache entry: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.kv.Put(ctx, s.config.Namespace+key, raw); err != nil {
		s.observer.CachePersistFailure(s.config.Namespace)
		s.log.WithField("key", key).Warn(fmt.Sprintf("failed to persist cache entry: %v", err))
		s.CleanupStorage(ctx)
	}
}

func (s *Store) deleteDurable(key string) {
	if !s.persistent() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.kv.Delete(ctx, s.config.Namespace+key); err != nil {
		s.log.WithField("key", key).Warn(fmt.Sprintf("failed to delete persisted cache entry: %v", err))
	}
}

func clampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}

// FormatBytes renders n as "512 B", "1.50 KB" or "2.00 MB".
func FormatBytes(n int) string {
	const k = 1024
	switch {
	case n < k:
		return fmt.Sprintf("%d B", n)
	case n < k*k:
		return fmt.Sprintf("%.2f KB", float64(n)/k)
	case n < k*k*k:
		return fmt.Sprintf("%.2f MB", float64(n)/(k*k))
	default:
		return fmt.Sprintf("%.2f GB", float64(n)/(k*k*k))
	}
}
