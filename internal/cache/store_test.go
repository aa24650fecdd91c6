package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acessivel/mobility/internal/clock"
	"github.com/acessivel/mobility/internal/storage"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingObserver struct {
	mu             sync.Mutex
	hits, misses   int
	evictions      int
	expired        int
	persistFailure int
}

func (r *recordingObserver) CacheHit(string)      { r.mu.Lock(); r.hits++; r.mu.Unlock() }
func (r *recordingObserver) CacheMiss(string)     { r.mu.Lock(); r.misses++; r.mu.Unlock() }
func (r *recordingObserver) CacheEviction(string) { r.mu.Lock(); r.evictions++; r.mu.Unlock() }
func (r *recordingObserver) CacheExpired(_ string, n int) {
	r.mu.Lock()
	r.expired += n
	r.mu.Unlock()
}
func (r *recordingObserver) CachePersistFailure(string) {
	r.mu.Lock()
	r.persistFailure++
	r.mu.Unlock()
}

type address struct {
	ZipCode string `json:"zipCode"`
	City    string `json:"city"`
}

func newTestStore(t *testing.T, cfg Config, opts ...Option) (*Store, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(epoch)
	s := New(cfg, append([]Option{WithClock(fake)}, opts...)...)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s, fake
}

func testConfig() Config {
	return Config{
		Namespace:         "test_cache_",
		DefaultTTL:        time.Minute,
		MaxSize:           10,
		EnablePersistence: true,
		CleanupInterval:   0,
	}
}

func TestStore_SetGet(t *testing.T) {
	s, _ := newTestStore(t, testConfig())

	s.Set("cep:01310100", address{ZipCode: "01310-100", City: "São Paulo"}, SetOptions{})

	got, ok := s.Get("cep:01310100")
	require.True(t, ok)
	assert.Equal(t, address{ZipCode: "01310-100", City: "São Paulo"}, got)

	_, ok = s.Get("cep:99999999")
	assert.False(t, ok)
}

func TestStore_ExpiryWithoutSweep(t *testing.T) {
	kv := storage.NewMemoryKV(0)
	s, fake := newTestStore(t, testConfig(), WithKV(kv))

	s.Set("short", "v", SetOptions{TTL: time.Second})
	assert.True(t, s.Has("short"))

	fake.Advance(time.Second)
	assert.True(t, s.Has("short"), "entry is live until its expiration instant has passed")

	fake.Advance(time.Millisecond)
	assert.False(t, s.Has("short"))
	_, ok := s.Get("short")
	assert.False(t, ok)

	_, err := kv.Get(context.Background(), "test_cache_short")
	assert.ErrorIs(t, err, storage.ErrNotFound, "expired entry should be purged from durable storage")
}

func TestStore_GetExpiredPurges(t *testing.T) {
	obs := &recordingObserver{}
	s, fake := newTestStore(t, testConfig(), WithObserver(obs))

	s.Set("k", 1, SetOptions{TTL: time.Second})
	fake.Advance(2 * time.Second)

	_, ok := s.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Size())
	assert.Equal(t, 1, obs.expired)
	assert.Equal(t, 1, obs.misses)
}

func TestStore_EvictsLowestScore(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 3
	obs := &recordingObserver{}
	s, _ := newTestStore(t, cfg, WithObserver(obs))

	s.Set("a", "A", SetOptions{})
	s.Set("b", "B", SetOptions{})
	s.Set("c", "C", SetOptions{})

	s.Get("a")
	s.Get("a")
	s.Get("b")

	s.Set("d", "D", SetOptions{})

	assert.Equal(t, 3, s.Size())
	assert.Equal(t, []string{"a", "b", "d"}, s.Keys())
	assert.Equal(t, 1, obs.evictions)
}

func TestStore_PriorityOutweighsAccess(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 2
	s, _ := newTestStore(t, cfg)

	s.Set("important", 1, SetOptions{Priority: 9})
	s.Set("popular", 2, SetOptions{Priority: 1})
	for i := 0; i < 5; i++ {
		s.Get("popular")
	}

	// popular: 100 + 50 = 150, important: 900
	s.Set("new", 3, SetOptions{})
	assert.True(t, s.Has("important"))
	assert.False(t, s.Has("popular"))
}

func TestStore_RecencyBreaksTies(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 2
	cfg.DefaultTTL = time.Hour
	s, fake := newTestStore(t, cfg)

	s.Set("old", 1, SetOptions{})
	fake.Advance(30 * time.Second)
	s.Set("recent", 2, SetOptions{})

	s.Set("new", 3, SetOptions{})
	assert.Equal(t, []string{"new", "recent"}, s.Keys())
}

func TestStore_OverwriteAtCapacityDoesNotEvict(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 2
	s, _ := newTestStore(t, cfg)

	s.Set("a", 1, SetOptions{})
	s.Set("b", 2, SetOptions{})
	s.Set("a", 3, SetOptions{})

	assert.Equal(t, 2, s.Size())
	got, _ := s.Get("a")
	assert.Equal(t, 3, got)
}

func TestStore_RehydratesFromStorage(t *testing.T) {
	kv := storage.NewMemoryKV(0)
	first, fake := newTestStore(t, testConfig(), WithKV(kv))
	first.Set("cep:01310100", address{ZipCode: "01310-100", City: "São Paulo"}, SetOptions{})
	first.Set("memory-only", "x", SetOptions{Persist: Persist(false)})
	first.Close()

	second := New(testConfig(), WithKV(kv), WithClock(fake))
	require.NoError(t, second.Initialize(context.Background()))
	defer second.Close()

	raw, ok := second.Get("cep:01310100")
	require.True(t, ok)
	assert.IsType(t, json.RawMessage{}, raw)

	addr, ok := GetAs[address](second, "cep:01310100")
	require.True(t, ok)
	assert.Equal(t, "São Paulo", addr.City)

	// payload is replaced by the decoded value
	again, _ := second.Get("cep:01310100")
	assert.Equal(t, addr, again)

	assert.False(t, second.Has("memory-only"))
}

func TestStore_RehydrateRespectsMaxSize(t *testing.T) {
	kv := storage.NewMemoryKV(0)
	writer, fake := newTestStore(t, testConfig(), WithKV(kv))
	for i := 1; i <= 6; i++ {
		writer.Set(fmt.Sprintf("p%d", i), i, SetOptions{Priority: i})
	}
	writer.Close()

	cfg := testConfig()
	cfg.MaxSize = 3
	obs := &recordingObserver{}
	reader := New(cfg, WithKV(kv), WithClock(fake), WithObserver(obs))
	require.NoError(t, reader.Initialize(context.Background()))
	defer reader.Close()

	assert.Equal(t, 3, reader.Size())
	assert.ElementsMatch(t, []string{"p4", "p5", "p6"}, reader.Keys())
	assert.Equal(t, 3, obs.evictions)

	persisted, err := kv.Keys(context.Background(), cfg.Namespace)
	require.NoError(t, err)
	assert.Len(t, persisted, 3)

	reader.Set("new", "x", SetOptions{})
	assert.Equal(t, 3, reader.Size())
	assert.False(t, reader.Has("p4"))
	assert.True(t, reader.Has("p6"))
}

func TestStore_InitializeDropsExpiredDurableEntries(t *testing.T) {
	kv := storage.NewMemoryKV(0)
	first, fake := newTestStore(t, testConfig(), WithKV(kv))
	first.Set("stale", "x", SetOptions{TTL: time.Second})
	first.Set("fresh", "y", SetOptions{TTL: time.Hour})
	first.Close()

	fake.Advance(time.Minute)

	require.NoError(t, kv.Put(context.Background(), "test_cache_garbage", []byte("not json")))

	second := New(testConfig(), WithKV(kv), WithClock(fake))
	require.NoError(t, second.Initialize(context.Background()))
	defer second.Close()

	assert.Equal(t, []string{"fresh"}, second.Keys())
	_, err := kv.Get(context.Background(), "test_cache_stale")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_InitializeIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	s.Set("k", 1, SetOptions{})
	require.NoError(t, s.Initialize(context.Background()))
	assert.True(t, s.Has("k"))
}

func TestStore_SetInitializesLazily(t *testing.T) {
	kv := storage.NewMemoryKV(0)
	fake := clock.NewFake(epoch)
	seed := New(testConfig(), WithKV(kv), WithClock(fake))
	seed.Set("seeded", "v", SetOptions{})
	seed.Close()

	s := New(testConfig(), WithKV(kv), WithClock(fake))
	defer s.Close()
	s.Set("other", "w", SetOptions{})

	assert.True(t, s.Has("seeded"))
}

func TestStore_PersistFailureTriggersStorageCleanup(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV(200)
	obs := &recordingObserver{}
	s, _ := newTestStore(t, testConfig(), WithKV(kv), WithObserver(obs))

	require.NoError(t, kv.Put(ctx, "test_cache_old", []byte(`{"data":1,"expiration":1}`)))

	s.Set("big", strings.Repeat("x", 300), SetOptions{})

	got, ok := s.Get("big")
	require.True(t, ok, "in-memory entry stays valid when persistence fails")
	assert.Len(t, got, 300)
	assert.Equal(t, 1, obs.persistFailure)

	_, err := kv.Get(ctx, "test_cache_old")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_SweepRemovesExpired(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.CleanupInterval = time.Minute
	kv := storage.NewMemoryKV(0)
	s, fake := newTestStore(t, cfg, WithKV(kv))

	s.Set("soon", 1, SetOptions{TTL: 30 * time.Second})
	s.Set("later", 2, SetOptions{TTL: time.Hour})
	require.NoError(t, kv.Put(ctx, "test_cache_orphan", []byte(`{"data":1,"expiration":1}`)))

	fake.Advance(time.Minute)

	assert.Eventually(t, func() bool {
		_, err := kv.Get(ctx, "test_cache_orphan")
		return s.Size() == 1 && err == storage.ErrNotFound
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"later"}, s.Keys())
}

func TestStore_DeleteClearInvalidate(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV(0)
	s, _ := newTestStore(t, testConfig(), WithKV(kv))

	s.Set("usuarios_page_0_10", 1, SetOptions{})
	s.Set("usuarios_page_1_10", 2, SetOptions{})
	s.Set("corridas_page_0_10", 3, SetOptions{})
	require.NoError(t, kv.Put(ctx, "other_ns_key", []byte("{}")))

	assert.Equal(t, 2, s.InvalidatePattern("usuarios"))
	assert.Equal(t, []string{"corridas_page_0_10"}, s.Keys())

	assert.True(t, s.Delete("corridas_page_0_10"))
	assert.False(t, s.Delete("corridas_page_0_10"))

	s.Set("x", 1, SetOptions{})
	s.Clear()
	assert.Equal(t, 0, s.Size())

	keys, err := kv.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"other_ns_key"}, keys, "Clear only touches its own namespace")
}

func TestStore_Stats(t *testing.T) {
	s, fake := newTestStore(t, testConfig())

	s.Set("a", "A", SetOptions{TTL: time.Second})
	fake.Advance(2 * time.Second)
	s.Set("b", "B", SetOptions{})
	s.Get("b")
	s.Get("b")

	stats := s.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 10, stats.MaxSize)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, int64(2), stats.TotalAccessCount)
	assert.Equal(t, time.Second, stats.AverageAge)
	assert.Greater(t, stats.MemoryUsage, 0)
	assert.True(t, strings.HasSuffix(stats.MemoryUsageHuman, " B"))
}

func TestStore_Destroy(t *testing.T) {
	cfg := testConfig()
	cfg.CleanupInterval = time.Minute
	s, _ := newTestStore(t, cfg)

	s.Set("k", 1, SetOptions{})
	s.Destroy()
	assert.Equal(t, 0, s.Size())

	// StopCleanup after Destroy is harmless
	s.StopCleanup()
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.50 KB"},
		{2 * 1024 * 1024, "2.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "cep:01310100", GenerateKey("cep", "01310100"))
	assert.Equal(t, "prefix", GenerateKey("prefix"))
}

func TestGetAs_WrongShape(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	s.Set("n", "not an address", SetOptions{})

	_, ok := GetAs[address](s, "n")
	assert.False(t, ok)
}

func TestStore_PriorityClamped(t *testing.T) {
	kv := storage.NewMemoryKV(0)
	s, _ := newTestStore(t, testConfig(), WithKV(kv))

	s.Set("hi", 1, SetOptions{Priority: 50})
	s.Set("lo", 1, SetOptions{Priority: -3})

	for key, want := range map[string]int{"hi": 10, "lo": 1} {
		raw, err := kv.Get(context.Background(), "test_cache_"+key)
		require.NoError(t, err)
		var e Entry
		require.NoError(t, json.Unmarshal(raw, &e))
		assert.Equal(t, want, e.Priority)
	}
}
