package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acessivel/mobility/internal/clock"
	"github.com/acessivel/mobility/internal/docstore"
	"github.com/acessivel/mobility/internal/logger"
	"github.com/acessivel/mobility/internal/storage"
	"github.com/acessivel/mobility/pkg/config"
)

func newViaCEP(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/01310100/json/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"cep":"01310-100","logradouro":"Avenida Paulista","bairro":"Bela Vista","localidade":"São Paulo","uf":"SP"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestContainer(t *testing.T, mutate func(*config.Config)) (*Container, *clock.Fake, *storage.MemoryKV) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Lookup.ViaCEPURL = newViaCEP(t).URL
	cfg.Lookup.MinInterval = 0
	if mutate != nil {
		mutate(cfg)
	}

	fc := clock.NewFake(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC))
	kv := storage.NewMemoryKV(0)

	c, err := New(context.Background(), cfg, logger.NewNop(),
		WithClock(fc),
		WithKV(kv),
		WithDocStore(docstore.NewMemory()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, fc, kv
}

func TestNew_WiresServices(t *testing.T) {
	c, _, _ := newTestContainer(t, nil)

	assert.NotNil(t, c.Caches)
	assert.NotNil(t, c.Quota)
	assert.NotNil(t, c.Postal)
	assert.NotNil(t, c.Geocoding)
	assert.NotNil(t, c.Data)
	assert.Same(t, c.Quota, c.Data.Monitor())
	assert.Equal(t, int64(50000), c.Quota.Limits().Reads)

	stats := c.CacheStats()
	assert.Len(t, stats, 3)
	assert.Contains(t, stats, "location")
	assert.Contains(t, stats, "geocoding")
	assert.Contains(t, stats, "general")
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend.Type = "firestore"

	_, err := New(context.Background(), cfg, nil, WithKV(storage.NewMemoryKV(0)))
	assert.Error(t, err)
}

func TestNew_PersistenceDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Persist = false

	c, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Nil(t, c.KV)
}

func TestContainer_PostalLookupPersists(t *testing.T) {
	c, _, kv := newTestContainer(t, nil)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	addr, err := c.Postal.GetAddressByCep(ctx, "01310-100")
	require.NoError(t, err)
	require.NotNil(t, addr)
	assert.Equal(t, "Avenida Paulista", addr.Street)

	assert.Equal(t, 1, c.CacheStats()["location"].Size)

	keys, err := kv.Keys(ctx, "location_cache_")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, strings.HasSuffix(keys[0], "cep:01310100"))
}

func TestContainer_SweepLookups(t *testing.T) {
	c, fc, _ := newTestContainer(t, func(cfg *config.Config) {
		cfg.Cache.LookupSweepInterval = 0
	})
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	_, err := c.Postal.GetAddressByCep(ctx, "01310100")
	require.NoError(t, err)

	assert.Equal(t, 0, c.SweepLookups())

	// The store's own sweep may win the race for the expired entry.
	fc.Set(fc.Now().Add(25 * time.Hour))
	assert.LessOrEqual(t, c.SweepLookups(), 1)
	assert.Equal(t, 0, c.CacheStats()["location"].Size)
}

func TestContainer_PeriodicSweep(t *testing.T) {
	c, fc, _ := newTestContainer(t, nil)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	_, err := c.Postal.GetAddressByCep(ctx, "01310100")
	require.NoError(t, err)

	fc.Advance(25 * time.Hour)
	assert.Eventually(t, func() bool {
		return c.CacheStats()["location"].Size == 0
	}, time.Second, 10*time.Millisecond)
}

func TestContainer_StartIsIdempotentAndCloseTwice(t *testing.T) {
	c, _, _ := newTestContainer(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestContainer_CloseReturnsWithDefaultSweep(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.BaseDir = t.TempDir()
	require.Greater(t, cfg.Cache.LookupSweepInterval, time.Duration(0))

	for i := 0; i < 5; i++ {
		c, err := New(context.Background(), cfg, logger.NewNop())
		require.NoError(t, err)
		require.NoError(t, c.Start(context.Background()))

		closed := make(chan error, 1)
		go func() { closed <- c.Close() }()
		select {
		case err := <-closed:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatalf("Close did not return on cycle %d", i)
		}
	}
}

func TestContainer_CleanCaches(t *testing.T) {
	c, fc, _ := newTestContainer(t, func(cfg *config.Config) {
		cfg.Cache.LookupSweepInterval = 0
	})
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	_, err := c.Postal.GetAddressByCep(ctx, "01310100")
	require.NoError(t, err)

	fc.Set(fc.Now().Add(25 * time.Hour))
	removed := c.CleanCaches()
	assert.Len(t, removed, 3)
	assert.LessOrEqual(t, removed["location"], 1)
	assert.Equal(t, 0, removed["geocoding"])
	assert.Equal(t, 0, c.CacheStats()["location"].Size)
}

func TestSetupLogging(t *testing.T) {
	l := logger.NewLogrus()
	file := filepath.Join(t.TempDir(), "acessivel.log")

	closer, err := SetupLogging(l, config.LoggingConfig{Level: "info", Format: "text", File: file}, false, false)
	require.NoError(t, err)

	l.WithField("cep", "01310100").Info("looked up")
	l.Debug("hidden")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "looked up")
	assert.Contains(t, string(data), "cep=01310100")
	assert.NotContains(t, string(data), "hidden")
}

func TestSetupLogging_DebugUsesJSON(t *testing.T) {
	l := logger.NewLogrus()
	file := filepath.Join(t.TempDir(), "debug.log")

	closer, err := SetupLogging(l, config.LoggingConfig{Level: "error", File: file}, true, false)
	require.NoError(t, err)

	l.Debug("visible")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"visible"`)
}

func TestSetupLogging_BadFile(t *testing.T) {
	_, err := SetupLogging(logger.NewLogrus(), config.LoggingConfig{File: filepath.Join(t.TempDir(), "missing", "x.log")}, false, false)
	assert.Error(t, err)
}
