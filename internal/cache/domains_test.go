package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acessivel/mobility/internal/clock"
	"github.com/acessivel/mobility/internal/storage"
)

func TestDomains_Configuration(t *testing.T) {
	d := NewDomains(storage.NewMemoryKV(0))

	loc := d.Get(DomainLocation).Config()
	assert.Equal(t, "location_cache_", loc.Namespace)
	assert.Equal(t, 24*time.Hour, loc.DefaultTTL)
	assert.Equal(t, 500, loc.MaxSize)

	geo := d.Geocoding().Config()
	assert.Equal(t, "geocoding_cache_", geo.Namespace)
	assert.Equal(t, time.Hour, geo.DefaultTTL)
	assert.Equal(t, 200, geo.MaxSize)

	gen := d.General().Config()
	assert.Equal(t, "general_cache_", gen.Namespace)
	assert.Equal(t, 30*time.Minute, gen.DefaultTTL)
	assert.Equal(t, 300, gen.MaxSize)
	assert.Equal(t, 5*time.Minute, gen.CleanupInterval)

	assert.Nil(t, d.Get(Domain(42)))
	assert.Equal(t, "unknown", Domain(42).String())
}

func TestDomains_SharedKVSeparateNamespaces(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV(0)
	d := NewDomains(kv, WithClock(clock.NewFake(epoch)))
	require.NoError(t, d.Initialize(ctx))
	defer d.Close()

	d.Location().Set("cep:01310100", "a", SetOptions{})
	d.Geocoding().Set("nominatim:x", "b", SetOptions{})

	keys, err := kv.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"geocoding_cache_nominatim:x", "location_cache_cep:01310100"}, keys)
}

func TestDomains_InvalidatePatternAcrossStores(t *testing.T) {
	d := NewDomains(storage.NewMemoryKV(0), WithClock(clock.NewFake(epoch)))
	require.NoError(t, d.Initialize(context.Background()))
	defer d.Close()

	d.General().Set("corridas_page_0_10", 1, SetOptions{})
	d.Location().Set("corridas_nearby", 2, SetOptions{})
	d.Geocoding().Set("unrelated", 3, SetOptions{})

	assert.Equal(t, 2, d.InvalidatePattern("corridas"))
	assert.True(t, d.Geocoding().Has("unrelated"))

	stats := d.Stats()
	assert.Equal(t, 0, stats[DomainGeneral].Size)
	assert.Equal(t, 1, stats[DomainGeocoding].Size)
}

func TestDomains_CleanExpired(t *testing.T) {
	fake := clock.NewFake(epoch)
	d := NewDomains(nil, WithClock(fake))
	require.NoError(t, d.Initialize(context.Background()))
	defer d.Close()

	d.General().Set("a", 1, SetOptions{TTL: time.Second})
	d.Location().Set("b", 1, SetOptions{})
	fake.Advance(2 * time.Second)

	removed := d.CleanExpired()
	assert.Equal(t, map[Domain]int{DomainLocation: 0, DomainGeocoding: 0, DomainGeneral: 1}, removed)
}

func TestParseDomain(t *testing.T) {
	d, ok := ParseDomain("geocoding")
	assert.True(t, ok)
	assert.Equal(t, DomainGeocoding, d)

	_, ok = ParseDomain("nope")
	assert.False(t, ok)
}
