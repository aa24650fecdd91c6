package cache

import (
	"context"
	"time"

	"github.com/acessivel/mobility/internal/storage"
)

// Domain names one of the application's cache instances.
type Domain int

const (
	DomainLocation Domain = iota
	DomainGeocoding
	DomainGeneral
)

// AllDomains lists every domain in a stable order.
var AllDomains = []Domain{DomainLocation, DomainGeocoding, DomainGeneral}

func (d Domain) String() string {
	switch d {
	case DomainLocation:
		return "location"
	case DomainGeocoding:
		return "geocoding"
	case DomainGeneral:
		return "general"
	default:
		return "unknown"
	}
}

// ParseDomain is the inverse of String.
func ParseDomain(name string) (Domain, bool) {
	for _, d := range AllDomains {
		if d.String() == name {
			return d, true
		}
	}
	return 0, false
}

// DomainConfigs are the fixed per-domain settings.
var DomainConfigs = map[Domain]Config{
	DomainLocation: {
		Namespace:         "location_cache_",
		DefaultTTL:        24 * time.Hour,
		MaxSize:           500,
		EnablePersistence: true,
		CleanupInterval:   DefaultCleanupInterval,
		DefaultPriority:   DefaultPriority,
	},
	DomainGeocoding: {
		Namespace:         "geocoding_cache_",
		DefaultTTL:        time.Hour,
		MaxSize:           200,
		EnablePersistence: true,
		CleanupInterval:   DefaultCleanupInterval,
		DefaultPriority:   DefaultPriority,
	},
	DomainGeneral: {
		Namespace:         "general_cache_",
		DefaultTTL:        30 * time.Minute,
		MaxSize:           300,
		EnablePersistence: true,
		CleanupInterval:   DefaultCleanupInterval,
		DefaultPriority:   DefaultPriority,
	},
}

// Domains holds the location, geocoding and general stores, all sharing
// one durable KV.
type Domains struct {
	stores map[Domain]*Store
}

// NewDomains builds the three domain stores. opts apply to each of them.
func NewDomains(kv storage.KV, opts ...Option) *Domains {
	d := &Domains{stores: make(map[Domain]*Store, len(AllDomains))}
	for _, domain := range AllDomains {
		storeOpts := append([]Option{WithKV(kv)}, opts...)
		d.stores[domain] = New(DomainConfigs[domain], storeOpts...)
	}
	return d
}

// Get returns the store for domain, or nil for an unknown domain.
func (d *Domains) Get(domain Domain) *Store {
	return d.stores[domain]
}

func (d *Domains) Location() *Store  { return d.stores[DomainLocation] }
func (d *Domains) Geocoding() *Store { return d.stores[DomainGeocoding] }
func (d *Domains) General() *Store   { return d.stores[DomainGeneral] }

// Initialize rehydrates every store and starts their sweeps.
func (d *Domains) Initialize(ctx context.Context) error {
	for _, domain := range AllDomains {
		if err := d.stores[domain].Initialize(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *Domains) Close() error {
	for _, domain := range AllDomains {
		d.stores[domain].Close()
	}
	return nil
}

// InvalidatePattern removes keys containing substr from every store.
func (d *Domains) InvalidatePattern(substr string) int {
	total := 0
	for _, domain := range AllDomains {
		total += d.stores[domain].InvalidatePattern(substr)
	}
	return total
}

func (d *Domains) CleanExpired() map[Domain]int {
	out := make(map[Domain]int, len(AllDomains))
	for _, domain := range AllDomains {
		out[domain] = d.stores[domain].CleanExpired()
	}
	return out
}

func (d *Domains) Stats() map[Domain]Stats {
	out := make(map[Domain]Stats, len(AllDomains))
	for _, domain := range AllDomains {
		out[domain] = d.stores[domain].Stats()
	}
	return out
}

// Clear empties every store.
func (d *Domains) Clear() {
	for _, domain := range AllDomains {
		d.stores[domain].Clear()
	}
}
