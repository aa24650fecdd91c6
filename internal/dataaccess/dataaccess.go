// Package dataaccess wraps the document store with read-through caching,
// cursor pagination, batched and diff-based writes, and quota accounting
// sized for the backend's free plan.
package dataaccess

import (
	"time"

	"github.com/acessivel/mobility/internal/cache"
	"github.com/acessivel/mobility/internal/clock"
	"github.com/acessivel/mobility/internal/docstore"
	"github.com/acessivel/mobility/internal/logger"
	"github.com/acessivel/mobility/internal/quota"
)

// Collections used by the application.
const (
	CollectionUsers             = "usuarios"
	CollectionDrivers           = "motoristas"
	CollectionRides             = "corridas"
	CollectionEmergencyContacts = "contatos_emergencia"
)

// Cache lifetimes per category of data.
const (
	DefaultTTL           = 5 * time.Minute
	UserProfileTTL       = 30 * time.Minute
	DriverListTTL        = 2 * time.Minute
	RideHistoryTTL       = 15 * time.Minute
	EmergencyContactsTTL = time.Hour
)

// Query limits that keep reads inside the daily budget.
const (
	nearbyUsersLimit       = 20
	availableDriversLimit  = 15
	rideStatsLimit         = 1000
	profileContactsLimit   = 5
	emergencyContactsLimit = 20
	profileRecentRideLimit = 3
	defaultPageSize        = 10
)

// UpdatedAtField is stamped on every conditional update.
const UpdatedAtField = "atualizadoEm"

// Record is a document flattened with its "id".
type Record = map[string]any

// Helpers composes the document store, the domain caches and the quota
// monitor. It is safe for concurrent use.
type Helpers struct {
	store   docstore.Store
	caches  *cache.Domains
	monitor *quota.Monitor
	log     logger.Logger
	clock   clock.Clock

	pages *Paginator
}

type Option func(*Helpers)

func WithLogger(l logger.Logger) Option {
	return func(h *Helpers) { h.log = l }
}

func WithClock(c clock.Clock) Option {
	return func(h *Helpers) { h.clock = c }
}

// New builds the helpers. Results are cached in the general domain store
// and never persisted.
func New(store docstore.Store, caches *cache.Domains, monitor *quota.Monitor, opts ...Option) *Helpers {
	h := &Helpers{
		store:   store,
		caches:  caches,
		monitor: monitor,
		log:     logger.NewNop(),
		clock:   clock.Real(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.WithField("component", "dataaccess")
	h.pages = newPaginator(h)
	return h
}

// Pagination returns the cursor paginator sharing this helper's cache.
func (h *Helpers) Pagination() *Paginator {
	return h.pages
}

// Monitor returns the quota monitor charged by every helper.
func (h *Helpers) Monitor() *quota.Monitor {
	return h.monitor
}

func (h *Helpers) cache() *cache.Store {
	return h.caches.General()
}

func (h *Helpers) remember(key string, value any, ttl time.Duration) {
	h.cache().Set(key, value, cache.SetOptions{TTL: ttl, Persist: cache.Persist(false)})
}

// invalidate drops every cached key mentioning collection, in all domains.
func (h *Helpers) invalidate(collection string) {
	n := h.caches.InvalidatePattern(collection)
	if n > 0 {
		h.log.WithField("collection", collection).Debug("invalidated cached queries")
	}
}

// cloneRecords deep-copies records so callers never share maps with the
// cache.
func cloneRecords(in []Record) []Record {
	if in == nil {
		return nil
	}
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = cloneValue(r).(map[string]any)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []map[string]any:
		return cloneRecords(t)
	default:
		return v
	}
}

func flatten(docs []docstore.Document) []Record {
	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Flatten())
	}
	return out
}

// chargeReads accounts n document reads, at least one per query.
func (h *Helpers) chargeReads(n int) {
	if n < 1 {
		n = 1
	}
	h.monitor.TrackRead(n)
}
