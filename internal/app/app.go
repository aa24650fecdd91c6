// Package app wires the configured services into one container shared by
// the CLI commands and the HTTP server.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/acessivel/mobility/internal/cache"
	"github.com/acessivel/mobility/internal/clock"
	"github.com/acessivel/mobility/internal/dataaccess"
	"github.com/acessivel/mobility/internal/docstore"
	"github.com/acessivel/mobility/internal/geocoding"
	"github.com/acessivel/mobility/internal/logger"
	"github.com/acessivel/mobility/internal/lookup"
	"github.com/acessivel/mobility/internal/metrics"
	"github.com/acessivel/mobility/internal/postal"
	"github.com/acessivel/mobility/internal/quota"
	"github.com/acessivel/mobility/internal/storage"
	"github.com/acessivel/mobility/pkg/config"
)

// Container holds every service built from one configuration.
type Container struct {
	Config    *config.Config
	Log       logger.Logger
	Clock     clock.Clock
	KV        storage.KV
	Caches    *cache.Domains
	Quota     *quota.Monitor
	Metrics   *metrics.Metrics
	Postal    *postal.Client
	Geocoding *geocoding.Client
	Store     docstore.Store
	Data      *dataaccess.Helpers

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

type options struct {
	clock clock.Clock
	kv    storage.KV
	store docstore.Store
	http  lookup.HTTPDoer
}

// Option overrides a dependency New would otherwise build from config.
type Option func(*options)

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithKV(kv storage.KV) Option {
	return func(o *options) { o.kv = kv }
}

func WithDocStore(s docstore.Store) Option {
	return func(o *options) { o.store = s }
}

func WithHTTPClient(d lookup.HTTPDoer) Option {
	return func(o *options) { o.http = d }
}

// New builds the container. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}

	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{
		Config:  cfg,
		Log:     log,
		Clock:   o.clock,
		Metrics: metrics.New(),
	}

	kv, err := c.openKV(ctx, o.kv)
	if err != nil {
		return nil, err
	}
	c.KV = kv

	c.Caches = cache.NewDomains(kv,
		cache.WithClock(c.Clock),
		cache.WithLogger(log.WithField("component", "cache")),
		cache.WithObserver(c.Metrics),
	)

	c.Quota = quota.NewMonitor(
		quota.WithLimits(quota.Limits{
			Reads:     cfg.Quota.Reads,
			Writes:    cfg.Quota.Writes,
			Deletes:   cfg.Quota.Deletes,
			NearRatio: cfg.Quota.NearRatio,
		}),
		quota.WithClock(c.Clock),
		quota.WithObserver(c.Metrics),
	)

	httpClient := o.http
	if httpClient == nil {
		httpClient = lookup.NewHTTPClient(cfg.Lookup.Timeout)
	}

	c.Postal = postal.New(
		postal.WithBaseURL(cfg.Lookup.ViaCEPURL),
		postal.WithHTTPClient(httpClient),
		postal.WithUserAgent(cfg.Lookup.UserAgent),
		postal.WithCache(c.Caches.Location()),
		postal.WithLogger(log.WithField("component", "postal")),
		postal.WithObserver(c.Metrics),
		postal.WithClock(c.Clock),
	)

	c.Geocoding = geocoding.New(
		geocoding.WithBaseURL(cfg.Lookup.NominatimURL),
		geocoding.WithHTTPClient(httpClient),
		geocoding.WithUserAgent(cfg.Lookup.UserAgent),
		geocoding.WithCache(c.Caches.Geocoding()),
		geocoding.WithGate(geocoding.NewGate(c.Clock, cfg.Lookup.MinInterval)),
		geocoding.WithLogger(log.WithField("component", "geocoding")),
		geocoding.WithObserver(c.Metrics),
		geocoding.WithClock(c.Clock),
	)

	store := o.store
	if store == nil {
		store, err = openDocStore(ctx, cfg.Backend)
		if err != nil {
			return nil, err
		}
	}
	c.Store = store

	c.Data = dataaccess.New(store, c.Caches, c.Quota,
		dataaccess.WithLogger(log.WithField("component", "dataaccess")),
		dataaccess.WithClock(c.Clock),
	)

	return c, nil
}

// openKV returns the durable backend for persisted cache entries, or nil
// when caching or persistence is switched off.
func (c *Container) openKV(ctx context.Context, override storage.KV) (storage.KV, error) {
	if override != nil {
		return override, nil
	}
	if !c.Config.Cache.Enabled || !c.Config.Cache.Persist {
		return nil, nil
	}

	s := c.Config.Storage
	kv, err := storage.Open(ctx, storage.Config{
		Backend:   s.Backend,
		BaseDir:   s.BaseDir,
		BackupDir: s.BackupDir,
		MaxBytes:  s.MaxBytes,
		Bucket:    s.Bucket,
		Region:    s.Region,
		Prefix:    s.Prefix,
		Account:   s.Account,
		Container: s.Container,
		SASToken:  s.SASToken,
	})
	if err != nil {
		return nil, err
	}

	c.Log.WithField("backend", s.Backend).Debug("Opened cache storage")
	return kv, nil
}

func openDocStore(ctx context.Context, cfg config.BackendConfig) (docstore.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return docstore.NewMemory(), nil
	case "dynamodb":
		return docstore.NewDynamo(ctx, docstore.DynamoConfig{
			Table:      cfg.Table,
			Region:     cfg.Region,
			Profile:    cfg.Profile,
			Endpoint:   cfg.Endpoint,
			MaxRetries: cfg.MaxRetries,
			Indexes:    dataaccess.DynamoIndexes(),
		})
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}

// Start rehydrates the caches and, when a sweep interval is configured,
// starts the periodic cleanup of the lookup caches.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	if err := c.Caches.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize caches: %w", err)
	}

	c.started = true
	if interval := c.Config.Cache.LookupSweepInterval; interval > 0 {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.sweepLoop(c.Clock.NewTicker(interval), c.stop, c.done)
	}

	c.Log.Info("Services started")
	return nil
}

// sweepLoop owns stop and done; Close clears the struct fields before
// signalling, so the loop must not read them.
func (c *Container) sweepLoop(ticker clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			c.SweepLookups()
		case <-stop:
			return
		}
	}
}

// SweepLookups drops expired entries from the postal and geocoding caches
// and returns how many were removed.
func (c *Container) SweepLookups() int {
	removed := c.Postal.CleanExpiredCache() + c.Geocoding.CleanExpiredCache()
	if removed > 0 {
		c.Log.WithField("removed", removed).Debug("Swept lookup caches")
	}
	return removed
}

// CacheStats reports every domain store keyed by domain name.
func (c *Container) CacheStats() map[string]cache.Stats {
	out := make(map[string]cache.Stats, len(cache.AllDomains))
	for domain, stats := range c.Caches.Stats() {
		out[domain.String()] = stats
	}
	return out
}

// CleanCaches drops expired entries from every domain store.
func (c *Container) CleanCaches() map[string]int {
	out := make(map[string]int, len(cache.AllDomains))
	for domain, n := range c.Caches.CleanExpired() {
		out[domain.String()] = n
	}
	return out
}

// Close stops the sweep and the cache timers and releases the storage
// backend. It is safe to call more than once.
func (c *Container) Close() error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.started = false
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	c.Caches.Close()

	if closer, ok := c.KV.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close cache storage: %w", err)
		}
	}
	return nil
}
