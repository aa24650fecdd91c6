package cache

import (
	"encoding/json"
	"time"
)

// Default store settings.
const (
	DefaultTTL             = 5 * time.Minute
	DefaultMaxSize         = 100
	DefaultCleanupInterval = 5 * time.Minute
	DefaultPriority        = 5
)

// Config holds store configuration
type Config struct {
	// Namespace prefixes every durable key written by the store
	Namespace string `mapstructure:"namespace" json:"namespace"`

	// DefaultTTL applies when Set is called without a TTL
	DefaultTTL time.Duration `mapstructure:"default_ttl" json:"default_ttl"`

	// MaxSize is the maximum number of live entries
	MaxSize int `mapstructure:"max_size" json:"max_size"`

	EnablePersistence bool `mapstructure:"enable_persistence" json:"enable_persistence"`

	// CleanupInterval is how often expired entries are swept. Zero disables the sweep.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" json:"cleanup_interval"`

	DefaultPriority int `mapstructure:"default_priority" json:"default_priority"`
}

// DefaultConfig returns a reasonable default store configuration
func DefaultConfig() Config {
	return Config{
		Namespace:         "app_cache_",
		DefaultTTL:        DefaultTTL,
		MaxSize:           DefaultMaxSize,
		EnablePersistence: true,
		CleanupInterval:   DefaultCleanupInterval,
		DefaultPriority:   DefaultPriority,
	}
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.DefaultPriority == 0 {
		c.DefaultPriority = DefaultPriority
	}
	return c
}

// SetOptions override the store defaults for a single Set.
type SetOptions struct {
	TTL      time.Duration
	Priority int
	// Persist defaults to true; persistence must also be enabled on the store.
	Persist *bool
}

// Persist is a helper for SetOptions.Persist.
func Persist(v bool) *bool {
	return &v
}

// Entry is a cached value with its bookkeeping. Times are Unix milliseconds.
type Entry struct {
	Data        any   `json:"data"`
	Timestamp   int64 `json:"timestamp"`
	Expiration  int64 `json:"expiration"`
	AccessCount int64 `json:"accessCount"`
	LastAccess  int64 `json:"lastAccess"`
	Priority    int   `json:"priority"`
}

// persistedEntry is Entry as read back from durable storage.
type persistedEntry struct {
	Data        json.RawMessage `json:"data"`
	Timestamp   int64           `json:"timestamp"`
	Expiration  int64           `json:"expiration"`
	AccessCount int64           `json:"accessCount"`
	LastAccess  int64           `json:"lastAccess"`
	Priority    int             `json:"priority"`
}

func (e *Entry) expired(nowMs int64) bool {
	return nowMs > e.Expiration
}

// score ranks entries for eviction; the lowest score goes first.
func (e *Entry) score(nowMs int64) float64 {
	recency := float64(nowMs-e.LastAccess) / 1000
	return float64(e.Priority)*100 + float64(e.AccessCount)*10 - recency
}

// Stats is a point-in-time view of a store
type Stats struct {
	Size             int           `json:"size" yaml:"size"`
	MaxSize          int           `json:"max_size" yaml:"max_size"`
	Expired          int           `json:"expired" yaml:"expired"`
	TotalAccessCount int64         `json:"total_access_count" yaml:"total_access_count"`
	AverageAge       time.Duration `json:"average_age" yaml:"average_age"`
	MemoryUsage      int           `json:"memory_usage" yaml:"memory_usage"`
	MemoryUsageHuman string        `json:"memory_usage_human" yaml:"memory_usage_human"`
}

// Observer receives cache events, typically to export metrics.
type Observer interface {
	CacheHit(namespace string)
	CacheMiss(namespace string)
	CacheEviction(namespace string)
	CacheExpired(namespace string, n int)
	CachePersistFailure(namespace string)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)            {}
func (nopObserver) CacheMiss(string)           {}
func (nopObserver) CacheEviction(string)       {}
func (nopObserver) CacheExpired(string, int)   {}
func (nopObserver) CachePersistFailure(string) {}

// GenerateKey creates a cache key from components
func GenerateKey(prefix string, components ...string) string {
	key := prefix
	for _, component := range components {
		key += ":" + component
	}
	return key
}
