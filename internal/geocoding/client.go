// Package geocoding searches places and reverse-geocodes coordinates
// through Nominatim (OpenStreetMap), honoring its one request per second
// usage policy.
package geocoding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/acessivel/mobility/internal/cache"
	"github.com/acessivel/mobility/internal/clock"
	mobilityerrors "github.com/acessivel/mobility/internal/errors"
	"github.com/acessivel/mobility/internal/logger"
	"github.com/acessivel/mobility/internal/lookup"
	"github.com/acessivel/mobility/pkg/types"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "AcessivelMobility/1.0 (accessibility-focused ride-sharing app)"
	CacheTTL         = time.Hour

	keyPrefix = "nominatim"

	// metersPerDegree approximates one degree of latitude.
	metersPerDegree   = 111000
	defaultPOIRadius  = 1000
	brazilSearchLimit = 15
	poiSearchLimit    = 20
	statsKeyLimit     = 10
)

type Client struct {
	baseURL   string
	userAgent string
	http      lookup.HTTPDoer
	cache     *cache.Store
	gate      *Gate
	log       logger.Logger
	observer  lookup.Observer
	clock     clock.Clock
	group     singleflight.Group
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

func WithHTTPClient(d lookup.HTTPDoer) Option {
	return func(c *Client) { c.http = d }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithCache shares a store, normally the geocoding domain cache.
func WithCache(s *cache.Store) Option {
	return func(c *Client) { c.cache = s }
}

// WithGate shares a politeness gate between clients.
func WithGate(g *Gate) Option {
	return func(c *Client) { c.gate = g }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithObserver(o lookup.Observer) Option {
	return func(c *Client) { c.observer = o }
}

func WithClock(cl clock.Clock) Option {
	return func(c *Client) { c.clock = cl }
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		http:      lookup.NewHTTPClient(0),
		log:       logger.NewNop(),
		observer:  lookup.NopObserver{},
		clock:     clock.Real(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.gate == nil {
		c.gate = NewGate(c.clock, MinRequestInterval)
	}
	if c.cache == nil {
		cfg := cache.DomainConfigs[cache.DomainGeocoding]
		cfg.EnablePersistence = false
		cfg.CleanupInterval = 0
		c.cache = cache.New(cfg, cache.WithClock(c.clock))
	}
	c.log = c.log.WithField("service", string(mobilityerrors.ServiceNominatim))
	return c
}

// SearchLocations runs a free-text search.
func (c *Client) SearchLocations(ctx context.Context, opts SearchOptions) ([]types.LocationData, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	start := c.clock.Now()
	key, err := cacheKey("search", opts)
	if err != nil {
		return nil, err
	}
	if locations, ok := cache.GetAs[[]types.LocationData](c.cache, key); ok {
		c.report(lookup.OutcomeCacheHit, start)
		return cloneLocations(locations), nil
	}

	resolved := opts.withDefaults()
	v, err := lookup.Shared(ctx, &c.group, key, lookup.SharedTimeout, mobilityerrors.ServiceNominatim, func(ctx context.Context) (interface{}, error) {
		params := url.Values{}
		params.Set("q", resolved.Query)
		params.Set("format", "json")
		params.Set("addressdetails", "1")
		params.Set("limit", strconv.Itoa(resolved.Limit))
		params.Set("countrycodes", resolved.CountryCode)
		params.Set("accept-language", resolved.Language)
		if vb := resolved.Viewbox; vb != nil {
			params.Set("viewbox", fmt.Sprintf("%s,%s,%s,%s",
				formatCoord(vb.MinLon), formatCoord(vb.MaxLat), formatCoord(vb.MaxLon), formatCoord(vb.MinLat)))
			if resolved.Bounded {
				params.Set("bounded", "1")
			}
		}

		body, err := c.get(ctx, "/search", params)
		if err != nil {
			return nil, err
		}

		if !json.Valid(body) {
			return nil, lookup.DecodeError(mobilityerrors.ServiceNominatim, fmt.Errorf("invalid JSON body"))
		}
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			return []types.LocationData{}, nil
		}

		var places []nominatimPlace
		if err := json.Unmarshal(trimmed, &places); err != nil {
			return nil, lookup.DecodeError(mobilityerrors.ServiceNominatim, err)
		}

		locations := make([]types.LocationData, 0, len(places))
		for _, p := range places {
			locations = append(locations, p.toLocation())
		}
		c.cache.Set(key, locations, cache.SetOptions{TTL: CacheTTL})
		return locations, nil
	})
	if err != nil {
		c.report(lookup.OutcomeError, start)
		c.log.WithField("query", resolved.Query).Error("location search failed", err)
		return nil, err
	}

	locations := v.([]types.LocationData)
	if len(locations) == 0 {
		c.report(lookup.OutcomeNotFound, start)
	} else {
		c.report(lookup.OutcomeSuccess, start)
	}
	return cloneLocations(locations), nil
}

// ReverseGeocode returns the place at a coordinate, or nil when Nominatim
// has nothing there.
func (c *Client) ReverseGeocode(ctx context.Context, opts ReverseOptions) (*types.LocationData, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	start := c.clock.Now()
	key, err := cacheKey("reverse", opts)
	if err != nil {
		return nil, err
	}
	if location, ok := cache.GetAs[types.LocationData](c.cache, key); ok {
		c.report(lookup.OutcomeCacheHit, start)
		return &location, nil
	}

	resolved := opts.withDefaults()
	v, err := lookup.Shared(ctx, &c.group, key, lookup.SharedTimeout, mobilityerrors.ServiceNominatim, func(ctx context.Context) (interface{}, error) {
		params := url.Values{}
		params.Set("lat", formatCoord(resolved.Latitude))
		params.Set("lon", formatCoord(resolved.Longitude))
		params.Set("format", "json")
		params.Set("addressdetails", "1")
		params.Set("zoom", strconv.Itoa(resolved.Zoom))
		params.Set("accept-language", resolved.Language)

		body, err := c.get(ctx, "/reverse", params)
		if err != nil {
			return nil, err
		}

		var place nominatimPlace
		if err := json.Unmarshal(body, &place); err != nil {
			return nil, lookup.DecodeError(mobilityerrors.ServiceNominatim, err)
		}
		if !place.hasCoordinates() {
			return nil, nil
		}

		location := place.toLocation()
		c.cache.Set(key, location, cache.SetOptions{TTL: CacheTTL})
		return &location, nil
	})
	if err != nil {
		c.report(lookup.OutcomeError, start)
		c.log.WithFields(map[string]interface{}{
			"lat": resolved.Latitude,
			"lon": resolved.Longitude,
		}).Error("reverse geocoding failed", err)
		return nil, err
	}

	location, _ := v.(*types.LocationData)
	if location == nil {
		c.report(lookup.OutcomeNotFound, start)
		return nil, nil
	}
	c.report(lookup.OutcomeSuccess, start)
	out := *location
	return &out, nil
}

// SearchBrazilianAddress searches "address, city, state" within Brazil.
func (c *Client) SearchBrazilianAddress(ctx context.Context, address, city, state string) ([]types.LocationData, error) {
	query := strings.TrimSpace(address)
	if city = strings.TrimSpace(city); city != "" {
		query += ", " + city
	}
	if state = strings.TrimSpace(state); state != "" {
		query += ", " + state
	}

	lower := strings.ToLower(query)
	if !strings.Contains(lower, "brasil") && !strings.Contains(lower, "brazil") {
		query += ", Brasil"
	}

	return c.SearchLocations(ctx, SearchOptions{
		Query:       query,
		CountryCode: DefaultCountry,
		Limit:       brazilSearchLimit,
		Language:    DefaultLanguage,
	})
}

// SearchNearbyPOI finds places of poiType within radiusMeters of a point.
// A non-positive radius means 1 km.
func (c *Client) SearchNearbyPOI(ctx context.Context, lat, lng float64, poiType string, radiusMeters float64) ([]types.LocationData, error) {
	if radiusMeters <= 0 {
		radiusMeters = defaultPOIRadius
	}
	d := radiusMeters / metersPerDegree

	return c.SearchLocations(ctx, SearchOptions{
		Query:       poiType,
		CountryCode: DefaultCountry,
		Viewbox: &Viewbox{
			MinLat: lat - d,
			MaxLat: lat + d,
			MinLon: lng - d,
			MaxLon: lng + d,
		},
		Bounded: true,
		Limit:   poiSearchLimit,
	})
}

// ClearCache drops every geocoding entry.
func (c *Client) ClearCache() {
	c.cache.InvalidatePattern(keyPrefix + ":")
}

// CleanExpiredCache removes expired entries and returns how many.
func (c *Client) CleanExpiredCache() int {
	return c.cache.CleanExpired()
}

// CacheStats reports the number of cached lookups and the first ten keys.
func (c *Client) CacheStats() lookup.Stats {
	var all []string
	for _, k := range c.cache.Keys() {
		if strings.HasPrefix(k, keyPrefix+":") {
			all = append(all, k)
		}
	}
	entries := all
	if len(entries) > statsKeyLimit {
		entries = entries[:statsKeyLimit]
	}
	if entries == nil {
		entries = []string{}
	}
	return lookup.Stats{Size: len(all), Entries: entries}
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return nil, err
	}
	return lookup.GetJSON(ctx, c.http, c.baseURL+path+"?"+params.Encode(),
		map[string]string{"User-Agent": c.userAgent}, mobilityerrors.ServiceNominatim)
}

func (c *Client) report(outcome string, start time.Time) {
	c.observer.LookupRequest(string(mobilityerrors.ServiceNominatim), outcome, c.clock.Now().Sub(start))
}

// cacheKey is "nominatim:" followed by the JSON of the options as supplied,
// with the request type as the first field.
func cacheKey(kind string, opts any) (string, error) {
	b, err := json.Marshal(opts)
	if err != nil || len(b) < 2 || b[0] != '{' {
		return "", fmt.Errorf("failed to build cache key: %v", err)
	}

	var sb strings.Builder
	sb.WriteString(`{"type":`)
	sb.WriteString(strconv.Quote(kind))
	if fields := b[1 : len(b)-1]; len(fields) > 0 {
		sb.WriteByte(',')
		sb.Write(fields)
	}
	sb.WriteByte('}')
	return cache.GenerateKey(keyPrefix, sb.String()), nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func cloneLocations(in []types.LocationData) []types.LocationData {
	out := make([]types.LocationData, len(in))
	copy(out, in)
	return out
}
