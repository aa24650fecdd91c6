// Package postal resolves Brazilian postal codes (CEP) through ViaCEP.
package postal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/acessivel/mobility/internal/cache"
	"github.com/acessivel/mobility/internal/clock"
	mobilityerrors "github.com/acessivel/mobility/internal/errors"
	"github.com/acessivel/mobility/internal/logger"
	"github.com/acessivel/mobility/internal/lookup"
	"github.com/acessivel/mobility/pkg/types"
)

const (
	DefaultBaseURL = "https://viacep.com.br/ws"
	CacheTTL       = 24 * time.Hour

	keyPrefix = "cep"
)

// Client looks up addresses by CEP with a read-through cache.
type Client struct {
	baseURL   string
	userAgent string
	http      lookup.HTTPDoer
	cache     *cache.Store
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

// WithCache shares a store, normally the location domain cache.
func WithCache(s *cache.Store) Option {
	return func(c *Client) { c.cache = s }
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
		baseURL:  DefaultBaseURL,
		http:     lookup.NewHTTPClient(0),
		log:      logger.NewNop(),
		observer: lookup.NopObserver{},
		clock:    clock.Real(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		cfg := cache.DomainConfigs[cache.DomainLocation]
		cfg.EnablePersistence = false
		cfg.CleanupInterval = 0
		c.cache = cache.New(cfg, cache.WithClock(c.clock))
	}
	c.log = c.log.WithField("service", string(mobilityerrors.ServiceViaCEP))
	return c
}

// viaCEPResponse is the ViaCEP wire format. erro arrives as true or "true".
type viaCEPResponse struct {
	CEP         string          `json:"cep"`
	Logradouro  string          `json:"logradouro"`
	Complemento string          `json:"complemento"`
	Bairro      string          `json:"bairro"`
	Localidade  string          `json:"localidade"`
	UF          string          `json:"uf"`
	IBGE        string          `json:"ibge"`
	GIA         string          `json:"gia"`
	DDD         string          `json:"ddd"`
	SIAFI       string          `json:"siafi"`
	Erro        json.RawMessage `json:"erro,omitempty"`
}

func (r viaCEPResponse) notFound() bool {
	v := strings.Trim(string(r.Erro), `"`)
	return v == "true"
}

func (r viaCEPResponse) toAddress() types.AddressData {
	return types.AddressData{
		ZipCode:      r.CEP,
		Street:       r.Logradouro,
		Neighborhood: r.Bairro,
		City:         r.Localidade,
		State:        r.UF,
		Complement:   r.Complemento,
		IBGECode:     r.IBGE,
		AreaCode:     r.DDD,
	}
}

// NormalizeCEP strips every non-digit.
func NormalizeCEP(code string) string {
	var b strings.Builder
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCEP reports whether code has exactly eight digits once normalized.
func ValidCEP(code string) bool {
	return len(NormalizeCEP(code)) == 8
}

// GetAddressByCep returns the address for code, or nil when ViaCEP does not
// know it.
func (c *Client) GetAddressByCep(ctx context.Context, code string) (*types.AddressData, error) {
	cep := NormalizeCEP(code)
	if len(cep) != 8 {
		return nil, mobilityerrors.InvalidInput(mobilityerrors.ServiceViaCEP, "invalid CEP: must contain 8 digits").
			WithSolutions("Type the CEP as 01310-100 or 01310100")
	}

	start := c.clock.Now()
	key := cache.GenerateKey(keyPrefix, cep)
	if addr, ok := cache.GetAs[types.AddressData](c.cache, key); ok {
		c.observer.LookupRequest(string(mobilityerrors.ServiceViaCEP), lookup.OutcomeCacheHit, c.clock.Now().Sub(start))
		return &addr, nil
	}

	v, err := lookup.Shared(ctx, &c.group, key, lookup.SharedTimeout, mobilityerrors.ServiceViaCEP, func(ctx context.Context) (interface{}, error) {
		body, err := lookup.GetJSON(ctx, c.http, fmt.Sprintf("%s/%s/json/", c.baseURL, cep), c.headers(), mobilityerrors.ServiceViaCEP)
		if err != nil {
			return nil, err
		}

		var resp viaCEPResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, lookup.DecodeError(mobilityerrors.ServiceViaCEP, err)
		}
		if resp.notFound() {
			return nil, nil
		}

		addr := resp.toAddress()
		c.cache.Set(key, addr, cache.SetOptions{TTL: CacheTTL})
		return &addr, nil
	})
	elapsed := c.clock.Now().Sub(start)

	if err != nil {
		c.observer.LookupRequest(string(mobilityerrors.ServiceViaCEP), lookup.OutcomeError, elapsed)
		c.log.WithField("cep", cep).Error("CEP lookup failed", err)
		return nil, err
	}
	addr, _ := v.(*types.AddressData)
	if addr == nil {
		c.observer.LookupRequest(string(mobilityerrors.ServiceViaCEP), lookup.OutcomeNotFound, elapsed)
		return nil, nil
	}
	c.observer.LookupRequest(string(mobilityerrors.ServiceViaCEP), lookup.OutcomeSuccess, elapsed)

	out := *addr
	return &out, nil
}

// SearchCepsByAddress lists the CEPs matching a street in a city. Only the
// first result is cached, so a cache hit returns a single address.
func (c *Client) SearchCepsByAddress(ctx context.Context, state, city, street string) ([]types.AddressData, error) {
	if state == "" || city == "" || street == "" {
		return nil, mobilityerrors.InvalidInput(mobilityerrors.ServiceViaCEP, "state, city and street are required")
	}
	if utf8.RuneCountInString(street) < 3 {
		return nil, mobilityerrors.InvalidInput(mobilityerrors.ServiceViaCEP, "street must have at least 3 characters")
	}

	start := c.clock.Now()
	key := cache.GenerateKey(keyPrefix, strings.ToLower(fmt.Sprintf("%s-%s-%s", state, city, street)))
	if addr, ok := cache.GetAs[types.AddressData](c.cache, key); ok {
		c.observer.LookupRequest(string(mobilityerrors.ServiceViaCEP), lookup.OutcomeCacheHit, c.clock.Now().Sub(start))
		return []types.AddressData{addr}, nil
	}

	v, err := lookup.Shared(ctx, &c.group, key, lookup.SharedTimeout, mobilityerrors.ServiceViaCEP, func(ctx context.Context) (interface{}, error) {
		u := fmt.Sprintf("%s/%s/%s/%s/json/", c.baseURL, url.PathEscape(state), url.PathEscape(city), url.PathEscape(street))
		body, err := lookup.GetJSON(ctx, c.http, u, c.headers(), mobilityerrors.ServiceViaCEP)
		if err != nil {
			return nil, err
		}

		if !json.Valid(body) {
			return nil, lookup.DecodeError(mobilityerrors.ServiceViaCEP, fmt.Errorf("invalid JSON body"))
		}
		var raw []viaCEPResponse
		if err := json.Unmarshal(body, &raw); err != nil {
			// ViaCEP answers {"erro": true} for malformed searches
			return []types.AddressData{}, nil
		}

		addresses := make([]types.AddressData, 0, len(raw))
		for _, r := range raw {
			addresses = append(addresses, r.toAddress())
		}
		if len(addresses) > 0 {
			c.cache.Set(key, addresses[0], cache.SetOptions{TTL: CacheTTL})
		}
		return addresses, nil
	})
	elapsed := c.clock.Now().Sub(start)

	if err != nil {
		c.observer.LookupRequest(string(mobilityerrors.ServiceViaCEP), lookup.OutcomeError, elapsed)
		c.log.WithFields(map[string]interface{}{"state": state, "city": city}).Error("CEP search failed", err)
		return nil, err
	}

	addresses := v.([]types.AddressData)
	outcome := lookup.OutcomeSuccess
	if len(addresses) == 0 {
		outcome = lookup.OutcomeNotFound
	}
	c.observer.LookupRequest(string(mobilityerrors.ServiceViaCEP), outcome, elapsed)

	out := make([]types.AddressData, len(addresses))
	copy(out, addresses)
	return out, nil
}

// ClearCache drops every CEP entry.
func (c *Client) ClearCache() {
	c.cache.InvalidatePattern(keyPrefix + ":")
}

// CleanExpiredCache removes expired entries and returns how many.
func (c *Client) CleanExpiredCache() int {
	return c.cache.CleanExpired()
}

// CacheStats lists every cached CEP key.
func (c *Client) CacheStats() lookup.Stats {
	entries := []string{}
	for _, k := range c.cache.Keys() {
		if strings.HasPrefix(k, keyPrefix+":") {
			entries = append(entries, k)
		}
	}
	return lookup.Stats{Size: len(entries), Entries: entries}
}

func (c *Client) headers() map[string]string {
	if c.userAgent == "" {
		return nil
	}
	return map[string]string{"User-Agent": c.userAgent}
}
