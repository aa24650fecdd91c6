// Package lookup holds the pieces shared by the external lookup clients:
// the HTTP transport seam, JSON fetching with typed errors, and stats.
package lookup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	mobilityerrors "github.com/acessivel/mobility/internal/errors"
)

// HTTPDoer is the transport used by lookup clients. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Observer receives one call per lookup with its outcome.
type Observer interface {
	LookupRequest(service, outcome string, duration time.Duration)
}

// Lookup outcomes reported to an Observer.
const (
	OutcomeCacheHit = "cache_hit"
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

type NopObserver struct{}

func (NopObserver) LookupRequest(string, string, time.Duration) {}

// Stats describes a client's cached keys.
type Stats struct {
	Size    int      `json:"size" yaml:"size"`
	Entries []string `json:"entries" yaml:"entries"`
}

// SharedTimeout bounds a collapsed lookup once it no longer follows any
// single caller's context.
const SharedTimeout = 30 * time.Second

// Shared runs fn at most once per key among concurrent callers. fn gets a
// context that keeps the first caller's values but not its cancellation,
// bounded by timeout, so an issued request runs to completion for everyone
// who joined it. Each caller stops waiting when its own ctx is done.
func Shared(ctx context.Context, g *singleflight.Group, key string, timeout time.Duration, service mobilityerrors.Service,
	fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if timeout <= 0 {
		timeout = SharedTimeout
	}
	ch := g.DoChan(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return fn(shared)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, mobilityerrors.LookupTransportError(service, ctx.Err())
	}
}

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// NewHTTPClient returns the default client used for lookups.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// GetJSON performs a GET and returns the body of a 2xx response. Transport
// failures and other statuses become Network errors for service.
func GetJSON(ctx context.Context, doer HTTPDoer, url string, headers map[string]string, service mobilityerrors.Service) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, mobilityerrors.LookupTransportError(service, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := doer.Do(req)
	if err != nil {
		return nil, mobilityerrors.LookupTransportError(service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, mobilityerrors.LookupStatusError(service, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, mobilityerrors.LookupTransportError(service, fmt.Errorf("failed to read response: %w", err))
	}
	return body, nil
}

// DecodeError reports a body that could not be parsed.
func DecodeError(service mobilityerrors.Service, err error) error {
	return mobilityerrors.Wrap(mobilityerrors.ErrorTypeNetwork, service, "unexpected response from service", err).
		WithSolutions("Retry the lookup")
}
