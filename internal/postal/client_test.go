package postal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acessivel/mobility/internal/cache"
	"github.com/acessivel/mobility/internal/clock"
	mobilityerrors "github.com/acessivel/mobility/internal/errors"
	"github.com/acessivel/mobility/internal/storage"
)

const paulista = `{
  "cep": "01310-100",
  "logradouro": "Avenida Paulista",
  "complemento": "de 612 a 1510 - lado par",
  "bairro": "Bela Vista",
  "localidade": "São Paulo",
  "uf": "SP",
  "ibge": "3550308",
  "gia": "1004",
  "ddd": "11",
  "siafi": "7107"
}`

type viaCEPStub struct {
	calls atomic.Int32
	srv   *httptest.Server
	paths []string
	mu    sync.Mutex
}

func newViaCEPStub(t *testing.T) *viaCEPStub {
	t.Helper()
	stub := &viaCEPStub{}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.calls.Add(1)
		stub.mu.Lock()
		stub.paths = append(stub.paths, r.URL.EscapedPath())
		stub.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.EscapedPath() {
		case "/01310100/json/":
			w.Write([]byte(paulista))
		case "/99999999/json/":
			w.Write([]byte(`{"erro": "true"}`))
		case "/00000000/json/":
			w.Write([]byte(`{"erro": true}`))
		case "/50000000/json/":
			w.WriteHeader(http.StatusBadGateway)
		case "/SP/S%C3%A3o%20Paulo/Paulista/json/":
			w.Write([]byte(`[` + paulista + `,` + paulista + `]`))
		case "/RJ/Rio%20de%20Janeiro/Xyz/json/":
			w.Write([]byte(`[]`))
		case "/RJ/Niteroi/Abc/json/":
			w.Write([]byte(`{"erro": true}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(stub.srv.Close)
	return stub
}

func newTestClient(stub *viaCEPStub, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(stub.srv.URL),
		WithHTTPClient(stub.srv.Client()),
		WithClock(clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))),
	}
	return New(append(base, opts...)...)
}

func TestGetAddressByCep_InvalidLengthMakesNoRequest(t *testing.T) {
	stub := newViaCEPStub(t)
	c := newTestClient(stub)

	for _, code := range []string{"1234567", "123456789", "", "abc"} {
		addr, err := c.GetAddressByCep(context.Background(), code)
		require.Error(t, err, code)
		assert.Nil(t, addr)
		assert.True(t, mobilityerrors.IsType(err, mobilityerrors.ErrorTypeInvalidInput), code)
	}
	assert.Equal(t, int32(0), stub.calls.Load())
}

func TestGetAddressByCep_CachesResult(t *testing.T) {
	stub := newViaCEPStub(t)
	c := newTestClient(stub)
	ctx := context.Background()

	first, err := c.GetAddressByCep(ctx, "01310-100")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "Avenida Paulista", first.Street)
	assert.Equal(t, "Bela Vista", first.Neighborhood)
	assert.Equal(t, "São Paulo", first.City)
	assert.Equal(t, "SP", first.State)
	assert.Equal(t, "3550308", first.IBGECode)
	assert.Equal(t, "11", first.AreaCode)

	second, err := c.GetAddressByCep(ctx, "01310100")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), stub.calls.Load())

	assert.Equal(t, []string{"cep:01310100"}, c.CacheStats().Entries)
}

func TestGetAddressByCep_NotFoundIsNotCached(t *testing.T) {
	stub := newViaCEPStub(t)
	c := newTestClient(stub)
	ctx := context.Background()

	for _, code := range []string{"99999-999", "99999999", "00000-000"} {
		addr, err := c.GetAddressByCep(ctx, code)
		require.NoError(t, err)
		assert.Nil(t, addr)
	}
	assert.Equal(t, int32(3), stub.calls.Load())
	assert.Equal(t, 0, c.CacheStats().Size)
}

func TestGetAddressByCep_HTTPError(t *testing.T) {
	stub := newViaCEPStub(t)
	c := newTestClient(stub)

	_, err := c.GetAddressByCep(context.Background(), "50000-000")
	require.Error(t, err)
	assert.True(t, mobilityerrors.IsType(err, mobilityerrors.ErrorTypeNetwork))
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestGetAddressByCep_CanceledCallerDoesNotFailOthers(t *testing.T) {
	var calls atomic.Int32
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		arrived <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(paulista))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	c := New(
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithClock(clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))),
	)

	impatient, cancel := context.WithCancel(context.Background())
	impatientErr := make(chan error, 1)
	go func() {
		_, err := c.GetAddressByCep(impatient, "01310-100")
		impatientErr <- err
	}()
	<-arrived

	type result struct {
		street string
		err    error
	}
	patient := make(chan result, 1)
	go func() {
		addr, err := c.GetAddressByCep(context.Background(), "01310100")
		if addr == nil {
			patient <- result{err: err}
			return
		}
		patient <- result{street: addr.Street, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	err := <-impatientErr
	require.Error(t, err)
	assert.True(t, mobilityerrors.IsType(err, mobilityerrors.ErrorTypeNetwork))

	close(release)
	res := <-patient
	require.NoError(t, res.err)
	assert.Equal(t, "Avenida Paulista", res.street)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.CacheStats().Size)
}

func TestGetAddressByCep_SharedLocationCache(t *testing.T) {
	stub := newViaCEPStub(t)
	kv := storage.NewMemoryKV(0)
	fake := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	domains := cache.NewDomains(kv, cache.WithClock(fake))
	require.NoError(t, domains.Initialize(context.Background()))
	defer domains.Close()

	c := newTestClient(stub, WithCache(domains.Location()), WithClock(fake))
	_, err := c.GetAddressByCep(context.Background(), "01310100")
	require.NoError(t, err)

	keys, err := kv.Keys(context.Background(), "location_cache_")
	require.NoError(t, err)
	assert.Equal(t, []string{"location_cache_cep:01310100"}, keys)

	// A restarted process rehydrates the entry and serves it without a request
	restarted := cache.NewDomains(kv, cache.WithClock(fake))
	require.NoError(t, restarted.Initialize(context.Background()))
	defer restarted.Close()

	c2 := newTestClient(stub, WithCache(restarted.Location()), WithClock(fake))
	addr, err := c2.GetAddressByCep(context.Background(), "01310-100")
	require.NoError(t, err)
	assert.Equal(t, "Avenida Paulista", addr.Street)
	assert.Equal(t, int32(1), stub.calls.Load())

	// Expired after 24h
	fake.Advance(24*time.Hour + time.Second)
	_, err = c2.GetAddressByCep(context.Background(), "01310-100")
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.calls.Load())
}

func TestSearchCepsByAddress(t *testing.T) {
	stub := newViaCEPStub(t)
	c := newTestClient(stub)
	ctx := context.Background()

	results, err := c.SearchCepsByAddress(ctx, "SP", "São Paulo", "Paulista")
	require.NoError(t, err)
	assert.Len(t, results, 2)

	cached, err := c.SearchCepsByAddress(ctx, "sp", "SÃO PAULO", "paulista")
	require.NoError(t, err)
	assert.Len(t, cached, 1, "only the first result is cached")
	assert.Equal(t, results[0], cached[0])
	assert.Equal(t, int32(1), stub.calls.Load())
	assert.Contains(t, c.CacheStats().Entries, "cep:sp-são paulo-paulista")
}

func TestSearchCepsByAddress_EmptyAndNonArray(t *testing.T) {
	stub := newViaCEPStub(t)
	c := newTestClient(stub)
	ctx := context.Background()

	results, err := c.SearchCepsByAddress(ctx, "RJ", "Rio de Janeiro", "Xyz")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)

	results, err = c.SearchCepsByAddress(ctx, "RJ", "Niteroi", "Abc")
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.Equal(t, 0, c.CacheStats().Size)
}

func TestSearchCepsByAddress_Validation(t *testing.T) {
	stub := newViaCEPStub(t)
	c := newTestClient(stub)
	ctx := context.Background()

	tests := []struct {
		name                string
		state, city, street string
	}{
		{"missing state", "", "São Paulo", "Paulista"},
		{"missing city", "SP", "", "Paulista"},
		{"missing street", "SP", "São Paulo", ""},
		{"short street", "SP", "São Paulo", "Av"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.SearchCepsByAddress(ctx, tt.state, tt.city, tt.street)
			assert.True(t, mobilityerrors.IsType(err, mobilityerrors.ErrorTypeInvalidInput))
		})
	}
	assert.Equal(t, int32(0), stub.calls.Load())
}

func TestClearAndCleanCache(t *testing.T) {
	stub := newViaCEPStub(t)
	fake := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	c := newTestClient(stub, WithClock(fake))
	ctx := context.Background()

	_, err := c.GetAddressByCep(ctx, "01310100")
	require.NoError(t, err)
	assert.Equal(t, 1, c.CacheStats().Size)

	c.ClearCache()
	assert.Equal(t, 0, c.CacheStats().Size)

	_, err = c.GetAddressByCep(ctx, "01310100")
	require.NoError(t, err)
	fake.Advance(25 * time.Hour)
	assert.Equal(t, 1, c.CleanExpiredCache())
}

func TestNormalizeCEP(t *testing.T) {
	assert.Equal(t, "01310100", NormalizeCEP("01310-100"))
	assert.Equal(t, "01310100", NormalizeCEP(" 01.310-100 "))
	assert.True(t, ValidCEP("01310-100"))
	assert.False(t, ValidCEP("0131-010"))
}
