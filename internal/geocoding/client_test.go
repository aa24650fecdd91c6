package geocoding

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acessivel/mobility/internal/clock"
	mobilityerrors "github.com/acessivel/mobility/internal/errors"
)

const paulistaPlace = `{
  "place_id": 12345,
  "licence": "ODbL",
  "osm_type": "way",
  "osm_id": 4351,
  "boundingbox": ["-23.5700", "-23.5500", "-46.6600", "-46.6300"],
  "lat": "-23.5613",
  "lon": "-46.6565",
  "display_name": "Avenida Paulista, Bela Vista, São Paulo, Brasil",
  "class": "highway",
  "type": "primary",
  "importance": 0.62,
  "address": {
    "road": "Avenida Paulista",
    "suburb": "Bela Vista",
    "city": "São Paulo",
    "state": "São Paulo",
    "postcode": "01310-100",
    "country": "Brasil",
    "country_code": "br"
  }
}`

// stubDoer answers Nominatim requests and records when each was dispatched.
type stubDoer struct {
	mu       sync.Mutex
	clock    clock.Clock
	requests []*http.Request
	sentAt   []time.Time
	respond  func(r *http.Request) (int, string)
}

func (s *stubDoer) Do(r *http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, r)
	s.sentAt = append(s.sentAt, s.clock.Now())
	s.mu.Unlock()

	status, body := s.respond(r)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}, nil
}

func (s *stubDoer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubDoer) query(i int) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i].URL.Query()
}

func defaultRespond(r *http.Request) (int, string) {
	switch r.URL.Path {
	case "/search":
		return http.StatusOK, "[" + paulistaPlace + "]"
	case "/reverse":
		if r.URL.Query().Get("lat") == "-10" {
			return http.StatusOK, `{"error":"Unable to geocode"}`
		}
		return http.StatusOK, paulistaPlace
	}
	return http.StatusNotFound, ""
}

func newTestClient(t *testing.T) (*Client, *stubDoer, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	doer := &stubDoer{clock: fake, respond: defaultRespond}
	c := New(WithBaseURL("https://nominatim.test"), WithHTTPClient(doer), WithClock(fake))
	return c, doer, fake
}

func TestSearchLocations(t *testing.T) {
	c, doer, _ := newTestClient(t)

	locations, err := c.SearchLocations(context.Background(), SearchOptions{Query: "  Avenida Paulista "})
	require.NoError(t, err)
	require.Len(t, locations, 1)

	loc := locations[0]
	assert.Equal(t, "12345", loc.ID)
	assert.InDelta(t, -23.5613, loc.Latitude, 1e-9)
	assert.InDelta(t, -46.6565, loc.Longitude, 1e-9)
	assert.Equal(t, "Avenida Paulista", loc.Address.Street)
	assert.Equal(t, "Bela Vista", loc.Address.Neighborhood)
	assert.Equal(t, "01310-100", loc.Address.ZipCode)
	assert.Equal(t, "highway", loc.Category)
	assert.Equal(t, "primary", loc.Type)
	assert.InDelta(t, -23.57, loc.BoundingBox.MinLat, 1e-9)
	assert.InDelta(t, -46.63, loc.BoundingBox.MaxLon, 1e-9)

	q := doer.query(0)
	assert.Equal(t, "Avenida Paulista", q.Get("q"))
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "1", q.Get("addressdetails"))
	assert.Equal(t, "10", q.Get("limit"))
	assert.Equal(t, "br", q.Get("countrycodes"))
	assert.Equal(t, "pt-BR", q.Get("accept-language"))
	assert.Empty(t, q.Get("viewbox"))
	assert.Equal(t, DefaultUserAgent, doer.requests[0].Header.Get("User-Agent"))
}

func TestSearchLocations_CachedForOneHour(t *testing.T) {
	c, doer, fake := newTestClient(t)
	ctx := context.Background()
	opts := SearchOptions{Query: "Avenida Paulista"}

	_, err := c.SearchLocations(ctx, opts)
	require.NoError(t, err)
	_, err = c.SearchLocations(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, doer.calls())

	stats := c.CacheStats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, `nominatim:{"type":"search","query":"Avenida Paulista"}`, stats.Entries[0])

	fake.Advance(time.Hour + time.Second)
	_, err = c.SearchLocations(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, doer.calls())
}

func TestSearchLocations_LimitAndViewbox(t *testing.T) {
	c, doer, _ := newTestClient(t)

	_, err := c.SearchLocations(context.Background(), SearchOptions{
		Query:   "hospital",
		Limit:   120,
		Viewbox: &Viewbox{MinLat: -23.6, MaxLat: -23.5, MinLon: -46.7, MaxLon: -46.6},
		Bounded: true,
	})
	require.NoError(t, err)

	q := doer.query(0)
	assert.Equal(t, "50", q.Get("limit"))
	assert.Equal(t, "-46.7,-23.5,-46.6,-23.6", q.Get("viewbox"))
	assert.Equal(t, "1", q.Get("bounded"))
}

func TestSearchLocations_Validation(t *testing.T) {
	c, doer, _ := newTestClient(t)
	ctx := context.Background()

	tests := []SearchOptions{
		{Query: ""},
		{Query: " a "},
		{Query: "Paulista", Limit: -1},
		{Query: "Paulista", Viewbox: &Viewbox{MinLat: -91, MaxLat: 0, MinLon: 0, MaxLon: 0}},
		{Query: "Paulista", Viewbox: &Viewbox{MinLat: 0, MaxLat: 0, MinLon: 0, MaxLon: 181}},
	}
	for _, opts := range tests {
		_, err := c.SearchLocations(ctx, opts)
		assert.True(t, mobilityerrors.IsType(err, mobilityerrors.ErrorTypeInvalidInput), "%+v", opts)
	}
	assert.Equal(t, 0, doer.calls())
}

func TestSearchLocations_NonArrayBody(t *testing.T) {
	c, doer, _ := newTestClient(t)
	doer.respond = func(*http.Request) (int, string) { return http.StatusOK, `{"error":"bad request"}` }

	locations, err := c.SearchLocations(context.Background(), SearchOptions{Query: "Paulista"})
	require.NoError(t, err)
	assert.Empty(t, locations)
	assert.Equal(t, 0, c.CacheStats().Size)
}

func TestSearchLocations_HTTPError(t *testing.T) {
	c, doer, _ := newTestClient(t)
	doer.respond = func(*http.Request) (int, string) { return http.StatusServiceUnavailable, "" }

	_, err := c.SearchLocations(context.Background(), SearchOptions{Query: "Paulista"})
	require.Error(t, err)
	assert.True(t, mobilityerrors.IsType(err, mobilityerrors.ErrorTypeNetwork))
}

func TestRequestsAreSpacedByOneSecond(t *testing.T) {
	c, doer, fake := newTestClient(t)
	ctx := context.Background()

	_, err := c.SearchLocations(ctx, SearchOptions{Query: "Avenida Paulista"})
	require.NoError(t, err)

	done := make(chan error)
	go func() {
		_, err := c.ReverseGeocode(ctx, ReverseOptions{Latitude: -23.5613, Longitude: -46.6565})
		done <- err
	}()

	require.Eventually(t, func() bool { return fake.Waiters() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, doer.calls(), "second request must wait for the gate")

	fake.Advance(time.Second)
	require.NoError(t, <-done)

	require.Equal(t, 2, doer.calls())
	assert.GreaterOrEqual(t, doer.sentAt[1].Sub(doer.sentAt[0]), time.Second)
}

func TestReverseGeocode(t *testing.T) {
	c, doer, _ := newTestClient(t)
	ctx := context.Background()

	loc, err := c.ReverseGeocode(ctx, ReverseOptions{Latitude: -23.5613, Longitude: -46.6565, Zoom: 40})
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "Avenida Paulista, Bela Vista, São Paulo, Brasil", loc.DisplayName)

	q := doer.query(0)
	assert.Equal(t, "-23.5613", q.Get("lat"))
	assert.Equal(t, "-46.6565", q.Get("lon"))
	assert.Equal(t, "18", q.Get("zoom"))
	assert.Equal(t, "pt-BR", q.Get("accept-language"))
}

func TestReverseGeocode_ZoomClamp(t *testing.T) {
	c, doer, fake := newTestClient(t)

	_, err := c.ReverseGeocode(context.Background(), ReverseOptions{Latitude: -23.5, Longitude: -46.6, Zoom: -4})
	require.NoError(t, err)
	assert.Equal(t, "1", doer.query(0).Get("zoom"))

	fake.Advance(time.Second)
	_, err = c.ReverseGeocode(context.Background(), ReverseOptions{Latitude: -23.4, Longitude: -46.6})
	require.NoError(t, err)
	assert.Equal(t, "18", doer.query(1).Get("zoom"))
}

func TestReverseGeocode_NoCoordinatesNotCached(t *testing.T) {
	c, doer, fake := newTestClient(t)
	ctx := context.Background()
	opts := ReverseOptions{Latitude: -10, Longitude: -50}

	loc, err := c.ReverseGeocode(ctx, opts)
	require.NoError(t, err)
	assert.Nil(t, loc)
	assert.Equal(t, 0, c.CacheStats().Size)

	fake.Advance(time.Second)
	loc, err = c.ReverseGeocode(ctx, opts)
	require.NoError(t, err)
	assert.Nil(t, loc)
	assert.Equal(t, 2, doer.calls())
}

func TestReverseGeocode_Validation(t *testing.T) {
	c, doer, _ := newTestClient(t)
	ctx := context.Background()

	for _, opts := range []ReverseOptions{
		{Latitude: 0, Longitude: -46.6},
		{Latitude: -23.5, Longitude: 0},
		{Latitude: 91, Longitude: -46.6},
		{Latitude: -23.5, Longitude: -181},
	} {
		_, err := c.ReverseGeocode(ctx, opts)
		assert.True(t, mobilityerrors.IsType(err, mobilityerrors.ErrorTypeInvalidInput), "%+v", opts)
	}
	assert.Equal(t, 0, doer.calls())
}

func TestSearchBrazilianAddress(t *testing.T) {
	tests := []struct {
		address, city, state string
		wantQuery            string
	}{
		{"Rua Augusta 500", "São Paulo", "SP", "Rua Augusta 500, São Paulo, SP, Brasil"},
		{" Rua Augusta ", "", "", "Rua Augusta, Brasil"},
		{"Copacabana, Rio de Janeiro, Brazil", "", "", "Copacabana, Rio de Janeiro, Brazil"},
		{"Praça da Sé", "São Paulo", "BRASIL", "Praça da Sé, São Paulo, BRASIL"},
	}

	for _, tt := range tests {
		t.Run(tt.wantQuery, func(t *testing.T) {
			c, doer, _ := newTestClient(t)
			_, err := c.SearchBrazilianAddress(context.Background(), tt.address, tt.city, tt.state)
			require.NoError(t, err)

			q := doer.query(0)
			assert.Equal(t, tt.wantQuery, q.Get("q"))
			assert.Equal(t, "15", q.Get("limit"))
			assert.Equal(t, "br", q.Get("countrycodes"))
		})
	}
}

func TestSearchNearbyPOI(t *testing.T) {
	c, doer, fake := newTestClient(t)

	_, err := c.SearchNearbyPOI(context.Background(), -23.0, -46.0, "farmácia", 0)
	require.NoError(t, err)

	q := doer.query(0)
	assert.Equal(t, "farmácia", q.Get("q"))
	assert.Equal(t, "20", q.Get("limit"))
	assert.Equal(t, "1", q.Get("bounded"))

	parts := strings.Split(q.Get("viewbox"), ",")
	require.Len(t, parts, 4)
	d := 1000.0 / 111000.0
	assert.Equal(t, formatCoord(-46.0-d), parts[0])
	assert.Equal(t, formatCoord(-23.0+d), parts[1])
	assert.Equal(t, formatCoord(-46.0+d), parts[2])
	assert.Equal(t, formatCoord(-23.0-d), parts[3])

	fake.Advance(time.Second)
	_, err = c.SearchNearbyPOI(context.Background(), -23.0, -46.0, "farmácia", 5000)
	require.NoError(t, err)
	assert.Equal(t, 2, doer.calls(), "a different radius is a different cache key")
}

func TestCacheStatsListsFirstTen(t *testing.T) {
	c, _, fake := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := c.SearchLocations(ctx, SearchOptions{Query: "rua " + strings.Repeat("x", i+1)})
		require.NoError(t, err)
		fake.Advance(time.Second)
	}

	stats := c.CacheStats()
	assert.Equal(t, 12, stats.Size)
	assert.Len(t, stats.Entries, 10)

	c.ClearCache()
	assert.Equal(t, 0, c.CacheStats().Size)
}
