package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{GeocodingURL: srv.URL + "/geo", ForecastURL: srv.URL + "/fc", Language: "ru"})
}

func TestLookup(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/geo":
			assert.Equal(t, "Prague", r.URL.Query().Get("name"))
			assert.Equal(t, "ru", r.URL.Query().Get("language"))
			_, _ = w.Write([]byte(`{"results":[{"name":"Прага","latitude":50.088,"longitude":14.4208}]}`))
		case "/fc":
			assert.Equal(t, "50.088", r.URL.Query().Get("latitude"))
			assert.Equal(t, "temperature_2m,weather_code", r.URL.Query().Get("current"))
			_, _ = w.Write([]byte(`{"current":{"temperature_2m":7.4,"weather_code":61}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	rep, err := c.Lookup(context.Background(), " Prague ")
	require.NoError(t, err)
	assert.Equal(t, "Прага", rep.Place.Name)
	assert.InDelta(t, 7.4, rep.Conditions.Temperature, 1e-9)
	assert.Equal(t, 61, rep.Conditions.Code)
	assert.Equal(t, "Rain", rep.Description)
}

func TestUnknownCity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"generationtime_ms":0.5}`))
	})
	_, err := c.Lookup(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEmptyCity(t *testing.T) {
	c := New(Options{})
	_, err := c.Lookup(context.Background(), "  ")
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":true,"reason":"Latitude must be in range"}`))
	})
	_, err := c.Current(context.Background(), 500, 0)
	var gerr *apperr.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusBadRequest, gerr.Status)
	assert.Contains(t, gerr.Error(), "Latitude must be in range")
}

func TestDescribe(t *testing.T) {
	for code, want := range map[int]string{0: "Clear", 2: "Cloudy", 45: "Overcast", 63: "Rain", 75: "Snow", 95: "Overcast"} {
		assert.Equal(t, want, Describe(code), "code %d", code)
	}
}
