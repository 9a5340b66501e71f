package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeatherCurrentRelaysBodyAndParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/weather", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "imperial", q.Get("units"))
		assert.Equal(t, "test-key", q.Get("appid"))
		w.Write([]byte(`{"main":{"temp":72.4}}`))
	}))
	defer srv.Close()

	svc := NewWeatherService("test-key")
	svc.client.SetBaseURL(srv.URL)

	body, err := svc.Current(context.Background(), 47.6, -122.3, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"main":{"temp":72.4}}`, string(body))
}

func TestWeatherUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"cod":401}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := NewWeatherService("bad-key")
	svc.client.SetBaseURL(srv.URL)

	_, err := svc.Current(context.Background(), 47.6, -122.3, "metric")
	require.Error(t, err)
}

func TestSearchParsesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "engine-1", q.Get("cx"))
		assert.Equal(t, "go websockets", q.Get("q"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"title":"Gorilla WebSocket","link":"https://example.com","snippet":"A WebSocket..."}]}`))
	}))
	defer srv.Close()

	svc := NewSearchService("test-key", "engine-1")
	svc.client.SetBaseURL(srv.URL)

	results, err := svc.Search(context.Background(), "go websockets")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Gorilla WebSocket", results[0].Title)
}

func TestGeocodeReturnsFirstMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/direct", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"Seattle","lat":47.6062,"lon":-122.3321,"country":"US","state":"Washington"}]`))
	}))
	defer srv.Close()

	svc := NewGeoService("test-key", "tz-key")
	svc.geocode.SetBaseURL(srv.URL)

	loc, err := svc.Geocode(context.Background(), "Seattle, WA")
	require.NoError(t, err)
	assert.Equal(t, "Seattle", loc.Name)
	assert.InDelta(t, 47.6062, loc.Latitude, 0.0001)
}

func TestGeocodeNoMatchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	svc := NewGeoService("test-key", "tz-key")
	svc.geocode.SetBaseURL(srv.URL)

	_, err := svc.Geocode(context.Background(), "nowhere at all")
	require.Error(t, err)
}

func TestTimezoneForRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"REQUEST_DENIED","errorMessage":"key invalid"}`))
	}))
	defer srv.Close()

	svc := NewGeoService("test-key", "tz-key")
	svc.timezone.SetBaseURL(srv.URL)

	_, err := svc.TimezoneFor(context.Background(), 47.6, -122.3)
	require.Error(t, err)
}

func TestTimezoneForDerivesDSTWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","timeZoneId":"America/Los_Angeles","rawOffset":-28800,"dstOffset":3600}`))
	}))
	defer srv.Close()

	svc := NewGeoService("test-key", "tz-key")
	svc.timezone.SetBaseURL(srv.URL)

	info, err := svc.TimezoneFor(context.Background(), 47.6, -122.3)
	require.NoError(t, err)
	assert.Equal(t, "America/Los_Angeles", info.ZoneID)
	// Pacific time observes DST, so both bounds resolve.
	require.NotNil(t, info.DSTStart)
	require.NotNil(t, info.DSTEnd)
	assert.True(t, info.DSTStart.Before(*info.DSTEnd))
}
