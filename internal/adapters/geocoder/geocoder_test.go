package geocoder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/core/ports"
)

var (
	_ ports.GeocodingProvider    = (*Nominatim)(nil)
	_ ports.GeocodingProvider    = (*Google)(nil)
	_ ports.AutocompleteProvider = (*Google)(nil)
)

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestNominatim_Geocode(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1001 Fannin St, Houston", q.Get("q"))
		assert.Equal(t, "1", q.Get("bounded"))
		assert.Equal(t, texasViewbox, q.Get("viewbox"))
		assert.Contains(t, r.Header.Get("User-Agent"), "ops@example.com")
		w.Write([]byte(`[
			{"lat":"29.7571","lon":"-95.3656","display_name":"1001 Fannin St, Houston, TX","importance":0.5,
			 "type":"house","category":"place","place_id":42,
			 "address":{"county":"Harris County","town":"Houston","state":"Texas","postcode":"77002"}},
			{"lat":"bad","lon":"-95.0"}
		]`))
	})

	n := NewNominatim(srv.URL, "ops@example.com", 2*time.Second)
	got, err := n.Geocode(context.Background(), "1001 Fannin St, Houston")
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, "nominatim", c.Provider)
	assert.Equal(t, "Harris", c.County)
	assert.Equal(t, "Houston", c.City)
	assert.Equal(t, "77002", c.PostalCode)
	assert.Equal(t, "42", c.PlaceID)
	assert.InDelta(t, 29.7571, c.Point.Lat, 1e-9)
	assert.InDelta(t, 0.8, c.Confidence, 1e-9)
}

func TestNominatim_RateLimited(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := NewNominatim(srv.URL, "", time.Second).Geocode(context.Background(), "x")
	assert.True(t, errors.Is(err, domain.ErrRateLimited), "got %v", err)
}

func TestNominatimConfidence(t *testing.T) {
	tests := []struct {
		name string
		r    nominatimResult
		want float64
	}{
		{"house capped", nominatimResult{Type: "house", Importance: 1}, 0.9},
		{"street", nominatimResult{Class: "highway", Importance: 0.5}, 0.75},
		{"street capped", nominatimResult{Type: "street", Importance: 1}, 0.85},
		{"other low", nominatimResult{Type: "city", Importance: 0}, 0.5},
		{"other capped", nominatimResult{Type: "city", Importance: 1}, 0.85},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, nominatimConfidence(tt.r), 1e-9)
		})
	}
}

func TestGoogle_Geocode(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocode/json", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		w.Write([]byte(`{"status":"OK","results":[{
			"formatted_address":"1001 Fannin St, Houston, TX 77002, USA",
			"place_id":"abc",
			"geometry":{"location":{"lat":29.7571,"lng":-95.3656},"location_type":"RANGE_INTERPOLATED"},
			"address_components":[
				{"long_name":"77002","short_name":"77002","types":["postal_code"]},
				{"long_name":"Texas","short_name":"TX","types":["administrative_area_level_1","political"]},
				{"long_name":"Harris County","short_name":"Harris County","types":["administrative_area_level_2","political"]},
				{"long_name":"Houston","short_name":"Houston","types":["locality","political"]}
			]}]}`))
	})

	g := NewGoogle("k", srv.URL, time.Second)
	got, err := g.Geocode(context.Background(), "1001 Fannin")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.GeocodeCandidate{
		FormattedAddress: "1001 Fannin St, Houston, TX 77002, USA",
		Point:            domain.GeoPoint{Lat: 29.7571, Lon: -95.3656},
		Confidence:       0.85,
		Provider:         "google",
		PlaceID:          "abc",
		County:           "Harris",
		City:             "Houston",
		State:            "TX",
		PostalCode:       "77002",
	}, got[0])
}

func TestGoogle_Statuses(t *testing.T) {
	tests := []struct {
		status    string
		wantErr   bool
		rateLimit bool
	}{
		{"ZERO_RESULTS", false, false},
		{"OVER_QUERY_LIMIT", true, true},
		{"REQUEST_DENIED", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"` + tt.status + `","results":[]}`))
			})
			got, err := NewGoogle("k", srv.URL, time.Second).Geocode(context.Background(), "x")
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Empty(t, got)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.rateLimit, errors.Is(err, domain.ErrRateLimited))
		})
	}
}

func TestGoogle_Autocomplete(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/place/autocomplete/json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "tok-1", q.Get("sessiontoken"))
		assert.Equal(t, biasLocation, q.Get("location"))
		w.Write([]byte(`{"status":"OK","predictions":[{
			"description":"1001 Fannin St, Houston, TX, USA","place_id":"p1",
			"structured_formatting":{"main_text":"1001 Fannin St","secondary_text":"Houston, TX, USA"}}]}`))
	})

	got, err := NewGoogle("k", srv.URL, time.Second).Autocomplete(context.Background(), "1001 Fan", "tok-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1001 Fannin St", got[0].MainText)
	assert.Equal(t, "Houston, TX, USA", got[0].SecondaryText)
}

func TestNewGoogle_NoKey(t *testing.T) {
	assert.Nil(t, NewGoogle("", "", time.Second))
}
