package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samirrijal/siteintel/internal/core/domain"
)

// DefaultGoogleURL is the Google Maps Platform API root.
const DefaultGoogleURL = "https://maps.googleapis.com/maps/api"

// GoogleCostPerRequest is the billed price of one Geocoding API call.
const GoogleCostPerRequest = 0.005

// Autocomplete location bias: downtown Houston, 200km.
const (
	biasLocation = "29.7604,-95.3698"
	biasRadius   = "200000"
)

// Google wraps the Google Maps Geocoding and Places Autocomplete APIs.
type Google struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGoogle creates a Google client. Returns nil if apiKey is empty so
// callers can leave the paid provider unconfigured.
func NewGoogle(apiKey, baseURL string, timeout time.Duration) *Google {
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = DefaultGoogleURL
	}
	return &Google{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *Google) Name() string { return "google" }

func (g *Google) CostPerRequest() float64 { return GoogleCostPerRequest }

type geocodeResponse struct {
	Results      []geocodeResult `json:"results"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message"`
}

type geocodeResult struct {
	AddressComponents []addressComponent `json:"address_components"`
	FormattedAddress  string             `json:"formatted_address"`
	PlaceID           string             `json:"place_id"`
	Geometry          struct {
		Location     latLng `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

var locationConfidence = map[string]float64{
	"ROOFTOP":            1.0,
	"RANGE_INTERPOLATED": 0.85,
	"GEOMETRIC_CENTER":   0.7,
	"APPROXIMATE":        0.5,
}

func (g *Google) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("google request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("google: %w", domain.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("google returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding google response: %w", err)
	}
	return nil
}

// statusErr maps a Google API status to an error. ZERO_RESULTS is not an
// error.
func statusErr(status, msg string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return fmt.Errorf("google %s: %w", status, domain.ErrRateLimited)
	}
	if msg != "" {
		return fmt.Errorf("google status %s: %s", status, msg)
	}
	return fmt.Errorf("google status %s", status)
}

// Geocode resolves query, restricted to the US.
func (g *Google) Geocode(ctx context.Context, query string) ([]domain.GeocodeCandidate, error) {
	var resp geocodeResponse
	params := url.Values{"address": {query}, "components": {"country:US"}}
	if err := g.get(ctx, "/geocode/json", params, &resp); err != nil {
		return nil, err
	}
	if err := statusErr(resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}

	out := make([]domain.GeocodeCandidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		conf, ok := locationConfidence[r.Geometry.LocationType]
		if !ok {
			conf = 0.5
		}
		c := domain.GeocodeCandidate{
			FormattedAddress: r.FormattedAddress,
			Point:            domain.GeoPoint{Lat: r.Geometry.Location.Lat, Lon: r.Geometry.Location.Lng},
			Confidence:       conf,
			Provider:         g.Name(),
			PlaceID:          r.PlaceID,
		}
		for _, comp := range r.AddressComponents {
			for _, t := range comp.Types {
				switch t {
				case "postal_code":
					c.PostalCode = comp.ShortName
				case "administrative_area_level_1":
					c.State = comp.ShortName
				case "administrative_area_level_2":
					c.County = strings.TrimSuffix(comp.LongName, " County")
				case "locality":
					c.City = comp.LongName
				}
			}
		}
		out = append(out, c)
	}
	return out, nil
}

type autocompleteResponse struct {
	Predictions []struct {
		Description          string `json:"description"`
		PlaceID              string `json:"place_id"`
		StructuredFormatting struct {
			MainText      string `json:"main_text"`
			SecondaryText string `json:"secondary_text"`
		} `json:"structured_formatting"`
	} `json:"predictions"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// Autocomplete returns address predictions biased to the Houston region.
// Requests sharing sessionToken are billed as one session.
func (g *Google) Autocomplete(ctx context.Context, input, sessionToken string) ([]domain.PlaceSuggestion, error) {
	var resp autocompleteResponse
	params := url.Values{
		"input":        {input},
		"sessiontoken": {sessionToken},
		"types":        {"address"},
		"components":   {"country:us"},
		"location":     {biasLocation},
		"radius":       {biasRadius},
	}
	if err := g.get(ctx, "/place/autocomplete/json", params, &resp); err != nil {
		return nil, err
	}
	if err := statusErr(resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}
	out := make([]domain.PlaceSuggestion, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		out = append(out, domain.PlaceSuggestion{
			Description:   p.Description,
			PlaceID:       p.PlaceID,
			MainText:      p.StructuredFormatting.MainText,
			SecondaryText: p.StructuredFormatting.SecondaryText,
		})
	}
	return out, nil
}
