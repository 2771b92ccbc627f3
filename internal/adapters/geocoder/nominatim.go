// Package geocoder holds the GeocodingProvider and AutocompleteProvider
// adapters.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samirrijal/siteintel/internal/core/domain"
)

// DefaultNominatimURL is the public OpenStreetMap instance.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// Texas viewbox as minLon,maxLat,maxLon,minLat.
const texasViewbox = "-106.645646,36.500704,-93.508039,25.837377"

// Nominatim geocodes with OpenStreetMap Nominatim. It is free and is tried
// before paid providers.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewNominatim creates a Nominatim client. The public instance requires an
// identifying User-Agent with contact details.
func NewNominatim(baseURL, contactEmail string, timeout time.Duration) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	ua := "SiteIntel/1.0"
	if contactEmail != "" {
		ua += " (" + contactEmail + ")"
	}
	return &Nominatim{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  ua,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (n *Nominatim) Name() string { return "nominatim" }

func (n *Nominatim) CostPerRequest() float64 { return 0 }

type nominatimResult struct {
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	DisplayName string            `json:"display_name"`
	Importance  float64           `json:"importance"`
	Type        string            `json:"type"`
	Class       string            `json:"class"`
	Category    string            `json:"category"`
	PlaceID     int64             `json:"place_id"`
	Address     map[string]string `json:"address"`
}

// Geocode searches Texas for query.
func (n *Nominatim) Geocode(ctx context.Context, query string) ([]domain.GeocodeCandidate, error) {
	params := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"countrycodes":   {"us"},
		"viewbox":        {texasViewbox},
		"bounded":        {"1"},
		"limit":          {"5"},
		"dedupe":         {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("nominatim: %w", domain.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("nominatim returned HTTP %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding nominatim response: %w", err)
	}

	out := make([]domain.GeocodeCandidate, 0, len(results))
	for _, r := range results {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLon != nil {
			continue
		}
		a := r.Address
		city := a["city"]
		if city == "" {
			city = a["town"]
		}
		if city == "" {
			city = a["village"]
		}
		out = append(out, domain.GeocodeCandidate{
			FormattedAddress: r.DisplayName,
			Point:            domain.GeoPoint{Lat: lat, Lon: lon},
			Confidence:       nominatimConfidence(r),
			Provider:         n.Name(),
			PlaceID:          strconv.FormatInt(r.PlaceID, 10),
			County:           strings.TrimSuffix(a["county"], " County"),
			City:             city,
			State:            a["state"],
			PostalCode:       a["postcode"],
		})
	}
	return out, nil
}

// nominatimConfidence maps importance (0-1) onto 0.5-0.9, boosting
// building and street level hits.
func nominatimConfidence(r nominatimResult) float64 {
	class := r.Class
	if class == "" {
		class = r.Category
	}
	base := 0.5 + r.Importance*0.4
	switch {
	case r.Type == "house" || class == "building":
		return math.Min(base+0.1, 0.9)
	case r.Type == "street" || class == "highway":
		return math.Min(base+0.05, 0.85)
	}
	return math.Max(0.5, math.Min(base, 0.85))
}
