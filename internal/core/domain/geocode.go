package domain

// InputType is the classification of free-text location input.
type InputType string

const (
	InputAddress      InputType = "address"
	InputIntersection InputType = "intersection"
	InputCoordinates  InputType = "coordinates"
	InputAPN          InputType = "apn"
	InputUnknown      InputType = "unknown"
)

// GeocodeCandidate is one location produced by a geocoding provider.
type GeocodeCandidate struct {
	FormattedAddress string   `json:"formatted_address"`
	Point            GeoPoint `json:"point"`
	Confidence       float64  `json:"confidence"`
	Provider         string   `json:"provider"`
	PlaceID          string   `json:"place_id,omitempty"`
	County           string   `json:"county,omitempty"`
	City             string   `json:"city,omitempty"`
	State            string   `json:"state,omitempty"`
	PostalCode       string   `json:"postal_code,omitempty"`
}

// GeocodeResult is the resolver output for one query.
type GeocodeResult struct {
	Query           string             `json:"query"`
	NormalizedQuery string             `json:"normalized_query"`
	InputType       InputType          `json:"input_type"`
	Candidates      []GeocodeCandidate `json:"candidates"`
	Provider        string             `json:"provider,omitempty"`
	CacheHit        bool               `json:"cache_hit"`
	CostUSD         float64            `json:"cost_usd"`
	TraceID         string             `json:"trace_id"`
	Issue           *GeocodeError      `json:"issue,omitempty"`
}

// PlaceSuggestion is an autocomplete prediction.
type PlaceSuggestion struct {
	Description   string `json:"description"`
	PlaceID       string `json:"place_id"`
	MainText      string `json:"main_text,omitempty"`
	SecondaryText string `json:"secondary_text,omitempty"`
}

// AutocompleteResult is one autocomplete response bound to a billing session.
type AutocompleteResult struct {
	Input        string            `json:"input"`
	SessionToken string            `json:"session_token"`
	Sequence     uint64            `json:"sequence"`
	Suggestions  []PlaceSuggestion `json:"suggestions"`
	Provider     string            `json:"provider"`
}
