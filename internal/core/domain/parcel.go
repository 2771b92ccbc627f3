package domain

import "time"

// ParcelIdentifier is a county-scoped APN/CAD number. County is empty when
// the format could not be attributed to any registered county.
type ParcelIdentifier struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
	County     string `json:"county,omitempty"`
}

// LegalDescription holds the recorded lot/block/subdivision of a parcel.
type LegalDescription struct {
	Lot         string `json:"lot,omitempty"`
	Block       string `json:"block,omitempty"`
	Subdivision string `json:"subdivision,omitempty"`
}

// IsZero reports whether no component is set.
func (l LegalDescription) IsZero() bool {
	return l.Lot == "" && l.Block == "" && l.Subdivision == ""
}

// ParcelRecord is a row of the parcel store.
type ParcelRecord struct {
	ID             string           `json:"id"`
	SourceParcelID string           `json:"source_parcel_id"`
	County         string           `json:"county"`
	SitusAddress   string           `json:"situs_address,omitempty"`
	OwnerName      string           `json:"owner_name,omitempty"`
	Acreage        float64          `json:"acreage,omitempty"`
	Legal          LegalDescription `json:"legal,omitempty"`
	Geometry       ParcelGeometry   `json:"geometry"`
	Centroid       GeoPoint         `json:"centroid"`
	Distance       *float64         `json:"distance,omitempty"` // computed field
	UpdatedAt      time.Time        `json:"updated_at"`
}

// ReasonCode explains why a candidate was nominated.
type ReasonCode string

const (
	ReasonAPN      ReasonCode = "APN_MATCH"
	ReasonAddress  ReasonCode = "ADDRESS_MATCH"
	ReasonLocation ReasonCode = "LOCATION_MATCH"
	ReasonOwner    ReasonCode = "OWNER_MATCH"
	ReasonLegal    ReasonCode = "LEGAL_DESC_MATCH"
	ReasonArea     ReasonCode = "AREA_MATCH"
	ReasonCounty   ReasonCode = "COUNTY_MATCH"
	ReasonOverlap  ReasonCode = "OVERLAP_MATCH"
	ReasonCentroid ReasonCode = "CENTROID_MATCH"
)

// Deterministic reports whether the code identifies a parcel on its own,
// as opposed to corroborating one.
func (r ReasonCode) Deterministic() bool {
	switch r {
	case ReasonAPN, ReasonAddress, ReasonLegal, ReasonOverlap:
		return true
	}
	return false
}

// ConfidenceBand is a coarse classification of a continuous score.
type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "high"
	BandMedium ConfidenceBand = "medium"
	BandLow    ConfidenceBand = "low"
)

// MatchDebug carries the raw inputs behind a candidate for operator review.
type MatchDebug struct {
	MatchType        string   `json:"match_type"`
	ExtractedAPN     string   `json:"extracted_apn,omitempty"`
	ExtractedAddress string   `json:"extracted_address,omitempty"`
	ExtractedOwner   string   `json:"extracted_owner,omitempty"`
	OverlapPercent   *float64 `json:"overlap_percent,omitempty"`
	CentroidDistance *float64 `json:"centroid_distance_m,omitempty"`
}

// CandidateParcel is one ranked match. Candidates are produced fresh for every
// match request and never mutated afterwards.
type CandidateParcel struct {
	ParcelID       string         `json:"parcel_id"`
	SourceParcelID string         `json:"source_parcel_id"`
	Confidence     float64        `json:"confidence"`
	Band           ConfidenceBand `json:"band"`
	ReasonCodes    []ReasonCode   `json:"reason_codes"`
	SitusAddress   string         `json:"situs_address,omitempty"`
	OwnerName      string         `json:"owner_name,omitempty"`
	Acreage        float64        `json:"acreage,omitempty"`
	County         string         `json:"county"`
	Geometry       ParcelGeometry `json:"geometry"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Debug          *MatchDebug    `json:"debug,omitempty"`
}

// HasReason reports whether the candidate carries code.
func (c CandidateParcel) HasReason(code ReasonCode) bool {
	for _, r := range c.ReasonCodes {
		if r == code {
			return true
		}
	}
	return false
}

// MatchStatus is the terminal outcome of a match request.
type MatchStatus string

const (
	MatchAutoSelected MatchStatus = "AUTO_SELECTED"
	MatchNeedsReview  MatchStatus = "NEEDS_REVIEW"
	MatchNoMatch      MatchStatus = "NO_MATCH"
	MatchError        MatchStatus = "ERROR"
)

// MatchSignals summarises which inputs were available to the matcher.
type MatchSignals struct {
	HasAPN       bool `json:"has_apn"`
	HasAddress   bool `json:"has_address"`
	HasPoint     bool `json:"has_point"`
	HasOwner     bool `json:"has_owner"`
	HasLegal     bool `json:"has_legal"`
	HasAcreage   bool `json:"has_acreage"`
	HasCounty    bool `json:"has_county"`
	ScannedNoOCR bool `json:"scanned_no_ocr"`
}

// Any reports whether at least one matching signal was present.
func (s MatchSignals) Any() bool {
	return s.HasAPN || s.HasAddress || s.HasPoint || s.HasOwner || s.HasLegal || s.HasAcreage
}

// MatchResult is the ranked candidate list plus its classification.
type MatchResult struct {
	Status     MatchStatus       `json:"status"`
	Candidates []CandidateParcel `json:"candidates"`
	Signals    MatchSignals      `json:"signals"`
	Error      string            `json:"error,omitempty"`
}

// Top returns the best candidate, if any.
func (r *MatchResult) Top() (CandidateParcel, bool) {
	if r == nil || len(r.Candidates) == 0 {
		return CandidateParcel{}, false
	}
	return r.Candidates[0], true
}
