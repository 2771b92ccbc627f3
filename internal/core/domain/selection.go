package domain

import "time"

// SelectionState is the phase of a parcel-selection session.
type SelectionState string

const (
	StateExploration    SelectionState = "exploration"
	StateCandidateFocus SelectionState = "candidate-focus"
	StateLocked         SelectionState = "locked"
)

// MapSelectionState is the authoritative state of one selection session.
type MapSelectionState struct {
	State            SelectionState `json:"state"`
	SelectedParcelID string         `json:"selected_parcel_id,omitempty"`
	SelectedGeometry ParcelGeometry `json:"selected_geometry"`
	Band             ConfidenceBand `json:"band,omitempty"`
	PostConfirmation bool           `json:"post_confirmation"`
}

// SelectionWarning must be acknowledged before a parcel can be locked.
type SelectionWarning struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Acknowledged bool   `json:"acknowledged"`
}

// Well-known warning codes.
const (
	WarningLowConfidence    = "low_confidence"
	WarningBoundaryMismatch = "boundary_mismatch"
	WarningCountyMismatch   = "county_mismatch"
)

// VerificationChecks are the affirmations a user gives before locking.
type VerificationChecks struct {
	CorrectBoundary     bool `json:"correct_boundary"`
	LocationMatches     bool `json:"location_matches"`
	UnderstandsAnalysis bool `json:"understands_analysis"`
}

// Complete reports whether all checks are affirmed.
func (v VerificationChecks) Complete() bool {
	return v.CorrectBoundary && v.LocationMatches && v.UnderstandsAnalysis
}

// InputMethod records how the locked parcel was found.
type InputMethod string

const (
	InputSearch    InputMethod = "search"
	InputSurvey    InputMethod = "survey"
	InputDrawn     InputMethod = "drawn"
	InputCalibrate InputMethod = "calibration"
)

// StateTransition is one recorded edge of the selection state machine.
type StateTransition struct {
	From     SelectionState `json:"from"`
	To       SelectionState `json:"to"`
	ParcelID string         `json:"parcel_id,omitempty"`
	At       time.Time      `json:"at"`
}

// LockedParcel is the single confirmed parcel a session emits for downstream
// report generation.
type LockedParcel struct {
	SessionID      string             `json:"session_id"`
	ParcelID       string             `json:"parcel_id"`
	SourceParcelID string             `json:"source_parcel_id"`
	County         string             `json:"county"`
	SitusAddress   string             `json:"situs_address,omitempty"`
	Acreage        float64            `json:"acreage,omitempty"`
	Geometry       ParcelGeometry     `json:"geometry"`
	GeometryHash   string             `json:"geometry_hash"`
	Confidence     float64            `json:"confidence"`
	Band           ConfidenceBand     `json:"band"`
	ReasonCodes    []ReasonCode       `json:"reason_codes"`
	InputMethod    InputMethod        `json:"input_method"`
	Verification   VerificationChecks `json:"verification"`
	LockedAt       time.Time          `json:"locked_at"`
}
