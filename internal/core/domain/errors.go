package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// Calibration errors.
var (
	ErrInsufficientPoints = errors.New("at least 3 control points are required")
	ErrCollinearImage     = errors.New("control points are collinear in image space")
	ErrCollinearMap       = errors.New("control points are collinear in map space")
	ErrSingular           = errors.New("affine system is singular")
	ErrResidualTooHigh    = errors.New("calibration residual exceeds the acceptable error")
)

// Extraction errors. Missing fields are never errors; these are I/O failures.
var (
	ErrUnsupportedDocument = errors.New("unsupported document type")
	ErrDocumentUnreadable  = errors.New("document could not be read")
	ErrOCRUnavailable      = errors.New("ocr service unavailable")
)

// ErrInvalidGeometry is returned for a boundary that fails validation.
var ErrInvalidGeometry = errors.New("invalid geometry")

// ErrMatchUnavailable wraps parcel store failures during matching.
var ErrMatchUnavailable = errors.New("parcel data source unavailable")

// ErrRateLimited is returned by providers that refused a request for quota.
var ErrRateLimited = errors.New("rate limited")

// ErrStaleResponse is returned for an autocomplete response that a newer
// request from the same client has superseded.
var ErrStaleResponse = errors.New("superseded by a newer request")

// GeocodeErrorKind enumerates geocoding failure classes.
type GeocodeErrorKind string

const (
	GeocodeNotFound        GeocodeErrorKind = "not_found"
	GeocodeAmbiguous       GeocodeErrorKind = "ambiguous"
	GeocodeOutsideCoverage GeocodeErrorKind = "outside_coverage"
	GeocodeServiceFailure  GeocodeErrorKind = "service_failure"
	GeocodeRateLimited     GeocodeErrorKind = "rate_limited"
	GeocodeInvalidInput    GeocodeErrorKind = "invalid_input"
)

// RecoveryAction is a next step the UI can offer after a geocoding failure.
type RecoveryAction string

const (
	ActionSearchByAPN   RecoveryAction = "search_by_apn"
	ActionDrawBoundary  RecoveryAction = "draw_boundary"
	ActionRefineAddress RecoveryAction = "refine_address"
	ActionPickCandidate RecoveryAction = "pick_candidate"
	ActionAddCityOrZip  RecoveryAction = "add_city_or_zip"
	ActionCheckLocation RecoveryAction = "check_location"
	ActionRetryLater    RecoveryAction = "retry_later"
	ActionTypeMore      RecoveryAction = "type_more"
)

var recoveryActions = map[GeocodeErrorKind][]RecoveryAction{
	GeocodeNotFound:        {ActionSearchByAPN, ActionDrawBoundary, ActionRefineAddress},
	GeocodeAmbiguous:       {ActionPickCandidate, ActionAddCityOrZip},
	GeocodeOutsideCoverage: {ActionCheckLocation, ActionSearchByAPN},
	GeocodeServiceFailure:  {ActionRetryLater, ActionSearchByAPN},
	GeocodeRateLimited:     {ActionRetryLater},
	GeocodeInvalidInput:    {ActionTypeMore},
}

// GeocodeError is a modeled geocoding failure with suggested recovery actions.
type GeocodeError struct {
	Kind        GeocodeErrorKind `json:"kind"`
	Message     string           `json:"message"`
	Suggestions []RecoveryAction `json:"suggestions"`
	Err         error            `json:"-"`
}

// NewGeocodeError builds a GeocodeError with the default suggestions for kind.
func NewGeocodeError(kind GeocodeErrorKind, msg string, cause error) *GeocodeError {
	return &GeocodeError{
		Kind:        kind,
		Message:     msg,
		Suggestions: append([]RecoveryAction(nil), recoveryActions[kind]...),
		Err:         cause,
	}
}

func (e *GeocodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geocode %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("geocode %s: %s", e.Kind, e.Message)
}

func (e *GeocodeError) Unwrap() error { return e.Err }

// GateReason is the machine-readable cause of a rejected gate transition.
type GateReason string

const (
	GateIllegalTransition      GateReason = "illegal_transition"
	GateSessionLocked          GateReason = "session_locked"
	GateUnacknowledgedWarnings GateReason = "unacknowledged_warnings"
	GateParcelMismatch         GateReason = "parcel_mismatch"
	GateInvalidGeometry        GateReason = "invalid_geometry"
	GateVerificationIncomplete GateReason = "verification_incomplete"
	GatePhraseRequired         GateReason = "confirmation_phrase_required"
	GateUnknownCandidate       GateReason = "unknown_candidate"
	GateUnknownWarning         GateReason = "unknown_warning"
	GateSessionClosed          GateReason = "session_closed"
)

// GateError is returned for every rejected selection transition.
type GateError struct {
	Reason  GateReason `json:"reason"`
	Message string     `json:"message"`
}

func (e *GateError) Error() string {
	return fmt.Sprintf("selection gate: %s: %s", e.Reason, e.Message)
}
