package gate

import "github.com/samirrijal/siteintel/internal/core/domain"

// ConfirmationPhrase must be typed to lock a low-confidence parcel.
const ConfirmationPhrase = "CONFIRM"

// Event is a transition request submitted to a Session.
type Event interface {
	name() string
}

// SetCandidates replaces the candidate set after a new search, upload or
// calibration. Any focus and any warnings are cleared.
type SetCandidates struct {
	Candidates []domain.CandidateParcel
	Method     domain.InputMethod
}

// Focus tentatively highlights one candidate.
type Focus struct {
	ParcelID string
}

// Blur drops the current focus.
type Blur struct{}

// AddWarning attaches a validation warning that must be acknowledged before
// locking. A warning with an existing code replaces it unacknowledged.
type AddWarning struct {
	Warning domain.SelectionWarning
}

// Acknowledge affirms a warning by code.
type Acknowledge struct {
	Code string
}

// Confirm locks the focused parcel.
type Confirm struct {
	ParcelID     string
	Verification domain.VerificationChecks
	Phrase       string
}

type snapshotQuery struct{}

func (SetCandidates) name() string { return "set_candidates" }
func (Focus) name() string         { return "focus" }
func (Blur) name() string          { return "blur" }
func (AddWarning) name() string    { return "add_warning" }
func (Acknowledge) name() string   { return "acknowledge" }
func (Confirm) name() string       { return "confirm" }
func (snapshotQuery) name() string { return "snapshot" }
