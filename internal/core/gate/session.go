// Package gate implements the parcel selection state machine. A Session
// serializes every transition request through one goroutine, so requests are
// applied strictly in the order they were submitted.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/pkg/geometry"
	"github.com/samirrijal/siteintel/internal/pkg/metrics"
)

// LockSink receives the single LockedParcel a session emits. If it fails the
// session stays in candidate-focus and the confirmation can be retried.
type LockSink func(ctx context.Context, lock *domain.LockedParcel) error

// Snapshot is a copy of a session's state. It is safe to retain.
type Snapshot struct {
	SessionID   string                    `json:"session_id"`
	State       domain.MapSelectionState  `json:"state"`
	Candidates  []domain.CandidateParcel  `json:"candidates"`
	Warnings    []domain.SelectionWarning `json:"warnings"`
	InputMethod domain.InputMethod        `json:"input_method,omitempty"`
	History     []domain.StateTransition  `json:"history"`
	Lock        *domain.LockedParcel      `json:"lock,omitempty"`
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

type request struct {
	ctx   context.Context
	event Event
	reply chan reply
}

type reply struct {
	snap Snapshot
	err  error
}

// Session owns one MapSelectionState. Only the loop goroutine touches the
// fields below the channel block.
type Session struct {
	id     string
	onLock LockSink
	now    func() time.Time

	requests  chan request
	done      chan struct{}
	closeOnce sync.Once

	state      domain.MapSelectionState
	candidates []domain.CandidateParcel
	warnings   []domain.SelectionWarning
	method     domain.InputMethod
	history    []domain.StateTransition
	lock       *domain.LockedParcel
}

// NewSession starts a session in exploration. onLock may be nil.
func NewSession(id string, onLock LockSink, opts ...Option) *Session {
	s := &Session{
		id:       id,
		onLock:   onLock,
		now:      time.Now,
		requests: make(chan request),
		done:     make(chan struct{}),
		state:    domain.MapSelectionState{State: domain.StateExploration},
		method:   domain.InputSearch,
	}
	for _, o := range opts {
		o(s)
	}
	metrics.ActiveSessions.Inc()
	go s.loop()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Close stops the session. Pending and later Dispatch calls fail with
// session_closed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		metrics.ActiveSessions.Dec()
	})
}

// Dispatch submits ev and waits for it to be applied. A rejected transition
// returns a *domain.GateError and the state is unchanged. Once accepted, an
// event is applied even if ctx is cancelled while waiting for the reply.
func (s *Session) Dispatch(ctx context.Context, ev Event) (Snapshot, error) {
	if ev == nil {
		return Snapshot{}, gateErr(domain.GateIllegalTransition, "nil event")
	}
	req := request{ctx: ctx, event: ev, reply: make(chan reply, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return Snapshot{}, gateErr(domain.GateSessionClosed, "session is closed")
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.snap, r.err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	return s.Dispatch(ctx, snapshotQuery{})
}

func (s *Session) loop() {
	for {
		select {
		case <-s.done:
			return
		case req := <-s.requests:
			err := s.apply(req.ctx, req.event)
			if _, query := req.event.(snapshotQuery); !query {
				result := "accepted"
				if ge, ok := err.(*domain.GateError); ok {
					result = string(ge.Reason)
				} else if err != nil {
					result = "sink_error"
				}
				metrics.GateTransitions.WithLabelValues(result).Inc()
			}
			req.reply <- reply{snap: s.snapshot(), err: err}
		}
	}
}

func gateErr(reason domain.GateReason, format string, args ...any) *domain.GateError {
	return &domain.GateError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func (s *Session) apply(ctx context.Context, ev Event) error {
	if _, ok := ev.(snapshotQuery); ok {
		return nil
	}
	if s.state.State == domain.StateLocked {
		return gateErr(domain.GateSessionLocked, "parcel %s is locked; start a new session to change it", s.state.SelectedParcelID)
	}

	switch e := ev.(type) {
	case SetCandidates:
		s.unfocus("")
		s.candidates = append([]domain.CandidateParcel(nil), e.Candidates...)
		s.warnings = nil
		if e.Method != "" {
			s.method = e.Method
		}
		return nil

	case Focus:
		c, ok := s.candidate(e.ParcelID)
		if !ok {
			return gateErr(domain.GateUnknownCandidate, "parcel %s is not a current candidate", e.ParcelID)
		}
		if s.state.State == domain.StateCandidateFocus {
			if s.state.SelectedParcelID == e.ParcelID {
				return nil
			}
			s.unfocus(s.state.SelectedParcelID)
		}
		s.state.SelectedParcelID = c.ParcelID
		s.state.SelectedGeometry = c.Geometry
		s.state.Band = c.Band
		s.transition(domain.StateExploration, domain.StateCandidateFocus, c.ParcelID)
		return nil

	case Blur:
		if s.state.State != domain.StateCandidateFocus {
			return gateErr(domain.GateIllegalTransition, "nothing is focused")
		}
		s.unfocus(s.state.SelectedParcelID)
		return nil

	case AddWarning:
		w := e.Warning
		if w.Code == "" {
			return gateErr(domain.GateUnknownWarning, "warning code is required")
		}
		w.Acknowledged = false
		for i := range s.warnings {
			if s.warnings[i].Code == w.Code {
				s.warnings[i] = w
				return nil
			}
		}
		s.warnings = append(s.warnings, w)
		return nil

	case Acknowledge:
		for i := range s.warnings {
			if s.warnings[i].Code == e.Code {
				s.warnings[i].Acknowledged = true
				return nil
			}
		}
		return gateErr(domain.GateUnknownWarning, "no warning %q", e.Code)

	case Confirm:
		return s.confirm(ctx, e)
	}
	return gateErr(domain.GateIllegalTransition, "unsupported event %s", ev.name())
}

func (s *Session) confirm(ctx context.Context, e Confirm) error {
	if s.state.State != domain.StateCandidateFocus {
		return gateErr(domain.GateIllegalTransition, "confirm requires a focused candidate")
	}
	if e.ParcelID != s.state.SelectedParcelID {
		return gateErr(domain.GateParcelMismatch, "confirmed parcel %s is not the focused parcel %s", e.ParcelID, s.state.SelectedParcelID)
	}
	var open []string
	for _, w := range s.warnings {
		if !w.Acknowledged {
			open = append(open, w.Code)
		}
	}
	if len(open) > 0 {
		return gateErr(domain.GateUnacknowledgedWarnings, "acknowledge %s first", strings.Join(open, ", "))
	}
	if v := geometry.ValidateParcel(s.state.SelectedGeometry); !v.Valid {
		return gateErr(domain.GateInvalidGeometry, "%s", v.Reason)
	}
	if !e.Verification.Complete() {
		return gateErr(domain.GateVerificationIncomplete, "all verification checks must be affirmed")
	}
	if s.state.Band == domain.BandLow && strings.TrimSpace(e.Phrase) != ConfirmationPhrase {
		return gateErr(domain.GatePhraseRequired, "type %s to lock a low-confidence parcel", ConfirmationPhrase)
	}

	c, _ := s.candidate(s.state.SelectedParcelID)
	lock := &domain.LockedParcel{
		SessionID:      s.id,
		ParcelID:       c.ParcelID,
		SourceParcelID: c.SourceParcelID,
		County:         c.County,
		SitusAddress:   c.SitusAddress,
		Acreage:        c.Acreage,
		Geometry:       s.state.SelectedGeometry,
		GeometryHash:   geometry.Hash(s.state.SelectedGeometry),
		Confidence:     c.Confidence,
		Band:           c.Band,
		ReasonCodes:    append([]domain.ReasonCode(nil), c.ReasonCodes...),
		InputMethod:    s.method,
		Verification:   e.Verification,
		LockedAt:       s.now().UTC(),
	}
	if s.onLock != nil {
		if err := s.onLock(ctx, lock); err != nil {
			return fmt.Errorf("record lock: %w", err)
		}
	}

	s.lock = lock
	s.state.PostConfirmation = true
	s.transition(domain.StateCandidateFocus, domain.StateLocked, lock.ParcelID)
	metrics.ParcelLocks.WithLabelValues(string(s.method)).Inc()
	slog.Info("parcel locked", "session_id", s.id, "parcel_id", lock.ParcelID,
		"band", lock.Band, "input_method", lock.InputMethod)
	return nil
}

// unfocus returns to exploration if a candidate is focused.
func (s *Session) unfocus(parcelID string) {
	if s.state.State != domain.StateCandidateFocus {
		return
	}
	s.transition(domain.StateCandidateFocus, domain.StateExploration, parcelID)
	s.state.SelectedParcelID = ""
	s.state.SelectedGeometry = domain.ParcelGeometry{}
	s.state.Band = ""
}

func (s *Session) transition(from, to domain.SelectionState, parcelID string) {
	s.state.State = to
	s.history = append(s.history, domain.StateTransition{From: from, To: to, ParcelID: parcelID, At: s.now().UTC()})
}

func (s *Session) candidate(id string) (domain.CandidateParcel, bool) {
	for _, c := range s.candidates {
		if c.ParcelID == id {
			return c, true
		}
	}
	return domain.CandidateParcel{}, false
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:   s.id,
		State:       s.state,
		Candidates:  append([]domain.CandidateParcel{}, s.candidates...),
		Warnings:    append([]domain.SelectionWarning{}, s.warnings...),
		InputMethod: s.method,
		History:     append([]domain.StateTransition{}, s.history...),
	}
	if s.lock != nil {
		l := *s.lock
		snap.Lock = &l
	}
	return snap
}
