package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/core/gate"
	"github.com/samirrijal/siteintel/internal/core/ports"
)

// DefaultIdleSessionTTL closes selection sessions nobody has touched.
const DefaultIdleSessionTTL = 30 * time.Minute

type sessionEntry struct {
	session  *gate.Session
	lastUsed time.Time
}

// SelectionService keeps the live selection sessions and persists and
// announces the parcels they lock.
type SelectionService struct {
	locks  ports.LockRepository
	events ports.EventPublisher
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewSelectionService creates a SelectionService. events may be nil.
func NewSelectionService(locks ports.LockRepository, events ports.EventPublisher, idleTTL time.Duration) *SelectionService {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleSessionTTL
	}
	return &SelectionService{
		locks:    locks,
		events:   events,
		ttl:      idleTTL,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
}

// WithClock overrides time.Now for idle accounting.
func (s *SelectionService) WithClock(now func() time.Time) *SelectionService {
	s.now = now
	return s
}

// Start opens a new session in exploration.
func (s *SelectionService) Start() *gate.Session {
	id := uuid.NewString()
	sess := gate.NewSession(id, s.recordLock)
	s.mu.Lock()
	s.sessions[id] = &sessionEntry{session: sess, lastUsed: s.now()}
	s.mu.Unlock()
	return sess
}

// Get returns a live session.
func (s *SelectionService) Get(id string) (*gate.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	e.lastUsed = s.now()
	return e.session, nil
}

// Dispatch forwards ev to the session id.
func (s *SelectionService) Dispatch(ctx context.Context, id string, ev gate.Event) (gate.Snapshot, error) {
	sess, err := s.Get(id)
	if err != nil {
		return gate.Snapshot{}, err
	}
	return sess.Dispatch(ctx, ev)
}

// Abandon closes and forgets a session. A parcel it locked stays recorded.
func (s *SelectionService) Abandon(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	e.session.Close()
	return nil
}

// ChangeParcel abandons id and starts a fresh session carrying over the
// candidate set. It is the only way out of a locked session.
func (s *SelectionService) ChangeParcel(ctx context.Context, id string) (*gate.Session, error) {
	old, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	snap, err := old.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Abandon(id); err != nil {
		return nil, err
	}
	next := s.Start()
	if _, err := next.Dispatch(ctx, gate.SetCandidates{Candidates: snap.Candidates, Method: snap.InputMethod}); err != nil {
		return nil, fmt.Errorf("seed new session: %w", err)
	}
	slog.Info("selection restarted", "from_session", id, "to_session", next.ID())
	return next, nil
}

// Lock returns the parcel a session locked.
func (s *SelectionService) Lock(ctx context.Context, sessionID string) (*domain.LockedParcel, error) {
	return s.locks.GetBySession(ctx, sessionID)
}

// Len reports the number of live sessions.
func (s *SelectionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many.
func (s *SelectionService) Sweep() int {
	cutoff := s.now().Add(-s.ttl)
	var stale []*gate.Session
	s.mu.Lock()
	for id, e := range s.sessions {
		if e.lastUsed.Before(cutoff) {
			stale = append(stale, e.session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
	for _, sess := range stale {
		sess.Close()
	}
	return len(stale)
}

// Run sweeps idle sessions until ctx is done, then closes every session.
func (s *SelectionService) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for id, e := range s.sessions {
				e.session.Close()
				delete(s.sessions, id)
			}
			s.mu.Unlock()
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("swept idle selection sessions", "count", n)
			}
		}
	}
}

func (s *SelectionService) recordLock(ctx context.Context, lock *domain.LockedParcel) error {
	if err := s.locks.Save(ctx, lock); err != nil {
		return fmt.Errorf("save lock: %w", err)
	}
	if s.events != nil {
		if err := s.events.PublishParcelLocked(ctx, lock); err != nil {
			slog.Warn("failed to publish parcel lock", "session_id", lock.SessionID, "parcel_id", lock.ParcelID, "error", err)
		}
	}
	return nil
}
