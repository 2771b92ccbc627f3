package usecases

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is how long an autocomplete billing session stays open
// after the last keystroke.
const DefaultSessionTTL = 3 * time.Minute

// SessionTokens groups a client's keystrokes into one billable autocomplete
// session. A new token is minted only once the previous one expires or the
// client resets it after picking a place.
type SessionTokens struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	newToken func() string
	sessions map[string]sessionToken
}

type sessionToken struct {
	token    string
	lastUsed time.Time
}

// NewSessionTokens creates a token registry. A zero ttl uses DefaultSessionTTL.
func NewSessionTokens(ttl time.Duration) *SessionTokens {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionTokens{
		ttl:      ttl,
		now:      time.Now,
		newToken: uuid.NewString,
		sessions: make(map[string]sessionToken),
	}
}

// WithClock replaces the time source. Intended for tests.
func (t *SessionTokens) WithClock(now func() time.Time) *SessionTokens {
	t.now = now
	return t
}

// Token returns the client's current token, extending its lifetime. fresh
// is true when a new token was minted.
func (t *SessionTokens) Token(client string) (token string, fresh bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if s, ok := t.sessions[client]; ok && now.Sub(s.lastUsed) < t.ttl {
		s.lastUsed = now
		t.sessions[client] = s
		return s.token, false
	}
	s := sessionToken{token: t.newToken(), lastUsed: now}
	t.sessions[client] = s
	t.sweep(now)
	return s.token, true
}

// Reset ends the client's session.
func (t *SessionTokens) Reset(client string) {
	t.mu.Lock()
	delete(t.sessions, client)
	t.mu.Unlock()
}

// Len returns the number of tracked sessions.
func (t *SessionTokens) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// sweep drops expired sessions. Caller holds mu.
func (t *SessionTokens) sweep(now time.Time) {
	for k, s := range t.sessions {
		if now.Sub(s.lastUsed) >= t.ttl {
			delete(t.sessions, k)
		}
	}
}

// Sequencer numbers requests per client so a slow response that has been
// overtaken by a newer request can be discarded. Numbers come from one
// counter, so a forgotten client never reuses a number still in flight.
type Sequencer struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	next   uint64
	latest map[string]sequence
}

type sequence struct {
	n        uint64
	lastUsed time.Time
}

// NewSequencer creates an empty Sequencer. Clients idle for longer than ttl
// are dropped; a zero ttl uses DefaultSessionTTL.
func NewSequencer(ttl time.Duration) *Sequencer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sequencer{ttl: ttl, now: time.Now, latest: make(map[string]sequence)}
}

// WithClock replaces the time source. Intended for tests.
func (s *Sequencer) WithClock(now func() time.Time) *Sequencer {
	s.now = now
	return s
}

// Next allocates the next sequence number for client.
func (s *Sequencer) Next(client string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if _, ok := s.latest[client]; !ok {
		s.sweep(now)
	}
	s.next++
	s.latest[client] = sequence{n: s.next, lastUsed: now}
	return s.next
}

// IsLatest reports whether seq is still the newest request from client.
func (s *Sequencer) IsLatest(client string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[client].n == seq
}

// Forget drops the client. Its in-flight requests become stale.
func (s *Sequencer) Forget(client string) {
	s.mu.Lock()
	delete(s.latest, client)
	s.mu.Unlock()
}

// Len returns the number of tracked clients.
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latest)
}

// sweep drops idle clients. Caller holds mu.
func (s *Sequencer) sweep(now time.Time) {
	for k, seq := range s.latest {
		if now.Sub(seq.lastUsed) >= s.ttl {
			delete(s.latest, k)
		}
	}
}
