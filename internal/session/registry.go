// Package session implements the session registry: token -> (agent, table,
// seat, expiry), O(1) lookup, refreshed on accepted actions. Grounded on the
// teacher's BotPool registration map pattern (internal/server/pool.go).
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session binds an opaque token to a seated agent.
type Session struct {
	Token     string
	AgentID   string
	TableID   string
	SeatID    int
	ExpiresAt time.Time
}

// Registry is a process-wide, read-mostly map guarded by sync.RWMutex, per
// spec §5 ("many reads, infrequent writes on join/leave").
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// New constructs a Registry with the given session expiry window.
func New(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create mints a new session token for (agentID, tableID, seatID).
func (r *Registry) Create(agentID, tableID string, seatID int) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		Token:     uuid.NewString(),
		AgentID:   agentID,
		TableID:   tableID,
		SeatID:    seatID,
		ExpiresAt: r.now().Add(r.ttl),
	}
	r.sessions[s.Token] = s
	return s
}

// Lookup finds a session by token. ok is false if the token is unknown or
// expired.
func (r *Registry) Lookup(token string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[token]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if r.now().After(s.ExpiresAt) {
		return nil, false
	}
	return s, true
}

// Refresh extends a session's expiry, called on each accepted action within
// the configured window.
func (r *Registry) Refresh(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok {
		s.ExpiresAt = r.now().Add(r.ttl)
	}
}

// Revoke removes a session, used on leave/kick/table-end.
func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
}

// RevokeForTable revokes every session bound to a table. Nothing in the
// server calls it: ending a table through tablemgr.Manager.End leaves that
// table's sessions registered until they expire or are revoked one by one.
func (r *Registry) RevokeForTable(tableID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, s := range r.sessions {
		if s.TableID == tableID {
			delete(r.sessions, token)
		}
	}
}
