package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentscaffold/backend/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	// Retention is how long an idle session survives before eviction.
	Retention = time.Hour

	// SweepInterval is how often the background sweeper runs.
	SweepInterval = 15 * time.Minute
)

// Service owns the in-memory session records. All access goes through its
// methods; records are returned by value so callers never hold references
// into the map.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
}

// NewService bootstraps an empty in-memory session store.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]chat.Session),
	}
}

// Create provisions a fresh session with a zero message count.
func (s *Service) Create() chat.Session {
	now := time.Now().UTC()
	session := chat.Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastActivity: now,
		MessageCount: 0,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session
}

// Touch marks activity on a session: bumps LastActivity to now and increments
// the message count. Callers decide whether a missing session warrants
// auto-creation.
func (s *Service) Touch(sessionID string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}

	session.LastActivity = time.Now().UTC()
	session.MessageCount++
	s.sessions[sessionID] = session
	return session, nil
}

// Get retrieves a session by identifier.
func (s *Service) Get(sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes a session, reporting whether it existed.
func (s *Service) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	return true
}

// Sweep evicts every session whose last activity is older than now-retention.
func (s *Service) Sweep(retention time.Duration, now time.Time) {
	cutoff := now.Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, session := range s.sessions {
		if session.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

// Len reports the number of live sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunSweeper sweeps on a fixed interval until the context is cancelled. Run
// it as a goroutine owned by the server lifecycle; tests call Sweep directly.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			before := s.Len()
			s.Sweep(Retention, now.UTC())
			if evicted := before - s.Len(); evicted > 0 {
				log.Printf("[session] sweeper evicted %d idle session(s)", evicted)
			}
		}
	}
}
