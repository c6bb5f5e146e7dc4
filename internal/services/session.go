package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/models"
)

// SessionStore keeps one in-flight purchase per user. Sessions idle longer
// than the TTL are treated as gone: Get drops them lazily and Sweep clears
// them in the background.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*models.Session
	ttl      time.Duration
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]*models.Session),
		ttl:      ttl,
	}
}

// Put stores the session for the user, replacing any existing one.
func (s *SessionStore) Put(userID int64, session *models.Session) {
	session.UpdatedAt = time.Now()
	s.mu.Lock()
	s.sessions[userID] = session
	s.mu.Unlock()
}

// Get returns the user's session, or nil if none exists or it has gone stale.
func (s *SessionStore) Get(userID int64) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	if s.ttl > 0 && time.Since(session.UpdatedAt) > s.ttl {
		delete(s.sessions, userID)
		return nil
	}
	return session
}

// Touch refreshes the session's idle timer after a mutation.
func (s *SessionStore) Touch(userID int64) {
	s.mu.Lock()
	if session, ok := s.sessions[userID]; ok {
		session.UpdatedAt = time.Now()
	}
	s.mu.Unlock()
}

// Remove deletes the user's session if present.
func (s *SessionStore) Remove(userID int64) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// Sweep periodically evicts stale sessions until ctx is cancelled.
func (s *SessionStore) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.evictStale(); n > 0 {
				log.Debug().Int("evicted", n).Msg("swept stale sessions")
			}
		}
	}
}

func (s *SessionStore) evictStale() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for userID, session := range s.sessions {
		if time.Since(session.UpdatedAt) > s.ttl {
			delete(s.sessions, userID)
			evicted++
		}
	}
	return evicted
}
