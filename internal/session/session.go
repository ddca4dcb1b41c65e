package session

import (
	"net"
	"sync"
	"time"
)

// Session is the player-facing lifecycle object layered over a transport
// connection. Its State, Quality, and Priority are read far more often
// than written (the reaper reads every session's state on each sweep), so a
// RWMutex guards them rather than the plain Mutex connstate.Connection
// uses for its write-heavy send/receive path.
type Session struct {
	ID         string
	ConnID     string
	RemoteAddr net.Addr

	mu         sync.RWMutex
	state      State
	priority   Priority
	playerID   string
	authMethod string
	quality    Quality
	rttMillis  float64

	createdAt    time.Time
	lastActivity time.Time
}

func newSession(id, connID string, addr net.Addr, priority Priority) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		ConnID:       connID,
		RemoteAddr:   addr,
		state:        StateConnecting,
		priority:     priority,
		quality:      QualityUnknown,
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Priority() Priority {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.priority
}

func (s *Session) PlayerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerID
}

func (s *Session) Quality() Quality {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quality
}

func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.createdAt)
}

func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastActivity)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) setState(next State) (State, State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	return prev, next
}

func (s *Session) setQuality(q Quality, rttMillis float64) (Quality, Quality) {
	s.mu.Lock()
	prev := s.quality
	s.quality = q
	s.rttMillis = rttMillis
	s.mu.Unlock()
	return prev, q
}

func (s *Session) setAuth(playerID, authMethod string) {
	s.mu.Lock()
	s.playerID = playerID
	s.authMethod = authMethod
	s.mu.Unlock()
}
