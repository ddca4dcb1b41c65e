// Package session implements the session lifecycle manager from
// spec.md §4.3, layered above internal/connstate's transport connections.
// Each session is bound to the one connection ID it was created for; the
// manager never re-attaches a session to a new connection. The connection
// layer itself knows nothing about sessions, matching the teacher's
// decoupling of RakNet sessions from game-level Player objects.
package session

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"rudpcore/internal/persistence"
	"rudpcore/internal/telemetry"
)

var (
	ErrUnknownSession   = errors.New("session: unknown session id")
	ErrDuplicateLogin   = errors.New("session: player already has an active session")
	ErrServerFull       = errors.New("session: server at capacity")
)

// Manager owns the table of active sessions, their reaper sweep, and
// lifecycle event fan-out.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	byConn      map[string]string // connstate.ID (as string) -> session id
	byPlayer    map[string]string // playerID -> session id, for duplicate-login detection

	maxSessions int
	idleGrace   time.Duration

	events *EventManager
	tel    *telemetry.Counters
	sink   persistence.Sink
	log    *logrus.Logger
}

// Config parameterizes a Manager.
type Config struct {
	MaxSessions int
	IdleGrace   time.Duration
}

// NewManager constructs a Manager. sink may be persistence.NoopSink{} when
// no database is configured.
func NewManager(cfg Config, tel *telemetry.Counters, sink persistence.Sink, log *logrus.Logger) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		byConn:      make(map[string]string),
		byPlayer:    make(map[string]string),
		maxSessions: cfg.MaxSessions,
		idleGrace:   cfg.IdleGrace,
		events:      NewEventManager(),
		tel:         tel,
		sink:        sink,
		log:         log,
	}
}

// Events returns the manager's event fan-out, for registering handlers
// (room membership cleanup, admin live feed).
func (m *Manager) Events() *EventManager { return m.events }

// Create admits a new session for a freshly connected transport
// connection. Returns ErrServerFull once the session table is at
// capacity, per spec.md §4.3 "admission control".
func (m *Manager) Create(connID string, addr net.Addr, priority Priority) (*Session, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		if m.tel != nil {
			m.tel.AddConnectionFailures(1)
		}
		return nil, ErrServerFull
	}

	id := xid.New().String()
	s := newSession(id, connID, addr, priority)
	m.sessions[id] = s
	m.byConn[connID] = id
	m.mu.Unlock()

	if m.tel != nil {
		m.tel.AddSessionCreations(1)
		m.tel.IncQuality(QualityUnknown.telemetryQuality())
	}

	m.events.Trigger(Event{Type: EventCreated, SessionID: id, RemoteAddr: addr, Timestamp: time.Now()})
	m.appendAudit(id, "created", "", addr)
	return s, nil
}

// Authenticate transitions a session to Active and records its player
// identity. If playerID already has a live session under a different id,
// the previous session is terminated with ReasonDuplicateLogin and the new
// session proceeds to Active, matching the original_source's
// "terminating existing session" duplicate-login handling.
func (m *Manager) Authenticate(sessionID, playerID, authMethod string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownSession
	}
	existing, dup := m.byPlayer[playerID]
	m.byPlayer[playerID] = sessionID
	m.mu.Unlock()

	if dup && existing != sessionID {
		m.Terminate(existing, ReasonDuplicateLogin)
	}

	s.setAuth(playerID, authMethod)
	prev, next := s.setState(StateActive)
	m.events.Trigger(Event{Type: EventAuthenticated, SessionID: sessionID, PlayerID: playerID, AuthMethod: authMethod, Timestamp: time.Now()})
	m.events.Trigger(Event{Type: EventStateChanged, SessionID: sessionID, OldState: prev, NewState: next, Timestamp: time.Now()})
	return nil
}

// ChangeState transitions sessionID to next and emits EventStateChanged.
func (m *Manager) ChangeState(sessionID string, next State) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	prev, next := s.setState(next)
	if prev != next {
		m.events.Trigger(Event{Type: EventStateChanged, SessionID: sessionID, OldState: prev, NewState: next, Timestamp: time.Now()})
	}
	return nil
}

// Touch marks sessionID active now, resetting its idle clock and moving an
// Idle session back to Active.
func (m *Manager) Touch(sessionID string) {
	if s, ok := m.Get(sessionID); ok {
		s.touch()
		if s.State() == StateIdle {
			m.ChangeState(sessionID, StateActive)
		}
	}
}

// UpdateQuality recomputes sessionID's Quality from a fresh RTT sample and
// emits EventQualityChanged when the class changes.
func (m *Manager) UpdateQuality(sessionID string, rttMillis float64) {
	s, ok := m.Get(sessionID)
	if !ok {
		return
	}
	next := QualityFromRTT(rttMillis)
	prev, next := s.setQuality(next, rttMillis)
	if prev != next {
		if m.tel != nil {
			m.tel.DecQuality(prev.telemetryQuality())
			m.tel.IncQuality(next.telemetryQuality())
		}
		m.events.Trigger(Event{
			Type: EventQualityChanged, SessionID: sessionID,
			OldQuality: prev, NewQuality: next, RTTMillis: rttMillis, Timestamp: time.Now(),
		})
	}
}

// Terminate removes sessionID from the table and emits EventTerminated.
// Idempotent: terminating an already-gone session is a no-op.
func (m *Manager) Terminate(sessionID string, reason TerminationReason) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, sessionID)
	delete(m.byConn, s.ConnID)
	if pid := s.PlayerID(); pid != "" && m.byPlayer[pid] == sessionID {
		delete(m.byPlayer, pid)
	}
	m.mu.Unlock()

	s.setState(StateDisconnected)

	if m.tel != nil {
		m.tel.AddSessionTerminations(1)
		m.tel.DecQuality(s.Quality().telemetryQuality())
	}

	m.events.Trigger(Event{Type: EventTerminated, SessionID: sessionID, Reason: reason, Uptime: s.Uptime(), Timestamp: time.Now()})
	m.appendAudit(sessionID, "terminated", reason.String(), s.RemoteAddr)
}

// Get returns the session for id, if it is still live.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// BySessionOfConn resolves a transport connection id to its session id.
func (m *Manager) BySessionOfConn(connID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byConn[connID]
	return id, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap sweeps every session, idling ones past the idle grace and timing
// out ones whose connection has gone silent entirely. It is driven by a
// periodic ticker the same way the teacher's sessionCleanupLoop drove
// CleanupStaleSessions every 5 seconds.
func (m *Manager) Reap(now time.Time) (idled, timedOut int) {
	m.mu.RLock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.mu.RUnlock()

	for _, s := range snapshot {
		idle := s.idleFor(now)
		switch {
		case idle > m.idleGrace*2:
			m.Terminate(s.ID, ReasonTimeout)
			timedOut++
		case idle > m.idleGrace:
			if s.State() == StateActive {
				m.ChangeState(s.ID, StateIdle)
				idled++
			}
		}
	}
	return idled, timedOut
}

func (m *Manager) appendAudit(sessionID, eventType, reason string, addr net.Addr) {
	if m.sink == nil {
		return
	}
	addrStr := ""
	if addr != nil {
		addrStr = addr.String()
	}
	if err := m.sink.Append(persistence.Record{
		SessionID: sessionID, EventType: eventType, Reason: reason, RemoteAddr: addrStr,
	}); err != nil && m.log != nil {
		m.log.WithError(err).WithField("session", sessionID).Warn("session: audit append failed")
	}
}

// String renders a session for log fields, avoiding accidental leak of
// the full Session struct (with its mutex) into logrus formatting.
func (s *Session) String() string {
	return fmt.Sprintf("session(%s state=%s player=%s)", s.ID, s.State(), s.PlayerID())
}
