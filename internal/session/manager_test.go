package session

import (
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"rudpcore/internal/persistence"
	"rudpcore/internal/telemetry"
)

func testManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	log := logrus.New()
	log.SetOutput(nopWriter{})
	return NewManager(cfg, telemetry.New(), persistence.NoopSink{}, log)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func addr(t *testing.T) net.Addr {
	t.Helper()
	a, err := net.ResolveUDPAddr("udp", "127.0.0.1:1234")
	require.NoError(t, err)
	return a
}

func TestCreateAndAuthenticate(t *testing.T) {
	m := testManager(t, Config{MaxSessions: 10, IdleGrace: time.Minute})

	s, err := m.Create("conn-1", addr(t), PriorityNormal)
	require.NoError(t, err)
	require.Equal(t, StateConnecting, s.State())

	require.NoError(t, m.Authenticate(s.ID, "player-1", "token"))
	require.Equal(t, StateActive, s.State())
	require.Equal(t, "player-1", s.PlayerID())
}

func TestServerFullRejectsAdmission(t *testing.T) {
	m := testManager(t, Config{MaxSessions: 1, IdleGrace: time.Minute})

	_, err := m.Create("conn-1", addr(t), PriorityNormal)
	require.NoError(t, err)

	_, err = m.Create("conn-2", addr(t), PriorityNormal)
	require.ErrorIs(t, err, ErrServerFull)
}

func TestDuplicateLoginTerminatesPreviousSessionAndActivatesNew(t *testing.T) {
	m := testManager(t, Config{MaxSessions: 10, IdleGrace: time.Minute})

	var terminated []TerminationReason
	m.Events().Register(EventTerminated, func(ev Event) { terminated = append(terminated, ev.Reason) })

	s1, err := m.Create("conn-1", addr(t), PriorityNormal)
	require.NoError(t, err)
	require.NoError(t, m.Authenticate(s1.ID, "player-1", "token"))

	s2, err := m.Create("conn-2", addr(t), PriorityNormal)
	require.NoError(t, err)

	require.NoError(t, m.Authenticate(s2.ID, "player-1", "token"))

	require.Equal(t, StateDisconnected, s1.State())
	require.Equal(t, StateActive, s2.State())
	require.Equal(t, []TerminationReason{ReasonDuplicateLogin}, terminated)

	_, ok := m.Get(s1.ID)
	require.False(t, ok)
	sid, ok := m.BySessionOfConn("conn-2")
	require.True(t, ok)
	require.Equal(t, s2.ID, sid)
}

func TestTerminateRemovesFromAllIndexes(t *testing.T) {
	m := testManager(t, Config{MaxSessions: 10, IdleGrace: time.Minute})

	s, err := m.Create("conn-1", addr(t), PriorityNormal)
	require.NoError(t, err)
	require.NoError(t, m.Authenticate(s.ID, "player-1", "token"))

	m.Terminate(s.ID, ReasonClientRequest)

	_, ok := m.Get(s.ID)
	require.False(t, ok)
	_, ok = m.BySessionOfConn("conn-1")
	require.False(t, ok)

	// player-1 can log in again after termination freed the slot.
	s2, err := m.Create("conn-2", addr(t), PriorityNormal)
	require.NoError(t, err)
	require.NoError(t, m.Authenticate(s2.ID, "player-1", "token"))
}

func TestReapIdlesThenTimesOut(t *testing.T) {
	m := testManager(t, Config{MaxSessions: 10, IdleGrace: 10 * time.Millisecond})

	s, err := m.Create("conn-1", addr(t), PriorityNormal)
	require.NoError(t, err)
	require.NoError(t, m.Authenticate(s.ID, "player-1", "token"))

	idled, timedOut := m.Reap(time.Now().Add(15 * time.Millisecond))
	require.Equal(t, 1, idled)
	require.Equal(t, 0, timedOut)
	require.Equal(t, StateIdle, s.State())

	idled, timedOut = m.Reap(time.Now().Add(30 * time.Millisecond))
	require.Equal(t, 0, idled)
	require.Equal(t, 1, timedOut)

	_, ok := m.Get(s.ID)
	require.False(t, ok)
}

func TestUpdateQualityEmitsOnChange(t *testing.T) {
	m := testManager(t, Config{MaxSessions: 10, IdleGrace: time.Minute})
	s, err := m.Create("conn-1", addr(t), PriorityNormal)
	require.NoError(t, err)

	var changes int
	m.Events().Register(EventQualityChanged, func(Event) { changes++ })

	m.UpdateQuality(s.ID, 20) // Excellent
	m.UpdateQuality(s.ID, 25) // still Excellent, no event
	m.UpdateQuality(s.ID, 80) // Fair, event

	require.Equal(t, 2, changes)
	require.Equal(t, QualityFair, s.Quality())
}
