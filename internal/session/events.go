package session

import (
	"net"
	"sync"
	"time"
)

// EventType enumerates the session lifecycle notifications described in
// spec.md §4.3, adapted from the teacher's core/events.EventManager
// (handler-registry pub/sub) and the original_source SessionEvent enum's
// variant set.
type EventType int

const (
	EventCreated EventType = iota
	EventAuthenticated
	EventStateChanged
	EventTimeout
	EventTerminated
	EventQualityChanged
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventAuthenticated:
		return "authenticated"
	case EventStateChanged:
		return "state_changed"
	case EventTimeout:
		return "timeout"
	case EventTerminated:
		return "terminated"
	case EventQualityChanged:
		return "quality_changed"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification. Not every field is populated for
// every Type; see the EventType constant it was constructed for.
type Event struct {
	Type       EventType
	SessionID  string
	RemoteAddr net.Addr
	Timestamp  time.Time

	PlayerID   string
	AuthMethod string

	OldState State
	NewState State

	IdleDuration time.Duration

	Reason TerminationReason
	Uptime time.Duration

	OldQuality Quality
	NewQuality Quality
	RTTMillis  float64
}

// EventHandler reacts to a lifecycle event. Handlers run synchronously on
// the manager's goroutine and must not block.
type EventHandler func(Event)

// EventManager fans out session lifecycle events to registered handlers
// and to any number of channel subscribers (the admin /live feed uses
// the latter). Generalizes the teacher's single map[Type][]Handler
// registry with a mutex, since sessions are created and torn down from
// multiple goroutines here.
type EventManager struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
	subs     map[chan string]struct{}
}

// NewEventManager returns a ready-to-use EventManager.
func NewEventManager() *EventManager {
	return &EventManager{
		handlers: make(map[EventType][]EventHandler),
		subs:     make(map[chan string]struct{}),
	}
}

// Register adds handler for eventType.
func (m *EventManager) Register(eventType EventType, handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Trigger invokes every handler registered for ev.Type and publishes a
// compact summary line to every channel subscriber.
func (m *EventManager) Trigger(ev Event) {
	m.mu.RLock()
	handlers := m.handlers[ev.Type]
	m.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}

	m.publish(ev)
}

func (m *EventManager) publish(ev Event) {
	line := ev.Type.String() + " session=" + ev.SessionID
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.subs {
		select {
		case ch <- line:
		default: // slow subscriber, drop rather than block the manager
		}
	}
}

// Subscribe returns a channel of compact event summary lines and a cancel
// function that unregisters it. Implements admin.EventFeed.
func (m *EventManager) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}
