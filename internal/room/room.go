// Package room implements the fan-out broadcast engine from spec.md §4.4:
// members grouped by room id and concurrent per-recipient delivery bounded
// by a deadline. Every recipient is handed the caller's payload slice
// as is; no buffer pool is involved.
// Membership snapshotting under a read lock before fan-out, and per-member
// failure tracking, follow rustyguts-bken's server/room.go Broadcast.
package room

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"rudpcore/internal/telemetry"
)

// Sender is the minimal capability a room needs to deliver a payload to
// one member. The transport/session layer supplies the implementation;
// room never touches a socket directly.
type Sender interface {
	SendDatagram(payload []byte) error
}

type member struct {
	id     string
	sender Sender

	mu        sync.Mutex
	failures  int
	skipUntil time.Time
}

const (
	circuitBreakerThreshold = 5
	circuitBreakerCooldown  = 2 * time.Second
)

func (m *member) shouldSkip(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures >= circuitBreakerThreshold && now.Before(m.skipUntil)
}

func (m *member) recordFailure(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
	if m.failures >= circuitBreakerThreshold {
		m.skipUntil = now.Add(circuitBreakerCooldown)
	}
}

func (m *member) recordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = 0
}

// Room holds the membership for one broadcast group (a game zone, a voice
// channel) and fans payloads out to every member but the sender.
type Room struct {
	ID string

	mu      sync.RWMutex
	members map[string]*member

	tel *telemetry.Counters

	sendTimeout time.Duration
}

// New constructs an empty Room. sendTimeout bounds how long the fan-out
// waits on any single member's send before abandoning it.
func New(id string, sendTimeout time.Duration, tel *telemetry.Counters) *Room {
	if sendTimeout <= 0 {
		sendTimeout = 50 * time.Millisecond
	}
	return &Room{
		ID:          id,
		members:     make(map[string]*member),
		tel:         tel,
		sendTimeout: sendTimeout,
	}
}

// Join adds or replaces a member's Sender.
func (r *Room) Join(id string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[id] = &member{id: id, sender: sender}
}

// Leave removes a member. Reports whether the room is now empty.
func (r *Room) Leave(id string) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
	return len(r.members) == 0
}

// MemberCount returns the current membership size.
func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast fans payload out to every member except senderID, sending
// concurrently and abandoning any recipient that doesn't finish within the
// room's send timeout. It never blocks past that deadline regardless of
// how many members are slow.
func (r *Room) Broadcast(ctx context.Context, senderID string, payload []byte) {
	now := time.Now()

	r.mu.RLock()
	targets := make([]*member, 0, len(r.members))
	for id, m := range r.members {
		if id == senderID {
			continue
		}
		if m.shouldSkip(now) {
			if r.tel != nil {
				r.tel.AddBroadcastFailure(1)
			}
			continue
		}
		targets = append(targets, m)
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()

	g, _ := errgroup.WithContext(ctx)
	for _, m := range targets {
		m := m
		g.Go(func() error {
			done := make(chan error, 1)
			go func() { done <- m.sender.SendDatagram(payload) }()

			select {
			case err := <-done:
				if err != nil {
					m.recordFailure(time.Now())
					if r.tel != nil {
						r.tel.AddBroadcastFailure(1)
					}
					return nil // one member's failure never aborts the fan-out
				}
				m.recordSuccess()
				if r.tel != nil {
					r.tel.AddBroadcastSuccess(1)
				}
				return nil
			case <-ctx.Done():
				m.recordFailure(time.Now())
				if r.tel != nil {
					r.tel.AddBroadcastFailure(1)
				}
				return nil
			}
		})
	}
	_ = g.Wait()
}
