package room

import (
	"sync"
	"time"

	"rudpcore/internal/telemetry"
)

// RoomSummary mirrors admin.RoomSummary without importing the admin
// package, keeping room a leaf dependency the way telemetry is.
type RoomSummary struct {
	ID      string
	Members int
}

// Registry owns the set of live rooms, created on first join and dropped
// once empty.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	sendTimeout time.Duration
	tel         *telemetry.Counters
}

// NewRegistry constructs an empty Registry.
func NewRegistry(sendTimeout time.Duration, tel *telemetry.Counters) *Registry {
	return &Registry{rooms: make(map[string]*Room), sendTimeout: sendTimeout, tel: tel}
}

// Join adds memberID to roomID, creating the room if it doesn't exist.
func (r *Registry) Join(roomID, memberID string, sender Sender) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = New(roomID, r.sendTimeout, r.tel)
		r.rooms[roomID] = rm
		if r.tel != nil {
			r.tel.SetRoomCount(int64(len(r.rooms)))
		}
	}
	rm.Join(memberID, sender)
	return rm
}

// Leave removes memberID from roomID and drops the room once it is empty.
func (r *Registry) Leave(roomID, memberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if rm.Leave(memberID) {
		delete(r.rooms, roomID)
	}
	if r.tel != nil {
		r.tel.SetRoomCount(int64(len(r.rooms)))
	}
}

// Get returns roomID's Room, if it currently exists.
func (r *Registry) Get(roomID string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	return rm, ok
}

// ListRooms implements admin.RoomLister.
func (r *Registry) ListRooms() []RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RoomSummary, 0, len(r.rooms))
	for id, rm := range r.rooms {
		out = append(out, RoomSummary{ID: id, Members: rm.MemberCount()})
	}
	return out
}
