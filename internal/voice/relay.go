package voice

import (
	"context"
	"errors"

	"rudpcore/internal/room"
)

var ErrUnknownDestination = errors.New("voice: unknown direct destination")

// DirectSender delivers a frame straight to one session, bypassing room
// fan-out. Used for whispers/private voice channels.
type DirectSender interface {
	SendDirect(sessionID string, payload []byte) error
}

// Relay routes decoded voice frames to either a room broadcast or a
// direct send.
type Relay struct {
	rooms   *room.Registry
	direct  DirectSender
}

// NewRelay builds a Relay over the given room registry and direct sender.
func NewRelay(rooms *room.Registry, direct DirectSender) *Relay {
	return &Relay{rooms: rooms, direct: direct}
}

// Route delivers f on behalf of senderID.
func (r *Relay) Route(ctx context.Context, senderID string, f Frame) error {
	switch f.Target {
	case TargetRoom:
		rm, ok := r.rooms.Get(f.Destination)
		if !ok {
			return nil // no listeners, nothing to do
		}
		rm.Broadcast(ctx, senderID, f.Payload)
		return nil
	case TargetDirect:
		if r.direct == nil {
			return ErrUnknownDestination
		}
		return r.direct.SendDirect(f.Destination, f.Payload)
	default:
		return ErrMalformedFrame
	}
}
