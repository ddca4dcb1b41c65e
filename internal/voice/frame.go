// Package voice relays opaque voice frames between sessions, either
// point-to-point or through a room's broadcast fan-out. spec.md's
// Non-goals explicitly exclude choosing a codec; this package only adds
// the small header needed to route an already-encoded frame and never
// inspects the audio payload itself.
package voice

import (
	"encoding/binary"
	"errors"
)

// Target selects how a frame is routed.
type Target byte

const (
	TargetRoom Target = iota
	TargetDirect
)

// FrameHeaderSize is the fixed prefix voice.Encode writes before the
// opaque codec payload.
const FrameHeaderSize = 1 + 2 // target(1) + destination length(2)

var ErrMalformedFrame = errors.New("voice: malformed frame")

// Frame is a routed voice payload: either "destination" is a room id
// (TargetRoom) or a session id (TargetDirect).
type Frame struct {
	Target      Target
	Destination string
	Payload     []byte
}

// Encode serializes f into target||destLen||dest||payload.
func Encode(f Frame) []byte {
	buf := make([]byte, FrameHeaderSize+len(f.Destination)+len(f.Payload))
	buf[0] = byte(f.Target)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(f.Destination)))
	n := copy(buf[3:], f.Destination)
	copy(buf[3+n:], f.Payload)
	return buf
}

// Decode parses buf into a Frame. The returned Payload aliases buf.
func Decode(buf []byte) (Frame, error) {
	if len(buf) < FrameHeaderSize {
		return Frame{}, ErrMalformedFrame
	}
	target := Target(buf[0])
	destLen := int(binary.LittleEndian.Uint16(buf[1:3]))
	if len(buf) < FrameHeaderSize+destLen {
		return Frame{}, ErrMalformedFrame
	}
	dest := string(buf[3 : 3+destLen])
	payload := buf[3+destLen:]
	return Frame{Target: target, Destination: dest, Payload: payload}, nil
}
