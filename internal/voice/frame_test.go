package voice

import (
	"bytes"
	"context"
	"testing"
	"time"

	"rudpcore/internal/room"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{Target: TargetDirect, Destination: "session-42", Payload: []byte{1, 2, 3, 4}}
	decoded, err := Decode(Encode(f))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Target != f.Target || decoded.Destination != f.Destination || !bytes.Equal(decoded.Payload, f.Payload) {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", decoded, f)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte{0}); err != ErrMalformedFrame {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
}

type recordingDirect struct {
	sessionID string
	payload   []byte
}

func (d *recordingDirect) SendDirect(sessionID string, payload []byte) error {
	d.sessionID = sessionID
	d.payload = payload
	return nil
}

func TestRelayRoutesDirect(t *testing.T) {
	direct := &recordingDirect{}
	relay := NewRelay(room.NewRegistry(time.Second, nil), direct)

	err := relay.Route(context.Background(), "sender", Frame{Target: TargetDirect, Destination: "dst", Payload: []byte("hi")})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if direct.sessionID != "dst" || !bytes.Equal(direct.payload, []byte("hi")) {
		t.Fatalf("direct send got (%s, %v)", direct.sessionID, direct.payload)
	}
}

func TestRelayRoutesRoomBroadcast(t *testing.T) {
	reg := room.NewRegistry(time.Second, nil)
	var received []byte
	reg.Join("zone-1", "member", senderFunc(func(p []byte) error {
		received = p
		return nil
	}))

	relay := NewRelay(reg, nil)
	err := relay.Route(context.Background(), "sender", Frame{Target: TargetRoom, Destination: "zone-1", Payload: []byte("voice")})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !bytes.Equal(received, []byte("voice")) {
		t.Fatalf("room member received %v, want 'voice'", received)
	}
}

type senderFunc func([]byte) error

func (f senderFunc) SendDatagram(p []byte) error { return f(p) }
