package connstate

import (
	"net"
	"testing"
	"time"

	"rudpcore/internal/telemetry"
	"rudpcore/internal/wire"
)

type fakeSender struct {
	sent [][]byte
}

func (f *fakeSender) SendRaw(addr *net.UDPAddr, b []byte) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.sent = append(f.sent, cp)
	return len(b), nil
}

func lastPacket(t *testing.T, f *fakeSender) wire.Packet {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatalf("no packets sent")
	}
	p, err := wire.Decode(f.sent[len(f.sent)-1])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return p
}

func newTestConnection(onPayload func(ID, []byte)) (*Connection, *fakeSender) {
	sender := &fakeSender{}
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000}
	c := New("127.0.0.1:9000", addr, 1, NewConfig(), sender, telemetry.New(), onPayload, nil)
	return c, sender
}

func TestSendDataAssignsAscendingSequences(t *testing.T) {
	c, sender := newTestConnection(nil)

	seq1, err := c.SendData([]byte("a"))
	if err != nil {
		t.Fatalf("SendData: %v", err)
	}
	seq2, err := c.SendData([]byte("b"))
	if err != nil {
		t.Fatalf("SendData: %v", err)
	}

	if seq1 != 1 || seq2 != 2 {
		t.Fatalf("sequences = %d, %d; want 1, 2", seq1, seq2)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("sent %d packets, want 2", len(sender.sent))
	}
}

func TestSendDataBackpressure(t *testing.T) {
	c, _ := newTestConnection(nil)
	c.cfg.SequenceWindowSize = 2

	if _, err := c.SendData([]byte("a")); err != nil {
		t.Fatalf("SendData 1: %v", err)
	}
	if _, err := c.SendData([]byte("b")); err != nil {
		t.Fatalf("SendData 2: %v", err)
	}
	if _, err := c.SendData([]byte("c")); err != ErrBackpressure {
		t.Fatalf("SendData 3 err = %v, want ErrBackpressure", err)
	}
}

func TestHandleDataInOrderDeliversAndAcks(t *testing.T) {
	var delivered [][]byte
	c, sender := newTestConnection(func(_ ID, p []byte) {
		delivered = append(delivered, p)
	})

	c.HandleData(wire.Packet{Header: wire.Header{Sequence: 1}, Payload: []byte("first")})

	if len(delivered) != 1 || string(delivered[0]) != "first" {
		t.Fatalf("delivered = %v", delivered)
	}
	ack := lastPacket(t, sender)
	if ack.Header.Kind != wire.KindAck || ack.Header.Ack != 1 {
		t.Fatalf("ack packet = %+v", ack.Header)
	}
}

func TestHandleDataOutOfOrderBuffersThenDrains(t *testing.T) {
	var delivered [][]byte
	c, sender := newTestConnection(func(_ ID, p []byte) {
		delivered = append(delivered, p)
	})

	// seq 2 arrives before seq 1: buffered, no delivery yet.
	c.HandleData(wire.Packet{Header: wire.Header{Sequence: 2}, Payload: []byte("second")})
	if len(delivered) != 0 {
		t.Fatalf("delivered early = %v, want none", delivered)
	}
	ack := lastPacket(t, sender)
	if ack.Header.Ack != 0 {
		t.Fatalf("ack for buffered future packet = %d, want 0 (no cumulative progress yet)", ack.Header.Ack)
	}

	// seq 1 arrives: delivers 1 then drains the buffered 2, in order.
	c.HandleData(wire.Packet{Header: wire.Header{Sequence: 1}, Payload: []byte("first")})
	if len(delivered) != 2 || string(delivered[0]) != "first" || string(delivered[1]) != "second" {
		t.Fatalf("delivered = %v, want [first second]", delivered)
	}
	ack = lastPacket(t, sender)
	if ack.Header.Ack != 2 {
		t.Fatalf("ack after drain = %d, want 2", ack.Header.Ack)
	}
}

func TestHandleDataDuplicateIsDroppedButAcked(t *testing.T) {
	var delivered int
	c, sender := newTestConnection(func(_ ID, _ []byte) { delivered++ })

	c.HandleData(wire.Packet{Header: wire.Header{Sequence: 1}, Payload: []byte("x")})
	c.HandleData(wire.Packet{Header: wire.Header{Sequence: 1}, Payload: []byte("x")})

	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1 (duplicate must not redeliver)", delivered)
	}
	ack := lastPacket(t, sender)
	if ack.Header.Ack != 1 {
		t.Fatalf("duplicate ack = %d, want 1", ack.Header.Ack)
	}
}

func TestHandleAckRemovesPendingAndSamplesRTT(t *testing.T) {
	c, sender := newTestConnection(nil)

	seq, err := c.SendData([]byte("payload"))
	if err != nil {
		t.Fatalf("SendData: %v", err)
	}

	c.HandleAck(wire.Packet{Header: wire.Header{Kind: wire.KindAck, Ack: seq}})

	if len(c.pending) != 0 {
		t.Fatalf("pending after ack = %d, want 0", len(c.pending))
	}
	if len(c.rttSamples) != 1 {
		t.Fatalf("rtt samples = %d, want 1", len(c.rttSamples))
	}
	_ = sender
}

func TestHandleAckUnknownSequenceIsIgnored(t *testing.T) {
	c, _ := newTestConnection(nil)
	c.HandleAck(wire.Packet{Header: wire.Header{Kind: wire.KindAck, Ack: 99}})
	if len(c.pending) != 0 {
		t.Fatalf("pending = %d, want 0", len(c.pending))
	}
}

func TestRetransmitSweepResendsBeforeGivingUp(t *testing.T) {
	c, sender := newTestConnection(nil)
	c.cfg.MaxRetries = 2
	c.rto = time.Millisecond

	if _, err := c.SendData([]byte("x")); err != nil {
		t.Fatalf("SendData: %v", err)
	}
	initialSends := len(sender.sent)

	time.Sleep(2 * time.Millisecond)
	lost := c.RetransmitSweep(time.Now())
	if lost != 0 {
		t.Fatalf("lost on first sweep = %d, want 0", lost)
	}
	if len(sender.sent) <= initialSends {
		t.Fatalf("expected a retransmit, sent count unchanged")
	}
	if len(c.pending) != 1 {
		t.Fatalf("pending after retry = %d, want 1", len(c.pending))
	}
}

func TestRetransmitSweepGivesUpAfterMaxRetriesAndResetsWindow(t *testing.T) {
	c, _ := newTestConnection(nil)
	c.cfg.MaxRetries = 1
	c.rto = time.Millisecond
	c.cwnd = 16

	if _, err := c.SendData([]byte("x")); err != nil {
		t.Fatalf("SendData: %v", err)
	}

	now := time.Now().Add(2 * time.Millisecond)
	c.RetransmitSweep(now) // retryCount -> 1

	now = now.Add(2 * time.Millisecond)
	lost := c.RetransmitSweep(now) // exceeds MaxRetries=1, gives up

	if lost != 1 {
		t.Fatalf("lost = %d, want 1", lost)
	}
	if len(c.pending) != 0 {
		t.Fatalf("pending after give-up = %d, want 0", len(c.pending))
	}
	if c.cwnd != 1 {
		t.Fatalf("cwnd after loss = %v, want 1", c.cwnd)
	}
	if c.ssthresh != 8 {
		t.Fatalf("ssthresh after loss = %d, want 8 (half of 16)", c.ssthresh)
	}
}

func TestCongestionWindowSlowStartThenAvoidance(t *testing.T) {
	c, _ := newTestConnection(nil)
	c.ssthresh = 4
	c.cwnd = 1

	for i := 0; i < 3; i++ {
		seq, err := c.SendData([]byte("x"))
		if err != nil {
			t.Fatalf("SendData: %v", err)
		}
		c.HandleAck(wire.Packet{Header: wire.Header{Kind: wire.KindAck, Ack: seq}})
	}

	if c.cwnd < 2 {
		t.Fatalf("cwnd after 3 acks below ssthresh = %v, want slow-start growth", c.cwnd)
	}

	// cwnd has reached ssthresh (4): the next ack grows it by 1/cwnd.
	seq, err := c.SendData([]byte("x"))
	if err != nil {
		t.Fatalf("SendData: %v", err)
	}
	c.HandleAck(wire.Packet{Header: wire.Header{Kind: wire.KindAck, Ack: seq}})
	if c.cwnd != 4.25 {
		t.Fatalf("cwnd after ack at ssthresh = %v, want 4.25 (congestion avoidance)", c.cwnd)
	}
}

func TestHandleDisconnectTransitionsAndAcks(t *testing.T) {
	c, sender := newTestConnection(nil)
	c.SetState(StateConnected)

	c.HandleDisconnect()

	if c.State() != StateDisconnected {
		t.Fatalf("state after disconnect = %v, want Disconnected", c.State())
	}
	ack := lastPacket(t, sender)
	if ack.Header.Kind != wire.KindDisconnectAck {
		t.Fatalf("kind = %v, want DisconnectAck", ack.Header.Kind)
	}
	if !c.PastLinger(time.Now().Add(DisconnectLinger + time.Millisecond)) {
		t.Fatalf("expected linger to have elapsed")
	}
}

func TestSendPongRepliesAndTouches(t *testing.T) {
	c, sender := newTestConnection(nil)
	c.lastActivity = time.Now().Add(-time.Hour)

	c.SendPong()

	pkt := lastPacket(t, sender)
	if pkt.Header.Kind != wire.KindPong {
		t.Fatalf("kind = %v, want Pong", pkt.Header.Kind)
	}
	if c.IdleFor(time.Now()) > time.Second {
		t.Fatalf("SendPong did not mark the connection active")
	}
}

func TestHandleAckAdvancesPeerAck(t *testing.T) {
	c, _ := newTestConnection(nil)

	seq1, _ := c.SendData([]byte("a"))
	seq2, _ := c.SendData([]byte("b"))

	c.HandleAck(wire.Packet{Header: wire.Header{Kind: wire.KindAck, Ack: seq2}})
	if c.peerAck != seq2 {
		t.Fatalf("peerAck = %d, want %d", c.peerAck, seq2)
	}

	// a stale ack for an earlier sequence must not regress peerAck.
	c.HandleAck(wire.Packet{Header: wire.Header{Kind: wire.KindAck, Ack: seq1}})
	if c.peerAck != seq2 {
		t.Fatalf("peerAck regressed to %d, want %d", c.peerAck, seq2)
	}
}

func TestTimedOut(t *testing.T) {
	c, _ := newTestConnection(nil)
	c.cfg.ConnectionTimeout = time.Millisecond
	c.lastActivity = time.Now().Add(-2 * time.Millisecond)

	if !c.TimedOut(time.Now()) {
		t.Fatalf("expected connection to be timed out")
	}
}
