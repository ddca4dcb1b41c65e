// Package connstate implements the per-peer transport state machine
// described in spec.md §4.2: sequence windows, ACK bookkeeping, RTT/RTO
// estimation, and congestion control. One Connection exists per remote
// address; the transport endpoint owns the table of them (see
// internal/transport) and connections never reference sessions directly;
// the session manager holds only a connection's ID (spec.md §9 "Cyclic
// references between session and connection").
package connstate

import (
	"net"
	"sync"
	"time"

	"rudpcore/internal/telemetry"
	"rudpcore/internal/wire"
)

// ID identifies a Connection. The transport endpoint keys its table by the
// remote UDP address string, which also makes a perfectly good opaque ID
// for the session layer to hold without reaching back into connstate.
type ID string

// Sender is the minimal socket capability a Connection needs: write one
// already-encoded datagram to its peer. The transport endpoint implements
// this directly against its *net.UDPConn so the socket stays singly owned.
type Sender interface {
	SendRaw(addr *net.UDPAddr, b []byte) (int, error)
}

type pendingPacket struct {
	encoded    []byte
	firstSent  time.Time
	retryCount int
}

// Connection is the per-peer reliability state machine.
type Connection struct {
	ID      ID
	Addr    *net.UDPAddr
	Session uint16 // short session id stamped on every outbound header

	cfg      Config
	sender   Sender
	tel      *telemetry.Counters
	onPayload func(ID, []byte)
	onLoss    func(ID)

	mu sync.Mutex

	state State

	nextSendSeq uint32
	nextRecvSeq uint32
	lastAck     uint32 // last cumulative sequence we have ACKed to the peer

	pending     map[uint32]*pendingPacket
	recvBuffer  map[uint32][]byte
	peerAck     uint32 // highest ack value the peer has returned for our sends

	rttSamples []time.Duration
	srtt       time.Duration
	rto        time.Duration
	cwnd       float64
	ssthresh   uint32

	lastActivity time.Time
	lingerUntil  time.Time

	bytesSent       uint64
	bytesReceived   uint64
	packetsSent     uint64
	packetsReceived uint64
}

// New constructs a Connection in the Connecting state with next_recv_seq
// starting at 1, per spec.md §3.
func New(id ID, addr *net.UDPAddr, sessionShort uint16, cfg Config, sender Sender, tel *telemetry.Counters, onPayload func(ID, []byte), onLoss func(ID)) *Connection {
	return &Connection{
		ID:           id,
		Addr:         addr,
		Session:      sessionShort,
		cfg:          cfg,
		sender:       sender,
		tel:          tel,
		onPayload:    onPayload,
		onLoss:       onLoss,
		state:        StateConnecting,
		nextSendSeq:  1,
		nextRecvSeq:  1,
		pending:      make(map[uint32]*pendingPacket),
		recvBuffer:   make(map[uint32][]byte),
		srtt:         cfg.InitialRTT,
		rto:          cfg.InitialRTO,
		cwnd:         float64(cfg.InitialCwnd),
		ssthresh:     cfg.InitialSsthresh,
		lastActivity: time.Now(),
	}
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) SetState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Connection) IdleFor(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastActivity)
}

// TimedOut reports whether the connection has been silent longer than the
// configured connection timeout.
func (c *Connection) TimedOut(now time.Time) bool {
	return c.IdleFor(now) > c.cfg.ConnectionTimeout
}

// PastLinger reports whether a Disconnected/Timeout connection's linger
// window has elapsed and it can be evicted from the connection table.
func (c *Connection) PastLinger(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.lingerUntil.IsZero() && now.After(c.lingerUntil)
}

func (c *Connection) startLinger() {
	c.lingerUntil = time.Now().Add(DisconnectLinger)
}

func (c *Connection) encode(kind wire.Kind, seq, ack uint32, flags wire.Flags, payload []byte) []byte {
	return wire.Encode(wire.Packet{
		Header: wire.Header{
			Kind:       kind,
			Sequence:   seq,
			Ack:        ack,
			Session:    c.Session,
			PayloadLen: uint16(len(payload)),
			Flags:      flags,
		},
		Payload: payload,
	})
}

func (c *Connection) send(encoded []byte) error {
	n, err := c.sender.SendRaw(c.Addr, encoded)
	if err != nil {
		return err
	}
	c.packetsSent++
	c.bytesSent += uint64(n)
	if c.tel != nil {
		c.tel.AddPacketsSent(1)
		c.tel.AddBytesSent(int64(n))
	}
	return nil
}

// SendData enqueues payload as a new reliable Data packet and emits it
// immediately. It returns ErrNotConnected once the connection has reached
// a terminal state, and ErrBackpressure without sending if the pending
// set has reached the sequence-window high-water mark (spec.md §5
// back-pressure).
func (c *Connection) SendData(payload []byte) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Terminal() {
		return 0, ErrNotConnected
	}
	if len(c.pending) >= c.cfg.SequenceWindowSize {
		return 0, ErrBackpressure
	}

	seq := c.nextSendSeq
	c.nextSendSeq++

	ack := uint32(0)
	if c.nextRecvSeq > 0 {
		ack = c.nextRecvSeq - 1
	}

	encoded := c.encode(wire.KindData, seq, ack, 0, payload)
	c.pending[seq] = &pendingPacket{encoded: encoded, firstSent: time.Now()}

	if err := c.send(encoded); err != nil {
		return 0, err
	}
	return seq, nil
}

// sendAck emits a bare Ack packet carrying the given cumulative sequence.
func (c *Connection) sendAck(ack uint32) {
	encoded := c.encode(wire.KindAck, 0, ack, 0, nil)
	_ = c.send(encoded)
}

// HandleData implements spec.md §4.2 "Receiving data": in-order packets
// are delivered and drain the out-of-order buffer; future packets are
// buffered up to the sequence window; stale duplicates are dropped.
func (c *Connection) HandleData(pkt wire.Packet) {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.packetsReceived++
	c.bytesReceived += uint64(wire.HeaderSize + len(pkt.Payload))
	if c.tel != nil {
		c.tel.AddPacketsReceived(1)
		c.tel.AddBytesReceived(int64(wire.HeaderSize + len(pkt.Payload)))
	}

	seq := pkt.Header.Sequence

	switch {
	case seq == c.nextRecvSeq:
		delivered := [][]byte{pkt.Payload}
		c.nextRecvSeq++

		for {
			buffered, ok := c.recvBuffer[c.nextRecvSeq]
			if !ok {
				break
			}
			delete(c.recvBuffer, c.nextRecvSeq)
			delivered = append(delivered, buffered)
			c.nextRecvSeq++
		}

		c.lastAck = c.nextRecvSeq - 1
		ackToSend := c.lastAck
		onPayload := c.onPayload
		c.mu.Unlock()

		for _, payload := range delivered {
			if onPayload != nil {
				onPayload(c.ID, payload)
			}
		}
		c.sendAck(ackToSend)
		return

	case seq > c.nextRecvSeq:
		if len(c.recvBuffer) < c.cfg.SequenceWindowSize {
			c.recvBuffer[seq] = pkt.Payload
		}
		ackToSend := c.lastAck
		c.mu.Unlock()
		c.sendAck(ackToSend)
		return

	default: // seq < nextRecvSeq: duplicate
		c.mu.Unlock()
		c.sendAck(seq)
		return
	}
}

// HandleAck implements spec.md §4.2 "Receiving Ack": removes the
// acknowledged sequence from pending-unacked, samples RTT when the segment
// was never retransmitted, and advances the congestion window.
func (c *Connection) HandleAck(pkt wire.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastActivity = time.Now()

	ackedSeq := pkt.Header.Ack
	entry, ok := c.pending[ackedSeq]
	if !ok {
		return
	}
	delete(c.pending, ackedSeq)

	if entry.retryCount == 0 {
		sample := time.Since(entry.firstSent)
		c.recordRTT(sample)
		if c.tel != nil {
			c.tel.RecordRTT(sample)
		}
	}

	if ackedSeq > c.peerAck {
		c.peerAck = ackedSeq
	}

	c.growCongestionWindow()
}

func (c *Connection) recordRTT(sample time.Duration) {
	c.rttSamples = append(c.rttSamples, sample)
	if len(c.rttSamples) > MaxRTTSamples {
		c.rttSamples = c.rttSamples[1:]
	}

	if len(c.rttSamples) == 1 {
		c.srtt = sample
	} else {
		c.srtt = time.Duration((1-SRTTAlpha)*float64(c.srtt) + SRTTAlpha*float64(sample))
	}

	rto := time.Duration(DefaultRTOMultiplier) * c.srtt
	if rto < c.cfg.MinRTO {
		rto = c.cfg.MinRTO
	}
	c.rto = rto
}

func (c *Connection) growCongestionWindow() {
	if !c.cfg.EnableCongestionCtrl {
		return
	}
	if c.cwnd < float64(c.ssthresh) {
		c.cwnd++ // slow start
	} else {
		c.cwnd += 1 / c.cwnd // congestion avoidance
	}
}

// RetransmitSweep walks the pending-unacked set once and retransmits or
// gives up on entries past RTO, per spec.md §4.2 "Retransmission sweep".
// It returns the number of packets declared lost in this pass.
func (c *Connection) RetransmitSweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	lost := 0
	for seq, entry := range c.pending {
		if now.Sub(entry.firstSent) <= c.rto {
			continue
		}

		if entry.retryCount >= c.cfg.MaxRetries {
			delete(c.pending, seq)
			lost++
			c.onPacketLossLocked()
			continue
		}

		entry.retryCount++
		entry.firstSent = now
		_ = c.send(entry.encoded)
		if c.tel != nil {
			c.tel.AddPacketsRetransmitted(1)
		}
	}

	if lost > 0 && c.tel != nil {
		c.tel.AddPacketsLost(int64(lost))
	}
	if lost > 0 && c.onLoss != nil {
		go c.onLoss(c.ID)
	}
	return lost
}

func (c *Connection) onPacketLossLocked() {
	c.ssthresh = c.cwnd2Ssthresh()
	c.cwnd = 1
}

func (c *Connection) cwnd2Ssthresh() uint32 {
	half := uint32(c.cwnd / 2)
	if half < 1 {
		half = 1
	}
	return half
}

// SendPing emits a Ping packet. No RTT sample is taken from Ping/Pong per
// spec.md §9's resolution of the source's ambiguity on this point.
func (c *Connection) SendPing() {
	c.mu.Lock()
	encoded := c.encode(wire.KindPing, 0, 0, 0, nil)
	c.mu.Unlock()
	_ = c.send(encoded)
}

// HandlePong marks the connection active; it intentionally does not feed
// RTT/cwnd state.
func (c *Connection) HandlePong() {
	c.Touch()
}

// SendPong replies to a Ping and marks the connection active. No RTT
// sample is taken, matching SendPing/HandlePong.
func (c *Connection) SendPong() {
	c.mu.Lock()
	encoded := c.encode(wire.KindPong, 0, 0, 0, nil)
	c.lastActivity = time.Now()
	c.mu.Unlock()
	_ = c.send(encoded)
}

// HandleDisconnect replies DisconnectAck, transitions to Disconnecting and
// starts the eviction linger window.
func (c *Connection) HandleDisconnect() {
	c.mu.Lock()
	encoded := c.encode(wire.KindDisconnectAck, 0, 0, 0, nil)
	c.state = StateDisconnecting
	c.mu.Unlock()

	_ = c.send(encoded)

	c.mu.Lock()
	c.state = StateDisconnected
	c.startLinger()
	c.mu.Unlock()
}

// Disconnect sends a best-effort Disconnect to the peer (used for graceful
// shutdown and administrative termination) without waiting for the ack.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	encoded := c.encode(wire.KindDisconnect, 0, 0, 0, nil)
	c.state = StateDisconnecting
	c.mu.Unlock()
	_ = c.send(encoded)
}

// Stats is a read-only snapshot of per-connection counters, consumed by
// the session manager when classifying connection quality and by admin
// tooling.
type Stats struct {
	BytesSent       uint64
	BytesReceived   uint64
	PacketsSent     uint64
	PacketsReceived uint64
	PendingUnacked  int
	SRTT            time.Duration
	RTO             time.Duration
	Cwnd            float64
	Ssthresh        uint32
}

func (c *Connection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		BytesSent:       c.bytesSent,
		BytesReceived:   c.bytesReceived,
		PacketsSent:     c.packetsSent,
		PacketsReceived: c.packetsReceived,
		PendingUnacked:  len(c.pending),
		SRTT:            c.srtt,
		RTO:             c.rto,
		Cwnd:            c.cwnd,
		Ssthresh:        c.ssthresh,
	}
}
