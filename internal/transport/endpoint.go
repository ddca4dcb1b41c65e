// Package transport owns the single UDP socket, the table of
// connstate.Connection state machines keyed by remote address, and the
// background sweeps (retransmit, keep-alive, reap) described in
// spec.md §4.1. Its receive loop and ticker-driven sweeps generalize the
// teacher's source/server/server.go Start/listen/updateLoop/
// sessionCleanupLoop into a protocol-agnostic shape: handleGamePacket's
// switch on SA-MP packet IDs becomes a dispatch on wire.Kind instead.
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"rudpcore/internal/connstate"
	"rudpcore/internal/telemetry"
	"rudpcore/internal/wire"
)

// DefaultConnectRateLimit and DefaultConnectBurst bound the rate of new
// Connect acceptances ahead of the hard max_connections ceiling, per
// spec.md §4.3 admission control: a burst of forged Connect packets
// cannot monopolize accept-path CPU before the ceiling check runs.
const (
	DefaultConnectRateLimit = 500 // per second
	DefaultConnectBurst     = 100
)

// Handlers are the callbacks the owning server wires in to react to
// connection lifecycle and payload events. All are optional; a nil
// handler is simply skipped.
type Handlers struct {
	OnConnect    func(id connstate.ID, addr *net.UDPAddr)
	OnPayload    func(id connstate.ID, payload []byte)
	OnDisconnect func(id connstate.ID)
	OnLoss       func(id connstate.ID)
}

// Endpoint is the UDP transport: one socket, many connections.
type Endpoint struct {
	conn *net.UDPConn

	cfg connstate.Config
	tel *telemetry.Counters
	log *logrus.Logger
	h   Handlers

	maxConnections int
	recvBufSize    int
	connectLimiter *rate.Limiter

	mu    sync.RWMutex
	conns map[connstate.ID]*connstate.Connection

	nextSession uint16
	sessionMu   sync.Mutex
}

// Config parameterizes the endpoint beyond per-connection reliability
// settings (those live in connstate.Config).
type Config struct {
	MaxConnections int
	RecvBufferSize int

	// ConnectRateLimit and ConnectBurst bound the rate of Connect
	// acceptances (spec.md §4.14). Zero means DefaultConnectRateLimit /
	// DefaultConnectBurst.
	ConnectRateLimit int
	ConnectBurst     int
}

// Listen binds addr and returns a ready Endpoint. The caller must call
// Run to start serving.
func Listen(addr string, cfg Config, connCfg connstate.Config, tel *telemetry.Counters, log *logrus.Logger, h Handlers) (*Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	recvBuf := cfg.RecvBufferSize
	if recvBuf <= 0 {
		recvBuf = wire.MaxDatagramSize
	}

	connectRate := cfg.ConnectRateLimit
	if connectRate <= 0 {
		connectRate = DefaultConnectRateLimit
	}
	connectBurst := cfg.ConnectBurst
	if connectBurst <= 0 {
		connectBurst = DefaultConnectBurst
	}

	return &Endpoint{
		conn:           conn,
		cfg:            connCfg,
		tel:            tel,
		log:            log,
		h:              h,
		maxConnections: cfg.MaxConnections,
		recvBufSize:    recvBuf,
		connectLimiter: rate.NewLimiter(rate.Limit(connectRate), connectBurst),
		conns:          make(map[connstate.ID]*connstate.Connection),
	}, nil
}

// SendRaw implements connstate.Sender by writing directly to the socket.
func (e *Endpoint) SendRaw(addr *net.UDPAddr, b []byte) (int, error) {
	return e.conn.WriteToUDP(b, addr)
}

// Run drives the receive loop until ctx is cancelled or the socket errors.
// It also starts the retransmit, keep-alive, and reap sweeps as
// background goroutines, mirroring the teacher's updateLoop (50ms) and
// sessionCleanupLoop (5s) tickers.
func (e *Endpoint) Run(ctx context.Context) error {
	go e.retransmitLoop(ctx)
	go e.keepAliveLoop(ctx)
	go e.reapLoop(ctx)

	go func() {
		<-ctx.Done()
		e.conn.Close()
	}()

	buf := make([]byte, e.recvBufSize)
	for {
		n, addr, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				e.log.WithError(err).Warn("transport: read error")
				continue
			}
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		go e.handleDatagram(data, addr)
	}
}

func (e *Endpoint) handleDatagram(data []byte, addr *net.UDPAddr) {
	pkt, err := wire.Decode(data)
	if err != nil {
		if e.tel != nil {
			e.tel.AddProtocolErrors(1)
		}
		return
	}
	if !wire.IsKnownKind(pkt.Header.Kind) {
		if e.tel != nil {
			e.tel.AddProtocolErrors(1)
		}
		return
	}

	id := connstate.ID(addr.String())

	if pkt.Header.Kind == wire.KindConnect {
		e.handleConnect(id, addr, pkt)
		return
	}

	c, ok := e.get(id)
	if !ok {
		return // unknown connection sending anything but Connect: drop
	}

	switch pkt.Header.Kind {
	case wire.KindData:
		c.HandleData(pkt)
	case wire.KindAck:
		c.HandleAck(pkt)
	case wire.KindPing:
		e.replyPong(c)
	case wire.KindPong:
		c.HandlePong()
	case wire.KindDisconnect:
		c.HandleDisconnect()
		if e.h.OnDisconnect != nil {
			e.h.OnDisconnect(id)
		}
		// eviction is left to reapLoop once the linger window has elapsed
	}
}

func (e *Endpoint) replyPong(c *connstate.Connection) {
	c.SendPong()
}

func (e *Endpoint) handleConnect(id connstate.ID, addr *net.UDPAddr, pkt wire.Packet) {
	e.mu.RLock()
	_, exists := e.conns[id]
	count := len(e.conns)
	e.mu.RUnlock()

	if exists {
		return // duplicate Connect for an already-admitted address: ignore
	}
	if !e.connectLimiter.Allow() {
		if e.tel != nil {
			e.tel.AddConnectionFailures(1)
		}
		return
	}
	if count >= e.maxConnections {
		if e.tel != nil {
			e.tel.AddConnectionFailures(1)
		}
		reject := wire.Encode(wire.Packet{Header: wire.Header{Kind: wire.KindDisconnectAck}, Payload: []byte("server full")})
		_, _ = e.SendRaw(addr, reject)
		return
	}

	sess := e.allocSessionShort()
	c := connstate.New(id, addr, sess, e.cfg, e, e.tel,
		func(connID connstate.ID, payload []byte) {
			if e.h.OnPayload != nil {
				e.h.OnPayload(connID, payload)
			}
		},
		func(connID connstate.ID) {
			if e.h.OnLoss != nil {
				e.h.OnLoss(connID)
			}
		},
	)
	c.SetState(connstate.StateConnected)

	e.mu.Lock()
	e.conns[id] = c
	e.mu.Unlock()

	if e.tel != nil {
		e.tel.AddConnectionsTotal(1)
		e.tel.IncConnectionsActive()
	}

	ack := wire.Encode(wire.Packet{Header: wire.Header{Kind: wire.KindConnectAck, Session: sess}})
	_, _ = e.SendRaw(addr, ack)

	if e.h.OnConnect != nil {
		e.h.OnConnect(id, addr)
	}
}

func (e *Endpoint) allocSessionShort() uint16 {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	e.nextSession++
	return e.nextSession
}

func (e *Endpoint) get(id connstate.ID) (*connstate.Connection, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.conns[id]
	return c, ok
}

func (e *Endpoint) remove(id connstate.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, id)
	if e.tel != nil {
		e.tel.DecConnectionsActive()
	}
}

// ConnectionCount returns the number of tracked connections.
func (e *Endpoint) ConnectionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.conns)
}

func (e *Endpoint) snapshot() []*connstate.Connection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*connstate.Connection, 0, len(e.conns))
	for _, c := range e.conns {
		out = append(out, c)
	}
	return out
}

func (e *Endpoint) retransmitLoop(ctx context.Context) {
	ticker := time.NewTicker(connstate.DefaultRetransmitSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range e.snapshot() {
				c.RetransmitSweep(time.Now())
			}
		}
	}
}

func (e *Endpoint) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range e.snapshot() {
				c.SendPing()
			}
		}
	}
}

func (e *Endpoint) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(connstate.DefaultReapSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, c := range e.snapshot() {
				if c.State().Terminal() && c.PastLinger(now) {
					e.remove(c.ID)
					continue
				}
				if c.TimedOut(now) {
					c.SetState(connstate.StateTimeout)
					if e.h.OnDisconnect != nil {
						e.h.OnDisconnect(c.ID)
					}
					e.remove(c.ID)
				}
			}
		}
	}
}

// Shutdown sends a best-effort Disconnect to every live connection and
// closes the socket. Callers should cancel the Run context first so the
// receive loop has already stopped accepting new work.
func (e *Endpoint) Shutdown() {
	for _, c := range e.snapshot() {
		c.Disconnect()
	}
	e.conn.Close()
}
