// Package telemetry holds the lock-free hot-path counters described in
// spec.md §4.7 and produces point-in-time snapshots for observability.
// Every field is a sync/atomic primitive updated directly from the
// transport, session, and room packages' hot paths — no locking, no
// allocation until a Snapshot is requested.
package telemetry

import (
	"sync/atomic"
	"time"
)

// Quality mirrors session.Quality without importing it, so telemetry stays
// a leaf package with no dependency on the session manager.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityExcellent
	QualityGood
	QualityFair
	QualityPoor
	QualityVeryPoor

	qualityCount = int(QualityVeryPoor) + 1
)

// Counters is the process-wide lock-free counter set. The zero value is
// ready to use.
type Counters struct {
	startedAt time.Time

	connectionsTotal    int64
	connectionsActive   int64
	connectionsPeak     int64
	connectionFailures  int64
	packetsSent         int64
	packetsReceived     int64
	packetsRetransmitted int64
	packetsLost         int64
	protocolErrors      int64
	bytesSent           int64
	bytesReceived       int64
	sessionCreations    int64
	sessionTerminations int64
	rttSumMicros        int64
	rttSamples          int64
	rttMaxMicros        int64
	broadcastSuccess    int64
	broadcastFailure    int64
	roomCount           int64
	tickOverruns        int64

	qualityCounts [qualityCount]int64
}

// New returns a Counters with its uptime clock started now.
func New() *Counters {
	return &Counters{startedAt: time.Now()}
}

func (c *Counters) AddConnectionsTotal(n int64)     { atomic.AddInt64(&c.connectionsTotal, n) }
func (c *Counters) AddConnectionFailures(n int64)   { atomic.AddInt64(&c.connectionFailures, n) }
func (c *Counters) AddPacketsSent(n int64)          { atomic.AddInt64(&c.packetsSent, n) }
func (c *Counters) AddPacketsReceived(n int64)      { atomic.AddInt64(&c.packetsReceived, n) }
func (c *Counters) AddPacketsRetransmitted(n int64) { atomic.AddInt64(&c.packetsRetransmitted, n) }
func (c *Counters) AddPacketsLost(n int64)          { atomic.AddInt64(&c.packetsLost, n) }
func (c *Counters) AddProtocolErrors(n int64)       { atomic.AddInt64(&c.protocolErrors, n) }
func (c *Counters) AddBytesSent(n int64)            { atomic.AddInt64(&c.bytesSent, n) }
func (c *Counters) AddBytesReceived(n int64)        { atomic.AddInt64(&c.bytesReceived, n) }
func (c *Counters) AddSessionCreations(n int64)     { atomic.AddInt64(&c.sessionCreations, n) }
func (c *Counters) AddSessionTerminations(n int64)  { atomic.AddInt64(&c.sessionTerminations, n) }
func (c *Counters) AddBroadcastSuccess(n int64)     { atomic.AddInt64(&c.broadcastSuccess, n) }
func (c *Counters) AddBroadcastFailure(n int64)     { atomic.AddInt64(&c.broadcastFailure, n) }
func (c *Counters) AddTickOverruns(n int64)         { atomic.AddInt64(&c.tickOverruns, n) }
func (c *Counters) SetRoomCount(n int64)            { atomic.StoreInt64(&c.roomCount, n) }

// IncConnectionsActive and DecConnectionsActive keep connections_active and
// connections_peak in sync, matching the teacher's pattern of deriving a
// peak watermark alongside a live gauge (source/server/server.go player
// count tracking, generalized to a monotonic peak).
func (c *Counters) IncConnectionsActive() {
	active := atomic.AddInt64(&c.connectionsActive, 1)
	for {
		peak := atomic.LoadInt64(&c.connectionsPeak)
		if active <= peak || atomic.CompareAndSwapInt64(&c.connectionsPeak, peak, active) {
			return
		}
	}
}

func (c *Counters) DecConnectionsActive() {
	atomic.AddInt64(&c.connectionsActive, -1)
}

// RecordRTT folds an RTT sample into the running avg/max used by the
// rtt_avg / rtt_max telemetry fields.
func (c *Counters) RecordRTT(d time.Duration) {
	micros := d.Microseconds()
	atomic.AddInt64(&c.rttSumMicros, micros)
	atomic.AddInt64(&c.rttSamples, 1)

	for {
		max := atomic.LoadInt64(&c.rttMaxMicros)
		if micros <= max || atomic.CompareAndSwapInt64(&c.rttMaxMicros, max, micros) {
			return
		}
	}
}

// IncQuality bumps the per-quality-class gauge used for the session
// connection-quality distribution.
func (c *Counters) IncQuality(q Quality) {
	if int(q) < 0 || int(q) >= qualityCount {
		return
	}
	atomic.AddInt64(&c.qualityCounts[q], 1)
}

func (c *Counters) DecQuality(q Quality) {
	if int(q) < 0 || int(q) >= qualityCount {
		return
	}
	atomic.AddInt64(&c.qualityCounts[q], -1)
}

// Snapshot is a point-in-time read of every counter plus derived rates.
type Snapshot struct {
	Uptime time.Duration

	ConnectionsTotal     int64
	ConnectionsActive    int64
	ConnectionsPeak      int64
	ConnectionFailures   int64
	PacketsSent          int64
	PacketsReceived      int64
	PacketsRetransmitted int64
	PacketsLost          int64
	ProtocolErrors       int64
	BytesSent            int64
	BytesReceived        int64
	SessionCreations     int64
	SessionTerminations  int64
	BroadcastSuccess     int64
	BroadcastFailure     int64
	RoomCount            int64
	TickOverruns         int64

	RTTAvg time.Duration
	RTTMax time.Duration

	PacketsSentPerSec     float64
	PacketsReceivedPerSec float64
	BytesSentPerSec       float64
	BytesReceivedPerSec   float64

	QualityCounts map[Quality]int64
}

// Snapshot reads every counter once and derives per-second rates from
// process uptime. Safe to call concurrently with the hot path; it never
// blocks a writer and allocates only the returned struct's QualityCounts
// map.
func (c *Counters) Snapshot() Snapshot {
	uptime := time.Since(c.startedAt)
	uptimeSecs := uptime.Seconds()
	if uptimeSecs <= 0 {
		uptimeSecs = 1
	}

	samples := atomic.LoadInt64(&c.rttSamples)
	var avg time.Duration
	if samples > 0 {
		avg = time.Duration(atomic.LoadInt64(&c.rttSumMicros)/samples) * time.Microsecond
	}

	sent := atomic.LoadInt64(&c.packetsSent)
	recv := atomic.LoadInt64(&c.packetsReceived)
	bSent := atomic.LoadInt64(&c.bytesSent)
	bRecv := atomic.LoadInt64(&c.bytesReceived)

	qc := make(map[Quality]int64, qualityCount)
	for i := 0; i < qualityCount; i++ {
		qc[Quality(i)] = atomic.LoadInt64(&c.qualityCounts[i])
	}

	return Snapshot{
		Uptime:               uptime,
		ConnectionsTotal:     atomic.LoadInt64(&c.connectionsTotal),
		ConnectionsActive:    atomic.LoadInt64(&c.connectionsActive),
		ConnectionsPeak:      atomic.LoadInt64(&c.connectionsPeak),
		ConnectionFailures:   atomic.LoadInt64(&c.connectionFailures),
		PacketsSent:          sent,
		PacketsReceived:      recv,
		PacketsRetransmitted: atomic.LoadInt64(&c.packetsRetransmitted),
		PacketsLost:          atomic.LoadInt64(&c.packetsLost),
		ProtocolErrors:       atomic.LoadInt64(&c.protocolErrors),
		BytesSent:            bSent,
		BytesReceived:        bRecv,
		SessionCreations:     atomic.LoadInt64(&c.sessionCreations),
		SessionTerminations:  atomic.LoadInt64(&c.sessionTerminations),
		BroadcastSuccess:     atomic.LoadInt64(&c.broadcastSuccess),
		BroadcastFailure:     atomic.LoadInt64(&c.broadcastFailure),
		RoomCount:            atomic.LoadInt64(&c.roomCount),
		TickOverruns:         atomic.LoadInt64(&c.tickOverruns),
		RTTAvg:               avg,
		RTTMax:                time.Duration(atomic.LoadInt64(&c.rttMaxMicros)) * time.Microsecond,
		PacketsSentPerSec:     float64(sent) / uptimeSecs,
		PacketsReceivedPerSec: float64(recv) / uptimeSecs,
		BytesSentPerSec:       float64(bSent) / uptimeSecs,
		BytesReceivedPerSec:   float64(bRecv) / uptimeSecs,
		QualityCounts:         qc,
	}
}
