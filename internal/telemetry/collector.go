package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector adapts Counters to prometheus.Collector. Collect reads each
// atomic once per scrape and emits a constant metric; it never blocks the
// hot-path writers and never allocates beyond the scrape's own metric
// values, the same shape as the teacher-adjacent TCPInfoCollector in
// runZeroInc-sockstats/pkg/exporter, generalized from per-connection
// collection to per-process counters plus a quality-class gauge vector.
type Collector struct {
	counters *Counters

	connectionsTotal     *prometheus.Desc
	connectionsActive    *prometheus.Desc
	connectionsPeak      *prometheus.Desc
	connectionFailures   *prometheus.Desc
	packetsSent          *prometheus.Desc
	packetsReceived      *prometheus.Desc
	packetsRetransmitted *prometheus.Desc
	packetsLost          *prometheus.Desc
	protocolErrors       *prometheus.Desc
	bytesSent            *prometheus.Desc
	bytesReceived        *prometheus.Desc
	sessionCreations     *prometheus.Desc
	sessionTerminations  *prometheus.Desc
	rttAvg               *prometheus.Desc
	rttMax               *prometheus.Desc
	broadcastSuccess     *prometheus.Desc
	broadcastFailure     *prometheus.Desc
	roomCount            *prometheus.Desc
	tickOverruns         *prometheus.Desc
	qualityGauge         *prometheus.Desc
}

// NewCollector wraps counters for registration with a prometheus.Registry.
func NewCollector(counters *Counters) *Collector {
	ns := "rudpcore"
	return &Collector{
		counters:             counters,
		connectionsTotal:     prometheus.NewDesc(ns+"_connections_total", "Connections accepted since start.", nil, nil),
		connectionsActive:    prometheus.NewDesc(ns+"_connections_active", "Currently active connections.", nil, nil),
		connectionsPeak:      prometheus.NewDesc(ns+"_connections_peak", "Peak concurrent connections observed.", nil, nil),
		connectionFailures:   prometheus.NewDesc(ns+"_connection_failures_total", "Admission refusals and connect failures.", nil, nil),
		packetsSent:          prometheus.NewDesc(ns+"_packets_sent_total", "Packets written to the socket.", nil, nil),
		packetsReceived:      prometheus.NewDesc(ns+"_packets_received_total", "Packets read from the socket.", nil, nil),
		packetsRetransmitted: prometheus.NewDesc(ns+"_packets_retransmitted_total", "Packets re-emitted by the retransmission sweep.", nil, nil),
		packetsLost:          prometheus.NewDesc(ns+"_packets_lost_total", "Packets given up on after max retries.", nil, nil),
		protocolErrors:       prometheus.NewDesc(ns+"_protocol_errors_total", "Malformed or unknown-kind packets dropped.", nil, nil),
		bytesSent:            prometheus.NewDesc(ns+"_bytes_sent_total", "Bytes written to the socket.", nil, nil),
		bytesReceived:        prometheus.NewDesc(ns+"_bytes_received_total", "Bytes read from the socket.", nil, nil),
		sessionCreations:     prometheus.NewDesc(ns+"_session_creations_total", "Sessions created.", nil, nil),
		sessionTerminations:  prometheus.NewDesc(ns+"_session_terminations_total", "Sessions terminated.", nil, nil),
		rttAvg:               prometheus.NewDesc(ns+"_rtt_avg_seconds", "Average observed RTT across all connections.", nil, nil),
		rttMax:               prometheus.NewDesc(ns+"_rtt_max_seconds", "Maximum observed RTT across all connections.", nil, nil),
		broadcastSuccess:     prometheus.NewDesc(ns+"_broadcast_success_total", "Per-recipient broadcast sends that succeeded.", nil, nil),
		broadcastFailure:     prometheus.NewDesc(ns+"_broadcast_failure_total", "Per-recipient broadcast sends that failed or were abandoned.", nil, nil),
		roomCount:            prometheus.NewDesc(ns+"_room_count", "Rooms currently holding at least one member.", nil, nil),
		tickOverruns:         prometheus.NewDesc(ns+"_tick_overruns_total", "Game ticks whose on_tick callback ran past the tick period.", nil, nil),
		qualityGauge:         prometheus.NewDesc(ns+"_sessions_by_quality", "Sessions currently in each connection-quality class.", []string{"quality"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connectionsTotal
	ch <- c.connectionsActive
	ch <- c.connectionsPeak
	ch <- c.connectionFailures
	ch <- c.packetsSent
	ch <- c.packetsReceived
	ch <- c.packetsRetransmitted
	ch <- c.packetsLost
	ch <- c.protocolErrors
	ch <- c.bytesSent
	ch <- c.bytesReceived
	ch <- c.sessionCreations
	ch <- c.sessionTerminations
	ch <- c.rttAvg
	ch <- c.rttMax
	ch <- c.broadcastSuccess
	ch <- c.broadcastFailure
	ch <- c.roomCount
	ch <- c.tickOverruns
	ch <- c.qualityGauge
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.counters.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.connectionsTotal, prometheus.CounterValue, float64(s.ConnectionsTotal))
	ch <- prometheus.MustNewConstMetric(c.connectionsActive, prometheus.GaugeValue, float64(s.ConnectionsActive))
	ch <- prometheus.MustNewConstMetric(c.connectionsPeak, prometheus.GaugeValue, float64(s.ConnectionsPeak))
	ch <- prometheus.MustNewConstMetric(c.connectionFailures, prometheus.CounterValue, float64(s.ConnectionFailures))
	ch <- prometheus.MustNewConstMetric(c.packetsSent, prometheus.CounterValue, float64(s.PacketsSent))
	ch <- prometheus.MustNewConstMetric(c.packetsReceived, prometheus.CounterValue, float64(s.PacketsReceived))
	ch <- prometheus.MustNewConstMetric(c.packetsRetransmitted, prometheus.CounterValue, float64(s.PacketsRetransmitted))
	ch <- prometheus.MustNewConstMetric(c.packetsLost, prometheus.CounterValue, float64(s.PacketsLost))
	ch <- prometheus.MustNewConstMetric(c.protocolErrors, prometheus.CounterValue, float64(s.ProtocolErrors))
	ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(s.BytesSent))
	ch <- prometheus.MustNewConstMetric(c.bytesReceived, prometheus.CounterValue, float64(s.BytesReceived))
	ch <- prometheus.MustNewConstMetric(c.sessionCreations, prometheus.CounterValue, float64(s.SessionCreations))
	ch <- prometheus.MustNewConstMetric(c.sessionTerminations, prometheus.CounterValue, float64(s.SessionTerminations))
	ch <- prometheus.MustNewConstMetric(c.rttAvg, prometheus.GaugeValue, s.RTTAvg.Seconds())
	ch <- prometheus.MustNewConstMetric(c.rttMax, prometheus.GaugeValue, s.RTTMax.Seconds())
	ch <- prometheus.MustNewConstMetric(c.broadcastSuccess, prometheus.CounterValue, float64(s.BroadcastSuccess))
	ch <- prometheus.MustNewConstMetric(c.broadcastFailure, prometheus.CounterValue, float64(s.BroadcastFailure))
	ch <- prometheus.MustNewConstMetric(c.roomCount, prometheus.GaugeValue, float64(s.RoomCount))
	ch <- prometheus.MustNewConstMetric(c.tickOverruns, prometheus.CounterValue, float64(s.TickOverruns))

	for q, n := range s.QualityCounts {
		ch <- prometheus.MustNewConstMetric(c.qualityGauge, prometheus.GaugeValue, float64(n), qualityLabel(q))
	}
}

func qualityLabel(q Quality) string {
	switch q {
	case QualityExcellent:
		return "excellent"
	case QualityGood:
		return "good"
	case QualityFair:
		return "fair"
	case QualityPoor:
		return "poor"
	case QualityVeryPoor:
		return "very_poor"
	default:
		return "unknown"
	}
}
