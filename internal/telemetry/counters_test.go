package telemetry

import (
	"testing"
	"time"
)

func TestConnectionsPeakTracksHighWaterMark(t *testing.T) {
	c := New()
	c.IncConnectionsActive()
	c.IncConnectionsActive()
	c.IncConnectionsActive()
	c.DecConnectionsActive()

	s := c.Snapshot()
	if s.ConnectionsActive != 2 {
		t.Fatalf("ConnectionsActive = %d, want 2", s.ConnectionsActive)
	}
	if s.ConnectionsPeak != 3 {
		t.Fatalf("ConnectionsPeak = %d, want 3", s.ConnectionsPeak)
	}
}

func TestRecordRTTAvgAndMax(t *testing.T) {
	c := New()
	c.RecordRTT(20 * time.Millisecond)
	c.RecordRTT(40 * time.Millisecond)

	s := c.Snapshot()
	if s.RTTMax != 40*time.Millisecond {
		t.Fatalf("RTTMax = %v, want 40ms", s.RTTMax)
	}
	if s.RTTAvg != 30*time.Millisecond {
		t.Fatalf("RTTAvg = %v, want 30ms", s.RTTAvg)
	}
}

func TestQualityCountsIncDec(t *testing.T) {
	c := New()
	c.IncQuality(QualityExcellent)
	c.IncQuality(QualityExcellent)
	c.DecQuality(QualityExcellent)

	s := c.Snapshot()
	if s.QualityCounts[QualityExcellent] != 1 {
		t.Fatalf("QualityCounts[Excellent] = %d, want 1", s.QualityCounts[QualityExcellent])
	}
}
