package session

import "rudpcore/internal/telemetry"

// Quality classifies a session's link quality from its smoothed RTT. The
// millisecond boundaries and multipliers come directly from the
// original_source ConnectionQuality::from_rtt/to_multiplier implementation
// and its unit tests, carried over unchanged since spec.md leaves the
// exact thresholds unspecified.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityExcellent
	QualityGood
	QualityFair
	QualityPoor
	QualityVeryPoor
)

func (q Quality) String() string {
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

// telemetryQuality maps a session Quality to the package-local enum
// telemetry.Counters uses, keeping telemetry free of a session import.
func (q Quality) telemetryQuality() telemetry.Quality {
	return telemetry.Quality(q)
}

// QualityFromRTT classifies rttMillis per the reference thresholds:
// Excellent <= 30ms, Good <= 60ms, Fair <= 120ms, Poor <= 300ms, else
// VeryPoor.
func QualityFromRTT(rttMillis float64) Quality {
	switch {
	case rttMillis <= 30:
		return QualityExcellent
	case rttMillis <= 60:
		return QualityGood
	case rttMillis <= 120:
		return QualityFair
	case rttMillis <= 300:
		return QualityPoor
	default:
		return QualityVeryPoor
	}
}

// ToMultiplier returns a per-quality scaling factor, mirroring the
// reference implementation's to_multiplier. Nothing in this repository
// calls it; broadcast and tick code treat every quality class alike.
func (q Quality) ToMultiplier() float64 {
	switch q {
	case QualityExcellent:
		return 1.0
	case QualityGood:
		return 0.9
	case QualityFair:
		return 0.8
	case QualityPoor:
		return 0.7
	case QualityVeryPoor:
		return 0.6
	default:
		return 0.8
	}
}
