package connstate

import "time"

// Defaults mirror spec.md §4.2 "Numeric defaults".
const (
	DefaultSequenceWindowSize = 512
	DefaultMaxRetries         = 5
	DefaultInitialCwnd        = 1
	DefaultInitialSsthresh    = 65535

	DefaultInitialRTT = 100 * time.Millisecond
	DefaultInitialRTO = 200 * time.Millisecond
	DefaultMinRTO     = 100 * time.Millisecond

	// DefaultRTOMultiplier is the RTO = max(MinRTO, multiplier*SRTT) factor.
	DefaultRTOMultiplier = 2

	// SRTTAlpha is the smoothing factor in SRTT ← (1−α)·SRTT + α·sample.
	SRTTAlpha = 0.125

	// MaxRTTSamples bounds the rolling RTT sample window (spec: "≤10").
	MaxRTTSamples = 10

	DefaultKeepAliveInterval     = 30 * time.Second
	DefaultConnectionTimeout     = 60 * time.Second
	DefaultRetransmitSweepPeriod = 50 * time.Millisecond
	DefaultReapSweepPeriod       = 30 * time.Second

	// DisconnectLinger is how long a Disconnected connection is retained
	// after DisconnectAck so the peer's own retransmits are absorbed.
	DisconnectLinger = 2 * time.Second
)

// Config parameterizes a Connection's reliability behavior. Zero-value
// Config is invalid; use NewConfig for defaults.
type Config struct {
	SequenceWindowSize   int
	MaxRetries           int
	MinRTO               time.Duration
	InitialRTT           time.Duration
	InitialRTO           time.Duration
	InitialCwnd          uint32
	InitialSsthresh      uint32
	KeepAliveInterval    time.Duration
	ConnectionTimeout    time.Duration
	EnableCongestionCtrl bool
}

// NewConfig returns a Config populated with spec.md defaults.
func NewConfig() Config {
	return Config{
		SequenceWindowSize:   DefaultSequenceWindowSize,
		MaxRetries:           DefaultMaxRetries,
		MinRTO:               DefaultMinRTO,
		InitialRTT:           DefaultInitialRTT,
		InitialRTO:           DefaultInitialRTO,
		InitialCwnd:          DefaultInitialCwnd,
		InitialSsthresh:      DefaultInitialSsthresh,
		KeepAliveInterval:    DefaultKeepAliveInterval,
		ConnectionTimeout:    DefaultConnectionTimeout,
		EnableCongestionCtrl: true,
	}
}
