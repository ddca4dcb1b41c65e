package connstate

import "errors"

var (
	// ErrBackpressure is returned by SendData when the pending-unacked set
	// has reached the sequence window's high-water mark. Recoverable: the
	// caller may drop, coalesce, or defer.
	ErrBackpressure = errors.New("connstate: send queue over high-water mark")

	// ErrNotConnected is returned when an operation requires a live
	// connection but the lifecycle state is terminal.
	ErrNotConnected = errors.New("connstate: connection is not active")
)
