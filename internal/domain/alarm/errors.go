package alarm

import "errors"

var (
	// ErrMalformedMessage is returned for oversized or unparseable inbound payloads.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnknownStateLabel is returned when a state label is outside the enumeration.
	ErrUnknownStateLabel = errors.New("unknown state label")
	// ErrConnectionFailure is returned when the broker link is unusable.
	ErrConnectionFailure = errors.New("connection failure")
	// ErrBufferOverflow is returned when PIN entry exceeds the buffer capacity.
	ErrBufferOverflow = errors.New("password buffer overflow")
	// ErrLoopStall is reported by the watchdog when the control loop stops beating.
	ErrLoopStall = errors.New("control loop stalled")
)
