package t30

import "errors"

var (
	// ErrMalformed is returned for frames or parameter sets that cannot be parsed.
	ErrMalformed = errors.New("malformed frame")
	// ErrBadFCS is returned when the frame check sequence does not match.
	ErrBadFCS = errors.New("bad frame check sequence")
	// ErrTimeout is returned when nothing arrived before a T.30 timer expired.
	ErrTimeout = errors.New("timeout")
	// ErrProtocolViolation is returned for a frame that is not valid in the current phase.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrRemoteAbort is returned when the remote station sent DCN.
	ErrRemoteAbort = errors.New("remote disconnected")
	// ErrTrainingFailed is returned when no usable modulation could be trained.
	ErrTrainingFailed = errors.New("training failed")
	// ErrParamRange is returned when a capability field is outside its enumerated range.
	ErrParamRange = errors.New("parameter out of range")
	// ErrAborted is returned when the local side requested termination.
	ErrAborted = errors.New("aborted")
)
