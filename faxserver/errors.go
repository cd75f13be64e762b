package faxserver

import (
	"errors"

	"gofaxmodem/class2"
	"gofaxmodem/t30"
)

// SendResult is the outcome of one transmission attempt, numbered like the
// HylaFAX return codes.
type SendResult int

const (
	SendRetry SendResult = iota
	SendFailed
	SendDone
	SendReformat
	SendV34fail
	SendV17fail
)

func (r SendResult) String() string {
	switch r {
	case SendRetry:
		return "RETRY"
	case SendFailed:
		return "FAILED"
	case SendDone:
		return "OK"
	case SendReformat:
		return "REFORMAT"
	case SendV34fail:
		return "V34FAIL"
	case SendV17fail:
		return "V17FAIL"
	}
	return "UNKNOWN"
}

// FaxError is a failed attempt and whether another attempt may succeed.
type FaxError struct {
	err   error
	retry bool
}

// NewFaxError wraps err.
func NewFaxError(err error, retry bool) FaxError {
	return FaxError{err: err, retry: retry}
}

func (e FaxError) Error() string { return e.err.Error() }
func (e FaxError) Unwrap() error { return e.err }
func (e FaxError) Retry() bool   { return e.retry }

// classify maps the error of a send attempt to its result. Call setup
// failures and line trouble are retried; a remote that cannot take the
// document is not. Training failures ask for a lower rate.
func classify(err error) SendResult {
	if err == nil {
		return SendDone
	}
	var fe FaxError
	if errors.As(err, &fe) {
		if fe.Retry() {
			return SendRetry
		}
		return SendFailed
	}
	st := t30.StatusOf(err)
	switch st.Code {
	case t30.StatusNoCommonParams, t30.StatusRemoteCannotRecv, t30.StatusNothingToPoll, t30.StatusLocalAbort:
		return SendFailed
	case t30.StatusTrainLowestRate, t30.StatusTrainFailed:
		return SendV17fail
	case t30.StatusRTNExceeded:
		return SendReformat
	}
	if isTrainingHangup(st.Code) {
		return SendV17fail
	}
	return SendRetry
}

// isTrainingHangup reports the Class 2 hangup statuses of a failed
// training or a missing CFR.
func isTrainingHangup(code int) bool {
	switch code - class2.StatusHangupBase {
	case 25, 26, 27:
		return true
	}
	return false
}
