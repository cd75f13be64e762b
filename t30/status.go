package t30

import (
	"errors"
	"fmt"
)

// Status is the terminal outcome of a session or a phase. Class 1 signal
// statuses live in 100-160, Class 2 hangup statuses from 200 up.
type Status struct {
	Code    int
	Message string
	err     error
}

// Class 1 signal statuses.
const (
	StatusOK               = 0
	StatusNoSilence        = 100
	StatusNoCarrier        = 101
	StatusNoSender         = 102
	StatusSenderDCN        = 103
	StatusInvalidResponse  = 104
	StatusTrainFailed      = 105
	StatusNoTCF            = 106
	StatusNoMessageCarrier = 107
	StatusDCNInPhaseC      = 108
	StatusECMUnclean       = 110
	StatusNoCTCResponse    = 111
	StatusNoEORResponse    = 112
	StatusNoPPSResponse    = 113
	StatusUnexpectedFrame  = 114
	StatusCommandRepeated  = 115
	StatusNoPPS            = 116
	StatusECMProtocol      = 117
	StatusWriteFailed      = 118
	StatusRNRTimeout       = 119
	StatusNoPageData       = 120
	StatusBadPage          = 121
	StatusLocalAbort       = 122
	StatusNothingToPoll    = 123
	StatusDISRepeated      = 124
	StatusNoDCSResponse    = 125
	StatusTrainLowestRate  = 126
	StatusNoMPSResponse    = 127
	StatusNoEOPResponse    = 128
	StatusNoEOMResponse    = 129
	StatusBadPPMResponse   = 130
	StatusRTNExceeded      = 131
	StatusNoRRResponse     = 132
	StatusInterrupt        = 133
	StatusModemFailure     = 134
	StatusNoCommonParams   = 135
	StatusNoPPM            = 136
	StatusNoDIS            = 137
	StatusRemoteCannotRecv = 138
	StatusNoCTR            = 139
	StatusNoERR            = 140
)

var statusMessages = map[int]string{
	StatusOK:               "Normal and proper end of connection",
	StatusNoSilence:        "Failure to receive silence (synchronization failure)",
	StatusNoCarrier:        "Failure to raise V.21 transmission carrier",
	StatusNoSender:         "No sender protocol (T.30 T1 timeout)",
	StatusSenderDCN:        "RSPREC error/got DCN (sender abort)",
	StatusInvalidResponse:  "RSPREC invalid response received",
	StatusTrainFailed:      "Failure to train modems",
	StatusNoTCF:            "Failure to receive TCF",
	StatusNoMessageCarrier: "Unable to establish message carrier",
	StatusDCNInPhaseC:      "COMREC received DCN (sender abort)",
	StatusECMUnclean:       "Failure to transmit clean ECM image data",
	StatusNoCTCResponse:    "No response to CTC repeated 3 times",
	StatusNoEORResponse:    "No response to EOR repeated 3 times",
	StatusNoPPSResponse:    "No response to PPS repeated 3 times",
	StatusUnexpectedFrame:  "Fax protocol error (unknown frame received)",
	StatusCommandRepeated:  "Fax protocol error (command repeated too many times)",
	StatusNoPPS:            "Failure to receive ECM partial page signal",
	StatusECMProtocol:      "ECM protocol error (no CTC or EOR after fourth PPR)",
	StatusWriteFailed:      "Failure to write received image data",
	StatusRNRTimeout:       "Receiver not ready for too long",
	StatusNoPageData:       "Missing EOL after 5 seconds",
	StatusBadPage:          "Page received with too many bad lines",
	StatusLocalAbort:       "Session aborted by local request",
	StatusNothingToPoll:    "Remote has no document to poll",
	StatusDISRepeated:      "DIS/DTC received 3 times; DCS not recognized",
	StatusNoDCSResponse:    "No response to DCS repeated 3 times",
	StatusTrainLowestRate:  "Failure to train remote modem at 2400 bps",
	StatusNoMPSResponse:    "No response to MPS repeated 3 times",
	StatusNoEOPResponse:    "No response to EOP repeated 3 times",
	StatusNoEOMResponse:    "No response to EOM repeated 3 times",
	StatusBadPPMResponse:   "Invalid response to post-page message",
	StatusRTNExceeded:      "Page retransmission requested too many times",
	StatusNoRRResponse:     "No response to RR repeated 3 times",
	StatusInterrupt:        "Procedure interrupt (PIN/PIP) not supported",
	StatusModemFailure:     "Modem communication failure",
	StatusNoCommonParams:   "No common capabilities with remote",
	StatusNoPPM:            "No post-page message received",
	StatusNoDIS:            "No receiver protocol (no DIS received)",
	StatusRemoteCannotRecv: "Remote is not capable of receiving",
	StatusNoCTR:            "No CTR received after CTC",
	StatusNoERR:            "No ERR received after EOR",
}

// NewStatus returns the status for a Class 1 signal code.
func NewStatus(code int) *Status {
	msg, ok := statusMessages[code]
	if !ok {
		msg = fmt.Sprintf("Unknown status %d", code)
	}
	return &Status{Code: code, Message: msg}
}

// Wrap records the underlying cause.
func (s *Status) Wrap(err error) *Status {
	s.err = err
	return s
}

func (s *Status) Error() string {
	if s.err != nil {
		return fmt.Sprintf("E%d: %s: %v", s.Code, s.Message, s.err)
	}
	return fmt.Sprintf("E%d: %s", s.Code, s.Message)
}

func (s *Status) Unwrap() error { return s.err }

// OK reports whether the status describes a successful session.
func (s *Status) OK() bool { return s == nil || s.Code == StatusOK }

// StatusOf extracts a Status from err. Errors without one map to
// StatusModemFailure; a nil error is StatusOK.
func StatusOf(err error) *Status {
	if err == nil {
		return NewStatus(StatusOK)
	}
	var st *Status
	if errors.As(err, &st) {
		return st
	}
	return NewStatus(StatusModemFailure).Wrap(err)
}
