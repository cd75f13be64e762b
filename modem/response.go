package modem

import (
	"fmt"
	"strings"
)

// ResultCode classifies a line received from the modem.
type ResultCode int

const (
	ResultUnknown ResultCode = iota
	ResultOK
	ResultConnect
	ResultError
	ResultNoCarrier
	ResultBusy
	ResultNoDialtone
	ResultNoAnswer
	ResultRing
	ResultFCError
	ResultFax
)

func (r ResultCode) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultConnect:
		return "CONNECT"
	case ResultError:
		return "ERROR"
	case ResultNoCarrier:
		return "NO CARRIER"
	case ResultBusy:
		return "BUSY"
	case ResultNoDialtone:
		return "NO DIALTONE"
	case ResultNoAnswer:
		return "NO ANSWER"
	case ResultRing:
		return "RING"
	case ResultFCError:
		return "+FCERROR"
	case ResultFax:
		return "+F"
	}
	return "UNKNOWN"
}

// Final reports whether the code ends a command.
func (r ResultCode) Final() bool {
	switch r {
	case ResultOK, ResultConnect, ResultError, ResultNoCarrier, ResultBusy,
		ResultNoDialtone, ResultNoAnswer, ResultFCError:
		return true
	}
	return false
}

// Response is one line of modem output.
type Response struct {
	Code ResultCode
	Line string
}

// Is reports whether the line starts with prefix, e.g. "+FHNG:".
func (r Response) Is(prefix string) bool {
	return strings.HasPrefix(r.Line, prefix)
}

// Value returns the text after prefix with surrounding blanks and quotes
// removed.
func (r Response) Value(prefix string) string {
	v := strings.TrimSpace(strings.TrimPrefix(r.Line, prefix))
	return strings.Trim(v, "\"")
}

// Classify determines the result code of a line.
func Classify(line string) ResultCode {
	switch {
	case line == "OK" || line == "0":
		return ResultOK
	case strings.HasPrefix(line, "CONNECT") || line == "1":
		return ResultConnect
	case line == "ERROR" || line == "4":
		return ResultError
	case line == "NO CARRIER" || line == "3":
		return ResultNoCarrier
	case line == "BUSY" || line == "7":
		return ResultBusy
	case line == "NO DIALTONE" || line == "NO DIAL TONE" || line == "6":
		return ResultNoDialtone
	case line == "NO ANSWER" || line == "8":
		return ResultNoAnswer
	case line == "RING" || line == "2":
		return ResultRing
	case line == "+FCERROR" || line == "+F4":
		return ResultFCError
	case strings.HasPrefix(line, "+F"):
		return ResultFax
	}
	return ResultUnknown
}

// Err maps a final result code to an error. OK and CONNECT are nil.
func (r Response) Err() error {
	switch r.Code {
	case ResultOK, ResultConnect:
		return nil
	case ResultNoCarrier:
		return ErrNoCarrier
	case ResultFCError:
		return ErrFCError
	case ResultBusy:
		return ErrBusy
	case ResultNoDialtone:
		return ErrNoDialtone
	case ResultNoAnswer:
		return ErrNoAnswer
	}
	return fmt.Errorf("%q: %w", r.Line, ErrUnexpected)
}
