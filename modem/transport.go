// Package modem talks to a fax modem over a serial line: AT commands, result
// codes and <DLE>-escaped data mode transfers.
package modem

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when the modem stays silent past the deadline.
	ErrTimeout = errors.New("modem: timeout")

	// ErrClosed is returned after the port failed or was closed.
	ErrClosed = errors.New("modem: port closed")

	// ErrFCError is reported when a V.21 frame arrived instead of the
	// requested high speed carrier.
	ErrFCError = errors.New("modem: +FCERROR")

	// ErrNoCarrier is returned when the carrier dropped or never came up.
	ErrNoCarrier = errors.New("modem: no carrier")

	ErrBusy       = errors.New("modem: busy")
	ErrNoDialtone = errors.New("modem: no dialtone")
	ErrNoAnswer   = errors.New("modem: no answer")

	// ErrUnexpected is returned for a final result code that does not fit the
	// command, e.g. ERROR.
	ErrUnexpected = errors.New("modem: unexpected response")
)

// Transport is the byte-level boundary to a modem. Every call is bounded by
// its timeout and by ctx.
type Transport interface {
	// SendCommand writes cmd followed by CR and returns the first response line.
	SendCommand(ctx context.Context, cmd string, timeout time.Duration) (Response, error)
	// SendRaw writes data unchanged.
	SendRaw(ctx context.Context, data []byte) error
	// RecvRaw reads data mode bytes until <DLE><ETX> and returns them unescaped.
	RecvRaw(ctx context.Context, timeout time.Duration) ([]byte, error)
	// RecvResponse reads the next non-empty response line.
	RecvResponse(ctx context.Context, timeout time.Duration) (Response, error)
	Close() error
}

// WaitFor reads responses until one has a final result code or, when
// prefixes are given, starts with one of them. Lines read on the way are
// returned in order, the matching one last.
func WaitFor(ctx context.Context, t Transport, timeout time.Duration, prefixes ...string) ([]Response, error) {
	deadline := time.Now().Add(timeout)
	var lines []Response
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return lines, ErrTimeout
		}
		r, err := t.RecvResponse(ctx, remaining)
		if err != nil {
			return lines, err
		}
		lines = append(lines, r)
		if r.Code.Final() {
			return lines, nil
		}
		for _, p := range prefixes {
			if r.Is(p) {
				return lines, nil
			}
		}
	}
}

// Command sends cmd and collects responses up to the final result code.
func Command(ctx context.Context, t Transport, cmd string, timeout time.Duration) ([]Response, error) {
	deadline := time.Now().Add(timeout)
	r, err := t.SendCommand(ctx, cmd, timeout)
	if err != nil {
		return nil, err
	}
	if r.Code.Final() {
		return []Response{r}, nil
	}
	rest, err := WaitFor(ctx, t, time.Until(deadline))
	return append([]Response{r}, rest...), err
}

// Last returns the final response of a Command exchange.
func Last(lines []Response) Response {
	if len(lines) == 0 {
		return Response{}
	}
	return lines[len(lines)-1]
}
