package class1

import (
	"context"
	"errors"
	"time"

	"gofaxmodem/hdlc"
	"gofaxmodem/t30"
)

// ErrV21Carrier is returned by RecvData and RecvHDLC when the modem heard
// V.21 flags instead of the requested message carrier. The frame is read
// with RecvFrame.
var ErrV21Carrier = errors.New("class1: V.21 carrier instead of message carrier")

// Line is the Class 1 capability set the engine needs from a modem. Receive
// methods return t30.ErrTimeout when nothing arrived in time and
// t30.ErrBadFCS for a damaged frame.
type Line interface {
	Answer(ctx context.Context) error
	Dial(ctx context.Context, number string) error
	Hangup(ctx context.Context) error

	// SendFrames transmits control frames on V.21 in one carrier burst.
	SendFrames(ctx context.Context, frames ...*hdlc.Frame) error
	RecvFrame(ctx context.Context, timeout time.Duration) (*hdlc.Frame, error)

	// SendData transmits raw data, such as TCF or a non-ECM page.
	SendData(ctx context.Context, mod t30.Modulation, data []byte) error
	RecvData(ctx context.Context, mod t30.Modulation, timeout time.Duration) ([]byte, error)

	// SendHDLC and RecvHDLC carry ECM frames on the message carrier. Frames
	// that fail the FCS check are dropped by RecvHDLC.
	SendHDLC(ctx context.Context, mod t30.Modulation, frames []*hdlc.Frame) error
	RecvHDLC(ctx context.Context, mod t30.Modulation, timeout time.Duration) ([]*hdlc.Frame, error)

	// Pause keeps the line silent for d before the next transmission.
	Pause(ctx context.Context, d time.Duration) error
}
