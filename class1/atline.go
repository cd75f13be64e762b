package class1

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gofaxmodem/hdlc"
	"gofaxmodem/modem"
	"gofaxmodem/t30"
)

type lineState int

const (
	stateIdle lineState = iota
	// stateTxHDLC: the modem already answered CONNECT to +FTH=3, as it does
	// after ATA.
	stateTxHDLC
	// stateRxHDLC: the modem is receiving V.21 HDLC, as after ATD.
	stateRxHDLC
)

// ATLine drives a Class 1 modem with +FTH, +FRH, +FTM, +FRM and +FTS.
type ATLine struct {
	t     modem.Transport
	state lineState

	CommandTimeout time.Duration
	AnswerTimeout  time.Duration
	DialTimeout    time.Duration
	// DataTimeout bounds one Phase C reception once the carrier is up.
	DataTimeout time.Duration
	// DialPrefix is prepended to the number, e.g. "ATDT".
	DialPrefix string
}

// NewATLine returns a line on t with the usual timeouts.
func NewATLine(t modem.Transport) *ATLine {
	return &ATLine{
		t:              t,
		CommandTimeout: 5 * time.Second,
		AnswerTimeout:  60 * time.Second,
		DialTimeout:    90 * time.Second,
		DataTimeout:    5 * time.Minute,
		DialPrefix:     "ATDT",
	}
}

var _ Line = (*ATLine)(nil)

// Setup switches the modem to Class 1.
func (l *ATLine) Setup(ctx context.Context) error {
	for _, cmd := range []string{"AT+FCLASS=1"} {
		if err := l.command(ctx, cmd, l.CommandTimeout, modem.ResultOK); err != nil {
			return err
		}
	}
	return nil
}

func (l *ATLine) command(ctx context.Context, cmd string, timeout time.Duration, want modem.ResultCode) error {
	lines, err := modem.Command(ctx, l.t, cmd, timeout)
	if err != nil {
		return err
	}
	r := modem.Last(lines)
	if r.Code != want {
		if err := r.Err(); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		return fmt.Errorf("%s: %q: %w", cmd, r.Line, modem.ErrUnexpected)
	}
	return nil
}

func (l *ATLine) Answer(ctx context.Context) error {
	if err := l.command(ctx, "ATA", l.AnswerTimeout, modem.ResultConnect); err != nil {
		return err
	}
	l.state = stateTxHDLC
	return nil
}

func (l *ATLine) Dial(ctx context.Context, number string) error {
	if err := l.command(ctx, l.DialPrefix+number, l.DialTimeout, modem.ResultConnect); err != nil {
		return err
	}
	l.state = stateRxHDLC
	return nil
}

func (l *ATLine) Hangup(ctx context.Context) error {
	l.state = stateIdle
	return l.command(ctx, "ATH0", l.CommandTimeout, modem.ResultOK)
}

// SendFrames sends each frame without its FCS, which the modem appends. The
// modem answers CONNECT after a non-final frame and OK after the final one.
func (l *ATLine) SendFrames(ctx context.Context, frames ...*hdlc.Frame) error {
	if l.state != stateTxHDLC {
		if err := l.command(ctx, "AT+FTH=3", l.CommandTimeout, modem.ResultConnect); err != nil {
			return err
		}
	}
	l.state = stateIdle
	for _, f := range frames {
		wire := hdlc.Encode(f)
		if err := l.t.SendRaw(ctx, modem.EscapeDLE(wire[:len(wire)-2])); err != nil {
			return err
		}
		want := modem.ResultConnect
		if f.IsFinal() {
			want = modem.ResultOK
		}
		lines, err := modem.WaitFor(ctx, l.t, l.CommandTimeout+frameTime(len(wire)))
		if err != nil {
			return err
		}
		if r := modem.Last(lines); r.Code != want {
			return fmt.Errorf("sending %s: %q: %w", f.FCF(), r.Line, modem.ErrUnexpected)
		}
		if !f.IsFinal() {
			l.state = stateTxHDLC
		}
	}
	l.state = stateIdle
	return nil
}

// frameTime is the V.21 transmission time of n bytes.
func frameTime(n int) time.Duration {
	return time.Duration(n*8) * time.Second / 300
}

// RecvFrame reads one V.21 frame. ERROR after the frame means a bad FCS.
func (l *ATLine) RecvFrame(ctx context.Context, timeout time.Duration) (*hdlc.Frame, error) {
	if l.state != stateRxHDLC {
		r, err := l.t.SendCommand(ctx, "AT+FRH=3", timeout)
		if err != nil {
			return nil, recvError(err)
		}
		if r.Code != modem.ResultConnect {
			return nil, recvError(r.Err())
		}
	}
	l.state = stateIdle
	data, err := l.t.RecvRaw(ctx, timeout)
	if err != nil {
		l.abortReceive(ctx)
		return nil, recvError(err)
	}
	lines, err := modem.WaitFor(ctx, l.t, l.CommandTimeout)
	if err != nil {
		return nil, recvError(err)
	}
	switch r := modem.Last(lines); r.Code {
	case modem.ResultOK:
	case modem.ResultError:
		return nil, t30.ErrBadFCS
	default:
		return nil, recvError(r.Err())
	}
	return hdlc.Decode(data)
}

// abortReceive stops a reception in progress with CAN.
func (l *ATLine) abortReceive(ctx context.Context) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	if err := l.t.SendRaw(ctx, []byte{modem.CAN}); err != nil {
		return
	}
	_, _ = modem.WaitFor(ctx, l.t, l.CommandTimeout)
}

// recvError maps transport failures onto the receive error set of Line.
func recvError(err error) error {
	switch {
	case err == nil:
		return t30.ErrTimeout
	case errors.Is(err, modem.ErrTimeout), errors.Is(err, modem.ErrNoCarrier):
		return fmt.Errorf("%v: %w", err, t30.ErrTimeout)
	case errors.Is(err, modem.ErrFCError):
		return ErrV21Carrier
	}
	return err
}

func (l *ATLine) SendData(ctx context.Context, mod t30.Modulation, data []byte) error {
	if err := l.command(ctx, fmt.Sprintf("AT+FTM=%d", mod.Code), l.CommandTimeout, modem.ResultConnect); err != nil {
		return err
	}
	if err := l.t.SendRaw(ctx, modem.EscapeDLE(data)); err != nil {
		return err
	}
	d := l.CommandTimeout + time.Duration(len(data)*8)*time.Second/time.Duration(mod.BitRate)
	lines, err := modem.WaitFor(ctx, l.t, d)
	if err != nil {
		return err
	}
	if r := modem.Last(lines); r.Code != modem.ResultOK {
		return fmt.Errorf("AT+FTM=%d: %q: %w", mod.Code, r.Line, modem.ErrUnexpected)
	}
	return nil
}

// RecvData receives raw data until the carrier drops.
func (l *ATLine) RecvData(ctx context.Context, mod t30.Modulation, timeout time.Duration) ([]byte, error) {
	l.state = stateIdle
	r, err := l.t.SendCommand(ctx, fmt.Sprintf("AT+FRM=%d", mod.Code), timeout)
	if err != nil {
		return nil, recvError(err)
	}
	if r.Code != modem.ResultConnect {
		return nil, recvError(r.Err())
	}
	data, err := l.t.RecvRaw(ctx, l.DataTimeout)
	if err != nil {
		l.abortReceive(ctx)
		return nil, recvError(err)
	}
	// The carrier loss is reported as NO CARRIER or OK.
	_, _ = modem.WaitFor(ctx, l.t, l.CommandTimeout)
	return data, nil
}

// SendHDLC sends ECM frames as a bit stuffed stream headed by 200 ms of
// flags.
func (l *ATLine) SendHDLC(ctx context.Context, mod t30.Modulation, frames []*hdlc.Frame) error {
	wire := make([][]byte, len(frames))
	for i, f := range frames {
		wire[i] = hdlc.Encode(f)
	}
	return l.SendData(ctx, mod, hdlc.Stuff(wire, mod.BitRate/40))
}

// RecvHDLC receives ECM frames. Frames with a bad FCS are dropped.
func (l *ATLine) RecvHDLC(ctx context.Context, mod t30.Modulation, timeout time.Duration) ([]*hdlc.Frame, error) {
	data, err := l.RecvData(ctx, mod, timeout)
	if err != nil {
		return nil, err
	}
	var frames []*hdlc.Frame
	for _, raw := range hdlc.Unstuff(data) {
		f, err := hdlc.Decode(raw)
		if err != nil {
			continue
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// Pause sends +FTS. It is skipped while a transmission is already set up.
func (l *ATLine) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 || l.state == stateTxHDLC {
		return nil
	}
	n := int((d + 9*time.Millisecond) / (10 * time.Millisecond))
	return l.command(ctx, fmt.Sprintf("AT+FTS=%d", n), l.CommandTimeout+d, modem.ResultOK)
}
