// Package class1 implements the T.30 session engine for Class 1 modems,
// where every HDLC frame is built and parsed by the host and the modem only
// modulates. It covers reception with and without error correction, polling
// and transmission.
package class1

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gofaxmodem/decoder"
	"gofaxmodem/faxmodem"
	"gofaxmodem/gofaxlib"
	"gofaxmodem/hdlc"
	"gofaxmodem/t30"
)

const logNS = "Class1"

// Engine runs one fax call over a Class 1 line.
type Engine struct {
	line     Line
	cfg      Config
	neg      t30.Negotiator
	dec      decoder.LineDecoder
	lm       *gofaxlib.LogManager
	listener faxmodem.Listener
	id       uuid.UUID

	// xbit is set once this station has received a valid DIS.
	xbit bool

	params      t30.Params
	docParams   t30.Params
	remoteCaps  t30.Params
	remoteFlags t30.DISFlags
	remoteID    string
	subaddress  string
	password    string

	writer       *blockWriter
	lastResponse *hdlc.Frame
	lastPPS      *t30.PartialPage
	pageNum      int
	blockNum     int
	longTrain    bool
	needPhaseB   bool
	needRetrain  bool
	rtnSent      bool
	recvdDCN     bool
	dcnSent      bool
	phase        faxmodem.Phase

	aborted atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithNegotiator replaces the default parameter negotiation.
func WithNegotiator(n t30.Negotiator) Option {
	return func(e *Engine) { e.neg = n }
}

// WithDecoder replaces the page quality decoder.
func WithDecoder(d decoder.LineDecoder) Option {
	return func(e *Engine) { e.dec = d }
}

// WithLogManager sets the log destination.
func WithLogManager(lm *gofaxlib.LogManager) Option {
	return func(e *Engine) { e.lm = lm }
}

// WithListener reports phase changes and negotiated parameters.
func WithListener(l faxmodem.Listener) Option {
	return func(e *Engine) { e.listener = l }
}

// WithSessionID tags log output with id.
func WithSessionID(id uuid.UUID) Option {
	return func(e *Engine) { e.id = id }
}

// New returns an engine for one call on line.
func New(line Line, cfg Config, opts ...Option) *Engine {
	cfg.normalize()
	e := &Engine{
		line:     line,
		cfg:      cfg,
		neg:      t30.DefaultNegotiator{},
		dec:      decoder.New(),
		listener: faxmodem.NopListener{},
		id:       uuid.New(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.lm == nil {
		e.lm = gofaxlib.NewDiscardLogManager()
	}
	return e
}

var _ faxmodem.FaxModem = (*Engine)(nil)

func (e *Engine) log(level logrus.Level, format string, args ...interface{}) {
	e.lm.SendLog(e.lm.BuildLog(logNS, format, level,
		map[string]interface{}{"uuid": e.id.String()}, args...))
}

func (e *Engine) setPhase(p faxmodem.Phase) {
	if e.phase == p {
		return
	}
	e.phase = p
	e.listener.PhaseChanged(p)
}

// Negotiated returns the parameters in effect.
func (e *Engine) Negotiated() t30.Params { return e.params }

// RemoteID returns the TSI or CSI of the other station.
func (e *Engine) RemoteID() string { return e.remoteID }

// Subaddress returns the SUB received with DCS.
func (e *Engine) Subaddress() string { return e.subaddress }

// Abort asks the engine to stop at the next phase boundary.
func (e *Engine) Abort() { e.aborted.Store(true) }

func (e *Engine) checkAbort() error {
	if e.aborted.Load() {
		return t30.NewStatus(t30.StatusLocalAbort).Wrap(t30.ErrAborted)
	}
	return nil
}

func (e *Engine) Answer(ctx context.Context) error {
	if err := e.line.Answer(ctx); err != nil {
		return t30.NewStatus(t30.StatusModemFailure).Wrap(err)
	}
	return nil
}

func (e *Engine) Dial(ctx context.Context, number string) error {
	e.xbit = true
	if err := e.line.Dial(ctx, number); err != nil {
		return t30.NewStatus(t30.StatusModemFailure).Wrap(err)
	}
	return nil
}

// fcf returns f with this station's X bit.
func (e *Engine) fcf(f t30.FCF) t30.FCF { return f.WithX(e.xbit) }

// send transmits frames after the switching pause. Only the last one is
// marked final.
func (e *Engine) send(ctx context.Context, frames ...*hdlc.Frame) error {
	if err := e.line.Pause(ctx, e.cfg.SwitchingPause); err != nil {
		return err
	}
	for _, f := range frames {
		e.log(logrus.DebugLevel, "SEND %s", f)
	}
	return e.line.SendFrames(ctx, frames...)
}

// respond sends a single response frame and remembers it for repeats.
func (e *Engine) respond(ctx context.Context, fcf t30.FCF, fif ...byte) error {
	f := hdlc.NewFrame(e.fcf(fcf), true, fif...)
	e.lastResponse = f
	return e.send(ctx, f)
}

// resendLast repeats the previous response after the sender repeated its
// command.
func (e *Engine) resendLast(ctx context.Context) error {
	if e.lastResponse == nil {
		return nil
	}
	e.log(logrus.DebugLevel, "repeating %s", e.lastResponse.FCF())
	return e.send(ctx, e.lastResponse)
}

// recvFrame waits for one frame. Damaged frames are logged and reported as
// a nil frame with a nil error so that callers simply poll again.
func (e *Engine) recvFrame(ctx context.Context, timeout time.Duration) (*hdlc.Frame, error) {
	f, err := e.line.RecvFrame(ctx, timeout)
	switch {
	case err == nil:
		e.log(logrus.DebugLevel, "RECV %s", f)
		return f, nil
	case errors.Is(err, t30.ErrBadFCS), errors.Is(err, t30.ErrMalformed):
		e.log(logrus.DebugLevel, "discarding frame: %v", err)
		return nil, nil
	}
	return nil, err
}

// recvFrameUntil polls recvFrame until a frame arrives or d elapses. A
// timeout is returned as t30.ErrTimeout.
func (e *Engine) recvFrameUntil(ctx context.Context, d time.Duration) (*hdlc.Frame, error) {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, t30.ErrTimeout
		}
		f, err := e.recvFrame(ctx, remaining)
		if err != nil {
			if errors.Is(err, t30.ErrTimeout) {
				return nil, t30.ErrTimeout
			}
			return nil, err
		}
		if f != nil {
			return f, nil
		}
	}
}

// lineError converts a transport failure into a status. Context errors are
// kept so callers can tell cancellation apart.
func lineError(err error) error {
	var st *t30.Status
	if errors.As(err, &st) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return t30.NewStatus(t30.StatusLocalAbort).Wrap(err)
	}
	return t30.NewStatus(t30.StatusModemFailure).Wrap(err)
}

func dcnStatus(code int) error {
	return t30.NewStatus(code).Wrap(t30.ErrRemoteAbort)
}

func (e *Engine) String() string {
	return fmt.Sprintf("class1[%s]", e.id)
}
