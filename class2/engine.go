// Package class2 implements the fax session for Class 2 and Class 2.0
// modems. The modem firmware runs T.30; the engine configures it, turns its
// unsolicited +F responses into session events and moves page data.
package class2

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gofaxmodem/decoder"
	"gofaxmodem/faxmodem"
	"gofaxmodem/gofaxlib"
	"gofaxmodem/modem"
	"gofaxmodem/t30"
)

const logNS = "Class2"

// Config holds the tunables of a Class 2 session.
type Config struct {
	LocalID      string
	Capabilities t30.Params

	CommandTimeout time.Duration
	// AnswerTimeout bounds ATA and ATD up to the end of Phase B.
	AnswerTimeout time.Duration
	// PageTimeout bounds the reception or transmission of one page.
	PageTimeout time.Duration

	// HostQuality judges received pages with the row decoder instead of
	// trusting the modem's +FPTS.
	HostQuality            bool
	PercentGoodLines       int
	MaxConsecutiveBadLines int
	// KeepBadPages saves pages answered with RTN.
	KeepBadPages bool

	// PageRetries bounds retransmissions of a page answered with RTN.
	PageRetries int
	// DFBitmap selects the bitmap encoding of the data format field.
	DFBitmap bool
	// DialPrefix is prepended to the number, e.g. "ATDT".
	DialPrefix string
}

// DefaultConfig returns the usual timeouts.
func DefaultConfig() Config {
	return Config{
		Capabilities: t30.Params{
			VR:  t30.VRFine,
			BR:  t30.BR14400,
			WD:  t30.WD1728,
			LN:  t30.LNUnlimited,
			DF:  t30.DFMR,
			EC:  t30.ECEnabled256,
			V17: true,
		},
		CommandTimeout:         5 * time.Second,
		AnswerTimeout:          60 * time.Second,
		PageTimeout:            5 * time.Minute,
		PercentGoodLines:       95,
		MaxConsecutiveBadLines: 5,
		PageRetries:            3,
		DialPrefix:             "ATDT",
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.Capabilities == (t30.Params{}) {
		c.Capabilities = d.Capabilities
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = d.CommandTimeout
	}
	if c.AnswerTimeout <= 0 {
		c.AnswerTimeout = d.AnswerTimeout
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = d.PageTimeout
	}
	if c.PercentGoodLines <= 0 {
		c.PercentGoodLines = d.PercentGoodLines
	}
	if c.MaxConsecutiveBadLines <= 0 {
		c.MaxConsecutiveBadLines = d.MaxConsecutiveBadLines
	}
	if c.PageRetries <= 0 {
		c.PageRetries = d.PageRetries
	}
	if c.DialPrefix == "" {
		c.DialPrefix = d.DialPrefix
	}
}

// Engine runs one fax call on a Class 2 or Class 2.0 modem.
type Engine struct {
	t        modem.Transport
	d        Dialect
	cfg      Config
	dec      decoder.LineDecoder
	lm       *gofaxlib.LogManager
	listener faxmodem.Listener
	id       uuid.UUID

	params     t30.Params
	docParams  t30.Params
	remoteCaps t30.Params
	haveDIS    bool
	haveDCS    bool
	remoteID   string
	canPoll    bool

	// Results of the last exchange.
	pts       int
	ppm       t30.FCF
	hangup    string
	hadHangup bool

	pageNum int
	rtnSent bool
	phase   faxmodem.Phase
	aborted atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithDecoder replaces the row decoder used when HostQuality is set.
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

// New returns an engine for one call on t.
func New(t modem.Transport, d Dialect, cfg Config, opts ...Option) *Engine {
	cfg.normalize()
	e := &Engine{
		t:        t,
		d:        d,
		cfg:      cfg,
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
		map[string]interface{}{"uuid": e.id.String(), "dialect": e.d.Name}, args...))
}

func (e *Engine) setPhase(p faxmodem.Phase) {
	if e.phase == p {
		return
	}
	e.phase = p
	e.listener.PhaseChanged(p)
}

// Negotiated returns the session parameters reported by the modem.
func (e *Engine) Negotiated() t30.Params { return e.params }

// RemoteID returns the TSI or CSI reported by the modem.
func (e *Engine) RemoteID() string { return e.remoteID }

// Abort asks the engine to stop at the next phase boundary.
func (e *Engine) Abort() { e.aborted.Store(true) }

func (e *Engine) checkAbort() error {
	if e.aborted.Load() {
		return t30.NewStatus(t30.StatusLocalAbort).Wrap(t30.ErrAborted)
	}
	return nil
}

// Setup puts the modem into fax mode with our identity and capabilities.
func (e *Engine) Setup(ctx context.Context) error {
	cmds := []string{
		"AT+FCLASS=" + e.d.Class,
		fmt.Sprintf("AT%s=%q", e.d.LocalIDCmd, e.cfg.LocalID),
		fmt.Sprintf("AT%s=%s", e.d.CapsCmd, e.cfg.Capabilities.Class2String(e.cfg.DFBitmap)),
		"AT+FCR=1",
		fmt.Sprintf("AT%s=0", e.d.BitOrderCmd),
	}
	cmds = append(cmds, e.d.Init...)
	for _, cmd := range cmds {
		if err := e.expectOK(ctx, cmd, e.cfg.CommandTimeout); err != nil {
			return t30.NewStatus(t30.StatusModemFailure).Wrap(err)
		}
	}
	return nil
}

// command sends cmd, feeds every response line to event and returns the
// final result code.
func (e *Engine) command(ctx context.Context, cmd string, timeout time.Duration) (modem.ResultCode, error) {
	e.log(logrus.DebugLevel, "<-- %s", cmd)
	lines, err := modem.Command(ctx, e.t, cmd, timeout)
	e.events(lines)
	if err != nil {
		return modem.ResultUnknown, fmt.Errorf("%s: %w", cmd, err)
	}
	return modem.Last(lines).Code, nil
}

func (e *Engine) expectOK(ctx context.Context, cmd string, timeout time.Duration) error {
	code, err := e.command(ctx, cmd, timeout)
	if err != nil {
		return err
	}
	if code != modem.ResultOK {
		return fmt.Errorf("%s: %s: %w", cmd, code, modem.ErrUnexpected)
	}
	return nil
}

// wait reads responses up to the final result code.
func (e *Engine) wait(ctx context.Context, timeout time.Duration) (modem.ResultCode, error) {
	lines, err := modem.WaitFor(ctx, e.t, timeout)
	e.events(lines)
	if err != nil {
		return modem.ResultUnknown, err
	}
	return modem.Last(lines).Code, nil
}

func (e *Engine) events(lines []modem.Response) {
	for _, r := range lines {
		e.log(logrus.DebugLevel, "--> %s", r.Line)
		e.event(r)
	}
}

// event records what an unsolicited response reports.
func (e *Engine) event(r modem.Response) {
	d := e.d
	switch {
	case r.Is(d.Connect):
		e.log(logrus.InfoLevel, "fax connection established")
	case r.Is(d.TSI):
		e.remoteID = r.Value(d.TSI)
	case r.Is(d.CSI):
		e.remoteID = r.Value(d.CSI)
	case r.Is(d.DCS):
		p, err := t30.ParseClass2Params(r.Value(d.DCS), e.cfg.DFBitmap)
		if err != nil {
			e.log(logrus.WarnLevel, "bad %s %v", d.DCS, err)
			return
		}
		e.params, e.haveDCS = p, true
		e.listener.Negotiated(p, e.remoteID)
	case r.Is(d.DIS):
		p, err := t30.ParseClass2Params(r.Value(d.DIS), e.cfg.DFBitmap)
		if err != nil {
			e.log(logrus.WarnLevel, "bad %s %v", d.DIS, err)
			return
		}
		e.remoteCaps, e.haveDIS = p, true
	case r.Is(d.PTS):
		e.pts = firstInt(r.Value(d.PTS))
	case r.Is(d.ET):
		if ppm, ok := ppmFromCode(firstInt(r.Value(d.ET))); ok {
			e.ppm = ppm
		}
	case r.Is(d.Hangup):
		e.hangup, e.hadHangup = r.Value(d.Hangup), true
		e.log(logrus.InfoLevel, "hangup %s: %s", e.hangup, HangupStatus(d, e.hangup).Message)
	case r.Is(d.Poll):
		e.canPoll = true
	}
}

// firstInt parses the first comma separated field, or returns -1.
func firstInt(s string) int {
	field, _, _ := strings.Cut(s, ",")
	v, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return -1
	}
	return v
}

// failure turns a failed exchange into a status. A hangup reported by the
// modem explains the failure best.
func (e *Engine) failure(code int, err error) error {
	if e.hadHangup && !IsNormalHangup(e.d, e.hangup) {
		st := HangupStatus(e.d, e.hangup)
		if err != nil {
			st.Wrap(err)
		}
		return st
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return t30.NewStatus(t30.StatusLocalAbort).Wrap(err)
	}
	if err == nil {
		return t30.NewStatus(code)
	}
	return t30.NewStatus(code).Wrap(err)
}

func (e *Engine) Answer(ctx context.Context) error {
	e.setPhase(faxmodem.PhaseIdent)
	code, err := e.command(ctx, "ATA", e.cfg.AnswerTimeout)
	if err != nil || code != modem.ResultOK {
		return e.failure(t30.StatusModemFailure, resultErr(code, err))
	}
	return nil
}

func (e *Engine) Dial(ctx context.Context, number string) error {
	e.setPhase(faxmodem.PhaseIdent)
	code, err := e.command(ctx, e.cfg.DialPrefix+number, e.cfg.AnswerTimeout)
	if err != nil || code != modem.ResultOK {
		return e.failure(t30.StatusModemFailure, resultErr(code, err))
	}
	return nil
}

// resultErr describes an unexpected final result code.
func resultErr(code modem.ResultCode, err error) error {
	if err != nil {
		return err
	}
	switch code {
	case modem.ResultBusy:
		return modem.ErrBusy
	case modem.ResultNoCarrier:
		return modem.ErrNoCarrier
	case modem.ResultNoDialtone:
		return modem.ErrNoDialtone
	case modem.ResultNoAnswer:
		return modem.ErrNoAnswer
	}
	return fmt.Errorf("%s: %w", code, modem.ErrUnexpected)
}

// abortCall asks the modem to end the call. The context may already be
// cancelled.
func (e *Engine) abortCall(ctx context.Context) {
	if e.hadHangup {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CommandTimeout)
	defer cancel()
	if _, err := e.command(ctx, "AT"+e.d.AbortCmd, e.cfg.CommandTimeout); err != nil {
		e.log(logrus.InfoLevel, "abort: %v", err)
	}
}

func (e *Engine) String() string {
	return fmt.Sprintf("class%s[%s]", e.d.Class, e.id)
}
