package faxserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gofaxmodem/faxmodem"
	"gofaxmodem/gofaxlib"
	"gofaxmodem/modem"
	"gofaxmodem/t30"
)

const (
	idlePoll      = 500 * time.Millisecond
	ringGap       = 8 * time.Second
	reopenBackoff = 10 * time.Second
	hangupTimeout = 10 * time.Second
)

// Transport is a modem line that can be hung up between calls.
type Transport interface {
	modem.Transport
	Hangup(ctx context.Context) error
}

// sendRequest hands an outbound call to a getty.
type sendRequest struct {
	job     *FaxJob
	attempt int
	number  string
	doc     *Document // nil for polling
	trouble t30.Trouble
	result  *gofaxlib.FaxResult
	spool   *Spool // polling only
	modem   string // set by the getty that placed the call
	done    chan error
}

// Getty owns one modem line: it answers incoming calls and places the
// outbound calls dispatched to it.
type Getty struct {
	server   *Server
	cfg      gofaxlib.ModemConfig
	open     func() (Transport, error)
	requests chan *sendRequest

	rings    int
	lastRing time.Time
}

// NewGetty creates a getty for the serial modem described by cfg.
func NewGetty(s *Server, cfg gofaxlib.ModemConfig) *Getty {
	return &Getty{
		server: s,
		cfg:    cfg,
		open: func() (Transport, error) {
			baud := cfg.Baud
			if baud == 0 {
				baud = 115200
			}
			return modem.OpenSerial(cfg.Device, baud, s.logManager)
		},
		requests: make(chan *sendRequest),
	}
}

func (g *Getty) log(level logrus.Level, fields map[string]interface{}, format string, args ...interface{}) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["modem"] = g.cfg.Name
	g.server.logManager.SendLog(g.server.logManager.BuildLog("Getty", format, level, fields, args...))
}

// Run serves the line until ctx is done, reopening the device after
// failures.
func (g *Getty) Run(ctx context.Context) {
	for {
		t, err := g.open()
		if err == nil {
			g.log(logrus.InfoLevel, nil, "Line %s ready", g.cfg.Device)
			err = g.serve(ctx, t)
			t.Close()
		}
		if ctx.Err() != nil {
			return
		}
		g.log(logrus.ErrorLevel, nil, "Line %s failed: %v", g.cfg.Device, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(reopenBackoff):
		}
	}
}

func (g *Getty) serve(ctx context.Context, t Transport) error {
	if _, err := modem.Command(ctx, t, "ATE0V1Q0S0=0", 5*time.Second); err != nil {
		return fmt.Errorf("initialize modem: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-g.requests:
			req.modem = g.cfg.Name
			req.done <- g.transmit(ctx, t, req)
			continue
		case req := <-g.server.anyModem:
			req.modem = g.cfg.Name
			req.done <- g.transmit(ctx, t, req)
			continue
		default:
		}

		resp, err := t.RecvResponse(ctx, idlePoll)
		if errors.Is(err, modem.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		if resp.Code != modem.ResultRing {
			continue
		}
		if !g.ring(time.Now()) {
			continue
		}
		g.receive(ctx, t)
	}
}

// ring counts a RING and reports whether the call should be answered.
func (g *Getty) ring(now time.Time) bool {
	if now.Sub(g.lastRing) > ringGap {
		g.rings = 0
	}
	g.lastRing = now
	g.rings++
	if !g.cfg.Receive {
		return false
	}
	want := max(g.cfg.Rings, 1)
	if g.rings < want {
		return false
	}
	g.rings = 0
	return true
}

func (g *Getty) hangup(ctx context.Context, t Transport) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hangupTimeout)
	defer cancel()
	if err := t.Hangup(ctx); err != nil {
		g.log(logrus.WarnLevel, nil, "Hangup failed: %v", err)
	}
}

// receive answers a call and runs the receive session.
func (g *Getty) receive(ctx context.Context, t Transport) {
	id := uuid.New()
	lm := g.server.logManager
	fields := map[string]interface{}{"uuid": id.String()}
	res := gofaxlib.NewFaxResult(id, lm)
	g.server.tracker.BeginReceive(id, g.cfg.Name)
	defer g.server.tracker.Complete(id)

	rc := gofaxlib.Config.Receive
	spool, err := NewSpool(rc.SpoolDir, rc.FileNameFormat, res.StartTs, id, rc.PDF, lm)
	if err != nil {
		g.log(logrus.ErrorLevel, fields, "Cannot spool incoming fax: %v", err)
		return
	}
	g.log(logrus.InfoLevel, fields, "Answering incoming call")

	err = g.answer(ctx, t, id, res, spool)
	res.Finish(err)
	pdf, perr := spool.Close()
	if perr != nil {
		g.log(logrus.ErrorLevel, fields, "Writing PDF failed: %v", perr)
	}
	g.hangup(ctx, t)

	xfl := gofaxlib.XFRecord{Modem: g.cfg.Name, Filename: pdf}
	xfl.SetResult(res)
	if err := xfl.SaveReceptionReport(); err != nil {
		g.log(logrus.WarnLevel, fields, "Writing xferfaxlog failed: %v", err)
	}
	g.server.storeRecord(newSessionRecord(DirectionRecv, g.cfg.Name, res.RemoteID, spool.Files(), res))
	g.server.tracker.MarkResult(id, err == nil, "", err, res)

	if gofaxlib.Config.Receive.Notify && gofaxlib.Config.SMTP.NotifyTo != "" && len(spool.Pages()) > 0 {
		subject := fmt.Sprintf("Fax received from %s", res.RemoteID)
		if err := SendEmailWithAttachment(subject, gofaxlib.Config.SMTP.NotifyTo, receivedBody(g.cfg.Name, res, spool.Files()), pdf); err != nil {
			g.log(logrus.ErrorLevel, fields, "Notification failed: %v", err)
		}
	}
}

func (g *Getty) answer(ctx context.Context, t Transport, id uuid.UUID, res *gofaxlib.FaxResult, spool *Spool) error {
	eng, err := newEngine(g.cfg, t, g.server.logManager, engineOptions{id: id, listener: res})
	if err != nil {
		return err
	}
	if err := eng.setup(ctx); err != nil {
		return err
	}
	if err := eng.Answer(ctx); err != nil {
		return err
	}
	_, err = faxmodem.Receive(ctx, eng, spool, res)
	return err
}

// transmit places the call of req and runs the send or polling session.
func (g *Getty) transmit(ctx context.Context, t Transport, req *sendRequest) error {
	eng, err := newEngine(g.cfg, t, g.server.logManager, engineOptions{
		id:       req.result.UUID,
		listener: req.result,
		trouble:  req.trouble,
		job:      req.job,
	})
	if err != nil {
		return NewFaxError(err, false)
	}
	defer g.hangup(ctx, t)

	g.log(logrus.InfoLevel, map[string]interface{}{"uuid": req.result.UUID.String()},
		"Dialling %s, attempt %d", req.number, req.attempt)
	if err := eng.setup(ctx); err != nil {
		return err
	}
	if req.job.Poll {
		if eng.requestPoll != nil {
			if err := eng.requestPoll(ctx); err != nil {
				return err
			}
		}
		if err := eng.Dial(ctx, req.number); err != nil {
			return err
		}
		_, err := faxmodem.Poll(ctx, eng, req.spool, req.result)
		return err
	}
	if err := eng.Dial(ctx, req.number); err != nil {
		return err
	}
	return faxmodem.Send(ctx, eng, req.doc.Params, req.doc.Pages, req.result)
}
