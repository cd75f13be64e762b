package class1

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"gofaxmodem/faxmodem"
	"gofaxmodem/t30"
)

const dcnTimeout = 5 * time.Second

// RecvEnd waits for the sender's DCN after the last page and flushes the
// received data.
func (e *Engine) RecvEnd(ctx context.Context) error {
	if !e.recvdDCN {
		e.waitDCN(ctx)
	}
	e.setPhase(faxmodem.PhaseDone)
	return e.closeWriter()
}

// waitDCN answers repeated post-page commands until DCN arrives or T1 runs
// out. A missing DCN does not fail a completed receive.
func (e *Engine) waitDCN(ctx context.Context) {
	deadline := time.Now().Add(e.cfg.T1)
	for time.Now().Before(deadline) {
		f, err := e.recvFrame(ctx, e.cfg.T2)
		if err != nil {
			if errors.Is(err, t30.ErrTimeout) {
				continue
			}
			e.log(logrus.InfoLevel, "waiting for DCN: %v", err)
			return
		}
		if f == nil {
			continue
		}
		switch fcf := f.FCF(); {
		case fcf == t30.DCN:
			e.recvdDCN = true
			return
		case fcf.IsPPM(), fcf == t30.PPS, fcf == t30.CRP, fcf == t30.EOR:
			if err := e.resendLast(ctx); err != nil {
				return
			}
		default:
			e.log(logrus.InfoLevel, "ignoring %s while waiting for DCN", fcf)
		}
	}
	e.log(logrus.WarnLevel, "no DCN from sender within T1")
}

func (e *Engine) closeWriter() error {
	if e.writer == nil {
		return nil
	}
	err := e.writer.Close()
	e.writer = nil
	if err != nil {
		return t30.NewStatus(t30.StatusWriteFailed).Wrap(err)
	}
	return nil
}

// RecvAbort disconnects and ends the session. Data already confirmed is
// still flushed.
func (e *Engine) RecvAbort(ctx context.Context) error {
	e.disconnect(ctx)
	e.setPhase(faxmodem.PhaseDone)
	return e.closeWriter()
}

// disconnect sends DCN once, even when ctx is already cancelled. Nothing is
// sent after the remote disconnected.
func (e *Engine) disconnect(ctx context.Context) {
	if e.dcnSent || e.recvdDCN {
		return
	}
	e.dcnSent = true
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dcnTimeout)
	defer cancel()
	if err := e.respond(ctx, t30.DCN); err != nil {
		e.log(logrus.InfoLevel, "sending DCN: %v", err)
	}
}
