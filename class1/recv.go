package class1

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"gofaxmodem/faxmodem"
	"gofaxmodem/hdlc"
	"gofaxmodem/t30"
)

// RecvBegin runs Phase B of an answered call: it announces our capabilities
// and trains with the sender.
func (e *Engine) RecvBegin(ctx context.Context) error {
	if err := e.checkAbort(); err != nil {
		return err
	}
	e.xbit = false
	e.pageNum = 0
	return e.recvIdentification(ctx, e.identFrames())
}

// RecvEOMBegin restarts Phase B for the next document after EOM.
func (e *Engine) RecvEOMBegin(ctx context.Context) error {
	if err := e.checkAbort(); err != nil {
		return err
	}
	return e.recvIdentification(ctx, e.identFrames())
}

// identFrames is the answering station's announcement: NSF is not sent,
// CSI and DIS always are.
func (e *Engine) identFrames() []*hdlc.Frame {
	dis := t30.EncodeDIS(e.cfg.Capabilities, t30.DISFlags{CanReceive: true})
	return []*hdlc.Frame{
		hdlc.NewFrame(t30.CSI, false, hdlc.EncodeID(e.cfg.LocalID)...),
		hdlc.NewFrame(t30.DIS, true, dis...),
	}
}

// recvIdentification sends ident until the sender answers with DCS and
// trains successfully, or T1 runs out.
func (e *Engine) recvIdentification(ctx context.Context, ident []*hdlc.Frame) error {
	e.setPhase(faxmodem.PhaseIdent)
	deadline := time.Now().Add(e.cfg.T1)
	trainFailed := false
	resend := true
	violations := 0

	for time.Now().Before(deadline) {
		if err := e.checkAbort(); err != nil {
			return err
		}
		if resend {
			if err := e.send(ctx, ident...); err != nil {
				return lineError(err)
			}
			resend = false
		}
		f, err := e.recvFrame(ctx, e.cfg.T2)
		if err != nil {
			if !errors.Is(err, t30.ErrTimeout) {
				return lineError(err)
			}
			resend = true
			continue
		}
		if f == nil {
			continue
		}

		switch fcf := f.FCF(); {
		case fcf == t30.DCN:
			e.recvdDCN = true
			return dcnStatus(t30.StatusSenderDCN)
		case fcf == t30.CRP:
			resend = true
		case fcf.IsPPM() || fcf == t30.PPS:
			// The sender missed our last response and is still in the
			// previous post-page exchange.
			if e.lastResponse != nil {
				if err := e.resendLast(ctx); err != nil {
					return lineError(err)
				}
				continue
			}
			violations++
			e.log(logrus.WarnLevel, "%s out of order in Phase B", fcf)
			if violations > 1 {
				return t30.NewStatus(t30.StatusUnexpectedFrame).Wrap(t30.ErrProtocolViolation)
			}
		case fcf == t30.DCS || fcf == t30.TSI || fcf == t30.SUB || fcf == t30.PWD || fcf == t30.NSS:
			if !e.recvDCSFrames(ctx, f) {
				continue
			}
			e.setPhase(faxmodem.PhaseTraining)
			ok, err := e.recvTraining(ctx)
			if err != nil {
				return err
			}
			if ok {
				if err := e.respond(ctx, t30.CFR); err != nil {
					return lineError(err)
				}
				e.trained()
				return nil
			}
			trainFailed = true
			if err := e.respond(ctx, t30.FTT); err != nil {
				return lineError(err)
			}
		default:
			e.log(logrus.InfoLevel, "ignoring %s in Phase B", fcf)
		}
	}
	if trainFailed {
		return t30.NewStatus(t30.StatusTrainFailed).Wrap(t30.ErrTrainingFailed)
	}
	return t30.NewStatus(t30.StatusNoSender).Wrap(t30.ErrTimeout)
}

// recvDCSFrames collects the optional frames that precede DCS and decodes
// DCS. It reports false if no acceptable DCS arrived; the caller then keeps
// listening.
func (e *Engine) recvDCSFrames(ctx context.Context, f *hdlc.Frame) bool {
	for {
		switch f.FCF() {
		case t30.TSI:
			e.remoteID = hdlc.DecodeID(f.FIF())
		case t30.SUB:
			e.subaddress = hdlc.DecodeID(f.FIF())
		case t30.PWD:
			e.password = hdlc.DecodeID(f.FIF())
		case t30.DCS:
			if len(f.FIF()) < 4 {
				e.log(logrus.WarnLevel, "DCS with %d byte FIF: %v", len(f.FIF()), t30.ErrMalformed)
				return false
			}
			p, err := t30.DecodeDCS(f.FIF())
			if err != nil {
				e.log(logrus.WarnLevel, "bad DCS: %v", err)
				return false
			}
			e.params = p
			e.log(logrus.InfoLevel, "DCS: %s, remote %q", p, e.remoteID)
			e.listener.Negotiated(p, e.remoteID)
			return true
		}
		if f.IsFinal() {
			return false
		}
		next, err := e.recvFrame(ctx, e.cfg.T4)
		if err != nil || next == nil {
			return false
		}
		f = next
	}
}

// recvTraining checks the TCF that follows DCS.
func (e *Engine) recvTraining(ctx context.Context) (bool, error) {
	if e.cfg.V34 {
		return true, nil
	}
	mod := t30.ModulationFor(e.params, false)
	buf, err := e.line.RecvData(ctx, mod, e.cfg.TCFRecvTimeout)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, lineError(err)
		}
		e.log(logrus.InfoLevel, "no TCF at %s: %v", mod, err)
		return false, nil
	}
	res := e.cfg.TCF.Score(buf, e.params)
	e.log(logrus.InfoLevel, "TCF %d bytes, %d non-zero, zero run %d of %d: good=%v",
		res.Length, res.NonZero, res.LongestRun, res.MinRun, res.Good)
	return res.Good, nil
}

// trained resets the per-document state after CFR.
func (e *Engine) trained() {
	e.setPhase(faxmodem.PhaseData)
	e.longTrain = true
	e.blockNum = 0
	e.lastPPS = nil
	e.needPhaseB = false
}
