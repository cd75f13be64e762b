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

// RequestToPoll checks that the called station has a document to send.
func RequestToPoll(remote t30.DISFlags) error {
	if !remote.CanTransmit {
		return t30.NewStatus(t30.StatusNothingToPoll)
	}
	return nil
}

// PollBegin is used on a dialled call: it reads the called station's DIS,
// requests its document with DTC and trains as the receiver.
func (e *Engine) PollBegin(ctx context.Context) error {
	if err := e.checkAbort(); err != nil {
		return err
	}
	e.pageNum = 0
	if err := e.recvDIS(ctx); err != nil {
		return err
	}
	if err := RequestToPoll(e.remoteFlags); err != nil {
		return err
	}
	return e.recvIdentification(ctx, e.pollFrames())
}

// pollFrames is the DTC announcement with its optional selective polling
// address and password.
func (e *Engine) pollFrames() []*hdlc.Frame {
	var frames []*hdlc.Frame
	if e.cfg.PollPassword != "" {
		frames = append(frames, hdlc.NewFrame(e.fcf(t30.PWD), false, hdlc.EncodeID(e.cfg.PollPassword)...))
	}
	if e.cfg.PollSelector != "" {
		frames = append(frames, hdlc.NewFrame(e.fcf(t30.SEP), false, hdlc.EncodeID(e.cfg.PollSelector)...))
	}
	dtc := t30.EncodeDIS(e.cfg.Capabilities, t30.DISFlags{CanReceive: true})
	frames = append(frames,
		hdlc.NewFrame(e.fcf(t30.CIG), false, hdlc.EncodeID(e.cfg.LocalID)...),
		hdlc.NewFrame(e.fcf(t30.DTC), true, dtc...),
	)
	return frames
}

// recvDIS reads the called station's announcement: NSF and CSI are
// optional, DIS is required. Up to T1 is spent listening.
func (e *Engine) recvDIS(ctx context.Context) error {
	e.setPhase(faxmodem.PhaseIdent)
	deadline := time.Now().Add(e.cfg.T1)
	for time.Now().Before(deadline) {
		if err := e.checkAbort(); err != nil {
			return err
		}
		f, err := e.recvFrame(ctx, time.Until(deadline))
		if err != nil {
			if errors.Is(err, t30.ErrTimeout) {
				break
			}
			return lineError(err)
		}
		if f == nil {
			continue
		}
		switch f.FCF() {
		case t30.CSI:
			e.remoteID = hdlc.DecodeID(f.FIF())
		case t30.NSF:
		case t30.DIS:
			p, flags, err := t30.DecodeDIS(f.FIF())
			if err != nil {
				e.log(logrus.WarnLevel, "bad DIS: %v", err)
				continue
			}
			e.remoteCaps, e.remoteFlags = p, flags
			e.xbit = true
			e.log(logrus.InfoLevel, "DIS from %q: %s", e.remoteID, p)
			return nil
		case t30.DCN:
			e.recvdDCN = true
			return dcnStatus(t30.StatusSenderDCN)
		default:
			e.log(logrus.InfoLevel, "ignoring %s while waiting for DIS", f.FCF())
		}
	}
	return t30.NewStatus(t30.StatusNoDIS).Wrap(t30.ErrTimeout)
}
