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

// commandAttempts is how often a command is sent without a response.
const commandAttempts = 3

// SendSetup records the parameters of the document to send. Resolution,
// width and data format are fixed by the coded page data.
func (e *Engine) SendSetup(ctx context.Context, p t30.Params) error {
	if err := p.Validate(); err != nil {
		return t30.NewStatus(t30.StatusNoCommonParams).Wrap(err)
	}
	e.docParams = p
	e.pageNum = 0
	return e.checkAbort()
}

// SendPhaseB reads the called station's DIS, negotiates and trains.
func (e *Engine) SendPhaseB(ctx context.Context) error {
	if err := e.checkAbort(); err != nil {
		return err
	}
	if err := e.recvDIS(ctx); err != nil {
		return err
	}
	if !e.remoteFlags.CanReceive {
		return t30.NewStatus(t30.StatusRemoteCannotRecv)
	}
	local := e.cfg.Capabilities
	local.VR, local.WD, local.DF = e.docParams.VR, e.docParams.WD, e.docParams.DF
	p, err := e.neg.Negotiate(local, e.remoteCaps)
	if err != nil {
		return t30.NewStatus(t30.StatusNoCommonParams).Wrap(err)
	}
	if p.VR != e.docParams.VR || p.WD != e.docParams.WD || p.DF != e.docParams.DF {
		e.log(logrus.WarnLevel, "remote cannot take the document as coded: %s", p)
		return t30.NewStatus(t30.StatusNoCommonParams)
	}
	e.params = p
	e.listener.Negotiated(p, e.remoteID)
	return e.sendTraining(ctx)
}

// sendTraining sends TSI, DCS and TCF until the receiver confirms with CFR.
// Two FTT at one rate step the rate down.
func (e *Engine) sendTraining(ctx context.Context) error {
	e.setPhase(faxmodem.PhaseTraining)
	deadline := time.Now().Add(e.cfg.T1)
	ftt, disRepeats, silent := 0, 0, 0
	for time.Now().Before(deadline) {
		if err := e.checkAbort(); err != nil {
			return err
		}
		if err := e.sendDCS(ctx); err != nil {
			return err
		}
		f, err := e.recvFrameUntil(ctx, e.cfg.T4)
		if err != nil {
			if !errors.Is(err, t30.ErrTimeout) {
				return lineError(err)
			}
			silent++
			if silent >= commandAttempts {
				return t30.NewStatus(t30.StatusNoDCSResponse).Wrap(t30.ErrTimeout)
			}
			continue
		}
		silent = 0
		switch f.FCF() {
		case t30.CFR:
			e.log(logrus.InfoLevel, "trained at %s", t30.ModulationFor(e.params, false))
			e.trained()
			e.needRetrain = false
			return nil
		case t30.FTT:
			ftt++
			if ftt < e.cfg.FTTPerRate {
				continue
			}
			p, ok := t30.StepDown(e.params)
			if !ok {
				return t30.NewStatus(t30.StatusTrainLowestRate).Wrap(t30.ErrTrainingFailed)
			}
			e.log(logrus.InfoLevel, "training failed, stepping down to %s", t30.ModulationFor(p, false))
			e.params, ftt = p, 0
		case t30.DIS:
			disRepeats++
			if disRepeats >= commandAttempts {
				return t30.NewStatus(t30.StatusDISRepeated).Wrap(t30.ErrProtocolViolation)
			}
		case t30.DCN:
			e.recvdDCN = true
			return dcnStatus(t30.StatusSenderDCN)
		case t30.CRP:
		default:
			e.log(logrus.InfoLevel, "unexpected %s after DCS", f.FCF())
		}
	}
	return t30.NewStatus(t30.StatusTrainFailed).Wrap(t30.ErrTrainingFailed)
}

// sendDCS transmits TSI and DCS followed by the training check.
func (e *Engine) sendDCS(ctx context.Context) error {
	var frames []*hdlc.Frame
	if e.cfg.Password != "" {
		frames = append(frames, hdlc.NewFrame(e.fcf(t30.PWD), false, hdlc.EncodeID(e.cfg.Password)...))
	}
	if e.cfg.Subaddress != "" {
		frames = append(frames, hdlc.NewFrame(e.fcf(t30.SUB), false, hdlc.EncodeID(e.cfg.Subaddress)...))
	}
	frames = append(frames,
		hdlc.NewFrame(e.fcf(t30.TSI), false, hdlc.EncodeID(e.cfg.LocalID)...),
		hdlc.NewFrame(e.fcf(t30.DCS), true, t30.EncodeDCS(e.params)...),
	)
	if err := e.send(ctx, frames...); err != nil {
		return lineError(err)
	}
	if e.cfg.V34 {
		return nil
	}
	if err := e.line.Pause(ctx, e.cfg.SwitchingPause); err != nil {
		return lineError(err)
	}
	mod := t30.ModulationFor(e.params, false)
	if err := e.line.SendData(ctx, mod, t30.TCF(e.params)); err != nil {
		return lineError(err)
	}
	return nil
}

// SendPage transmits one page and its post-page message.
func (e *Engine) SendPage(ctx context.Context, data []byte, ppm t30.FCF) error {
	if err := e.checkAbort(); err != nil {
		return err
	}
	if e.needPhaseB {
		if err := e.SendPhaseB(ctx); err != nil {
			return err
		}
	} else if e.needRetrain {
		if err := e.sendTraining(ctx); err != nil {
			return err
		}
	}
	e.pageNum++
	e.setPhase(faxmodem.PhaseData)
	if e.params.ECM() {
		return e.sendPageECM(ctx, data, ppm)
	}

	for retries := 0; ; retries++ {
		if err := e.line.Pause(ctx, e.cfg.SwitchingPause); err != nil {
			return lineError(err)
		}
		if err := e.line.SendData(ctx, t30.ModulationFor(e.params, false), data); err != nil {
			return lineError(err)
		}
		e.setPhase(faxmodem.PhasePostPage)
		resp, err := e.sendCommand(ctx, hdlc.NewFrame(e.fcf(ppm), true), ppmStatus(ppm))
		if err != nil {
			return err
		}
		switch resp.FCF() {
		case t30.MCF:
			e.pageConfirmed(ppm)
			return nil
		case t30.RTP:
			e.pageConfirmed(ppm)
			e.needRetrain = ppm != t30.EOP && ppm != t30.EOM
			return nil
		case t30.RTN:
			if retries+1 >= e.cfg.PageRetries {
				return t30.NewStatus(t30.StatusRTNExceeded)
			}
			e.log(logrus.InfoLevel, "page %d answered with RTN, retraining", e.pageNum)
			if err := e.sendTraining(ctx); err != nil {
				return err
			}
		case t30.PIN, t30.PIP:
			return t30.NewStatus(t30.StatusInterrupt)
		case t30.DCN:
			e.recvdDCN = true
			return dcnStatus(t30.StatusSenderDCN)
		default:
			return t30.NewStatus(t30.StatusBadPPMResponse).Wrap(t30.ErrProtocolViolation)
		}
	}
}

func (e *Engine) pageConfirmed(ppm t30.FCF) {
	if ppm == t30.EOM {
		e.needPhaseB = true
	}
}

// ppmStatus is the failure reported when a post-page message is never
// answered.
func ppmStatus(ppm t30.FCF) int {
	switch ppm {
	case t30.MPS:
		return t30.StatusNoMPSResponse
	case t30.EOM:
		return t30.StatusNoEOMResponse
	}
	return t30.StatusNoEOPResponse
}

// sendCommand sends f and waits T4 for a response, repeating up to three
// times. CRP from the other side triggers an immediate repeat.
func (e *Engine) sendCommand(ctx context.Context, f *hdlc.Frame, noResponse int) (*hdlc.Frame, error) {
	for attempt := 0; attempt < commandAttempts; attempt++ {
		if err := e.send(ctx, f); err != nil {
			return nil, lineError(err)
		}
		resp, err := e.recvFrameUntil(ctx, e.cfg.T4)
		if err != nil {
			if errors.Is(err, t30.ErrTimeout) {
				continue
			}
			return nil, lineError(err)
		}
		if resp.FCF() == t30.CRP {
			continue
		}
		return resp, nil
	}
	return nil, t30.NewStatus(noResponse).Wrap(t30.ErrTimeout)
}

// SendEnd ends a successful call.
func (e *Engine) SendEnd(ctx context.Context) error {
	e.disconnect(ctx)
	e.setPhase(faxmodem.PhaseDone)
	return nil
}

// SendAbort disconnects after a failure.
func (e *Engine) SendAbort(ctx context.Context) error {
	e.disconnect(ctx)
	e.setPhase(faxmodem.PhaseDone)
	return nil
}
