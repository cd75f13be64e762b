package class2

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"gofaxmodem/faxmodem"
	"gofaxmodem/modem"
	"gofaxmodem/t30"
)

// SendSetup records the parameters of the document to send.
func (e *Engine) SendSetup(ctx context.Context, p t30.Params) error {
	if err := p.Validate(); err != nil {
		return t30.NewStatus(t30.StatusNoCommonParams).Wrap(err)
	}
	e.docParams = p
	e.pageNum = 0
	return e.checkAbort()
}

// SendPhaseB checks the DIS collected while dialling and sets the session
// parameters the modem offers in DCS.
func (e *Engine) SendPhaseB(ctx context.Context) error {
	if err := e.checkAbort(); err != nil {
		return err
	}
	if !e.haveDIS {
		return e.failure(t30.StatusNoDIS, nil)
	}
	local := e.cfg.Capabilities
	local.VR, local.WD, local.DF = e.docParams.VR, e.docParams.WD, e.docParams.DF
	p := t30.BestCommon(local, e.remoteCaps, t30.Trouble{})
	if p.VR != e.docParams.VR || p.WD != e.docParams.WD || p.DF != e.docParams.DF {
		e.log(logrus.WarnLevel, "remote cannot take the document as coded: %s", p)
		return t30.NewStatus(t30.StatusNoCommonParams)
	}
	cmd := fmt.Sprintf("AT%s=%s", e.d.SessionCmd, p.Class2String(e.cfg.DFBitmap))
	if err := e.expectOK(ctx, cmd, e.cfg.CommandTimeout); err != nil {
		return e.failure(t30.StatusModemFailure, err)
	}
	e.params = p
	e.listener.Negotiated(p, e.remoteID)
	return nil
}

// SendPage transmits one page with AT+FDT and hands the post-page message
// to the modem.
func (e *Engine) SendPage(ctx context.Context, data []byte, ppm t30.FCF) error {
	if err := e.checkAbort(); err != nil {
		return err
	}
	e.pageNum++
	for retries := 0; ; retries++ {
		if err := e.sendPageData(ctx, data, ppm); err != nil {
			return err
		}
		retry, err := e.pageDone(ppm)
		if err != nil || !retry {
			return err
		}
		if retries+1 >= e.cfg.PageRetries {
			return t30.NewStatus(t30.StatusRTNExceeded)
		}
		e.log(logrus.InfoLevel, "page %d answered with RTN, sending again", e.pageNum)
	}
}

func (e *Engine) sendPageData(ctx context.Context, data []byte, ppm t30.FCF) error {
	e.pts = -1
	e.setPhase(faxmodem.PhaseTraining)
	// Training happens inside AT+FDT; DCS is reported before CONNECT.
	code, err := e.command(ctx, "AT+FDT", e.cfg.AnswerTimeout)
	if err != nil || code != modem.ResultConnect {
		return e.failure(t30.StatusModemFailure, resultErr(code, err))
	}

	e.setPhase(faxmodem.PhaseData)
	payload := modem.EscapeDLE(data)
	if e.d.InBandPPM {
		payload[len(payload)-1] = inBandPPM(ppm)
	}
	if err := e.t.SendRaw(ctx, payload); err != nil {
		return e.failure(t30.StatusModemFailure, err)
	}
	d := e.cfg.CommandTimeout + transmitTime(len(data), e.params)
	code, err = e.wait(ctx, d)
	if err != nil || code != modem.ResultOK {
		return e.failure(t30.StatusModemFailure, resultErr(code, err))
	}

	e.setPhase(faxmodem.PhasePostPage)
	if e.d.InBandPPM {
		return nil
	}
	code, err = e.command(ctx, fmt.Sprintf("AT+FET=%d", codeForPPM(ppm)), e.cfg.AnswerTimeout)
	if err != nil {
		return e.failure(t30.StatusModemFailure, err)
	}
	// ERROR here comes with a hangup, which pageDone interprets.
	if code != modem.ResultOK && !e.hadHangup {
		return e.failure(t30.StatusModemFailure, resultErr(code, nil))
	}
	return nil
}

// transmitTime is the time the modem needs to send n bytes at the
// negotiated rate.
func transmitTime(n int, p t30.Params) time.Duration {
	return time.Duration(n*8) * time.Second / time.Duration(p.BitRate())
}

// pageDone interprets the post-page response. retry is true when the page
// has to be sent again.
func (e *Engine) pageDone(ppm t30.FCF) (retry bool, err error) {
	switch e.pts {
	case pprMCF, pprRTP:
		e.log(logrus.InfoLevel, "page %d confirmed", e.pageNum)
		return false, nil
	case pprRTN:
		return true, nil
	case pprPIN, pprPIP:
		return false, t30.NewStatus(t30.StatusInterrupt)
	}
	if e.hadHangup {
		// Some modems report +FHNG:0 instead of the post-page response
		// after the last page.
		if IsNormalHangup(e.d, e.hangup) && ppm.Unprioritized() == t30.EOP {
			e.log(logrus.InfoLevel, "page %d: hangup %s taken as MCF", e.pageNum, e.hangup)
			return false, nil
		}
		return false, HangupStatus(e.d, e.hangup)
	}
	return false, t30.NewStatus(t30.StatusBadPPMResponse).Wrap(t30.ErrProtocolViolation)
}

// SendEnd waits for the hangup that follows EOP.
func (e *Engine) SendEnd(ctx context.Context) error {
	defer e.setPhase(faxmodem.PhaseDone)
	if !e.hadHangup {
		lines, err := modem.WaitFor(ctx, e.t, e.cfg.CommandTimeout, e.d.Hangup)
		e.events(lines)
		if err != nil {
			e.log(logrus.InfoLevel, "waiting for hangup: %v", err)
		}
	}
	if e.hadHangup && !IsNormalHangup(e.d, e.hangup) {
		return HangupStatus(e.d, e.hangup)
	}
	return nil
}

func (e *Engine) SendAbort(ctx context.Context) error {
	defer e.setPhase(faxmodem.PhaseDone)
	e.abortCall(ctx)
	return nil
}
