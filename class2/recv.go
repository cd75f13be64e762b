package class2

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"gofaxmodem/faxmodem"
	"gofaxmodem/modem"
	"gofaxmodem/t30"
)

// RecvBegin checks that Phase B completed while the call was answered. The
// modem reports the remote TSI and the DCS it accepted.
func (e *Engine) RecvBegin(ctx context.Context) error {
	if err := e.checkAbort(); err != nil {
		return err
	}
	if !e.haveDCS {
		if e.hadHangup {
			return e.failure(t30.StatusNoSender, nil)
		}
		return t30.NewStatus(t30.StatusNoSender)
	}
	e.log(logrus.InfoLevel, "receiving from %q at %s", e.remoteID, e.params)
	return nil
}

// RecvEOMBegin has nothing to do: the next AT+FDR reports the new DCS.
func (e *Engine) RecvEOMBegin(ctx context.Context) error {
	return e.checkAbort()
}

// RecvPage requests one page with AT+FDR, copies it to sink and answers the
// post-page message with AT+FPTS.
func (e *Engine) RecvPage(ctx context.Context, sink faxmodem.Sink) (faxmodem.Page, bool, error) {
	if err := e.checkAbort(); err != nil {
		return faxmodem.Page{}, false, err
	}
	e.pts, e.ppm = -1, t30.Null
	e.setPhase(faxmodem.PhaseData)

	code, err := e.command(ctx, "AT+FDR", e.cfg.PageTimeout)
	if err != nil || code != modem.ResultConnect {
		if e.rtnSent && e.hadHangup {
			return faxmodem.Page{}, false, t30.NewStatus(t30.StatusBadPage).Wrap(HangupStatus(e.d, e.hangup))
		}
		return faxmodem.Page{}, false, e.failure(t30.StatusNoMessageCarrier, resultErr(code, err))
	}
	// <DC2> releases the data.
	if err := e.t.SendRaw(ctx, []byte{modem.DC2}); err != nil {
		return faxmodem.Page{}, false, e.failure(t30.StatusModemFailure, err)
	}
	data, err := e.t.RecvRaw(ctx, e.cfg.PageTimeout)
	if err != nil {
		return faxmodem.Page{}, false, e.failure(t30.StatusNoPageData, err)
	}

	e.setPhase(faxmodem.PhasePostPage)
	code, err = e.wait(ctx, e.cfg.CommandTimeout)
	if err != nil || code != modem.ResultOK {
		return faxmodem.Page{}, false, e.failure(t30.StatusNoPPM, resultErr(code, err))
	}
	if e.ppm == t30.Null {
		return faxmodem.Page{}, false, t30.NewStatus(t30.StatusNoPPM)
	}

	e.pageNum++
	page := faxmodem.Page{
		Number: e.pageNum,
		Params: e.params,
		PPM:    e.ppm.Unprioritized(),
		Size:   len(data),
		Good:   e.pts == pprMCF || e.pts == pprRTP || e.pts < 0,
	}
	if e.cfg.HostQuality || e.pts < 0 {
		q, err := e.dec.Decode(data, e.params)
		if err != nil {
			e.log(logrus.WarnLevel, "page %d: %v", page.Number, err)
		}
		page.Rows, page.BadRows, page.ConsecutiveBadRows = q.Rows, q.BadRows, q.ConsecutiveBadRows
		page.Good = q.Good(e.cfg.PercentGoodLines, e.cfg.MaxConsecutiveBadLines)
	}

	ppr := pprMCF
	if !page.Good {
		ppr = pprRTN
	}
	if err := e.expectOK(ctx, fmt.Sprintf("AT%s=%d", e.d.PageStatusCmd, ppr), e.cfg.CommandTimeout); err != nil {
		return page, false, e.failure(t30.StatusModemFailure, err)
	}

	if page.Good || e.cfg.KeepBadPages {
		if err := writePage(sink, page, data); err != nil {
			return page, false, t30.NewStatus(t30.StatusWriteFailed).Wrap(err)
		}
	}
	e.log(logrus.InfoLevel, "page %d %s, %d bytes, %d/%d bad rows", page.Number, page.PPM, page.Size, page.BadRows, page.Rows)

	e.rtnSent = !page.Good
	if !page.Good {
		// The sender retransmits or gives up; the next AT+FDR tells.
		e.pageNum--
		return page, true, nil
	}
	return page, page.PPM != t30.EOP, nil
}

func writePage(sink faxmodem.Sink, page faxmodem.Page, data []byte) error {
	if len(data) > 0 {
		if err := sink.WriteData(data); err != nil {
			return err
		}
	}
	return sink.EndPage(page)
}

// RecvEnd collects the hangup that follows EOP.
func (e *Engine) RecvEnd(ctx context.Context) error {
	defer e.setPhase(faxmodem.PhaseDone)
	if !e.hadHangup {
		if _, err := e.command(ctx, "AT+FDR", e.cfg.CommandTimeout); err != nil {
			e.log(logrus.InfoLevel, "waiting for hangup: %v", err)
		}
	}
	if e.hadHangup && !IsNormalHangup(e.d, e.hangup) {
		return HangupStatus(e.d, e.hangup)
	}
	return nil
}

func (e *Engine) RecvAbort(ctx context.Context) error {
	defer e.setPhase(faxmodem.PhaseDone)
	e.abortCall(ctx)
	return nil
}
