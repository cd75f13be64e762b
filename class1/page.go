package class1

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"gofaxmodem/decoder"
	"gofaxmodem/faxmodem"
	"gofaxmodem/hdlc"
	"gofaxmodem/t30"
)

// maxCarrierAttempts bounds how often Phase C is re-armed after the message
// carrier failed to appear.
const maxCarrierAttempts = 3

// RecvPage receives one page. more is false once the sender has finished.
func (e *Engine) RecvPage(ctx context.Context, sink faxmodem.Sink) (faxmodem.Page, bool, error) {
	if err := e.checkAbort(); err != nil {
		return faxmodem.Page{}, false, err
	}
	if e.writer == nil {
		e.writer = newBlockWriter()
	}
	e.pageNum++
	e.setPhase(faxmodem.PhaseData)
	if e.params.ECM() {
		return e.recvPageECM(ctx, sink)
	}
	return e.recvPageData(ctx, sink)
}

// recvPageData receives a page without error correction and judges it by
// its row quality.
func (e *Engine) recvPageData(ctx context.Context, sink faxmodem.Sink) (faxmodem.Page, bool, error) {
	page := faxmodem.Page{Number: e.pageNum, Params: e.params}

	data, err := e.recvMessage(ctx)
	if err != nil {
		return page, false, err
	}
	page.Size = len(data)

	q, derr := e.dec.Decode(data, e.params)
	page.Rows, page.BadRows, page.ConsecutiveBadRows = q.Rows, q.BadRows, q.ConsecutiveBadRows
	page.Good = derr == nil && q.Good(e.cfg.PercentGoodLines, e.cfg.MaxConsecutiveBadLines)
	if errors.Is(derr, decoder.ErrNoData) {
		e.log(logrus.WarnLevel, "page %d: no coded rows in %d bytes", e.pageNum, len(data))
	}

	e.setPhase(faxmodem.PhasePostPage)
	ppm, err := e.recvPPM(ctx)
	if err != nil {
		return page, false, err
	}
	page.PPM = ppm

	e.log(logrus.InfoLevel, "page %d: %d rows, %d bad, %d consecutive bad, %s",
		page.Number, page.Rows, page.BadRows, page.ConsecutiveBadRows, ppm)

	resp := t30.MCF
	save := true
	if !page.Good {
		switch e.cfg.BadPageHandling {
		case BadPageRTN:
			resp, save = t30.RTN, false
		case BadPageRTNSave:
			resp = t30.RTN
		case BadPageDCN:
			e.commitPage(sink, page, data)
			e.disconnect(ctx)
			return page, false, t30.NewStatus(t30.StatusBadPage)
		}
	}
	if save {
		e.commitPage(sink, page, data)
	}
	if err := e.respond(ctx, resp); err != nil {
		return page, false, lineError(err)
	}
	e.rtnSent = resp == t30.RTN
	if e.rtnSent {
		e.pageNum--
		return page, true, nil
	}
	return page, ppm != t30.EOP, nil
}

// commitPage hands the page to the block writer.
func (e *Engine) commitPage(sink faxmodem.Sink, page faxmodem.Page, data []byte) {
	e.writer.Submit(func() error {
		if len(data) > 0 {
			if err := sink.WriteData(data); err != nil {
				return err
			}
		}
		return sink.EndPage(page)
	})
}

// recvMessage waits for the message carrier. Control frames that arrive
// instead are handled: repeated commands are answered again and a new DCS
// retrains.
func (e *Engine) recvMessage(ctx context.Context) ([]byte, error) {
	for attempt := 0; attempt < maxCarrierAttempts; {
		if err := e.checkAbort(); err != nil {
			return nil, err
		}
		mod := t30.ModulationFor(e.params, false)
		data, err := e.line.RecvData(ctx, mod, e.cfg.T2)
		if err == nil {
			e.rtnSent = false
			return data, nil
		}
		if !errors.Is(err, ErrV21Carrier) {
			if !errors.Is(err, t30.ErrTimeout) {
				return nil, lineError(err)
			}
			attempt++
			continue
		}
		f, err := e.recvFrame(ctx, e.cfg.T2)
		if err != nil {
			if !errors.Is(err, t30.ErrTimeout) {
				return nil, lineError(err)
			}
			attempt++
			continue
		}
		if f == nil {
			attempt++
			continue
		}
		if err := e.phaseCControl(ctx, f); err != nil {
			return nil, err
		}
	}
	return nil, t30.NewStatus(t30.StatusNoMessageCarrier).Wrap(t30.ErrTimeout)
}

// phaseCControl handles a V.21 frame received while Phase C was expected.
func (e *Engine) phaseCControl(ctx context.Context, f *hdlc.Frame) error {
	switch fcf := f.FCF(); {
	case fcf == t30.DCN:
		e.recvdDCN = true
		if e.rtnSent {
			return t30.NewStatus(t30.StatusBadPage).Wrap(t30.ErrRemoteAbort)
		}
		return dcnStatus(t30.StatusDCNInPhaseC)
	case fcf == t30.CRP, fcf.IsPPM(), fcf == t30.PPS, fcf == t30.EOR:
		if err := e.resendLast(ctx); err != nil {
			return lineError(err)
		}
	case fcf == t30.DCS, fcf == t30.TSI, fcf == t30.SUB, fcf == t30.PWD, fcf == t30.NSS:
		if !e.recvDCSFrames(ctx, f) {
			return nil
		}
		e.setPhase(faxmodem.PhaseTraining)
		ok, err := e.recvTraining(ctx)
		if err != nil {
			return err
		}
		resp := t30.FTT
		if ok {
			resp = t30.CFR
		}
		if err := e.respond(ctx, resp); err != nil {
			return lineError(err)
		}
		if ok {
			e.longTrain = true
			e.setPhase(faxmodem.PhaseData)
		}
	default:
		e.log(logrus.InfoLevel, "ignoring %s in Phase C", fcf)
	}
	return nil
}

// recvPPM waits for the post-page message. The sender repeats it up to
// three times when it hears no response.
func (e *Engine) recvPPM(ctx context.Context) (t30.FCF, error) {
	for attempt := 0; attempt < 3; {
		f, err := e.recvFrame(ctx, e.cfg.T2)
		if err != nil {
			if !errors.Is(err, t30.ErrTimeout) {
				return t30.Null, lineError(err)
			}
			attempt++
			continue
		}
		if f == nil {
			// a damaged post-page message counts as one repetition
			attempt++
			continue
		}
		switch fcf := f.FCF(); {
		case fcf.IsPPM():
			return fcf.Unprioritized(), nil
		case fcf == t30.DCN:
			e.recvdDCN = true
			return t30.Null, dcnStatus(t30.StatusDCNInPhaseC)
		case fcf == t30.CRP:
			attempt++
		default:
			e.log(logrus.InfoLevel, "expected post-page message, got %s", fcf)
			attempt++
		}
	}
	return t30.Null, t30.NewStatus(t30.StatusNoPPM).Wrap(t30.ErrTimeout)
}
