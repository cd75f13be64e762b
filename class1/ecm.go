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

// ppsAttempts is how many PPS transmissions the receiver waits for.
const ppsAttempts = 3

// recvPageECM receives the partial pages of one page. Each block is
// confirmed with MCF once every frame arrived, or retransmission is
// requested with PPR.
func (e *Engine) recvPageECM(ctx context.Context, sink faxmodem.Sink) (faxmodem.Page, bool, error) {
	page := faxmodem.Page{Number: e.pageNum, Params: e.params, Good: true}
	for {
		if err := e.checkAbort(); err != nil {
			return page, false, err
		}
		block, pps, partial, err := e.recvBlock(ctx)
		if err != nil {
			if e.recvdDCN && e.cfg.BadPageHandling == BadPageRTNSave && block != nil && block.DataSeen() {
				page.Good = false
				e.commitPage(sink, page, block.Bytes())
			}
			return page, false, err
		}
		if partial {
			page.Good = false
		}

		final := pps.PPM != t30.Null
		if !partial && block.LastMissing() {
			e.log(logrus.WarnLevel, "page %d block %d: last frame %d missing, accepted",
				e.pageNum, e.blockNum, block.FrameCount()-1)
		}
		data := block.Bytes()
		if final {
			data = t30.TrimPadding(data)
		}
		if err := e.waitWriter(ctx); err != nil {
			return page, false, err
		}
		page.Size += len(data)
		resp := t30.MCF
		if partial {
			resp = t30.ERR
		}
		if !final {
			e.submitBlock(sink, data)
			if err := e.respond(ctx, resp); err != nil {
				return page, false, lineError(err)
			}
			e.blockNum++
			continue
		}

		page.PPM = pps.PPM.Unprioritized()
		e.commitPage(sink, page, data)
		e.setPhase(faxmodem.PhasePostPage)
		if err := e.respond(ctx, resp); err != nil {
			return page, false, lineError(err)
		}
		e.log(logrus.InfoLevel, "page %d: %d bytes in %d blocks, %s",
			page.Number, page.Size, e.blockNum+1, page.PPM)
		e.blockNum = 0
		return page, page.PPM != t30.EOP, nil
	}
}

func (e *Engine) submitBlock(sink faxmodem.Sink, data []byte) {
	if len(data) == 0 {
		return
	}
	e.writer.Submit(func() error { return sink.WriteData(data) })
}

// recvBlock runs the data and PPS/PPR rounds of one block. partial is true
// when the sender gave up with EOR and the block is accepted incomplete.
func (e *Engine) recvBlock(ctx context.Context) (*t30.Block, t30.PartialPage, bool, error) {
	block := t30.NewBlock(e.params.FrameSize())
	pprCount := 0
	for {
		if err := e.checkAbort(); err != nil {
			return block, t30.PartialPage{}, false, err
		}
		f, err := e.recvBlockData(ctx, block)
		if err != nil {
			return block, t30.PartialPage{}, false, err
		}
		if f == nil {
			if f, err = e.recvPPS(ctx); err != nil {
				return block, t30.PartialPage{}, false, err
			}
		}

		switch f.FCF() {
		case t30.EOR:
			pps, err := e.recvEOR(ctx, f)
			return block, pps, true, err
		case t30.CTC:
			if err := e.recvCTC(ctx, f); err != nil {
				return block, t30.PartialPage{}, false, err
			}
			continue
		}

		pps, err := hdlc.DecodePPS(f, block.DataSeen())
		if err != nil {
			e.log(logrus.WarnLevel, "%v", err)
			continue
		}
		block.SetFrameCount(pps.Frames)
		e.log(logrus.DebugLevel, "PPS-%s page %d block %d, %d frames, %d missing",
			pps.PPM, pps.Page, pps.Block, pps.Frames, block.MissingCount())
		if block.Good() {
			e.lastPPS = &pps
			return block, pps, false, nil
		}

		pprCount++
		if err := e.respond(ctx, t30.PPR, block.PPR()...); err != nil {
			return block, pps, false, lineError(err)
		}
		if pprCount < t30.MaxPPR {
			continue
		}

		// After the fourth PPR the sender either continues at another
		// rate or ends the retransmission.
		f, err = e.recvFrameUntil(ctx, e.cfg.T2*ppsAttempts)
		if err != nil {
			return block, pps, false, e.ecmProtocolError(ctx, err)
		}
		switch f.FCF() {
		case t30.CTC:
			if err := e.recvCTC(ctx, f); err != nil {
				return block, pps, false, err
			}
			pprCount = 0
		case t30.EOR:
			pps, err := e.recvEOR(ctx, f)
			return block, pps, true, err
		case t30.DCN:
			e.recvdDCN = true
			return block, pps, false, dcnStatus(t30.StatusDCNInPhaseC)
		default:
			return block, pps, false, e.ecmProtocolError(ctx, nil)
		}
	}
}

// recvBlockData receives one transmission of ECM frames into block. If the
// sender is already signalling on V.21, the control frame is returned
// instead. A repeated PPS of the block just confirmed is answered again.
func (e *Engine) recvBlockData(ctx context.Context, block *t30.Block) (*hdlc.Frame, error) {
	for attempt := 0; attempt < maxCarrierAttempts; attempt++ {
		mod := t30.ModulationFor(e.params, !e.longTrain)
		frames, err := e.line.RecvHDLC(ctx, mod, e.cfg.T2)
		if err == nil {
			e.longTrain = false
			e.storeFrames(block, frames)
			return nil, nil
		}
		if errors.Is(err, t30.ErrTimeout) {
			continue
		}
		if !errors.Is(err, ErrV21Carrier) {
			return nil, lineError(err)
		}
		f, err := e.recvFrame(ctx, e.cfg.T2)
		if err != nil {
			if errors.Is(err, t30.ErrTimeout) {
				continue
			}
			return nil, lineError(err)
		}
		if f == nil {
			continue
		}
		switch f.FCF() {
		case t30.DCN:
			e.recvdDCN = true
			return nil, dcnStatus(t30.StatusDCNInPhaseC)
		case t30.CRP:
			if err := e.resendLast(ctx); err != nil {
				return nil, lineError(err)
			}
			continue
		case t30.PPS:
			if e.repeatedPPS(f) {
				if err := e.resendLast(ctx); err != nil {
					return nil, lineError(err)
				}
				continue
			}
		}
		return f, nil
	}
	// No carrier at all: wait for the PPS so the sender learns what is missing.
	return nil, nil
}

// repeatedPPS reports whether f repeats the PPS of the block confirmed last.
func (e *Engine) repeatedPPS(f *hdlc.Frame) bool {
	if e.lastPPS == nil || len(f.FIF()) < 4 {
		return false
	}
	fif := f.FIF()
	return t30.FCF(fif[0]).Type() == e.lastPPS.PPM &&
		int(fif[1]) == e.lastPPS.Page && int(fif[2]) == e.lastPPS.Block
}

func (e *Engine) storeFrames(block *t30.Block, frames []*hdlc.Frame) {
	rcp := 0
	for _, f := range frames {
		switch f.FCF() {
		case t30.FCD:
			n, payload, err := hdlc.DecodeFCD(f)
			if err != nil {
				continue
			}
			block.Put(n, payload)
		case t30.RCP:
			rcp++
		}
	}
	e.log(logrus.DebugLevel, "block %d: %d frames, %d RCP", e.blockNum, len(frames), rcp)
}

// recvPPS waits for the partial page signal that ends a transmission.
func (e *Engine) recvPPS(ctx context.Context) (*hdlc.Frame, error) {
	for attempt := 0; attempt < ppsAttempts; attempt++ {
		f, err := e.recvFrameUntil(ctx, e.cfg.T2)
		if err != nil {
			if errors.Is(err, t30.ErrTimeout) {
				continue
			}
			return nil, lineError(err)
		}
		switch f.FCF() {
		case t30.PPS, t30.EOR, t30.CTC:
			return f, nil
		case t30.DCN:
			e.recvdDCN = true
			return nil, dcnStatus(t30.StatusDCNInPhaseC)
		case t30.CRP:
			if err := e.resendLast(ctx); err != nil {
				return nil, lineError(err)
			}
		default:
			e.log(logrus.InfoLevel, "expected PPS, got %s", f.FCF())
		}
	}
	return nil, t30.NewStatus(t30.StatusNoPPS).Wrap(t30.ErrTimeout)
}

// recvCTC answers a continue to correct with CTR and adopts the new rate.
func (e *Engine) recvCTC(ctx context.Context, f *hdlc.Frame) error {
	br, v17, err := t30.CTCRate(f.FIF())
	if err != nil {
		e.log(logrus.WarnLevel, "CTC: %v", err)
	} else {
		e.params.BR, e.params.V17 = br, v17
		e.log(logrus.InfoLevel, "CTC: continuing at %s", t30.ModulationFor(e.params, false))
	}
	e.longTrain = true
	if err := e.respond(ctx, t30.CTR); err != nil {
		return lineError(err)
	}
	return nil
}

// recvEOR answers an end of retransmission with ERR. The reply is sent by
// the caller once the block has been handed to the writer.
func (e *Engine) recvEOR(ctx context.Context, f *hdlc.Frame) (t30.PartialPage, error) {
	pps := t30.PartialPage{PPM: t30.Null}
	if fif := f.FIF(); len(fif) > 0 {
		pps.PPM = t30.FCF(fif[0]).Type()
	}
	e.log(logrus.WarnLevel, "EOR-%s: accepting incomplete block %d", pps.PPM, e.blockNum)
	return pps, nil
}

// ecmProtocolError disconnects after the sender neither corrected nor ended
// the retransmission.
func (e *Engine) ecmProtocolError(ctx context.Context, cause error) error {
	e.disconnect(ctx)
	if cause == nil {
		cause = t30.ErrProtocolViolation
	}
	return t30.NewStatus(t30.StatusECMProtocol).Wrap(cause)
}

// waitWriter applies receiver-not-ready flow control while the previous
// block is still being committed.
func (e *Engine) waitWriter(ctx context.Context) error {
	deadline := time.Now().Add(e.cfg.RNRTimeout)
	noRR := 0
	for !e.writer.Wait(ctx, e.cfg.RNRInterval) {
		if err := ctx.Err(); err != nil {
			return lineError(err)
		}
		if time.Now().After(deadline) {
			e.disconnect(ctx)
			return t30.NewStatus(t30.StatusRNRTimeout).Wrap(t30.ErrTimeout)
		}
		if err := e.respond(ctx, t30.RNR); err != nil {
			return lineError(err)
		}
		f, err := e.recvFrameUntil(ctx, e.cfg.T2)
		switch {
		case err != nil && !errors.Is(err, t30.ErrTimeout):
			return lineError(err)
		case err != nil:
			noRR++
			if noRR >= 3 {
				return t30.NewStatus(t30.StatusNoRRResponse).Wrap(t30.ErrTimeout)
			}
		case f.FCF() == t30.DCN:
			e.recvdDCN = true
			return dcnStatus(t30.StatusDCNInPhaseC)
		case f.FCF() == t30.RR:
			noRR = 0
		}
	}
	if err := e.writer.Err(); err != nil {
		e.disconnect(ctx)
		return t30.NewStatus(t30.StatusWriteFailed).Wrap(err)
	}
	return nil
}
