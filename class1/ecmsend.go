package class1

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"gofaxmodem/faxmodem"
	"gofaxmodem/hdlc"
	"gofaxmodem/t30"
)

// rcpCount is the number of RCP frames closing each transmission.
const rcpCount = 3

// splitFrames cuts data into ECM frames of size bytes, zero filling the last
// one. An empty page still yields one frame.
func splitFrames(data []byte, size int) [][]byte {
	var frames [][]byte
	for off := 0; off < len(data) || len(frames) == 0; off += size {
		frame := make([]byte, size)
		if off < len(data) {
			copy(frame, data[off:])
		}
		frames = append(frames, frame)
	}
	return frames
}

// sendPageECM transmits a page as ECM blocks, retransmitting what the
// receiver reports missing.
func (e *Engine) sendPageECM(ctx context.Context, data []byte, ppm t30.FCF) error {
	frames := splitFrames(data, e.params.FrameSize())
	nblocks := (len(frames) + t30.BlockFrames - 1) / t30.BlockFrames
	for b := 0; b < nblocks; b++ {
		end := (b + 1) * t30.BlockFrames
		if end > len(frames) {
			end = len(frames)
		}
		blockPPM := t30.Null
		if b == nblocks-1 {
			blockPPM = ppm
		}
		if err := e.sendBlock(ctx, frames[b*t30.BlockFrames:end], b, blockPPM); err != nil {
			return err
		}
	}
	e.pageConfirmed(ppm)
	return nil
}

// sendBlock runs the transmissions of one block until MCF, or until EOR is
// acknowledged.
func (e *Engine) sendBlock(ctx context.Context, block [][]byte, blockNum int, ppm t30.FCF) error {
	want := make([]int, len(block))
	for i := range want {
		want[i] = i
	}
	pprCount := 0
	for {
		if err := e.checkAbort(); err != nil {
			return err
		}
		out := make([]*hdlc.Frame, 0, len(want)+rcpCount)
		for _, n := range want {
			out = append(out, hdlc.NewFCD(n, block[n]))
		}
		for i := 0; i < rcpCount; i++ {
			out = append(out, hdlc.NewRCP())
		}
		if err := e.line.Pause(ctx, e.cfg.SwitchingPause); err != nil {
			return lineError(err)
		}
		mod := t30.ModulationFor(e.params, !e.longTrain)
		if err := e.line.SendHDLC(ctx, mod, out); err != nil {
			return lineError(err)
		}
		e.longTrain = false

		e.setPhase(faxmodem.PhasePostPage)
		pps := hdlc.NewPPS(ppm, e.xbit, e.pageNum-1, blockNum, len(block))
		resp, err := e.sendCommand(ctx, pps, t30.StatusNoPPSResponse)
		if err != nil {
			return err
		}
		if resp, err = e.flowControl(ctx, resp); err != nil {
			return err
		}

		switch resp.FCF() {
		case t30.MCF:
			return nil
		case t30.PPR:
			want = t30.RequestedFrames(resp.FIF(), len(block))
			if len(want) == 0 {
				return nil
			}
			pprCount++
			e.log(logrus.InfoLevel, "block %d: PPR %d requests %d frames", blockNum, pprCount, len(want))
			if pprCount < t30.MaxPPR {
				continue
			}
			pprCount = 0
			done, err := e.afterFourthPPR(ctx, ppm)
			if err != nil || done {
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

// afterFourthPPR either continues at a lower rate with CTC or, at the
// lowest rate, ends the block with EOR. done is true after EOR.
func (e *Engine) afterFourthPPR(ctx context.Context, ppm t30.FCF) (bool, error) {
	if p, ok := t30.StepDown(e.params); ok {
		ctc := hdlc.NewFrame(e.fcf(t30.CTC), true, t30.EncodeCTC(p)...)
		resp, err := e.sendCommand(ctx, ctc, t30.StatusNoCTCResponse)
		if err != nil {
			return false, err
		}
		if resp.FCF() != t30.CTR {
			return false, t30.NewStatus(t30.StatusNoCTR).Wrap(t30.ErrProtocolViolation)
		}
		e.log(logrus.InfoLevel, "CTC: continuing at %s", t30.ModulationFor(p, false))
		e.params = p
		e.longTrain = true
		return false, nil
	}
	resp, err := e.sendCommand(ctx, hdlc.NewEOR(ppm, e.xbit), t30.StatusNoEORResponse)
	if err != nil {
		return false, err
	}
	if resp, err = e.flowControl(ctx, resp); err != nil {
		return false, err
	}
	if resp.FCF() != t30.ERR {
		return false, t30.NewStatus(t30.StatusNoERR).Wrap(t30.ErrProtocolViolation)
	}
	e.log(logrus.WarnLevel, "EOR: block sent incomplete")
	return true, nil
}

// flowControl answers RNR with RR until the receiver sends something else
// or T5 runs out.
func (e *Engine) flowControl(ctx context.Context, resp *hdlc.Frame) (*hdlc.Frame, error) {
	deadline := time.Now().Add(e.cfg.RNRTimeout)
	for resp.FCF() == t30.RNR {
		if time.Now().After(deadline) {
			return nil, t30.NewStatus(t30.StatusRNRTimeout).Wrap(t30.ErrTimeout)
		}
		var err error
		resp, err = e.sendCommand(ctx, hdlc.NewFrame(e.fcf(t30.RR), true), t30.StatusNoRRResponse)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}
