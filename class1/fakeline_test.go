package class1

import (
	"bytes"
	"context"
	"sync"
	"time"

	"gofaxmodem/faxmodem"
	"gofaxmodem/hdlc"
	"gofaxmodem/t30"
)

type itemKind int

const (
	kindFrame itemKind = iota
	kindBadFrame
	kindData
	kindHDLC
)

type lineItem struct {
	kind   itemKind
	frame  *hdlc.Frame
	data   []byte
	stream []byte
}

// fakeLine plays the remote station from a script. The engine reads the
// queue in order; a control frame at the head of the queue is reported as
// V.21 carrier to data receives, like a real modem answering +FCERROR.
type fakeLine struct {
	queue []lineItem

	sent     []*hdlc.Frame
	sentData [][]byte
	sentHDLC [][]*hdlc.Frame
	pauses   int

	// onSend may queue the remote's answer to a frame the engine sent.
	onSend func(l *fakeLine, f *hdlc.Frame)
}

var _ Line = (*fakeLine)(nil)

func (l *fakeLine) add(frames ...*hdlc.Frame) *fakeLine {
	for _, f := range frames {
		l.queue = append(l.queue, lineItem{kind: kindFrame, frame: f})
	}
	return l
}

func (l *fakeLine) addFirst(f *hdlc.Frame) {
	l.queue = append([]lineItem{{kind: kindFrame, frame: f}}, l.queue...)
}

func (l *fakeLine) addBadFrame() *fakeLine {
	l.queue = append(l.queue, lineItem{kind: kindBadFrame})
	return l
}

func (l *fakeLine) addData(data []byte) *fakeLine {
	l.queue = append(l.queue, lineItem{kind: kindData, data: data})
	return l
}

// addHDLC queues one ECM transmission. Frames listed in corrupt get a bit
// flipped after encoding so that their FCS fails.
func (l *fakeLine) addHDLC(frames []*hdlc.Frame, corrupt ...int) *fakeLine {
	wire := make([][]byte, len(frames))
	for i, f := range frames {
		wire[i] = hdlc.Encode(f)
	}
	for _, i := range corrupt {
		wire[i][len(wire[i])/2] ^= 0x04
	}
	l.queue = append(l.queue, lineItem{kind: kindHDLC, stream: hdlc.Stuff(wire, 10)})
	return l
}

func (l *fakeLine) head(kinds ...itemKind) (lineItem, bool) {
	if len(l.queue) == 0 {
		return lineItem{}, false
	}
	for _, k := range kinds {
		if l.queue[0].kind == k {
			it := l.queue[0]
			l.queue = l.queue[1:]
			return it, true
		}
	}
	return lineItem{}, false
}

func (l *fakeLine) frameWaiting() bool {
	return len(l.queue) > 0 && (l.queue[0].kind == kindFrame || l.queue[0].kind == kindBadFrame)
}

func idle(timeout time.Duration) {
	time.Sleep(min(timeout, 5*time.Millisecond))
}

func (l *fakeLine) Answer(context.Context) error       { return nil }
func (l *fakeLine) Dial(context.Context, string) error { return nil }
func (l *fakeLine) Hangup(context.Context) error       { return nil }
func (l *fakeLine) Pause(context.Context, time.Duration) error {
	l.pauses++
	return nil
}

func (l *fakeLine) SendFrames(_ context.Context, frames ...*hdlc.Frame) error {
	for _, f := range frames {
		l.sent = append(l.sent, f)
		if l.onSend != nil {
			l.onSend(l, f)
		}
	}
	return nil
}

func (l *fakeLine) RecvFrame(_ context.Context, timeout time.Duration) (*hdlc.Frame, error) {
	it, ok := l.head(kindFrame, kindBadFrame)
	if !ok {
		idle(timeout)
		return nil, t30.ErrTimeout
	}
	if it.kind == kindBadFrame {
		return nil, t30.ErrBadFCS
	}
	return it.frame, nil
}

func (l *fakeLine) SendData(_ context.Context, _ t30.Modulation, data []byte) error {
	l.sentData = append(l.sentData, data)
	return nil
}

func (l *fakeLine) RecvData(_ context.Context, _ t30.Modulation, timeout time.Duration) ([]byte, error) {
	if l.frameWaiting() {
		return nil, ErrV21Carrier
	}
	it, ok := l.head(kindData)
	if !ok {
		idle(timeout)
		return nil, t30.ErrTimeout
	}
	return it.data, nil
}

func (l *fakeLine) SendHDLC(_ context.Context, _ t30.Modulation, frames []*hdlc.Frame) error {
	l.sentHDLC = append(l.sentHDLC, frames)
	return nil
}

func (l *fakeLine) RecvHDLC(_ context.Context, _ t30.Modulation, timeout time.Duration) ([]*hdlc.Frame, error) {
	if l.frameWaiting() {
		return nil, ErrV21Carrier
	}
	it, ok := l.head(kindHDLC)
	if !ok {
		idle(timeout)
		return nil, t30.ErrTimeout
	}
	var frames []*hdlc.Frame
	for _, raw := range hdlc.Unstuff(it.stream) {
		if f, err := hdlc.Decode(raw); err == nil {
			frames = append(frames, f)
		}
	}
	return frames, nil
}

func (l *fakeLine) sentFCFs() []t30.FCF {
	out := make([]t30.FCF, len(l.sent))
	for i, f := range l.sent {
		out[i] = f.FCF()
	}
	return out
}

func (l *fakeLine) lastSent(fcf t30.FCF) *hdlc.Frame {
	for i := len(l.sent) - 1; i >= 0; i-- {
		if l.sent[i].FCF() == fcf {
			return l.sent[i]
		}
	}
	return nil
}

func (l *fakeLine) count(fcf t30.FCF) int {
	n := 0
	for _, f := range l.sent {
		if f.FCF() == fcf {
			n++
		}
	}
	return n
}

// memSink collects pages; delay slows every WriteData.
type memSink struct {
	mu    sync.Mutex
	data  bytes.Buffer
	pages []faxmodem.Page
	delay time.Duration
	err   error
}

func (s *memSink) WriteData(data []byte) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data.Write(data)
	return nil
}

func (s *memSink) EndPage(p faxmodem.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, p)
	return nil
}

func (s *memSink) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data.Bytes()...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LocalID = "+1 555 0199"
	cfg.T1 = 300 * time.Millisecond
	cfg.T2 = 50 * time.Millisecond
	cfg.T4 = 50 * time.Millisecond
	cfg.TCFRecvTimeout = 50 * time.Millisecond
	cfg.SwitchingPause = 0
	cfg.RNRInterval = 20 * time.Millisecond
	return cfg
}

func ecmParams() t30.Params {
	return DefaultCapabilities
}

func plainParams() t30.Params {
	p := DefaultCapabilities
	p.EC = t30.ECDisabled
	return p
}

const remoteID = "+1 555 0100"

// senderTrains queues a caller's TSI, DCS and a clean TCF.
func senderTrains(l *fakeLine, p t30.Params) {
	l.add(
		hdlc.NewFrame(t30.TSI.WithX(true), false, hdlc.EncodeID(remoteID)...),
		hdlc.NewFrame(t30.DCS.WithX(true), true, t30.EncodeDCS(p)...),
	)
	l.addData(t30.TCF(p))
}

func senderDCS(p t30.Params) *hdlc.Frame {
	return hdlc.NewFrame(t30.DCS.WithX(true), true, t30.EncodeDCS(p)...)
}

func senderFrame(fcf t30.FCF, fif ...byte) *hdlc.Frame {
	return hdlc.NewFrame(fcf.WithX(true), true, fif...)
}

// noisyTCF fails the training check.
func noisyTCF(p t30.Params) []byte {
	buf := t30.TCF(p)
	for i := range buf {
		buf[i] = 0xff
	}
	return buf
}

// pageData returns n bytes that never end in a zero.
func pageData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i%251) + 1
	}
	return data
}

// blockFrames builds the FCD frames of one block followed by RCP.
func blockFrames(frames [][]byte, only ...int) []*hdlc.Frame {
	var out []*hdlc.Frame
	if len(only) == 0 {
		for i := range frames {
			out = append(out, hdlc.NewFCD(i, frames[i]))
		}
	} else {
		for _, i := range only {
			out = append(out, hdlc.NewFCD(i, frames[i]))
		}
	}
	for i := 0; i < rcpCount; i++ {
		out = append(out, hdlc.NewRCP())
	}
	return out
}
