package class1

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofaxmodem/hdlc"
	"gofaxmodem/modem"
	"gofaxmodem/t30"
)

// scriptTransport answers AT commands from a table. Every SendRaw pops the
// next line of afterRaw, the modem's reply to a transmission.
type scriptTransport struct {
	replies  map[string][]string
	afterRaw []string
	rawIn    [][]byte

	cmds  []string
	raw   [][]byte
	queue []string
}

var _ modem.Transport = (*scriptTransport)(nil)

func (s *scriptTransport) SendCommand(_ context.Context, cmd string, _ time.Duration) (modem.Response, error) {
	s.cmds = append(s.cmds, cmd)
	s.queue = append(s.queue, s.replies[cmd]...)
	return s.RecvResponse(context.Background(), 0)
}

func (s *scriptTransport) SendRaw(_ context.Context, data []byte) error {
	s.raw = append(s.raw, data)
	if len(s.afterRaw) > 0 {
		s.queue = append(s.queue, s.afterRaw[0])
		s.afterRaw = s.afterRaw[1:]
	}
	return nil
}

func (s *scriptTransport) RecvRaw(context.Context, time.Duration) ([]byte, error) {
	if len(s.rawIn) == 0 {
		return nil, modem.ErrTimeout
	}
	data := s.rawIn[0]
	s.rawIn = s.rawIn[1:]
	return data, nil
}

func (s *scriptTransport) RecvResponse(context.Context, time.Duration) (modem.Response, error) {
	if len(s.queue) == 0 {
		return modem.Response{}, modem.ErrTimeout
	}
	line := s.queue[0]
	s.queue = s.queue[1:]
	return modem.Response{Code: modem.Classify(line), Line: line}, nil
}

func (s *scriptTransport) Close() error { return nil }

func TestATLineAnswerSkipsFirstFTH(t *testing.T) {
	tr := &scriptTransport{
		replies:  map[string][]string{"ATA": {"CONNECT"}, "AT+FTH=3": {"CONNECT"}},
		afterRaw: []string{"CONNECT", "OK", "OK"},
	}
	l := NewATLine(tr)
	ctx := context.Background()
	require.NoError(t, l.Answer(ctx))
	require.NoError(t, l.Pause(ctx, 75*time.Millisecond))
	require.NoError(t, l.SendFrames(ctx,
		hdlc.NewFrame(t30.CSI, false, hdlc.EncodeID("local")...),
		hdlc.NewFrame(t30.DIS, true, t30.EncodeDIS(DefaultCapabilities, t30.DISFlags{CanReceive: true})...),
	))
	assert.Equal(t, []string{"ATA"}, tr.cmds)
	require.Len(t, tr.raw, 2)

	// The FCS is left to the modem.
	wire := hdlc.Encode(hdlc.NewFrame(t30.CSI, false, hdlc.EncodeID("local")...))
	assert.Equal(t, modem.EscapeDLE(wire[:len(wire)-2]), tr.raw[0])

	require.NoError(t, l.SendFrames(ctx, hdlc.NewFrame(t30.CFR, true)))
	assert.Equal(t, []string{"ATA", "AT+FTH=3"}, tr.cmds)
}

func TestATLineDialSkipsFirstFRH(t *testing.T) {
	dis := hdlc.NewFrame(t30.DIS, true, t30.EncodeDIS(DefaultCapabilities, t30.DISFlags{CanReceive: true})...)
	tr := &scriptTransport{
		replies: map[string][]string{
			"ATDT5550100": {"CONNECT"},
			"AT+FRH=3":    {"CONNECT"},
		},
		rawIn: [][]byte{hdlc.Encode(dis), hdlc.Encode(dis)},
	}
	l := NewATLine(tr)
	ctx := context.Background()
	require.NoError(t, l.Dial(ctx, "5550100"))

	tr.queue = append(tr.queue, "OK")
	f, err := l.RecvFrame(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, dis.Bytes(), f.Bytes())
	assert.Equal(t, []string{"ATDT5550100"}, tr.cmds)

	tr.replies["AT+FRH=3"] = []string{"CONNECT", "ERROR"}
	_, err = l.RecvFrame(ctx, time.Second)
	assert.ErrorIs(t, err, t30.ErrBadFCS)
	assert.Equal(t, []string{"ATDT5550100", "AT+FRH=3"}, tr.cmds)
}

func TestATLineRecvFrameNoCarrier(t *testing.T) {
	tr := &scriptTransport{replies: map[string][]string{"AT+FRH=3": {"NO CARRIER"}}}
	_, err := NewATLine(tr).RecvFrame(context.Background(), time.Second)
	assert.ErrorIs(t, err, t30.ErrTimeout)
}

func TestATLineRecvDataFCError(t *testing.T) {
	tr := &scriptTransport{replies: map[string][]string{"AT+FRM=146": {"+FCERROR"}}}
	mod := t30.ModulationFor(DefaultCapabilities, true)
	_, err := NewATLine(tr).RecvData(context.Background(), mod, time.Second)
	assert.True(t, errors.Is(err, ErrV21Carrier))
}

func TestATLineRecvDataAbortsOnSilence(t *testing.T) {
	tr := &scriptTransport{replies: map[string][]string{"AT+FRM=96": {"CONNECT"}}}
	mod := t30.ModulationFor(t30.Params{BR: t30.BR9600}, false)
	_, err := NewATLine(tr).RecvData(context.Background(), mod, time.Second)
	assert.ErrorIs(t, err, t30.ErrTimeout)
	require.Len(t, tr.raw, 1)
	assert.Equal(t, []byte{modem.CAN}, tr.raw[0])
}

func TestATLineHDLCRoundTrip(t *testing.T) {
	frames := blockFrames(splitFrames(pageData(600), 256))
	mod := t30.ModulationFor(DefaultCapabilities, false)

	tx := &scriptTransport{
		replies:  map[string][]string{"AT+FTM=145": {"CONNECT"}},
		afterRaw: []string{"OK"},
	}
	require.NoError(t, NewATLine(tx).SendHDLC(context.Background(), mod, frames))
	require.Len(t, tx.raw, 1)
	stream, _, done := modem.UnescapeDLE(tx.raw[0])
	require.True(t, done)

	rx := &scriptTransport{
		replies: map[string][]string{"AT+FRM=145": {"CONNECT"}},
		rawIn:   [][]byte{stream},
	}
	got, err := NewATLine(rx).RecvHDLC(context.Background(), mod, time.Second)
	require.NoError(t, err)
	require.Len(t, got, len(frames))
	for i := range frames {
		assert.Equal(t, frames[i].Bytes(), got[i].Bytes())
	}
}

func TestATLinePause(t *testing.T) {
	tr := &scriptTransport{replies: map[string][]string{"AT+FTS=8": {"OK"}}}
	l := NewATLine(tr)
	require.NoError(t, l.Pause(context.Background(), 75*time.Millisecond))
	require.NoError(t, l.Pause(context.Background(), 0))
	assert.Equal(t, []string{"AT+FTS=8"}, tr.cmds)
}

func TestATLineDialBusy(t *testing.T) {
	tr := &scriptTransport{replies: map[string][]string{"ATDT123": {"BUSY"}}}
	err := NewATLine(tr).Dial(context.Background(), "123")
	assert.ErrorIs(t, err, modem.ErrBusy)
}
