package modem

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fakePort answers commands from a script keyed by the command text.
type fakePort struct {
	mu      sync.Mutex
	in      bytes.Buffer
	written bytes.Buffer
	script  map[string]string
	timeout time.Duration
	closed  bool
}

func newFakePort(script map[string]string) *fakePort {
	return &fakePort{script: script}
}

func (p *fakePort) feed(s string) {
	p.mu.Lock()
	p.in.WriteString(s)
	p.mu.Unlock()
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errors.New("closed")
	}
	if p.in.Len() > 0 {
		n, _ := p.in.Read(b)
		p.mu.Unlock()
		return n, nil
	}
	d := p.timeout
	p.mu.Unlock()
	time.Sleep(d)
	return 0, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written.Write(b)
	cmd := strings.TrimSuffix(string(b), "\r")
	if resp, ok := p.script[cmd]; ok {
		p.in.WriteString(resp)
	}
	return len(b), nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.timeout = t
	p.mu.Unlock()
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func TestClassify(t *testing.T) {
	cases := map[string]ResultCode{
		"OK":           ResultOK,
		"0":            ResultOK,
		"CONNECT":      ResultConnect,
		"CONNECT 9600": ResultConnect,
		"ERROR":        ResultError,
		"NO CARRIER":   ResultNoCarrier,
		"BUSY":         ResultBusy,
		"NO DIALTONE":  ResultNoDialtone,
		"RING":         ResultRing,
		"+FCERROR":     ResultFCError,
		"+FHNG:0":      ResultFax,
		"+FCON":        ResultFax,
		"hello":        ResultUnknown,
	}
	for line, want := range cases {
		assert.Equal(t, want, Classify(line), line)
	}
	assert.True(t, ResultFCError.Final())
	assert.False(t, ResultFax.Final())
	assert.False(t, ResultRing.Final())
}

func TestResponseValue(t *testing.T) {
	r := Response{Line: `+FTSI: "  12345 "`}
	assert.True(t, r.Is("+FTSI:"))
	assert.Equal(t, "  12345 ", r.Value("+FTSI:"))
}

func TestEscapeDLE(t *testing.T) {
	got := EscapeDLE([]byte{0x01, DLE, 0x02})
	assert.Equal(t, []byte{0x01, DLE, DLE, 0x02, DLE, ETX}, got)
}

func TestUnescapeDLE(t *testing.T) {
	src := []byte{0x01, DLE, DLE, DLE, SUB, DLE, 'a', 0x02, DLE, ETX, 'O', 'K'}
	data, rest, done := UnescapeDLE(src)
	require.True(t, done)
	assert.Equal(t, []byte{0x01, DLE, DLE, DLE, 0x02}, data)
	assert.Equal(t, []byte("OK"), rest)

	_, _, done = UnescapeDLE([]byte{0x01, DLE})
	assert.False(t, done)
}

func TestDLERoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		got, rest, done := UnescapeDLE(EscapeDLE(data))
		if !done || len(rest) != 0 || !bytes.Equal(got, data) {
			t.Fatalf("round trip of %x gave %x done=%v", data, got, done)
		}
	})
}

func TestSendCommand(t *testing.T) {
	port := newFakePort(map[string]string{
		"AT+FCLASS=1": "\r\nOK\r\n",
		"AT+FRH=3":    "\r\nCONNECT\r\n",
	})
	tr := NewTransport(port, "fake", nil)
	ctx := context.Background()

	r, err := tr.SendCommand(ctx, "AT+FCLASS=1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, r.Code)

	r, err = tr.SendCommand(ctx, "AT+FRH=3", time.Second)
	require.NoError(t, err)
	assert.Equal(t, ResultConnect, r.Code)
	assert.Equal(t, "AT+FCLASS=1\rAT+FRH=3\r", port.written.String())
}

func TestCommandCollectsLines(t *testing.T) {
	port := newFakePort(map[string]string{
		"ATA": "+FCON\r\n+FTSI: \"555\"\r\nOK\r\n",
	})
	tr := NewTransport(port, "fake", nil)
	lines, err := Command(context.Background(), tr, "ATA", time.Second)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "555", lines[1].Value("+FTSI:"))
	assert.Equal(t, ResultOK, Last(lines).Code)
}

func TestRecvRaw(t *testing.T) {
	port := newFakePort(nil)
	port.feed(string([]byte{0xff, 0x13, DLE, DLE, 0x01, DLE, ETX}) + "\r\nOK\r\n")
	tr := NewTransport(port, "fake", nil)
	ctx := context.Background()

	data, err := tr.RecvRaw(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0x13, DLE, 0x01}, data)

	r, err := tr.RecvResponse(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, r.Code)
}

func TestRecvResponseTimeout(t *testing.T) {
	tr := NewTransport(newFakePort(nil), "fake", nil)
	_, err := tr.RecvResponse(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRecvResponseCancelled(t *testing.T) {
	tr := NewTransport(newFakePort(nil), "fake", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.RecvResponse(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClosedPort(t *testing.T) {
	port := newFakePort(nil)
	tr := NewTransport(port, "fake", nil)
	require.NoError(t, tr.Close())
	_, err := tr.RecvResponse(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}
