package modem

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"gofaxmodem/gofaxlib"
)

const (
	logNS = "Modem"
	// pollInterval bounds a single port read so cancellation is noticed.
	pollInterval = 100 * time.Millisecond
)

// Port is the part of go.bug.st/serial.Port used by the transport.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialTransport implements Transport on a serial port.
type SerialTransport struct {
	port   Port
	name   string
	lm     *gofaxlib.LogManager
	rbuf   [256]byte
	buf    []byte
	closed bool
}

// OpenSerial opens device at baud, 8N1.
func OpenSerial(device string, baud int, lm *gofaxlib.LogManager) (*SerialTransport, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	return NewTransport(port, device, lm), nil
}

// NewTransport wraps an open port.
func NewTransport(port Port, name string, lm *gofaxlib.LogManager) *SerialTransport {
	if lm == nil {
		lm = gofaxlib.NewDiscardLogManager()
	}
	return &SerialTransport{port: port, name: name, lm: lm}
}

func (t *SerialTransport) trace(format string, args ...interface{}) {
	t.lm.SendLog(t.lm.BuildLog(logNS, format, logrus.TraceLevel,
		map[string]interface{}{"modem": t.name}, args...))
}

func (t *SerialTransport) readByte(ctx context.Context, deadline time.Time) (byte, error) {
	if len(t.buf) > 0 {
		b := t.buf[0]
		t.buf = t.buf[1:]
		return b, nil
	}
	if t.closed {
		return 0, ErrClosed
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, ErrTimeout
		}
		if wait > pollInterval {
			wait = pollInterval
		}
		if err := t.port.SetReadTimeout(wait); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		n, err := t.port.Read(t.rbuf[:])
		if err != nil {
			t.closed = true
			return 0, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		if n == 0 {
			continue
		}
		t.buf = t.rbuf[1:n]
		return t.rbuf[0], nil
	}
}

func (t *SerialTransport) readLine(ctx context.Context, deadline time.Time) (string, error) {
	var sb strings.Builder
	for {
		b, err := t.readByte(ctx, deadline)
		if err != nil {
			return "", err
		}
		switch {
		case b == '\n':
			if line := strings.TrimSpace(sb.String()); line != "" {
				return line, nil
			}
			sb.Reset()
		case b == '\r', b < 0x20:
		default:
			sb.WriteByte(b)
		}
	}
}

func (t *SerialTransport) write(p []byte) error {
	for len(p) > 0 {
		n, err := t.port.Write(p)
		if err != nil {
			t.closed = true
			return fmt.Errorf("%w: %v", ErrClosed, err)
		}
		p = p[n:]
	}
	return nil
}

func (t *SerialTransport) SendCommand(ctx context.Context, cmd string, timeout time.Duration) (Response, error) {
	t.trace("--> %s", cmd)
	if err := t.write([]byte(cmd + "\r")); err != nil {
		return Response{}, err
	}
	return t.RecvResponse(ctx, timeout)
}

func (t *SerialTransport) SendRaw(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.trace("--> [%d bytes]", len(data))
	return t.write(data)
}

func (t *SerialTransport) RecvRaw(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	var (
		d    dleDecoder
		data []byte
	)
	for !d.done {
		b, err := t.readByte(ctx, deadline)
		if err != nil {
			return data, err
		}
		data = d.feed(data, b)
	}
	t.trace("<-- [%d bytes]", len(data))
	return data, nil
}

func (t *SerialTransport) RecvResponse(ctx context.Context, timeout time.Duration) (Response, error) {
	line, err := t.readLine(ctx, time.Now().Add(timeout))
	if err != nil {
		return Response{}, err
	}
	t.trace("<-- %s", line)
	return Response{Code: Classify(line), Line: line}, nil
}

// Hangup drops DTR when the port supports it and sends ATH0.
func (t *SerialTransport) Hangup(ctx context.Context) error {
	if p, ok := t.port.(interface{ SetDTR(bool) error }); ok {
		if err := p.SetDTR(false); err == nil {
			time.Sleep(500 * time.Millisecond)
			_ = p.SetDTR(true)
		}
	}
	t.buf = nil
	_, err := Command(ctx, t, "ATH0", 5*time.Second)
	return err
}

func (t *SerialTransport) Close() error {
	t.closed = true
	return t.port.Close()
}
