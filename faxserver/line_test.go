package faxserver

import (
	"context"
	"sync"
	"time"

	"gofaxmodem/modem"
)

// scriptLine is a Class 2 modem answering AT commands from a script.
// Commands without a script answer OK. Every SendRaw releases the next
// group of afterRaw lines.
type scriptLine struct {
	mu       sync.Mutex
	replies  map[string][][]string
	afterRaw [][]string
	rawIn    [][]byte
	queue    []string

	cmds    []string
	raw     [][]byte
	hangups int
}

var _ Transport = (*scriptLine)(nil)

func newLine() *scriptLine {
	return &scriptLine{replies: map[string][][]string{}}
}

func (s *scriptLine) on(cmd string, lines ...string) *scriptLine {
	s.replies[cmd] = append(s.replies[cmd], lines)
	return s
}

func (s *scriptLine) raws(lines ...string) *scriptLine {
	s.afterRaw = append(s.afterRaw, lines)
	return s
}

// push queues unsolicited lines such as RING.
func (s *scriptLine) push(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, lines...)
}

func (s *scriptLine) SendCommand(ctx context.Context, cmd string, _ time.Duration) (modem.Response, error) {
	s.mu.Lock()
	s.cmds = append(s.cmds, cmd)
	r, ok := s.replies[cmd]
	switch {
	case !ok || len(r) == 0:
		s.queue = append(s.queue, "OK")
	case len(r) == 1:
		s.queue = append(s.queue, r[0]...)
	default:
		s.queue = append(s.queue, r[0]...)
		s.replies[cmd] = r[1:]
	}
	s.mu.Unlock()
	return s.RecvResponse(ctx, 0)
}

func (s *scriptLine) SendRaw(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = append(s.raw, data)
	if len(s.afterRaw) > 0 {
		s.queue = append(s.queue, s.afterRaw[0]...)
		s.afterRaw = s.afterRaw[1:]
	}
	return nil
}

func (s *scriptLine) RecvRaw(context.Context, time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rawIn) == 0 {
		return nil, modem.ErrTimeout
	}
	data := s.rawIn[0]
	s.rawIn = s.rawIn[1:]
	return data, nil
}

func (s *scriptLine) RecvResponse(context.Context, time.Duration) (modem.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return modem.Response{}, modem.ErrTimeout
	}
	line := s.queue[0]
	s.queue = s.queue[1:]
	return modem.Response{Code: modem.Classify(line), Line: line}, nil
}

func (s *scriptLine) Hangup(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hangups++
	return nil
}

func (s *scriptLine) Close() error { return nil }

func (s *scriptLine) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cmds...)
}

func (s *scriptLine) hangupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hangups
}

func pageBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 1)
	}
	return b
}
