package class2

import (
	"context"
	"sync"
	"time"

	"gofaxmodem/decoder"
	"gofaxmodem/faxmodem"
	"gofaxmodem/modem"
	"gofaxmodem/t30"
)

// scriptModem answers AT commands from a script. A command with several
// scripted replies gets them in turn and keeps the last one; commands
// without a script answer OK. Every SendRaw releases the next group of
// afterRaw lines.
type scriptModem struct {
	replies  map[string][][]string
	afterRaw [][]string
	rawIn    [][]byte

	cmds  []string
	raw   [][]byte
	queue []string
}

var _ modem.Transport = (*scriptModem)(nil)

func newScript() *scriptModem {
	return &scriptModem{replies: map[string][][]string{}}
}

// on appends one reply to cmd.
func (s *scriptModem) on(cmd string, lines ...string) *scriptModem {
	s.replies[cmd] = append(s.replies[cmd], lines)
	return s
}

// raws appends the lines released by the next SendRaw.
func (s *scriptModem) raws(lines ...string) *scriptModem {
	s.afterRaw = append(s.afterRaw, lines)
	return s
}

func (s *scriptModem) SendCommand(_ context.Context, cmd string, _ time.Duration) (modem.Response, error) {
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
	return s.RecvResponse(context.Background(), 0)
}

func (s *scriptModem) SendRaw(_ context.Context, data []byte) error {
	s.raw = append(s.raw, data)
	if len(s.afterRaw) > 0 {
		s.queue = append(s.queue, s.afterRaw[0]...)
		s.afterRaw = s.afterRaw[1:]
	}
	return nil
}

func (s *scriptModem) RecvRaw(context.Context, time.Duration) ([]byte, error) {
	if len(s.rawIn) == 0 {
		return nil, modem.ErrTimeout
	}
	data := s.rawIn[0]
	s.rawIn = s.rawIn[1:]
	return data, nil
}

func (s *scriptModem) RecvResponse(context.Context, time.Duration) (modem.Response, error) {
	if len(s.queue) == 0 {
		return modem.Response{}, modem.ErrTimeout
	}
	line := s.queue[0]
	s.queue = s.queue[1:]
	return modem.Response{Code: modem.Classify(line), Line: line}, nil
}

func (s *scriptModem) Close() error { return nil }

// count returns how often cmd was sent.
func (s *scriptModem) count(cmd string) int {
	n := 0
	for _, c := range s.cmds {
		if c == cmd {
			n++
		}
	}
	return n
}

type memSink struct {
	mu    sync.Mutex
	data  []byte
	pages []faxmodem.Page
	err   error
}

func (s *memSink) WriteData(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data = append(s.data, data...)
	return nil
}

func (s *memSink) EndPage(p faxmodem.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, p)
	return nil
}

// fixedQuality scores every page the same.
type fixedQuality decoder.Quality

func (q fixedQuality) Decode([]byte, t30.Params) (decoder.Quality, error) {
	return decoder.Quality(q), nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LocalID = "+1 555 0199"
	cfg.CommandTimeout = 50 * time.Millisecond
	cfg.AnswerTimeout = 100 * time.Millisecond
	cfg.PageTimeout = 100 * time.Millisecond
	return cfg
}

const (
	remoteID  = "+1 555 0100"
	sessionV  = "1,5,0,2,1,0,0,0"
	finePlain = "1,3,0,2,1,0,0,0"
)

func docParams() t30.Params {
	return t30.Params{VR: t30.VRFine, WD: t30.WD1728, LN: t30.LNUnlimited, DF: t30.DFMR}
}

// pageBytes returns n bytes of page data including DLE bytes.
func pageBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 1)
	}
	return b
}
