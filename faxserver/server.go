package faxserver

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gofaxmodem/gofaxlib"
)

// Server runs the modem lines and the send queue.
type Server struct {
	logManager *gofaxlib.LogManager
	dialplan   *DialplanManager
	queue      *Queue
	tracker    *FaxTracker
	trouble    gofaxlib.TroubleStore
	db         *gorm.DB

	gettys   []*Getty
	anyModem chan *sendRequest
	byModem  map[string]chan *sendRequest
	records  chan *SessionRecord
}

// NewServer creates a server logging to lm.
func NewServer(lm *gofaxlib.LogManager) *Server {
	if lm == nil {
		lm = gofaxlib.NewDiscardLogManager()
	}
	return &Server{
		logManager: lm,
		tracker:    NewFaxTracker(),
		trouble:    gofaxlib.NewMemoryTroubleStore(),
		dialplan:   NewDialplanManager(nil),
		anyModem:   make(chan *sendRequest),
		byModem:    make(map[string]chan *sendRequest),
		records:    make(chan *SessionRecord, 64),
	}
}

func (s *Server) log(level logrus.Level, format string, args ...interface{}) {
	s.logManager.SendLog(s.logManager.BuildLog("Server", format, level, map[string]interface{}{}, args...))
}

// Tracker returns the tracker of running sessions.
func (s *Server) Tracker() *FaxTracker { return s.tracker }

// Start runs the server until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run starts one getty per configured modem and the queue, and blocks
// until ctx is done and all lines are hung up.
func (s *Server) Run(ctx context.Context) error {
	dp, err := ParseDialplan(gofaxlib.Config.Sending.Dialplan)
	if err != nil {
		return err
	}
	s.dialplan = dp

	if gofaxlib.Config.Database.Enabled {
		db, err := openDB()
		if err != nil {
			return err
		}
		if err := migrateSchema(db); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		s.db = db
		s.trouble = gofaxlib.NewDBTroubleStore(db)
		go s.startRecords()
		defer close(s.records)
	}

	if len(gofaxlib.Config.Modems) == 0 {
		return fmt.Errorf("no modems configured")
	}
	for _, mc := range gofaxlib.Config.Modems {
		g := NewGetty(s, mc)
		s.gettys = append(s.gettys, g)
		s.byModem[mc.Name] = g.requests
	}

	var wg sync.WaitGroup
	for _, g := range s.gettys {
		wg.Add(1)
		go func(g *Getty) {
			defer wg.Done()
			g.Run(ctx)
		}(g)
	}

	if dir := gofaxlib.Config.Sending.QueueDir; dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		s.queue = NewQueue(s, dir)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.queue.Start(ctx)
		}()
	}

	s.log(logrus.InfoLevel, "Serving %d modem(s)", len(s.gettys))
	<-ctx.Done()
	s.log(logrus.InfoLevel, "Shutting down, %d session(s) active", s.tracker.ActiveCount())
	wg.Wait()
	return nil
}

// dispatch hands req to its modem, or to the first idle one, and waits for
// the call to end.
func (s *Server) dispatch(ctx context.Context, req *sendRequest) error {
	ch := s.anyModem
	if req.job.Modem != "" {
		var ok bool
		ch, ok = s.byModem[req.job.Modem]
		if !ok {
			return NewFaxError(fmt.Errorf("unknown modem %q", req.job.Modem), false)
		}
	}
	req.done = make(chan error, 1)
	select {
	case ch <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.done
}
