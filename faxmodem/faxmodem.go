// Package faxmodem defines the contract between a T.30 session engine and
// the application driving it, and the loops that run a complete receive,
// send or poll session against any engine.
package faxmodem

import (
	"context"

	"gofaxmodem/t30"
)

// Phase is the active T.30 phase of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseIdent
	PhaseTraining
	PhaseData
	PhasePostPage
	PhaseDone
)

var phaseNames = [...]string{"IDLE", "IDENT", "TRAINING", "PHASE_C", "POST_PAGE", "DONE"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "UNKNOWN"
	}
	return phaseNames[p]
}

// Page describes one received page.
type Page struct {
	Number             int
	Params             t30.Params
	Rows               int
	BadRows            int
	ConsecutiveBadRows int
	Good               bool
	// PPM is the post-page message that ended the page: MPS, EOM or EOP.
	PPM  t30.FCF
	Size int
}

// Sink persists received page data. Calls for one session arrive in order
// from a single goroutine: any number of WriteData calls followed by EndPage.
type Sink interface {
	WriteData(data []byte) error
	EndPage(p Page) error
}

// Listener observes a session.
type Listener interface {
	PhaseChanged(p Phase)
	Negotiated(p t30.Params, remoteID string)
	PageDone(p Page)
}

// NopListener ignores all events.
type NopListener struct{}

func (NopListener) PhaseChanged(Phase)            {}
func (NopListener) Negotiated(t30.Params, string) {}
func (NopListener) PageDone(Page)                 {}

// FaxModem is a T.30 session engine bound to one call. Terminal failures are
// returned as *t30.Status.
type FaxModem interface {
	// Answer picks up an incoming call.
	Answer(ctx context.Context) error
	// Dial places a call.
	Dial(ctx context.Context, number string) error

	RecvBegin(ctx context.Context) error
	// RecvEOMBegin restarts Phase B after an EOM.
	RecvEOMBegin(ctx context.Context) error
	// RecvPage receives one page into sink. more is false after the last
	// page of the call.
	RecvPage(ctx context.Context, sink Sink) (page Page, more bool, err error)
	RecvEnd(ctx context.Context) error
	RecvAbort(ctx context.Context) error

	// PollBegin requests the document the called station holds for polling
	// and prepares to receive it.
	PollBegin(ctx context.Context) error

	SendSetup(ctx context.Context, p t30.Params) error
	SendPhaseB(ctx context.Context) error
	// SendPage transmits one page of coded data followed by ppm.
	SendPage(ctx context.Context, data []byte, ppm t30.FCF) error
	SendEnd(ctx context.Context) error
	SendAbort(ctx context.Context) error

	// Negotiated returns the session parameters in effect.
	Negotiated() t30.Params
	RemoteID() string
	// Abort requests cooperative cancellation. It may be called from any
	// goroutine.
	Abort()
}
