package faxmodem

import (
	"context"
	"errors"
	"fmt"

	"gofaxmodem/t30"
)

// ErrNoPages is returned by Send when there is nothing to transmit.
var ErrNoPages = errors.New("no pages to send")

// Receive runs an answered receive session to completion. Pages received
// before a failure are returned together with the error.
func Receive(ctx context.Context, m FaxModem, sink Sink, l Listener) ([]Page, error) {
	if err := m.RecvBegin(ctx); err != nil {
		_ = m.RecvAbort(ctx)
		return nil, err
	}
	return receivePages(ctx, m, sink, l)
}

// Poll runs a polling session on a dialled call: the called station sends
// its document and we receive it.
func Poll(ctx context.Context, m FaxModem, sink Sink, l Listener) ([]Page, error) {
	if err := m.PollBegin(ctx); err != nil {
		_ = m.RecvAbort(ctx)
		return nil, err
	}
	return receivePages(ctx, m, sink, l)
}

func receivePages(ctx context.Context, m FaxModem, sink Sink, l Listener) ([]Page, error) {
	if l == nil {
		l = NopListener{}
	}
	var pages []Page
	for {
		page, more, err := m.RecvPage(ctx, sink)
		if err != nil {
			_ = m.RecvAbort(ctx)
			return pages, err
		}
		pages = append(pages, page)
		l.PageDone(page)
		if !more {
			break
		}
		if page.PPM == t30.EOM {
			if err := m.RecvEOMBegin(ctx); err != nil {
				_ = m.RecvAbort(ctx)
				return pages, err
			}
		}
	}
	if err := m.RecvEnd(ctx); err != nil {
		return pages, err
	}
	return pages, nil
}

// Send transmits pages on a dialled call. Every page but the last is
// followed by MPS.
func Send(ctx context.Context, m FaxModem, p t30.Params, pages [][]byte, l Listener) error {
	if len(pages) == 0 {
		return ErrNoPages
	}
	if l == nil {
		l = NopListener{}
	}
	if err := m.SendSetup(ctx, p); err != nil {
		return err
	}
	if err := m.SendPhaseB(ctx); err != nil {
		_ = m.SendAbort(ctx)
		return err
	}
	for i, data := range pages {
		ppm := t30.MPS
		if i == len(pages)-1 {
			ppm = t30.EOP
		}
		if err := m.SendPage(ctx, data, ppm); err != nil {
			_ = m.SendAbort(ctx)
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		l.PageDone(Page{Number: i + 1, Params: m.Negotiated(), Good: true, PPM: ppm, Size: len(data)})
	}
	return m.SendEnd(ctx)
}
