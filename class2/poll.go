package class2

import (
	"context"
	"fmt"

	"gofaxmodem/t30"
)

// RequestToPoll tells the modem to request the called station's document.
// It must be sent before dialling.
func (e *Engine) RequestToPoll(ctx context.Context) error {
	if err := e.expectOK(ctx, fmt.Sprintf("AT%s=1", e.d.PollCmd), e.cfg.CommandTimeout); err != nil {
		return t30.NewStatus(t30.StatusModemFailure).Wrap(err)
	}
	return nil
}

// PollBegin checks that the called station announced a document while the
// call was placed. The modem sends DTC on the first AT+FDR.
func (e *Engine) PollBegin(ctx context.Context) error {
	if err := e.checkAbort(); err != nil {
		return err
	}
	e.pageNum = 0
	if !e.canPoll {
		return e.failure(t30.StatusNothingToPoll, nil)
	}
	return nil
}
