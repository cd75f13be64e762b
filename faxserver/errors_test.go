package faxserver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"gofaxmodem/class2"
	"gofaxmodem/modem"
	"gofaxmodem/t30"
)

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want SendResult
	}{
		{nil, SendDone},
		{t30.NewStatus(t30.StatusModemFailure).Wrap(modem.ErrBusy), SendRetry},
		{fmt.Errorf("dial: %w", modem.ErrNoDialtone), SendRetry},
		{context.Canceled, SendRetry},
		{t30.NewStatus(t30.StatusNoDIS), SendRetry},
		{t30.NewStatus(t30.StatusNoCommonParams), SendFailed},
		{t30.NewStatus(t30.StatusRemoteCannotRecv), SendFailed},
		{t30.NewStatus(t30.StatusNothingToPoll), SendFailed},
		{t30.NewStatus(t30.StatusTrainLowestRate), SendV17fail},
		{t30.NewStatus(t30.StatusTrainFailed).Wrap(modem.ErrTimeout), SendV17fail},
		{fmt.Errorf("page 2: %w", t30.NewStatus(t30.StatusRTNExceeded)), SendReformat},
		{t30.NewStatus(class2.StatusHangupBase + 25), SendV17fail},
		{t30.NewStatus(class2.StatusHangupBase + 50), SendRetry},
		{NewFaxError(errors.New("no such modem"), false), SendFailed},
		{NewFaxError(errors.New("line in use"), true), SendRetry},
	} {
		assert.Equal(t, tc.want, classify(tc.err), "%v", tc.err)
	}
}

func TestSendResultString(t *testing.T) {
	assert.Equal(t, "OK", SendDone.String())
	assert.Equal(t, "V17FAIL", SendV17fail.String())
	assert.Equal(t, "UNKNOWN", SendResult(42).String())
}

func TestFaxErrorUnwrap(t *testing.T) {
	err := NewFaxError(modem.ErrNoAnswer, true)
	assert.ErrorIs(t, err, modem.ErrNoAnswer)
	assert.Equal(t, modem.ErrNoAnswer.Error(), err.Error())
}
