package gofaxlib

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"gofaxmodem/faxmodem"
	"gofaxmodem/t30"
)

func TestFaxResultListener(t *testing.T) {
	logger, hook := test.NewNullLogger()
	res := NewFaxResult(uuid.New(), NewLogManager(logger))

	fine := t30.Params{VR: t30.VRFine, BR: t30.BR9600, DF: t30.DFMR}
	res.PhaseChanged(faxmodem.PhaseTraining)
	res.Negotiated(fine, "REMOTE")
	res.Negotiated(fine, "")
	res.PageDone(faxmodem.Page{Number: 1, Params: fine, Rows: 2200, BadRows: 3, Good: true, Size: 4000})
	res.PageDone(faxmodem.Page{Number: 2, Params: fine, Rows: 2200, BadRows: 900, Good: false})
	res.Finish(t30.NewStatus(t30.StatusRTNExceeded))

	s := res.Snapshot()
	assert.Equal(t, "TRAINING", s.Phase)
	assert.Equal(t, "REMOTE", s.RemoteID)
	assert.Equal(t, uint(2), s.NegotiateCount)
	assert.Equal(t, uint(9600), s.TransferRate)
	assert.False(t, s.Ecm)
	assert.Equal(t, uint(1), s.TransferredPages)
	assert.Len(t, s.PageResults, 2)
	assert.Equal(t, Resolution{X: 204, Y: 196}, s.PageResults[0].ImageResolution)
	assert.Equal(t, "MR", s.PageResults[0].EncodingName)
	assert.False(t, s.Success)
	assert.Equal(t, t30.StatusRTNExceeded, s.ResultCode)
	assert.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, "FaxResult", hook.LastEntry().Data["ns"])
}

func TestFaxResultFinishWrapped(t *testing.T) {
	res := NewFaxResult(uuid.New(), nil)
	res.Finish(errors.Join(errors.New("page 2"), t30.NewStatus(t30.StatusBadPPMResponse)))
	assert.Equal(t, t30.StatusBadPPMResponse, res.ResultCode)

	res = NewFaxResult(uuid.New(), nil)
	res.Finish(nil)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ResultCode)
}
