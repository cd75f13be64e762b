package class2

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofaxmodem/faxmodem"
	"gofaxmodem/modem"
	"gofaxmodem/t30"
)

func dialScript(d Dialect) *scriptModem {
	return newScript().on("ATDT5550100",
		d.Connect,
		d.CSI+` "`+remoteID+`"`,
		d.DIS+sessionV,
		"OK",
	)
}

func dial(t *testing.T, s *scriptModem, d Dialect) *Engine {
	e := New(s, d, testConfig())
	require.NoError(t, e.Dial(context.Background(), "5550100"))
	return e
}

func TestSendTwoPagesWithHangupAfterLast(t *testing.T) {
	s := dialScript(Class2).
		on("AT+FDT", "+FDCS:"+sessionV, "CONNECT").
		on("AT+FET=0", "+FPTS:1", "OK").
		// No +FPTS after the last page, only the hangup.
		on("AT+FET=2", "+FHNG:0", "OK").
		raws("OK").
		raws("OK")
	e := dial(t, s, Class2)
	assert.Equal(t, remoteID, e.RemoteID())

	pages := [][]byte{pageBytes(300), pageBytes(50)}
	require.NoError(t, faxmodem.Send(context.Background(), e, docParams(), pages, nil))

	assert.Equal(t, []string{
		"ATDT5550100",
		"AT+FDIS=" + sessionV,
		"AT+FDT", "AT+FET=0",
		"AT+FDT", "AT+FET=2",
	}, s.cmds)
	require.Len(t, s.raw, 2)
	assert.Equal(t, modem.EscapeDLE(pageBytes(300)), s.raw[0])
	assert.Greater(t, len(s.raw[0]), 302, "DLE in the data is doubled")
	assert.Equal(t, t30.BR14400, e.Negotiated().BR)
}

func TestSendHangupBeforeLastPageFails(t *testing.T) {
	s := dialScript(Class2).
		on("AT+FDT", "CONNECT").
		on("AT+FET=0", "+FHNG:0", "OK").
		raws("OK")
	e := dial(t, s, Class2)
	err := faxmodem.Send(context.Background(), e, docParams(), [][]byte{pageBytes(10), pageBytes(10)}, nil)
	require.Error(t, err)
	assert.Equal(t, StatusNormalHangup, t30.StatusOf(err).Code)
	assert.Zero(t, s.count("AT+FK"))
}

func TestSendRTNExceeded(t *testing.T) {
	s := dialScript(Class2).
		on("AT+FDT", "CONNECT").
		on("AT+FET=2", "+FPTS:2", "OK").
		raws("OK").raws("OK").raws("OK")
	e := dial(t, s, Class2)
	err := faxmodem.Send(context.Background(), e, docParams(), [][]byte{pageBytes(10)}, nil)
	assert.Equal(t, t30.StatusRTNExceeded, t30.StatusOf(err).Code)
	assert.Equal(t, 3, s.count("AT+FDT"))
	assert.Equal(t, 1, s.count("AT+FK"))
}

func TestSendRTNThenMCF(t *testing.T) {
	s := dialScript(Class2).
		on("AT+FDT", "CONNECT").
		on("AT+FET=2", "+FPTS:2", "OK").
		on("AT+FET=2", "+FPTS:1", "+FHNG:0", "OK").
		raws("OK").raws("OK")
	e := dial(t, s, Class2)
	require.NoError(t, faxmodem.Send(context.Background(), e, docParams(), [][]byte{pageBytes(10)}, nil))
	assert.Equal(t, 2, s.count("AT+FDT"))
}

func TestSendTrainingFailure(t *testing.T) {
	s := dialScript(Class2).on("AT+FDT", "+FHNG:27", "ERROR")
	e := dial(t, s, Class2)
	err := faxmodem.Send(context.Background(), e, docParams(), [][]byte{pageBytes(10)}, nil)
	assert.Equal(t, 227, t30.StatusOf(err).Code)
	assert.Zero(t, s.count("AT+FK"))
}

func TestSendProcedureInterrupt(t *testing.T) {
	s := dialScript(Class2).
		on("AT+FDT", "CONNECT").
		on("AT+FET=2", "+FPTS:5", "OK").
		raws("OK")
	e := dial(t, s, Class2)
	err := faxmodem.Send(context.Background(), e, docParams(), [][]byte{pageBytes(10)}, nil)
	assert.Equal(t, t30.StatusInterrupt, t30.StatusOf(err).Code)
}

func TestSendNoDIS(t *testing.T) {
	s := newScript().on("ATDT5550100", "+FCON", "OK")
	e := dial(t, s, Class2)
	err := faxmodem.Send(context.Background(), e, docParams(), [][]byte{pageBytes(10)}, nil)
	assert.Equal(t, t30.StatusNoDIS, t30.StatusOf(err).Code)
}

func TestSendDocumentRemoteCannotTake(t *testing.T) {
	s := newScript().on("ATDT5550100", "+FCON", "+FDIS:0,3,0,2,0,0,0,0", "OK")
	e := dial(t, s, Class2)
	err := faxmodem.Send(context.Background(), e, docParams(), [][]byte{pageBytes(10)}, nil)
	assert.Equal(t, t30.StatusNoCommonParams, t30.StatusOf(err).Code)
}

func TestSendClass20InBandPPM(t *testing.T) {
	s := dialScript(Class20).
		on("AT+FDT", "+FCS:"+sessionV, "CONNECT").
		raws("+FPS:1", "OK").
		// Hex hangup in place of the post-page status.
		raws("+FHS:00", "OK")
	e := dial(t, s, Class20)
	pages := [][]byte{pageBytes(20), pageBytes(20)}
	require.NoError(t, faxmodem.Send(context.Background(), e, docParams(), pages, nil))

	assert.Equal(t, []string{"ATDT5550100", "AT+FIS=" + sessionV, "AT+FDT", "AT+FDT"}, s.cmds)
	require.Len(t, s.raw, 2)
	assert.True(t, bytes.HasSuffix(s.raw[0], []byte{modem.DLE, ','}))
	assert.True(t, bytes.HasSuffix(s.raw[1], []byte{modem.DLE, '.'}))
}

func TestDialBusy(t *testing.T) {
	s := newScript().on("ATDT5550100", "BUSY")
	err := New(s, Class2, testConfig()).Dial(context.Background(), "5550100")
	assert.ErrorIs(t, err, modem.ErrBusy)
}

func TestPollBegin(t *testing.T) {
	s := newScript().on("ATDT5550100", "+FCON", `+FCSI: "`+remoteID+`"`, "+FDIS:"+sessionV, "+FPOLL", "OK")
	e := New(s, Class2, testConfig())
	ctx := context.Background()
	require.NoError(t, e.RequestToPoll(ctx))
	require.NoError(t, e.Dial(ctx, "5550100"))
	require.NoError(t, e.PollBegin(ctx))
	assert.Equal(t, []string{"AT+FSPL=1", "ATDT5550100"}, s.cmds)
}

func TestPollNothingToPoll(t *testing.T) {
	e := dial(t, dialScript(Class20), Class20)
	err := e.PollBegin(context.Background())
	assert.Equal(t, t30.StatusNothingToPoll, t30.StatusOf(err).Code)
}

func TestPollRemoteRefuses(t *testing.T) {
	s := newScript().on("ATDT5550100", "+FCON", "+FHNG:21", "OK")
	e := dial(t, s, Class2)
	err := e.PollBegin(context.Background())
	assert.Equal(t, 221, t30.StatusOf(err).Code)
}
