package faxserver

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofaxmodem/gofaxlib"
	"gofaxmodem/t30"
)

func TestBuildMessage(t *testing.T) {
	withConfig(t)
	gofaxlib.Config.SMTP.FromName = "Fax"
	gofaxlib.Config.SMTP.FromAddress = "fax@example.com"

	attachment := writeFile(t, t.TempDir(), "fax.pdf", strings.Repeat("%PDF-1.4 ", 40))
	msg, err := buildMessage("Fax received", "ops@example.com", "one page", attachment)
	require.NoError(t, err)
	s := string(msg)
	assert.Contains(t, s, "From: Fax <fax@example.com>\r\n")
	assert.Contains(t, s, "To: ops@example.com\r\n")
	assert.Contains(t, s, `filename="fax.pdf"`)
	assert.True(t, strings.HasSuffix(s, "--\r\n"))
	_, encoded, found := strings.Cut(s, "Content-Transfer-Encoding: base64\r\n")
	require.True(t, found)
	for _, line := range strings.Split(encoded, "\r\n") {
		assert.LessOrEqual(t, len(line), 76)
	}

	msg, err = buildMessage("Fax sent", "ops@example.com", "done", "")
	require.NoError(t, err)
	assert.NotContains(t, string(msg), "Content-Disposition")

	_, err = buildMessage("x", "y", "z", "/nonexistent/fax.pdf")
	assert.Error(t, err)
}

func TestGenerateFaxResultsPDF(t *testing.T) {
	job := NewFaxJob()
	job.CalleeNumber = "5550100"
	failed := gofaxlib.NewFaxResult(uuid.New(), nil)
	failed.Finish(t30.NewStatus(t30.StatusNoDIS))
	ok := gofaxlib.NewFaxResult(uuid.New(), nil)
	ok.RemoteID = strings.Repeat("REMOTE ", 20)
	ok.Finish(nil)

	nfr := NotifyFaxResults{FaxJob: job, Results: []*gofaxlib.FaxResult{ok, failed}}
	path, err := nfr.GenerateFaxResultsPDF(t.TempDir())
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestReceivedBody(t *testing.T) {
	res := gofaxlib.NewFaxResult(uuid.New(), nil)
	res.StartTs = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	res.Negotiated(t30.Params{VR: t30.VRFine, BR: t30.BR9600}, "REMOTE")
	res.Finish(t30.NewStatus(t30.StatusNoPPM))

	body := receivedBody("ttyS0", res, []string{"a.g3"})
	assert.Contains(t, body, "Fax received on ttyS0 at 2024-01-02 03:04:05")
	assert.Contains(t, body, "Remote ID: REMOTE")
	assert.Contains(t, body, "Result: E136")
	assert.Contains(t, body, "File: a.g3")
}
