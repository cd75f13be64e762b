package faxserver

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofaxmodem/gofaxlib"
)

func TestFaxTrackerJobLifecycle(t *testing.T) {
	tr := NewFaxTracker()
	job := NewFaxJob()
	job.CalleeNumber = "5550100"
	tr.Begin(job)
	assert.Equal(t, 1, tr.ActiveCount())

	st, ok := tr.Get(job.UUID)
	require.True(t, ok)
	assert.Equal(t, PhaseQueued, st.Phase)
	assert.Equal(t, DirectionSend, st.Direction)

	call1, call2 := uuid.New(), uuid.New()
	tr.MarkAttempt(job.UUID, call1, 1, 3, "ttyS0")
	got, ok := tr.FindJobByCall(call1)
	require.True(t, ok)
	assert.Equal(t, job.UUID, got)

	res := gofaxlib.NewFaxResult(call1, nil)
	tr.MarkResult(job.UUID, false, SendRetry.String(), errors.New("busy"), res)
	tr.MarkWaiting(job.UUID)
	st, _ = tr.Get(job.UUID)
	assert.Equal(t, PhaseWaiting, st.Phase)
	assert.Equal(t, "busy", st.LastError)
	assert.Equal(t, "RETRY", st.LastResult)
	require.NotNil(t, st.ResultSuccess)
	assert.False(t, *st.ResultSuccess)
	assert.Equal(t, call1, st.ResultSnapshot.UUID)

	// the previous call no longer maps to the job
	tr.MarkAttempt(job.UUID, call2, 2, 3, "ttyS0")
	_, ok = tr.FindJobByCall(call1)
	assert.False(t, ok)
	st, _ = tr.Get(job.UUID)
	assert.Equal(t, 2, st.Attempt)
	assert.Equal(t, PhaseAttempt, st.Phase)

	assert.Len(t, tr.Snapshot(), 1)
	tr.Complete(job.UUID)
	tr.Complete(job.UUID)
	assert.Zero(t, tr.ActiveCount())
	_, ok = tr.FindJobByCall(call2)
	assert.False(t, ok)
}

func TestFaxTrackerReceive(t *testing.T) {
	tr := NewFaxTracker()
	id := uuid.New()
	tr.BeginReceive(id, "ttyS1")
	st, ok := tr.Get(id)
	require.True(t, ok)
	assert.Equal(t, DirectionRecv, st.Direction)
	assert.Equal(t, PhaseReceiving, st.Phase)
	assert.Equal(t, "ttyS1", st.Modem)
	assert.False(t, st.StartedAt.IsZero())

	job, ok := tr.FindJobByCall(id)
	require.True(t, ok)
	assert.Equal(t, id, job)
}
