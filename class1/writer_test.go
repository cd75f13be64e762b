package class1

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockWriterRunsJobsInOrder(t *testing.T) {
	w := newBlockWriter()
	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		w.Submit(func() error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, w.Close())
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestBlockWriterStopsAfterError(t *testing.T) {
	w := newBlockWriter()
	ran := 0
	w.Submit(func() error { return assert.AnError })
	w.Submit(func() error { ran++; return nil })
	assert.ErrorIs(t, w.Close(), assert.AnError)
	assert.Zero(t, ran)
	assert.ErrorIs(t, w.Err(), assert.AnError)

	// Submit after Close is dropped.
	w.Submit(func() error { ran++; return nil })
	assert.Zero(t, ran)
}

func TestBlockWriterWait(t *testing.T) {
	w := newBlockWriter()
	defer w.Close()
	release := make(chan struct{})
	w.Submit(func() error { <-release; return nil })

	assert.True(t, w.Busy())
	assert.False(t, w.Wait(context.Background(), 10*time.Millisecond))

	close(release)
	assert.True(t, w.Wait(context.Background(), time.Second))
	assert.False(t, w.Busy())
}

func TestBlockWriterWaitCancelled(t *testing.T) {
	w := newBlockWriter()
	release := make(chan struct{})
	w.Submit(func() error { <-release; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, w.Wait(ctx, time.Second))
	close(release)
	require.NoError(t, w.Close())
}

func TestConfigNormalize(t *testing.T) {
	e := New(&fakeLine{}, Config{RNRInterval: 10 * time.Second})
	d := DefaultConfig()
	assert.Equal(t, d.T1, e.cfg.T1)
	assert.Equal(t, d.RNRInterval, e.cfg.RNRInterval)
	assert.Equal(t, 95, e.cfg.PercentGoodLines)
	assert.Equal(t, 2, e.cfg.FTTPerRate)
}

func TestParseBadPageHandling(t *testing.T) {
	for in, want := range map[string]BadPageHandling{
		"rtn":      BadPageRTN,
		"":         BadPageRTN,
		"rtn-save": BadPageRTNSave,
		"DCN":      BadPageDCN,
	} {
		got, ok := ParseBadPageHandling(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseBadPageHandling("hangup")
	assert.False(t, ok)
	assert.Equal(t, "RTN-save", BadPageRTNSave.String())
}
