package t30

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewBlockAllMissing(t *testing.T) {
	b := NewBlock(256)
	for n := 0; n < BlockFrames; n++ {
		assert.True(t, b.Missing(n))
	}
	assert.Equal(t, 0, b.FrameCount())
	assert.True(t, b.Good(), "an empty block has nothing to ask for")
}

func TestBlockLastFrameExcused(t *testing.T) {
	b := NewBlock(64)
	for n := 0; n < 3; n++ {
		b.Put(n, []byte{byte(n)})
	}
	b.SetFrameCount(4)
	assert.True(t, b.Missing(3))
	assert.True(t, b.Good())
	assert.True(t, b.LastMissing())

	b = NewBlock(64)
	b.Put(0, nil)
	b.Put(1, nil)
	b.Put(3, nil)
	b.SetFrameCount(4)
	assert.False(t, b.Good())
	assert.Equal(t, 1, b.MissingCount())
	assert.False(t, b.LastMissing())

	assert.False(t, NewBlock(64).LastMissing())
}

func TestBlockPPR(t *testing.T) {
	b := NewBlock(256)
	for n := 0; n < 10; n++ {
		if n != 5 {
			b.Put(n, []byte{0xaa})
		}
	}
	b.SetFrameCount(10)
	ppr := b.PPR()
	require.Len(t, ppr, PPRSize)
	assert.Equal(t, []int{5}, RequestedFrames(ppr, 256))
	assert.False(t, b.Good())

	b.Put(5, []byte{0xaa})
	assert.True(t, b.Good())
	assert.Empty(t, RequestedFrames(b.PPR(), 256))
	assert.Len(t, b.Bytes(), 10*256)
}

func TestBlockPutPadsShortFrames(t *testing.T) {
	b := NewBlock(64)
	b.Put(0, []byte{1, 2, 3})
	assert.Equal(t, []byte{1, 2, 3}, b.Bytes()[:3])
	assert.Equal(t, make([]byte, 61), b.Bytes()[3:64])
	b.Put(BlockFrames, []byte{1})
	assert.Equal(t, 1, b.FrameCount())
}

func TestPPRIdempotentAndOrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		frames := rapid.SliceOf(rapid.IntRange(0, BlockFrames-1)).Draw(t, "frames")
		shuffled := rapid.Permutation(frames).Draw(t, "shuffled")

		a, b := NewBlock(64), NewBlock(64)
		for _, n := range frames {
			a.Put(n, nil)
		}
		for _, n := range shuffled {
			b.Put(n, nil)
			b.Put(n, nil)
		}
		assert.Equal(t, a.PPR(), b.PPR())
		assert.Equal(t, a.FrameCount(), b.FrameCount())
		assert.Equal(t, a.Good(), b.Good())
	})
}

func TestTrimPadding(t *testing.T) {
	assert.Equal(t, []byte{1, 0, 2}, TrimPadding([]byte{1, 0, 2, 0, 0}))
	assert.Empty(t, TrimPadding([]byte{0, 0}))
}

func TestTCF(t *testing.T) {
	p := Params{BR: BR9600}
	zeros := TCF(p)
	require.Len(t, zeros, 1800)
	assert.True(t, DefaultTCFCheck.Score(zeros, p).Good)

	spread := make([]byte, 1800)
	for i := 0; i < len(spread); i += 10 {
		spread[i] = 0xff
	}
	r := DefaultTCFCheck.Score(spread, p)
	assert.False(t, r.Good)
	assert.Equal(t, 9, r.LongestRun)

	front := make([]byte, 1800)
	for i := 0; i < 90; i++ {
		front[i] = 0x55
	}
	assert.True(t, DefaultTCFCheck.Score(front, p).Good)

	assert.False(t, DefaultTCFCheck.Score(nil, p).Good)
}

func TestTCFECMRelaxesRun(t *testing.T) {
	p := Params{BR: BR9600}
	buf := make([]byte, 1000)
	assert.False(t, DefaultTCFCheck.Score(buf, p).Good)
	p.EC = ECEnabled256
	assert.True(t, DefaultTCFCheck.Score(buf, p).Good)
}

func TestStatus(t *testing.T) {
	st := NewStatus(StatusSenderDCN).Wrap(ErrRemoteAbort)
	assert.ErrorIs(t, st, ErrRemoteAbort)
	assert.Equal(t, st, StatusOf(st))
	assert.Equal(t, StatusModemFailure, StatusOf(ErrTimeout).Code)
	assert.True(t, StatusOf(nil).OK())
	assert.Contains(t, st.Error(), "E103")
}
