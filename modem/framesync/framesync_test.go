package framesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArrEssJay/chimera/modem/frame"
	"github.com/ArrEssJay/chimera/modem/modulate"
)

// streamWithPattern builds prefix zero bits, then the sync pattern, then
// tail zero bits, flipping flips bits of the embedded pattern. The sync
// word is periodic, so zero padding keeps every correlation window of the
// stream hand-checkable against all four rotated patterns.
func streamWithPattern(prefix, tail, flips int) *frame.BitVector {
	v := frame.NewBitVector(prefix + frame.SyncBits + tail)
	v.CopyFrom(prefix, frame.BitsFromUint32(frame.SyncPattern))
	for i := 0; i < flips; i++ {
		v.Flip(prefix + i*7) // spread the errors through the pattern
	}
	return v
}

func Test_Search_FindsExactPattern(t *testing.T) {
	s := NewSearcher(0, 0)
	s.Push(streamWithPattern(100, 60, 0))

	res := s.Search()
	require.True(t, res.Found)
	assert.Equal(t, 100, res.Offset)
	assert.Equal(t, 0, res.Rotation)
	assert.Equal(t, 1.0, res.Confidence)
}

func Test_Search_FindsRotatedPattern(t *testing.T) {
	base := frame.BitsFromUint32(frame.SyncPattern).Bits()
	for rot := 1; rot <= 3; rot++ {
		v := frame.NewBitVector(96 + frame.SyncBits + 64)
		for i := 0; i < frame.SyncBits; i += 2 {
			b1, b0 := modulate.SymbolBits(modulate.RotateGray(base[i]<<1|base[i+1], rot))
			v.Set(96+i, b1)
			v.Set(96+i+1, b0)
		}

		s := NewSearcher(0, 0)
		s.Push(v)
		res := s.Search()
		require.True(t, res.Found, "rotation %d", rot)
		assert.Equal(t, 96, res.Offset, "rotation %d", rot)
		assert.Equal(t, rot, res.Rotation)
		assert.Equal(t, 1.0, res.Confidence)
	}
}

func Test_Search_ToleratesThreeBitErrors(t *testing.T) {
	s := NewSearcher(0, 0)
	s.Push(streamWithPattern(50, 40, 3))

	res := s.Search()
	require.True(t, res.Found)
	assert.Equal(t, 50, res.Offset)
	assert.Equal(t, 0, res.Rotation)
	// Three mismatches: (32 - 2*3) / 32.
	assert.InDelta(t, 0.8125, res.Confidence, 1e-12)
}

func Test_Search_RejectsFourBitErrors(t *testing.T) {
	s := NewSearcher(0, 0)
	s.Push(streamWithPattern(50, 40, 4))

	res := s.Search()
	assert.False(t, res.Found)
	assert.Less(t, res.Confidence, DefaultThreshold)
}

func Test_Search_PatternSplitAcrossPushes(t *testing.T) {
	stream := streamWithPattern(80, 30, 0)

	s := NewSearcher(0, 0)
	// Split in the middle of the embedded pattern.
	s.Push(stream.Slice(0, 95))
	assert.False(t, s.Search().Found)

	s.Push(stream.Slice(95, stream.Len()))
	res := s.Search()
	require.True(t, res.Found)
	assert.Equal(t, 80, res.Offset)
}

func Test_Search_EmptyAndShortHistory(t *testing.T) {
	s := NewSearcher(0, 0)
	assert.False(t, s.Search().Found)

	s.Push(frame.BitsFromUint32(0xA5A5).Slice(0, 16))
	assert.False(t, s.Search().Found, "history shorter than the pattern cannot match")
}

func Test_ConsumeAndBits(t *testing.T) {
	s := NewSearcher(0, 0)
	s.Push(streamWithPattern(10, 20, 0))
	require.Equal(t, 10+frame.SyncBits+20, s.Len())

	res := s.Search()
	require.True(t, res.Found)

	s.Consume(res.Offset)
	assert.Equal(t, frame.SyncBits+20, s.Len())

	// After consuming the prefix the history starts with the pattern.
	head := s.Bits(0, frame.SyncBits)
	want := frame.BitsFromUint32(frame.SyncPattern).Bits()
	assert.Equal(t, want, head)

	s.Consume(1000) // past the end clears everything
	assert.Zero(t, s.Len())
	assert.Nil(t, s.Bits(0, 8))
}

func Test_HistoryBounded(t *testing.T) {
	s := NewSearcher(0, 512)
	for i := 0; i < 10; i++ {
		s.Push(frame.NewBitVector(256))
	}
	assert.Equal(t, 512, s.Len())
}

func Test_SetThreshold(t *testing.T) {
	s := NewSearcher(0, 0)
	s.Push(streamWithPattern(50, 40, 4))

	require.False(t, s.Search().Found)

	// Lowering the bar accepts the candidate already in the history.
	s.SetThreshold(0.7)
	res := s.Search()
	require.True(t, res.Found)
	assert.Equal(t, 50, res.Offset)
}

func Test_Reset_ClearsHistory(t *testing.T) {
	s := NewSearcher(0, 0)
	s.Push(streamWithPattern(10, 10, 0))
	require.NotZero(t, s.Len())

	s.Reset()
	assert.Zero(t, s.Len())
	assert.False(t, s.Search().Found)
}
