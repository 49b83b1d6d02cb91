package spectrum

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Analyzer_PeakAtCarrier(t *testing.T) {
	a := New(48000, 2048)

	samples := make([]float64, 4096)
	for i := range samples {
		samples[i] = math.Cos(2 * math.Pi * 12000 * float64(i) / 48000)
	}

	require.True(t, a.Process(samples))
	require.True(t, a.Ready())

	mags := a.MagnitudesDB()
	require.Len(t, mags, 1025)

	peak := 0
	for i, m := range mags {
		if m > mags[peak] {
			peak = i
		}
	}
	assert.InDelta(t, 12000.0, float64(peak)*a.BinWidth(), a.BinWidth())
}

func Test_Analyzer_AccumulatesAcrossChunks(t *testing.T) {
	a := New(48000, 1024)

	chunk := make([]float64, 100)
	updated := false
	for i := 0; i < 11; i++ {
		updated = a.Process(chunk) || updated
	}
	assert.True(t, updated, "1100 samples must fill a 1024-point window")
	assert.True(t, a.Ready())
}

func Test_Analyzer_Reset(t *testing.T) {
	a := New(48000, 1024)
	a.Process(make([]float64, 2048))
	require.True(t, a.Ready())

	a.Reset()
	assert.False(t, a.Ready())
}

func Test_Analyzer_DefaultFFTSize(t *testing.T) {
	a := New(48000, 0)
	assert.Equal(t, DefaultFFTSize/2+1, len(a.MagnitudesDB()))
}
