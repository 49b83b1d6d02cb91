package modulate

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ArrEssJay/chimera/modem/frame"
)

func Test_GrayMapping_Phases(t *testing.T) {
	cases := []struct {
		b1, b0  uint8
		degrees float64
	}{
		{0, 0, 45},
		{0, 1, 135},
		{1, 1, 225},
		{1, 0, 315},
	}
	for _, tc := range cases {
		s := MapPair(tc.b1, tc.b0)
		phase := math.Mod(cmplx.Phase(s)+2*math.Pi, 2*math.Pi)
		assert.InDelta(t, tc.degrees*math.Pi/180, phase, 1e-12, "bits %d%d", tc.b1, tc.b0)
		assert.InDelta(t, 1.0, cmplx.Abs(s), 1e-12)
	}
}

func Test_GrayMapping_AdjacentPointsDifferInOneBit(t *testing.T) {
	// Walking the circle, consecutive symbols must be Hamming neighbors.
	order := [][2]uint8{{0, 0}, {0, 1}, {1, 1}, {1, 0}}
	for i := range order {
		a, b := order[i], order[(i+1)%len(order)]
		diff := 0
		if a[0] != b[0] {
			diff++
		}
		if a[1] != b[1] {
			diff++
		}
		assert.Equal(t, 1, diff)
	}
}

func Test_Decide_SnapsToNearestPoint(t *testing.T) {
	for g := uint8(0); g < 4; g++ {
		b1, b0 := SymbolBits(g)
		pt := MapPair(b1, b0)

		// Small perturbation stays inside the decision region.
		ideal, gray, dist := Decide(pt + complex(0.05, -0.03))
		assert.Equal(t, g, gray)
		assert.InDelta(t, 0, cmplx.Abs(ideal-pt), 1e-12)
		assert.Less(t, dist, 0.1)
	}
}

func Test_MapBits_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	bits := frame.NewBitVector(256)
	for i := 0; i < bits.Len(); i++ {
		bits.Set(i, uint8(rng.Intn(2)))
	}

	symbols, err := MapBits(bits)
	require.NoError(t, err)
	require.Len(t, symbols, 128)

	back := UnmapSymbols(symbols)
	d, err := back.HammingDistance(bits)
	require.NoError(t, err)
	assert.Zero(t, d)
}

func Test_MapBits_RejectsOddLength(t *testing.T) {
	_, err := MapBits(frame.NewBitVector(3))
	assert.Error(t, err)
}

func Test_FSKSource_Modes(t *testing.T) {
	s := NewFSKSource(FSKFixed0, 0)
	for i := 0; i < 5; i++ {
		assert.Equal(t, uint8(0), s.NextBit())
	}

	s.SetMode(FSKFixed1)
	for i := 0; i < 5; i++ {
		assert.Equal(t, uint8(1), s.NextBit())
	}

	s = NewFSKSource(FSKAlternating, 0)
	var got []uint8
	for i := 0; i < 6; i++ {
		got = append(got, s.NextBit())
	}
	assert.Equal(t, []uint8{0, 1, 0, 1, 0, 1}, got)
}

func Test_FSKSource_RandomIsDeterministicUnderSeed(t *testing.T) {
	s := NewFSKSource(FSKRandom, 99)
	var first []uint8
	for i := 0; i < 32; i++ {
		first = append(first, s.NextBit())
	}
	s.Reset()
	var second []uint8
	for i := 0; i < 32; i++ {
		second = append(second, s.NextBit())
	}
	assert.Equal(t, first, second)
}

func Test_ParseFSKMode(t *testing.T) {
	for in, want := range map[string]FSKMode{
		"":            FSKFixed0,
		"fixed0":      FSKFixed0,
		"fixed-1":     FSKFixed1,
		"alternating": FSKAlternating,
		"random":      FSKRandom,
	} {
		got, err := ParseFSKMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFSKMode("bogus")
	assert.Error(t, err)
}

func testSynthConfig() SynthConfig {
	return SynthConfig{
		SampleRate:     48000,
		CarrierHz:      12000,
		SymbolRate:     16,
		FSKDeviationHz: 1,
		FSKRateHz:      1,
		Amplitude:      1,
	}
}

func Test_SynthConfig_Validation(t *testing.T) {
	cfg := testSynthConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.SymbolRate = 17 // 48000/17 is not an integer
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.SampleRate = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.FSKRateHz = 7
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.FSKDeviationHz = -1
	assert.Error(t, bad.Validate())
}

func Test_Synthesizer_GeneratesQueuedSymbols(t *testing.T) {
	s, err := NewSynthesizer(testSynthConfig(), nil)
	require.NoError(t, err)

	s.QueueSymbols(MapPair(0, 0), MapPair(1, 1))
	assert.Equal(t, 2*s.SamplesPerSymbol(), s.Pending())

	out := s.GenerateAll()
	assert.Len(t, out, 2*s.SamplesPerSymbol())
	assert.Zero(t, s.Pending())

	// Amplitude bound holds everywhere.
	for _, v := range out {
		assert.LessOrEqual(t, math.Abs(v), 1.0+1e-9)
	}
}

func Test_Synthesizer_PhaseContinuityAcrossSplits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nSymbols := rapid.IntRange(1, 8).Draw(t, "nSymbols")
		seed := rapid.Int64().Draw(t, "seed")

		rng := rand.New(rand.NewSource(seed))
		symbols := make([]complex128, nSymbols)
		for i := range symbols {
			g := uint8(rng.Intn(4))
			b1, b0 := SymbolBits(g)
			symbols[i] = MapPair(b1, b0)
		}

		whole, err := NewSynthesizer(testSynthConfig(), NewFSKSource(FSKAlternating, 0))
		require.NoError(t, err)
		whole.QueueSymbols(symbols...)
		want := whole.GenerateAll()

		split, err := NewSynthesizer(testSynthConfig(), NewFSKSource(FSKAlternating, 0))
		require.NoError(t, err)
		split.QueueSymbols(symbols...)

		got := make([]float64, 0, len(want))
		remaining := len(want)
		for remaining > 0 {
			n := rapid.IntRange(1, remaining).Draw(t, "chunk")
			buf := make([]float64, n)
			produced := split.Generate(buf)
			require.Equal(t, n, produced)
			got = append(got, buf...)
			remaining -= n
		}

		require.Equal(t, want, got)
	})
}

func Test_Synthesizer_QueueWhileDraining(t *testing.T) {
	s, err := NewSynthesizer(testSynthConfig(), nil)
	require.NoError(t, err)

	s.QueueSymbols(MapPair(0, 0))
	buf := make([]float64, 1000)
	require.Equal(t, 1000, s.Generate(buf))

	// Mid-symbol enqueue must not disturb the sample position.
	s.QueueSymbols(MapPair(1, 0))
	assert.Equal(t, 2*s.SamplesPerSymbol()-1000, s.Pending())

	total := 1000
	for {
		n := s.Generate(buf)
		if n == 0 {
			break
		}
		total += n
	}
	assert.Equal(t, 2*s.SamplesPerSymbol(), total)
}

func Test_Synthesizer_ResetRestoresInitialState(t *testing.T) {
	s, err := NewSynthesizer(testSynthConfig(), NewFSKSource(FSKRandom, 5))
	require.NoError(t, err)

	s.QueueSymbols(MapPair(0, 1), MapPair(1, 1))
	first := s.GenerateAll()

	s.Reset()
	s.QueueSymbols(MapPair(0, 1), MapPair(1, 1))
	second := s.GenerateAll()

	assert.Equal(t, first, second)
}

func Test_Constellation_PointsDecideToThemselves(t *testing.T) {
	for g, pt := range Constellation() {
		assert.InDelta(t, 1.0, cmplx.Abs(pt), 1e-12)

		ideal, gray, dist := Decide(pt)
		assert.Equal(t, uint8(g), gray)
		assert.Equal(t, pt, ideal)
		assert.InDelta(t, 0, dist, 1e-12)
	}
}

func Test_RotateGray_RoundTrip(t *testing.T) {
	for g := uint8(0); g < 4; g++ {
		assert.Equal(t, g, RotateGray(g, 0))
		assert.Equal(t, g, RotateGray(g, 4))
		for r := -3; r <= 3; r++ {
			assert.Equal(t, g, RotateGray(RotateGray(g, r), -r))
		}
	}
}

func Test_RotateGray_MatchesPhysicalRotation(t *testing.T) {
	// Advancing the carrier a quarter turn must move every point onto the
	// Gray value RotateGray predicts.
	quarter := cmplx.Exp(complex(0, math.Pi/2))
	for g, pt := range Constellation() {
		_, gray, dist := Decide(pt * quarter)
		assert.Equal(t, RotateGray(uint8(g), 1), gray)
		assert.InDelta(t, 0, dist, 1e-12)
	}
}
