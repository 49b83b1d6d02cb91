package modulate

import (
	"fmt"
	"math"
	"math/cmplx"
)

// SynthConfig fixes the waveform parameters for the lifetime of a
// synthesizer. All rates are in Hz except SymbolRate (symbols/s) and
// FSKRateHz (bits/s).
type SynthConfig struct {
	SampleRate     float64
	CarrierHz      float64
	SymbolRate     float64
	FSKDeviationHz float64
	FSKRateHz      float64
	Amplitude      float64
}

// Validate rejects degenerate configurations up front so the sample loop can
// run unguarded.
func (c SynthConfig) Validate() error {
	if c.SampleRate <= 0 || c.CarrierHz <= 0 || c.SymbolRate <= 0 {
		return fmt.Errorf("synth: sample rate, carrier and symbol rate must be positive")
	}
	if c.FSKRateHz <= 0 {
		return fmt.Errorf("synth: fsk rate must be positive")
	}
	if c.FSKDeviationHz < 0 {
		return fmt.Errorf("synth: fsk deviation must be non-negative")
	}
	if sps := c.SampleRate / c.SymbolRate; sps != math.Trunc(sps) {
		return fmt.Errorf("synth: sample rate %.0f is not an integer multiple of symbol rate %.0f", c.SampleRate, c.SymbolRate)
	}
	if spb := c.SampleRate / c.FSKRateHz; spb != math.Trunc(spb) {
		return fmt.Errorf("synth: sample rate %.0f is not an integer multiple of fsk rate %.0f", c.SampleRate, c.FSKRateHz)
	}
	return nil
}

// Synthesizer turns a QPSK symbol stream into a phase-continuous real
// waveform, with the slow FSK side channel shifting the carrier frequency by
// a fixed deviation underneath the QPSK phase.
//
// The carrier phase accumulator lives in the synthesizer and is only ever
// advanced, never recomputed from absolute time, so generating N samples in
// one call is equivalent to generating them across several smaller calls.
type Synthesizer struct {
	cfg              SynthConfig
	samplesPerSymbol int
	samplesPerFSKBit int
	fsk              *FSKSource

	phase     float64 // carrier phase accumulator, radians in [0, 2pi)
	queue     []complex128
	symbolPos int // sample index within the symbol at queue[0]
	fskBit    uint8
	fskPos    int // sample index within the current FSK bit
}

// NewSynthesizer builds a synthesizer. fsk may be nil when the side channel
// is unused; a zero-deviation fixed-0 source is substituted.
func NewSynthesizer(cfg SynthConfig, fsk *FSKSource) (*Synthesizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = 1.0
	}
	if fsk == nil {
		fsk = NewFSKSource(FSKFixed0, 0)
	}
	return &Synthesizer{
		cfg:              cfg,
		samplesPerSymbol: int(cfg.SampleRate / cfg.SymbolRate),
		samplesPerFSKBit: int(cfg.SampleRate / cfg.FSKRateHz),
		fsk:              fsk,
	}, nil
}

// SamplesPerSymbol reports the fixed symbol duration in samples.
func (s *Synthesizer) SamplesPerSymbol() int { return s.samplesPerSymbol }

// FSK returns the side-channel source, for runtime mode changes.
func (s *Synthesizer) FSK() *FSKSource { return s.fsk }

// SetAmplitude rescales the output. Zero restores unity. Takes effect on the
// next generated sample, so apply it only between buffers.
func (s *Synthesizer) SetAmplitude(amplitude float64) {
	if amplitude == 0 {
		amplitude = 1.0
	}
	s.cfg.Amplitude = amplitude
}

// QueueSymbols appends symbols to the pending stream.
func (s *Synthesizer) QueueSymbols(symbols ...complex128) {
	s.queue = append(s.queue, symbols...)
}

// Pending reports how many samples remain to be generated for the symbols
// queued so far.
func (s *Synthesizer) Pending() int {
	return len(s.queue)*s.samplesPerSymbol - s.symbolPos
}

// Generate fills dst with up to len(dst) samples and returns the count
// produced, which is limited by the queued symbols. The carrier phase and the
// FSK bit clock carry over between calls.
func (s *Synthesizer) Generate(dst []float64) int {
	produced := 0
	for produced < len(dst) && len(s.queue) > 0 {
		if s.fskPos == 0 {
			s.fskBit = s.fsk.NextBit()
		}

		freq := s.cfg.CarrierHz - s.cfg.FSKDeviationHz
		if s.fskBit != 0 {
			freq = s.cfg.CarrierHz + s.cfg.FSKDeviationHz
		}
		s.phase += 2 * math.Pi * freq / s.cfg.SampleRate
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}

		theta := cmplx.Phase(s.queue[0])
		dst[produced] = s.cfg.Amplitude * math.Cos(s.phase+theta)
		produced++

		s.fskPos++
		if s.fskPos == s.samplesPerFSKBit {
			s.fskPos = 0
		}
		s.symbolPos++
		if s.symbolPos == s.samplesPerSymbol {
			s.symbolPos = 0
			s.queue = s.queue[1:]
		}
	}
	return produced
}

// GenerateAll drains every queued symbol into a freshly allocated buffer.
func (s *Synthesizer) GenerateAll() []float64 {
	out := make([]float64, s.Pending())
	s.Generate(out)
	return out
}

// Reset returns the synthesizer to its initial state: zero phase, empty
// queue, side channel rewound. Required before reusing an instance for a new
// transmission so runs stay deterministic.
func (s *Synthesizer) Reset() {
	s.phase = 0
	s.queue = nil
	s.symbolPos = 0
	s.fskBit = 0
	s.fskPos = 0
	s.fsk.Reset()
}
