package demod

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/ArrEssJay/chimera/modem/frame"
	"github.com/ArrEssJay/chimera/modem/modulate"
)

/*
 * QPSK Demodulator
 *
 * Quadrature correlation against a local oscillator at the nominal carrier,
 * integrate-and-dump over each symbol period, then a nearest-point decision
 * in the I/Q plane. A second-order carrier tracking loop absorbs the phase
 * ramp the FSK side channel puts on the carrier; its frequency term doubles
 * as the frequency-offset estimate on the diagnostics surface.
 *
 * All oscillator, integrator and loop state persists across Process calls so
 * chunk boundaries are invisible to the symbol stream.
 */

// Loop gains. The proportional gain must be able to outrun the worst-case
// FSK phase ramp (2*pi*deviation/symbolRate per symbol) before the frequency
// term converges, or the loop slips a quadrant.
const (
	phaseGain  = 0.25
	freqSmooth = 0.25
	agcGain    = 0.05
)

// Config fixes the receive parameters for the lifetime of a demodulator.
type Config struct {
	SampleRate float64
	CarrierHz  float64
	SymbolRate float64
}

// Validate rejects configurations the sample loop cannot serve.
func (c Config) Validate() error {
	if c.SampleRate <= 0 || c.CarrierHz <= 0 || c.SymbolRate <= 0 {
		return fmt.Errorf("demod: sample rate, carrier and symbol rate must be positive")
	}
	if c.CarrierHz >= c.SampleRate/2 {
		return fmt.Errorf("demod: carrier %.0f Hz violates Nyquist at sample rate %.0f", c.CarrierHz, c.SampleRate)
	}
	if sps := c.SampleRate / c.SymbolRate; sps != math.Trunc(sps) {
		return fmt.Errorf("demod: sample rate %.0f is not an integer multiple of symbol rate %.0f", c.SampleRate, c.SymbolRate)
	}
	return nil
}

// SymbolDiag captures one recovered symbol for the diagnostics surface.
type SymbolDiag struct {
	Received   complex128 // normalized, after carrier correction
	Decided    complex128 // nearest constellation point
	Distance   float64    // Euclidean distance, feeds EVM
	PhaseError float64    // residual loop error, radians
	Bits       [2]uint8
}

// Demodulator recovers QPSK symbols from a real waveform.
type Demodulator struct {
	cfg              Config
	samplesPerSymbol int

	loPhase   float64 // nominal carrier phase accumulator
	accI      float64 // symbol integrators
	accQ      float64
	pos       int // sample index within the current symbol
	phaseEst  float64
	freqEst   float64 // radians per symbol
	ampEst    float64
	prevPow4  complex128
	havePrev  bool
	symbolCnt uint64
}

// New builds a demodulator from a validated config.
func New(cfg Config) (*Demodulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Demodulator{
		cfg:              cfg,
		samplesPerSymbol: int(cfg.SampleRate / cfg.SymbolRate),
	}, nil
}

// SamplesPerSymbol reports the fixed symbol duration in samples.
func (d *Demodulator) SamplesPerSymbol() int { return d.samplesPerSymbol }

// Process consumes a waveform chunk of any size and returns the symbols that
// completed inside it. A partial symbol at the end of the chunk stays in the
// integrators until the next call.
func (d *Demodulator) Process(chunk []float64) []SymbolDiag {
	var out []SymbolDiag
	for _, s := range chunk {
		d.loPhase += 2 * math.Pi * d.cfg.CarrierHz / d.cfg.SampleRate
		if d.loPhase >= 2*math.Pi {
			d.loPhase -= 2 * math.Pi
		}
		d.accI += s * math.Cos(d.loPhase)
		d.accQ += -s * math.Sin(d.loPhase)
		d.pos++
		if d.pos == d.samplesPerSymbol {
			out = append(out, d.finishSymbol())
			d.accI, d.accQ = 0, 0
			d.pos = 0
		}
	}
	return out
}

// finishSymbol turns the dumped integrators into a symbol decision and
// advances the carrier tracking loop.
func (d *Demodulator) finishSymbol() SymbolDiag {
	raw := complex(d.accI, d.accQ)

	// Automatic gain: track the symbol magnitude so link loss does not skew
	// the distance metric.
	mag := cmplx.Abs(raw)
	if d.ampEst == 0 {
		d.ampEst = mag
	} else {
		d.ampEst += (mag - d.ampEst) * agcGain
	}
	norm := raw
	if d.ampEst > 0 {
		norm = raw / complex(d.ampEst, 0)
	}

	// Raising to the fourth power strips the QPSK modulation, leaving four
	// times the carrier offset. The symbol-to-symbol phase advance of that
	// tone is a decision-independent frequency error measurement.
	pow4 := norm * norm * norm * norm
	if d.havePrev {
		delta := cmplx.Phase(pow4*cmplx.Conj(d.prevPow4)) / 4
		d.freqEst += (delta - d.freqEst) * freqSmooth
	}
	d.prevPow4 = pow4
	d.havePrev = true

	// Carrier correction, then the hard decision.
	corrected := norm * cmplx.Exp(complex(0, -d.phaseEst))
	ideal, gray, dist := modulate.Decide(corrected)
	phaseErr := cmplx.Phase(corrected * cmplx.Conj(ideal))

	// Second-order update: the frequency term feeds forward every symbol,
	// the proportional term pulls the residual toward zero.
	d.phaseEst += d.freqEst + phaseGain*phaseErr

	b1, b0 := modulate.SymbolBits(gray)
	d.symbolCnt++
	return SymbolDiag{
		Received:   corrected,
		Decided:    ideal,
		Distance:   dist,
		PhaseError: phaseErr,
		Bits:       [2]uint8{b1, b0},
	}
}

// FrequencyOffsetHz reports the tracked carrier offset. With the FSK side
// channel active this follows the instantaneous deviation, so its sign
// recovers the side-channel bit.
func (d *Demodulator) FrequencyOffsetHz() float64 {
	return d.freqEst * d.cfg.SymbolRate / (2 * math.Pi)
}

// PhaseOffset reports the current carrier phase correction in radians.
func (d *Demodulator) PhaseOffset() float64 { return d.phaseEst }

// SymbolCount reports how many symbols have been recovered since the last
// reset.
func (d *Demodulator) SymbolCount() uint64 { return d.symbolCnt }

// Bits flattens a run of symbol decisions into wire-order bits.
func Bits(symbols []SymbolDiag) *frame.BitVector {
	v := frame.NewBitVector(len(symbols) * 2)
	for i, s := range symbols {
		v.Set(2*i, s.Bits[0])
		v.Set(2*i+1, s.Bits[1])
	}
	return v
}

// EVMPercent computes the error vector magnitude of a run of symbols as a
// percentage of the unit constellation radius.
func EVMPercent(symbols []SymbolDiag) float64 {
	if len(symbols) == 0 {
		return 0
	}
	var sum float64
	for _, s := range symbols {
		sum += s.Distance * s.Distance
	}
	return 100 * math.Sqrt(sum/float64(len(symbols)))
}

// Reset clears every piece of oscillator, integrator and loop state.
func (d *Demodulator) Reset() {
	d.loPhase = 0
	d.accI, d.accQ = 0, 0
	d.pos = 0
	d.phaseEst = 0
	d.freqEst = 0
	d.ampEst = 0
	d.prevPow4 = 0
	d.havePrev = false
	d.symbolCnt = 0
}
