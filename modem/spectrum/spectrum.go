package spectrum

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// DefaultFFTSize trades frequency resolution against update rate for the
// diagnostics display.
const DefaultFFTSize = 2048

// Analyzer produces magnitude spectra of the received waveform for the
// diagnostics surface. Samples accumulate across chunk boundaries; a spectrum
// is recomputed every time the analysis window fills.
type Analyzer struct {
	sampleRate int
	fftSize    int
	df         float64

	window      []float64
	buffer      []float64
	bufferIndex int
	fft         *fourier.FFT

	magDB []float64
	ready bool
}

// New creates an analyzer. fftSize of zero selects the default.
func New(sampleRate, fftSize int) *Analyzer {
	if fftSize <= 0 {
		fftSize = DefaultFFTSize
	}
	a := &Analyzer{
		sampleRate: sampleRate,
		fftSize:    fftSize,
		df:         float64(sampleRate) / float64(fftSize),
		window:     make([]float64, fftSize),
		buffer:     make([]float64, fftSize),
		magDB:      make([]float64, fftSize/2+1),
	}
	a.fft = fourier.NewFFT(fftSize)

	// Hann window
	for i := 0; i < fftSize; i++ {
		a.window[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(fftSize-1)))
	}
	return a
}

// BinWidth returns the frequency resolution in Hz.
func (a *Analyzer) BinWidth() float64 { return a.df }

// Process accumulates samples, recomputing the spectrum whenever the window
// fills. Returns true if at least one new spectrum was produced.
func (a *Analyzer) Process(samples []float64) bool {
	updated := false
	for _, s := range samples {
		a.buffer[a.bufferIndex] = s
		a.bufferIndex++
		if a.bufferIndex >= a.fftSize {
			a.bufferIndex = 0
			a.compute()
			updated = true
		}
	}
	return updated
}

func (a *Analyzer) compute() {
	windowed := make([]float64, a.fftSize)
	for i := range windowed {
		windowed[i] = a.buffer[i] * a.window[i]
	}
	coeffs := a.fft.Coefficients(nil, windowed)

	for i := range a.magDB {
		re := real(coeffs[i])
		im := imag(coeffs[i])
		p := re*re + im*im
		if p < 1e-20 {
			p = 1e-20
		}
		a.magDB[i] = 10 * math.Log10(p)
	}
	a.ready = true
}

// Ready reports whether at least one full window has been analyzed.
func (a *Analyzer) Ready() bool { return a.ready }

// MagnitudesDB returns a copy of the latest power spectrum in dB, one entry
// per positive-frequency bin.
func (a *Analyzer) MagnitudesDB() []float64 {
	out := make([]float64, len(a.magDB))
	copy(out, a.magDB)
	return out
}

// Reset discards accumulated samples and the last spectrum.
func (a *Analyzer) Reset() {
	a.bufferIndex = 0
	a.ready = false
	for i := range a.magDB {
		a.magDB[i] = 0
	}
}
