package channel

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

/*
 * Channel Model
 * Synthetic narrowband impairments: scalar link loss plus additive white
 * Gaussian noise, fully deterministic under a seed so regression runs
 * reproduce bit-identical waveforms.
 *
 * SNR is referenced to the occupied signal bandwidth, not the full sample
 * bandwidth: the noise is white across fs/2 but scaled so that the noise
 * power falling inside NoiseBandwidthHz matches the requested SNR against
 * the windowed signal-power estimate. A narrowband signal at "3 dB" is
 * therefore genuinely marginal after matched filtering instead of being
 * rescued by the receiver's processing gain.
 */

// Config describes the impairment to apply.
type Config struct {
	SNRdB            float64 `yaml:"snr_db"`
	LinkLossDB       float64 `yaml:"link_loss_db"`
	Seed             int64   `yaml:"seed"`
	SampleRate       float64 `yaml:"sample_rate"`
	NoiseBandwidthHz float64 `yaml:"noise_bandwidth_hz"` // 0 = full sample bandwidth
}

// Validate rejects non-finite or inconsistent impairment values at
// configuration time.
func (c Config) Validate() error {
	if math.IsNaN(c.SNRdB) || math.IsInf(c.SNRdB, 0) {
		return fmt.Errorf("channel: snr_db must be finite, got %v", c.SNRdB)
	}
	if math.IsNaN(c.LinkLossDB) || math.IsInf(c.LinkLossDB, 0) {
		return fmt.Errorf("channel: link_loss_db must be finite, got %v", c.LinkLossDB)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("channel: sample_rate must be positive, got %v", c.SampleRate)
	}
	if c.NoiseBandwidthHz < 0 || c.NoiseBandwidthHz > c.SampleRate/2 {
		return fmt.Errorf("channel: noise_bandwidth_hz %v outside (0, %v]", c.NoiseBandwidthHz, c.SampleRate/2)
	}
	return nil
}

// Channel applies the configured impairment to waveform chunks. The noise
// generator state advances across calls, so a stream impaired chunk by chunk
// matches the same stream impaired in one call.
type Channel struct {
	cfg Config
	rng *rand.Rand
}

// New constructs a channel from a validated config.
func New(cfg Config) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Channel{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Config returns the impairment description.
func (ch *Channel) Config() Config { return ch.cfg }

// Apply attenuates the waveform by the link loss, then adds Gaussian noise
// scaled against the attenuated signal's measured power so the output hits
// the configured in-band SNR. The input is not modified.
func (ch *Channel) Apply(waveform []float64) []float64 {
	out := make([]float64, len(waveform))
	if len(waveform) == 0 {
		return out
	}

	gain := math.Pow(10, -ch.cfg.LinkLossDB/20)
	for i, s := range waveform {
		out[i] = s * gain
	}

	// Windowed mean-square power estimate of the attenuated signal.
	sigPower := floats.Dot(out, out) / float64(len(out))
	if sigPower == 0 {
		return out
	}

	// In-band noise power, spread across the full sample bandwidth.
	inBand := sigPower / math.Pow(10, ch.cfg.SNRdB/10)
	spread := 1.0
	if ch.cfg.NoiseBandwidthHz > 0 {
		spread = (ch.cfg.SampleRate / 2) / ch.cfg.NoiseBandwidthHz
	}
	sigma := math.Sqrt(inBand * spread)
	for i := range out {
		out[i] += ch.rng.NormFloat64() * sigma
	}
	return out
}

// Reset rewinds the noise generator to its seeded starting state.
func (ch *Channel) Reset() {
	ch.rng = rand.New(rand.NewSource(ch.cfg.Seed))
}
