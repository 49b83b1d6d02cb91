package pipeline

import (
	"fmt"

	"github.com/ArrEssJay/chimera/modem/modulate"
)

// Config is the complete protocol-side configuration of one pipeline
// instance. It is validated once at construction; nothing in the per-chunk
// path revalidates.
type Config struct {
	SampleRate  float64
	CarrierHz   float64
	SymbolRate  float64
	BandwidthHz float64

	FSKDeviationHz float64
	FSKRateHz      float64
	FSKMode        modulate.FSKMode
	FSKSeed        int64

	TargetID uint32
	Command  uint32

	LDPCDv            int
	LDPCDc            int
	LDPCSeed          int64
	LDPCMaxIterations int

	SyncThreshold float64 // 0 = framesync default
	Amplitude     float64 // 0 = unit amplitude
	MaxFrames     int     // cap per transmission, 0 = unlimited
}

// DefaultConfig returns the reference protocol parameters.
func DefaultConfig() Config {
	return Config{
		SampleRate:        48000,
		CarrierHz:         12000,
		SymbolRate:        16,
		BandwidthHz:       20,
		FSKDeviationHz:    1,
		FSKRateHz:         1,
		FSKMode:           modulate.FSKFixed0,
		TargetID:          0x00000001,
		Command:           0x000000C0,
		LDPCDv:            3,
		LDPCDc:            15,
		LDPCSeed:          1,
		LDPCMaxIterations: 50,
	}
}

// Validate performs the configuration-time checks that keep runtime
// processing failure-free: the Nyquist criterion against the highest
// frequency the synthesizer can emit, and degenerate-bandwidth guards.
// Sub-component constructors perform their own structural checks on top.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("pipeline: sample rate must be positive, got %v", c.SampleRate)
	}
	if c.BandwidthHz <= 0 {
		return fmt.Errorf("pipeline: bandwidth must be positive, got %v", c.BandwidthHz)
	}
	highest := c.CarrierHz + c.BandwidthHz/2 + c.FSKDeviationHz
	if c.SampleRate < 2*highest {
		return fmt.Errorf("pipeline: sample rate %.0f violates the Nyquist criterion for %.1f Hz (need >= %.0f)",
			c.SampleRate, highest, 2*highest)
	}
	if c.MaxFrames < 0 {
		return fmt.Errorf("pipeline: max frames must be non-negative, got %d", c.MaxFrames)
	}
	return nil
}

// structuralChange reports whether switching from c to next requires
// rebuilding DSP state rather than an in-place parameter swap.
func (c Config) structuralChange(next Config) bool {
	return c.SampleRate != next.SampleRate ||
		c.CarrierHz != next.CarrierHz ||
		c.SymbolRate != next.SymbolRate ||
		c.FSKDeviationHz != next.FSKDeviationHz ||
		c.FSKRateHz != next.FSKRateHz ||
		c.FSKSeed != next.FSKSeed ||
		c.LDPCDv != next.LDPCDv ||
		c.LDPCDc != next.LDPCDc ||
		c.LDPCSeed != next.LDPCSeed
}
