package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ArrEssJay/chimera/modem/channel"
	"github.com/ArrEssJay/chimera/modem/modulate"
	"github.com/ArrEssJay/chimera/modem/pipeline"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Protocol    ProtocolConfig    `yaml:"protocol"`
	LDPC        LDPCConfig        `yaml:"ldpc"`
	Channel     ChannelConfig     `yaml:"channel"`
	Simulation  SimulationConfig  `yaml:"simulation"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Prometheus  PrometheusConfig  `yaml:"prometheus"`
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Listen     string `yaml:"listen"`      // HTTP listen address (default ":8080")
	EnableCORS bool   `yaml:"enable_cors"` // Allow cross-origin WebSocket clients
}

// ProtocolConfig contains the air-interface parameters. All rates in Hz
// except symbol_rate (symbols/s) and fsk_rate (bits/s).
type ProtocolConfig struct {
	SampleRate     float64 `yaml:"sample_rate"`    // Audio sample rate (default 48000)
	CarrierHz      float64 `yaml:"carrier_hz"`     // QPSK carrier frequency (default 12000)
	SymbolRate     float64 `yaml:"symbol_rate"`    // QPSK symbol rate (default 16)
	QPSKBandwidth  float64 `yaml:"qpsk_bandwidth"` // Occupied bandwidth for Nyquist check (default 20)
	FSKDeviationHz float64 `yaml:"fsk_deviation"`  // FSK side channel deviation (default 1)
	FSKRateHz      float64 `yaml:"fsk_rate"`       // FSK side channel bit rate (default 1)
	FSKMode        string  `yaml:"fsk_mode"`       // fixed0, fixed1, alternating, random
	FSKSeed        int64   `yaml:"fsk_seed"`       // Seed for random FSK mode
	TargetID       uint32  `yaml:"target_id"`      // Frame target identifier
	Command        uint32  `yaml:"command"`        // Frame command word
	SyncThreshold  float64 `yaml:"sync_threshold"` // Correlation acceptance in [0,1] (default 0.78)
	Amplitude      float64 `yaml:"amplitude"`      // Transmit amplitude (default 1.0)
	MaxFrames      int     `yaml:"max_frames"`     // Frame cap per message (0 = unlimited)
}

// LDPCConfig contains the error-correction code geometry
type LDPCConfig struct {
	VariableDegree int   `yaml:"variable_degree"` // Ones per column of H (default 3)
	CheckDegree    int   `yaml:"check_degree"`    // Ones per row of H (default 15)
	Seed           int64 `yaml:"seed"`            // Matrix construction seed (default 1)
	MaxIterations  int   `yaml:"max_iterations"`  // Bit-flipping iteration cap (default 50)
}

// ChannelConfig contains the synthetic impairment settings for loopback runs
type ChannelConfig struct {
	SNRdB            float64 `yaml:"snr_db"`          // In-band signal-to-noise ratio
	LinkLossDB       float64 `yaml:"link_loss_db"`    // Static attenuation
	NoiseBandwidthHz float64 `yaml:"noise_bandwidth"` // Bandwidth the SNR is referenced to (default 1000)
	Seed             int64   `yaml:"seed"`            // Noise generator seed
}

// SimulationConfig drives the built-in loopback exerciser
type SimulationConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Run the loopback simulation on startup
	Message    string `yaml:"message"`     // Payload text to transmit
	ChunkSize  int    `yaml:"chunk_size"`  // Receive chunk size in samples (default 4800)
	Repeat     bool   `yaml:"repeat"`      // Restart the simulation when it completes
	IntervalMs int    `yaml:"interval_ms"` // Delay between repeats (default 1000)
}

// DiagnosticsConfig contains the diagnostics streaming settings
type DiagnosticsConfig struct {
	Enabled     bool `yaml:"enabled"`      // Expose the diagnostics WebSocket
	PCMEnabled  bool `yaml:"pcm_enabled"`  // Also stream transmit audio as binary PCM
	PCMCompress bool `yaml:"pcm_compress"` // zstd-compress PCM packets
}

// PrometheusConfig contains metrics exposure settings
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"` // Expose /metrics
}

// LoadConfig reads and parses the YAML configuration file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

// DefaultAppConfig returns the configuration used when no file is given.
func DefaultAppConfig() *Config {
	config := &Config{}
	config.applyDefaults()
	config.Simulation.Enabled = true
	config.Diagnostics.Enabled = true
	config.Prometheus.Enabled = true
	return config
}

// applyDefaults fills zero-valued fields. A zero is never a meaningful
// setting for any of these, so the YAML cannot express "explicitly zero".
func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	d := pipeline.DefaultConfig()
	if c.Protocol.SampleRate == 0 {
		c.Protocol.SampleRate = d.SampleRate
	}
	if c.Protocol.CarrierHz == 0 {
		c.Protocol.CarrierHz = d.CarrierHz
	}
	if c.Protocol.SymbolRate == 0 {
		c.Protocol.SymbolRate = d.SymbolRate
	}
	if c.Protocol.QPSKBandwidth == 0 {
		c.Protocol.QPSKBandwidth = d.BandwidthHz
	}
	if c.Protocol.FSKDeviationHz == 0 {
		c.Protocol.FSKDeviationHz = d.FSKDeviationHz
	}
	if c.Protocol.FSKRateHz == 0 {
		c.Protocol.FSKRateHz = d.FSKRateHz
	}
	if c.Protocol.FSKMode == "" {
		c.Protocol.FSKMode = "fixed0"
	}
	if c.Protocol.TargetID == 0 {
		c.Protocol.TargetID = d.TargetID
	}
	if c.Protocol.Command == 0 {
		c.Protocol.Command = d.Command
	}
	if c.Protocol.SyncThreshold == 0 {
		c.Protocol.SyncThreshold = d.SyncThreshold
	}
	if c.Protocol.Amplitude == 0 {
		c.Protocol.Amplitude = d.Amplitude
	}
	if c.LDPC.VariableDegree == 0 {
		c.LDPC.VariableDegree = d.LDPCDv
	}
	if c.LDPC.CheckDegree == 0 {
		c.LDPC.CheckDegree = d.LDPCDc
	}
	if c.LDPC.Seed == 0 {
		c.LDPC.Seed = d.LDPCSeed
	}
	if c.LDPC.MaxIterations == 0 {
		c.LDPC.MaxIterations = d.LDPCMaxIterations
	}
	if c.Channel.NoiseBandwidthHz == 0 {
		c.Channel.NoiseBandwidthHz = 1000
	}
	if c.Channel.SNRdB == 0 {
		c.Channel.SNRdB = 20
	}
	if c.Channel.Seed == 0 {
		c.Channel.Seed = 1
	}
	if c.Simulation.Message == "" {
		c.Simulation.Message = "Hello CHIMERA"
	}
	if c.Simulation.ChunkSize == 0 {
		c.Simulation.ChunkSize = 4800
	}
	if c.Simulation.IntervalMs == 0 {
		c.Simulation.IntervalMs = 1000
	}
}

// Validate checks cross-field constraints that applyDefaults cannot fix.
// Invalid protocol settings are fatal at startup, never discovered mid-run.
func (c *Config) Validate() error {
	if _, err := modulate.ParseFSKMode(c.Protocol.FSKMode); err != nil {
		return fmt.Errorf("protocol.fsk_mode: %w", err)
	}
	pc, err := c.PipelineConfig()
	if err != nil {
		return err
	}
	if err := pc.Validate(); err != nil {
		return err
	}
	return c.ChannelConfig().Validate()
}

// PipelineConfig translates the YAML settings into the modem configuration.
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	mode, err := modulate.ParseFSKMode(c.Protocol.FSKMode)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("protocol.fsk_mode: %w", err)
	}
	return pipeline.Config{
		SampleRate:        c.Protocol.SampleRate,
		CarrierHz:         c.Protocol.CarrierHz,
		SymbolRate:        c.Protocol.SymbolRate,
		BandwidthHz:       c.Protocol.QPSKBandwidth,
		FSKDeviationHz:    c.Protocol.FSKDeviationHz,
		FSKRateHz:         c.Protocol.FSKRateHz,
		FSKMode:           mode,
		FSKSeed:           c.Protocol.FSKSeed,
		TargetID:          c.Protocol.TargetID,
		Command:           c.Protocol.Command,
		SyncThreshold:     c.Protocol.SyncThreshold,
		Amplitude:         c.Protocol.Amplitude,
		MaxFrames:         c.Protocol.MaxFrames,
		LDPCDv:            c.LDPC.VariableDegree,
		LDPCDc:            c.LDPC.CheckDegree,
		LDPCSeed:          c.LDPC.Seed,
		LDPCMaxIterations: c.LDPC.MaxIterations,
	}, nil
}

// ChannelConfig translates the YAML settings into the channel configuration.
func (c *Config) ChannelConfig() channel.Config {
	return channel.Config{
		SNRdB:            c.Channel.SNRdB,
		LinkLossDB:       c.Channel.LinkLossDB,
		Seed:             c.Channel.Seed,
		SampleRate:       c.Protocol.SampleRate,
		NoiseBandwidthHz: c.Channel.NoiseBandwidthHz,
	}
}
