package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArrEssJay/chimera/modem/modulate"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func Test_LoadConfig_AppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "server:\n  listen: \":9999\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Listen)
	assert.Equal(t, 48000.0, cfg.Protocol.SampleRate)
	assert.Equal(t, 12000.0, cfg.Protocol.CarrierHz)
	assert.Equal(t, 16.0, cfg.Protocol.SymbolRate)
	assert.Equal(t, 3, cfg.LDPC.VariableDegree)
	assert.Equal(t, 15, cfg.LDPC.CheckDegree)
	assert.Equal(t, 50, cfg.LDPC.MaxIterations)
	assert.Equal(t, 1000.0, cfg.Channel.NoiseBandwidthHz)
	assert.Equal(t, "Hello CHIMERA", cfg.Simulation.Message)
	assert.Equal(t, 4800, cfg.Simulation.ChunkSize)

	require.NoError(t, cfg.Validate())
}

func Test_LoadConfig_Overrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
protocol:
  carrier_hz: 6000
  fsk_mode: alternating
  target_id: 42
ldpc:
  seed: 9
channel:
  snr_db: 3
  link_loss_db: 5
simulation:
  message: "custom payload"
`))
	require.NoError(t, err)

	assert.Equal(t, 6000.0, cfg.Protocol.CarrierHz)
	assert.Equal(t, uint32(42), cfg.Protocol.TargetID)
	assert.Equal(t, int64(9), cfg.LDPC.Seed)
	assert.Equal(t, 3.0, cfg.Channel.SNRdB)
	assert.Equal(t, 5.0, cfg.Channel.LinkLossDB)
	assert.Equal(t, "custom payload", cfg.Simulation.Message)

	pc, err := cfg.PipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, 6000.0, pc.CarrierHz)
	assert.Equal(t, modulate.FSKAlternating, pc.FSKMode)
	assert.Equal(t, uint32(42), pc.TargetID)

	cc := cfg.ChannelConfig()
	assert.Equal(t, 3.0, cc.SNRdB)
	assert.Equal(t, 48000.0, cc.SampleRate)
}

func Test_LoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "server: [not a mapping"))
	assert.Error(t, err)
}

func Test_Validate_RejectsNyquistViolation(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "protocol:\n  carrier_hz: 30000\n"))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func Test_Validate_RejectsUnknownFSKMode(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "protocol:\n  fsk_mode: sideways\n"))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func Test_DefaultAppConfig_IsValid(t *testing.T) {
	cfg := DefaultAppConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Simulation.Enabled)
}
