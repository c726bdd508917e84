package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fecjitter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.Buffer.LookbackWindow)
	assert.Equal(t, 100, cfg.FEC.DataShards)
	assert.Equal(t, 110, cfg.FEC.TotalShards)
	assert.Equal(t, 1300, cfg.FEC.ShardSize)
	assert.Equal(t, 400*time.Microsecond, cfg.Network.PacketInterval)
	assert.Equal(t, time.Millisecond, cfg.Receiver.PollInterval)
	assert.Equal(t, 16, cfg.Receiver.SourceSwitchThreshold)
}

func TestLoadFile(t *testing.T) {
	path := writeConfigFile(t, `
buffer:
  lookback_window: 8
fec:
  data_shards: 10
  total_shards: 14
  share_size: 512
network:
  listen_addr: "127.0.0.1:7000"
  packet_interval: 2ms
receiver:
  poll_interval: 5ms
  source_switch_threshold: 4
loopback:
  loss_rate: 0.1
  reorder_rate: 0.25
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Buffer.LookbackWindow)
	assert.Equal(t, 10, cfg.FEC.DataShards)
	assert.Equal(t, 14, cfg.FEC.TotalShards)
	assert.Equal(t, 512, cfg.FEC.ShardSize)
	assert.Equal(t, "127.0.0.1:7000", cfg.Network.ListenAddr)
	assert.Equal(t, 2*time.Millisecond, cfg.Network.PacketInterval)
	assert.Equal(t, 5*time.Millisecond, cfg.Receiver.PollInterval)
	assert.Equal(t, 4, cfg.Receiver.SourceSwitchThreshold)
	assert.Equal(t, 0.1, cfg.Loopback.LossRate)
	assert.Equal(t, 0.25, cfg.Loopback.ReorderRate)
	assert.Equal(t, int64(1), cfg.Loopback.Seed)

	// Unset keys keep their defaults.
	assert.Equal(t, "127.0.0.1:9000", cfg.Network.RemoteAddr)
	assert.Equal(t, uint32(90000), cfg.Network.ClockRate)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeConfigFile(t, "buffer: [not, a, map]"))
	assert.Error(t, err)
}

func TestLoad_ValidatesAfterMerge(t *testing.T) {
	path := writeConfigFile(t, "buffer:\n  lookback_window: 500\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "Zero window", mutate: func(c *Config) { c.Buffer.LookbackWindow = 0 }},
		{name: "Zero data shards", mutate: func(c *Config) { c.FEC.DataShards = 0 }},
		{name: "No parity", mutate: func(c *Config) { c.FEC.TotalShards = c.FEC.DataShards }},
		{name: "Too many shards", mutate: func(c *Config) { c.FEC.TotalShards = 257 }},
		{name: "Shard too large", mutate: func(c *Config) { c.FEC.ShardSize = MaxShardSize + 1 }},
		{name: "Zero clock rate", mutate: func(c *Config) { c.Network.ClockRate = 0 }},
		{name: "Negative pacing", mutate: func(c *Config) { c.Network.PacketInterval = -time.Microsecond }},
		{name: "Zero poll interval", mutate: func(c *Config) { c.Receiver.PollInterval = 0 }},
		{name: "Negative source switch", mutate: func(c *Config) { c.Receiver.SourceSwitchThreshold = -1 }},
		{name: "Loss rate above one", mutate: func(c *Config) { c.Loopback.LossRate = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FECJITTER_LOOKBACK_WINDOW", "32")
	t.Setenv("FECJITTER_DATA_SHARDS", "8")
	t.Setenv("FECJITTER_TOTAL_SHARDS", "12")
	t.Setenv("FECJITTER_SHARD_SIZE", "256")
	t.Setenv("FECJITTER_POLL_INTERVAL_MS", "10")
	t.Setenv("FECJITTER_PACKET_INTERVAL_US", "0")
	t.Setenv("FECJITTER_SOURCE_SWITCH_THRESHOLD", "0")
	t.Setenv("FECJITTER_LISTEN_ADDR", ":9100")
	t.Setenv("FECJITTER_REMOTE_ADDR", "10.1.1.1:9100")

	cfg := Default()
	ApplyEnv(cfg)

	assert.Equal(t, 32, cfg.Buffer.LookbackWindow)
	assert.Equal(t, 8, cfg.FEC.DataShards)
	assert.Equal(t, 12, cfg.FEC.TotalShards)
	assert.Equal(t, 256, cfg.FEC.ShardSize)
	assert.Equal(t, 10*time.Millisecond, cfg.Receiver.PollInterval)
	assert.Equal(t, time.Duration(0), cfg.Network.PacketInterval)
	assert.Equal(t, 0, cfg.Receiver.SourceSwitchThreshold)
	assert.Equal(t, ":9100", cfg.Network.ListenAddr)
	assert.Equal(t, "10.1.1.1:9100", cfg.Network.RemoteAddr)
}

func TestApplyEnv_InvalidValuesIgnored(t *testing.T) {
	tests := []struct {
		name   string
		envVar string
		value  string
	}{
		{name: "Unparseable window", envVar: "FECJITTER_LOOKBACK_WINDOW", value: "twenty"},
		{name: "Window out of bounds", envVar: "FECJITTER_LOOKBACK_WINDOW", value: "129"},
		{name: "Too many total shards", envVar: "FECJITTER_TOTAL_SHARDS", value: "300"},
		{name: "Poll interval zero", envVar: "FECJITTER_POLL_INTERVAL_MS", value: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)

			cfg := Default()
			ApplyEnv(cfg)
			assert.Equal(t, Default(), cfg)
		})
	}
}
