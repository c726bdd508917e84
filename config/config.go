package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/opd-ai/fecjitter/fec"
	"github.com/opd-ai/fecjitter/jitter"
	"github.com/opd-ai/fecjitter/transport"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates a configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete sender/receiver configuration.
type Config struct {
	Buffer   jitter.Config       `yaml:"buffer"`
	FEC      FECConfig           `yaml:"fec"`
	Network  NetworkConfig       `yaml:"network"`
	Receiver ReceiverConfig      `yaml:"receiver"`
	Loopback transport.SimConfig `yaml:"loopback"`
}

// FECConfig describes the erasure code.
type FECConfig struct {
	DataShards  int `yaml:"data_shards"`
	TotalShards int `yaml:"total_shards"`
	ShardSize   int `yaml:"share_size"`
}

// NetworkConfig describes the UDP endpoints and sender pacing.
type NetworkConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	RemoteAddr     string        `yaml:"remote_addr"`
	ClockRate      uint32        `yaml:"clock_rate"`
	PacketInterval time.Duration `yaml:"packet_interval"`
}

// ReceiverConfig describes the decode loop.
type ReceiverConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	// SourceSwitchThreshold is how many consecutive packets from another
	// SSRC make the receiver follow the new sender. Zero never switches.
	SourceSwitchThreshold int `yaml:"source_switch_threshold"`
}

// Default returns the configuration of the reference deployment: a 100-of-110
// code over 1300-byte shares, a 20-frame lookback window and 400us pacing.
func Default() *Config {
	return &Config{
		Buffer: jitter.DefaultConfig(),
		FEC: FECConfig{
			DataShards:  100,
			TotalShards: 110,
			ShardSize:   1300,
		},
		Network: NetworkConfig{
			ListenAddr:     ":9000",
			RemoteAddr:     "127.0.0.1:9000",
			ClockRate:      90000,
			PacketInterval: 400 * time.Microsecond,
		},
		Receiver: ReceiverConfig{
			PollInterval:          time.Millisecond,
			SourceSwitchThreshold: 16,
		},
		Loopback: transport.SimConfig{
			LossRate: 0.02,
			Seed:     1,
		},
	}
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	ApplyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logConfigurationInfo(cfg)
	return cfg, nil
}

// LoadFile reads the YAML file at path over the defaults without consulting
// the environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Config.mergeFile",
			"path":     path,
			"error":    err.Error(),
		}).Error("Failed to parse config file")
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks every field and the relations between them.
func (c *Config) Validate() error {
	if err := c.Buffer.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.FEC.DataShards <= 0 {
		return fmt.Errorf("%w: data shards must be positive", ErrInvalidConfig)
	}
	if c.FEC.TotalShards <= c.FEC.DataShards || c.FEC.TotalShards > fec.MaxTotalShards {
		return fmt.Errorf("%w: total shards must be in (%d, %d]", ErrInvalidConfig, c.FEC.DataShards, fec.MaxTotalShards)
	}
	if c.FEC.ShardSize <= 0 || c.FEC.ShardSize > MaxShardSize {
		return fmt.Errorf("%w: shard size must be in [1, %d]", ErrInvalidConfig, MaxShardSize)
	}
	if c.Network.ClockRate == 0 {
		return fmt.Errorf("%w: clock rate cannot be zero", ErrInvalidConfig)
	}
	if c.Network.PacketInterval < 0 {
		return fmt.Errorf("%w: packet interval cannot be negative", ErrInvalidConfig)
	}
	if c.Receiver.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	if c.Receiver.SourceSwitchThreshold < 0 {
		return fmt.Errorf("%w: source switch threshold cannot be negative", ErrInvalidConfig)
	}
	if err := c.Loopback.Validate(); err != nil {
		return fmt.Errorf("%w: loopback: %v", ErrInvalidConfig, err)
	}
	return nil
}

// logConfigurationInfo logs the effective configuration.
func logConfigurationInfo(c *Config) {
	logrus.WithFields(logrus.Fields{
		"function":        "Load",
		"lookback_window": c.Buffer.LookbackWindow,
		"data_shards":     c.FEC.DataShards,
		"total_shards":    c.FEC.TotalShards,
		"shard_size":      c.FEC.ShardSize,
		"listen_addr":     c.Network.ListenAddr,
		"remote_addr":     c.Network.RemoteAddr,
		"packet_interval": c.Network.PacketInterval.String(),
		"poll_interval":   c.Receiver.PollInterval.String(),
		"source_switch":   c.Receiver.SourceSwitchThreshold,
	}).Info("Loaded configuration")
}
