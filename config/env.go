package config

import (
	"os"
	"strconv"
	"time"

	"github.com/opd-ai/fecjitter/jitter"
	"github.com/sirupsen/logrus"
)

// Bounds for environment overrides.
const (
	// MaxShardSize keeps a fragment datagram inside the transport's receive
	// buffer: envelope byte + RTP header + fragment header + share.
	MaxShardSize = 1400

	MinPollIntervalMs   = 1
	MaxPollIntervalMs   = 1000
	MaxPacketIntervalUs = 1000000
	MaxSourceSwitch     = 4096
)

// ApplyEnv overrides fields of cfg from FECJITTER_* environment variables.
func ApplyEnv(cfg *Config) {
	parseIntSetting("FECJITTER_LOOKBACK_WINDOW", jitter.MinLookbackWindow, jitter.MaxLookbackWindow, &cfg.Buffer.LookbackWindow)
	parseIntSetting("FECJITTER_DATA_SHARDS", 1, 255, &cfg.FEC.DataShards)
	parseIntSetting("FECJITTER_TOTAL_SHARDS", 2, 256, &cfg.FEC.TotalShards)
	parseIntSetting("FECJITTER_SHARD_SIZE", 1, MaxShardSize, &cfg.FEC.ShardSize)
	parseDurationSetting("FECJITTER_POLL_INTERVAL_MS", time.Millisecond, MinPollIntervalMs, MaxPollIntervalMs, &cfg.Receiver.PollInterval)
	parseIntSetting("FECJITTER_SOURCE_SWITCH_THRESHOLD", 0, MaxSourceSwitch, &cfg.Receiver.SourceSwitchThreshold)
	parseDurationSetting("FECJITTER_PACKET_INTERVAL_US", time.Microsecond, 0, MaxPacketIntervalUs, &cfg.Network.PacketInterval)

	if addr := os.Getenv("FECJITTER_LISTEN_ADDR"); addr != "" {
		cfg.Network.ListenAddr = addr
	}
	if addr := os.Getenv("FECJITTER_REMOTE_ADDR"); addr != "" {
		cfg.Network.RemoteAddr = addr
	}
}

// parseIntSetting updates *target from envVar when it parses and lies within
// [minValue, maxValue]; otherwise it logs a warning and leaves *target alone.
func parseIntSetting(envVar string, minValue, maxValue int, target *int) {
	str := os.Getenv(envVar)
	if str == "" {
		return
	}

	value, err := strconv.Atoi(str)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseIntSetting",
			"env_var":     envVar,
			"value":       str,
			"error":       err.Error(),
			"using_value": *target,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	if value < minValue || value > maxValue {
		logrus.WithFields(logrus.Fields{
			"function":    "parseIntSetting",
			"env_var":     envVar,
			"value":       value,
			"min":         minValue,
			"max":         maxValue,
			"using_value": *target,
		}).Warn("Environment variable out of bounds, using default")
		return
	}
	*target = value
}

// parseDurationSetting is parseIntSetting for an integer count of unit.
func parseDurationSetting(envVar string, unit time.Duration, minValue, maxValue int, target *time.Duration) {
	count := int(*target / unit)
	before := count
	parseIntSetting(envVar, minValue, maxValue, &count)
	if count != before {
		*target = time.Duration(count) * unit
	}
}
