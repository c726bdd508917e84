package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opd-ai/fecjitter/config"
	"github.com/opd-ai/fecjitter/fec"
	"github.com/opd-ai/fecjitter/transport"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCLIFlags(t *testing.T) {
	cli, err := parseCLIFlags([]string{"-mode", "send", "-remote", "10.0.0.2:9000", "-frames", "5", "-log-level", "debug"})
	require.NoError(t, err)

	assert.Equal(t, "send", cli.mode)
	assert.Equal(t, "10.0.0.2:9000", cli.remoteAddr)
	assert.Equal(t, 5, cli.frames)
	assert.Equal(t, "debug", cli.logLevel)
	assert.Empty(t, cli.listenAddr)

	cli, err = parseCLIFlags([]string{"-announce", "10.0.0.3:9000"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3:9000", cli.announceAddr)
	assert.False(t, cli.discover)

	_, err = parseCLIFlags([]string{"-frames", "many"})
	assert.Error(t, err)
}

func TestValidateCLIConfig(t *testing.T) {
	valid := func() *CLIConfig {
		return &CLIConfig{mode: "recv", frames: 10, logLevel: "INFO"}
	}

	tests := []struct {
		name        string
		mutate      func(*CLIConfig)
		errContains string
	}{
		{name: "valid receiver", mutate: func(c *CLIConfig) {}},
		{name: "receiver without limit", mutate: func(c *CLIConfig) { c.frames = 0 }},
		{name: "valid sender", mutate: func(c *CLIConfig) { c.mode = "send" }},
		{name: "valid loopback", mutate: func(c *CLIConfig) { c.mode = "loopback" }},
		{name: "loopback without frames", mutate: func(c *CLIConfig) { c.mode = "loopback"; c.frames = 0 }, errContains: "positive frame count"},
		{name: "unknown mode", mutate: func(c *CLIConfig) { c.mode = "relay" }, errContains: "invalid mode"},
		{name: "negative frames", mutate: func(c *CLIConfig) { c.frames = -1 }, errContains: "frame count"},
		{name: "sender without frames", mutate: func(c *CLIConfig) { c.mode = "send"; c.frames = 0 }, errContains: "positive frame count"},
		{name: "negative frame size", mutate: func(c *CLIConfig) { c.frameSize = -1 }, errContains: "frame size"},
		{name: "discovering sender", mutate: func(c *CLIConfig) { c.mode = "send"; c.discover = true }},
		{name: "announcing receiver", mutate: func(c *CLIConfig) { c.announceAddr = "127.0.0.1:9000" }},
		{name: "discover in recv mode", mutate: func(c *CLIConfig) { c.discover = true }, errContains: "-discover"},
		{name: "announce in send mode", mutate: func(c *CLIConfig) { c.mode = "send"; c.announceAddr = "127.0.0.1:9000" }, errContains: "-announce"},
		{name: "bad log level", mutate: func(c *CLIConfig) { c.logLevel = "LOUD" }, errContains: "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateCLIConfig(cfg)
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	applyOverrides(&CLIConfig{remoteAddr: "192.0.2.1:7000"}, cfg)

	assert.Equal(t, "192.0.2.1:7000", cfg.Network.RemoteAddr)
	assert.Equal(t, config.Default().Network.ListenAddr, cfg.Network.ListenAddr)
}

func TestPatternFrame(t *testing.T) {
	frame := patternFrame(600)
	assert.Equal(t, -1, verifyFrame(frame))
	assert.Equal(t, byte(255), frame[255])
	assert.Equal(t, byte(0), frame[256])

	frame[300] ^= 0xFF
	assert.Equal(t, 300, verifyFrame(frame))
}

func TestPrintUsage(t *testing.T) {
	var sb strings.Builder
	printUsage(&sb)
	assert.Contains(t, sb.String(), "-mode send")
	assert.Contains(t, sb.String(), "FECJITTER_")
}

func TestRunLoopback(t *testing.T) {
	cfg := config.Default()
	cfg.FEC = config.FECConfig{DataShards: 4, TotalShards: 6, ShardSize: 64}
	cfg.Network.PacketInterval = 0
	cfg.Loopback = transport.SimConfig{}

	codec, err := fec.NewCodec(cfg.FEC.DataShards, cfg.FEC.TotalShards, cfg.FEC.ShardSize)
	require.NoError(t, err)

	cli := &CLIConfig{mode: "loopback", frames: 12, logLevel: "INFO"}
	assert.NoError(t, runLoopback(context.Background(), cli, cfg, codec))
}

func TestRunLoopback_Discover(t *testing.T) {
	cfg := config.Default()
	cfg.FEC = config.FECConfig{DataShards: 4, TotalShards: 6, ShardSize: 64}
	cfg.Network.PacketInterval = 0
	cfg.Loopback = transport.SimConfig{}

	codec, err := fec.NewCodec(cfg.FEC.DataShards, cfg.FEC.TotalShards, cfg.FEC.ShardSize)
	require.NoError(t, err)

	cli := &CLIConfig{mode: "loopback", frames: 5, discover: true, logLevel: "INFO"}
	assert.NoError(t, runLoopback(context.Background(), cli, cfg, codec))
}

func TestSetupLogging(t *testing.T) {
	prevLevel := logrus.GetLevel()
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(prevLevel)
	})

	closer, err := setupLogging(&CLIConfig{logLevel: "WARN"})
	require.NoError(t, err)
	assert.Nil(t, closer, "stderr logging has nothing to close")
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())

	path := filepath.Join(t.TempDir(), "fecjitter.log")
	closer, err = setupLogging(&CLIConfig{logLevel: "INFO", logFile: path})
	require.NoError(t, err)
	require.NotNil(t, closer)

	logrus.Info("written to file")
	logrus.SetOutput(os.Stderr)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")

	_, err = setupLogging(&CLIConfig{logLevel: "INFO", logFile: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
