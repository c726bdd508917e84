// Package main provides a sender and a receiver for erasure-coded frames over
// UDP.
//
// The sender splits pattern frames into Reed-Solomon shares and paces them out
// as RTP packets. The receiver reassembles the shares in a lookback-window
// jitter buffer, decodes each frame as soon as enough shares are present, and
// checks the recovered bytes against the pattern. Loopback mode runs both
// ends in one process over a simulated lossy link.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/opd-ai/fecjitter/config"
	"github.com/opd-ai/fecjitter/fec"
	"github.com/opd-ai/fecjitter/jitter"
	"github.com/opd-ai/fecjitter/session"
	"github.com/opd-ai/fecjitter/transport"
	"github.com/sirupsen/logrus"
)

// helloInterval is how often a receiver repeats its hello until the first
// frame arrives.
const helloInterval = 500 * time.Millisecond

// CLI configuration
type CLIConfig struct {
	mode         string
	configPath   string
	listenAddr   string
	remoteAddr   string
	announceAddr string
	discover     bool
	frames       int
	frameSize    int
	logLevel     string
	logFile      string
	help         bool
}

// parseCLIFlags parses args and returns the configuration.
func parseCLIFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet("fecjitter", flag.ContinueOnError)

	fs.StringVar(&cfg.mode, "mode", "recv", "Run mode (send, recv, loopback)")
	fs.StringVar(&cfg.configPath, "config", "", "YAML configuration file")

	// Network overrides; empty keeps the configured value
	fs.StringVar(&cfg.listenAddr, "listen", "", "Local UDP address")
	fs.StringVar(&cfg.remoteAddr, "remote", "", "Receiver UDP address (send mode)")
	fs.StringVar(&cfg.announceAddr, "announce", "", "Sender UDP address to send hellos to (recv mode)")
	fs.BoolVar(&cfg.discover, "discover", false, "Wait for a receiver's hello instead of using -remote (send, loopback)")

	fs.IntVar(&cfg.frames, "frames", 100, "Frames to send, or to receive before exiting (0 = until interrupted)")
	fs.IntVar(&cfg.frameSize, "frame-size", 0, "Frame size in bytes (0 = largest the code allows)")

	// Logging configuration
	fs.StringVar(&cfg.logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	fs.StringVar(&cfg.logFile, "log-file", "", "Log file path (default: stderr)")

	fs.BoolVar(&cfg.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// printUsage prints the usage information.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "fecjitter: erasure-coded frame transfer over UDP")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s -mode recv [-listen :9000] [-frames N]\n", os.Args[0])
	fmt.Fprintf(w, "  %s -mode send -remote host:9000 [-frames N]\n", os.Args[0])
	fmt.Fprintf(w, "  %s -mode send -discover   (receiver runs with -announce host:port)\n", os.Args[0])
	fmt.Fprintf(w, "  %s -mode loopback [-frames N]\n", os.Args[0])
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Settings are read from -config, then FECJITTER_* environment variables,")
	fmt.Fprintln(w, "then the flags above.")
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(cfg *CLIConfig) error {
	switch cfg.mode {
	case "send", "recv", "loopback":
	default:
		return fmt.Errorf("invalid mode %q: must be send, recv or loopback", cfg.mode)
	}

	if cfg.frames < 0 {
		return fmt.Errorf("frame count cannot be negative")
	}
	if cfg.mode != "recv" && cfg.frames == 0 {
		return fmt.Errorf("%s mode needs a positive frame count", cfg.mode)
	}
	if cfg.frameSize < 0 {
		return fmt.Errorf("frame size cannot be negative")
	}
	if cfg.discover && cfg.mode == "recv" {
		return fmt.Errorf("-discover applies to send and loopback modes")
	}
	if cfg.announceAddr != "" && cfg.mode != "recv" {
		return fmt.Errorf("-announce applies to recv mode")
	}

	if _, err := logrus.ParseLevel(cfg.logLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// applyOverrides layers the network flags over the loaded configuration.
func applyOverrides(cli *CLIConfig, cfg *config.Config) {
	if cli.listenAddr != "" {
		cfg.Network.ListenAddr = cli.listenAddr
	}
	if cli.remoteAddr != "" {
		cfg.Network.RemoteAddr = cli.remoteAddr
	}
}

// setupLogging configures the global logger. The returned closer flushes the
// log file; it is nil when logging to stderr.
func setupLogging(cli *CLIConfig) (io.Closer, error) {
	level, err := logrus.ParseLevel(cli.logLevel)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)

	if cli.logFile == "" {
		return nil, nil
	}

	logFile, err := os.OpenFile(cli.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logrus.SetOutput(logFile)
	return logFile, nil
}

// patternFrame returns a frame whose byte i is i mod 256.
func patternFrame(size int) []byte {
	frame := make([]byte, size)
	for i := range frame {
		frame[i] = byte(i)
	}
	return frame
}

// verifyFrame returns the offset of the first byte that breaks the pattern,
// or -1.
func verifyFrame(frame []byte) int {
	for i, b := range frame {
		if b != byte(i) {
			return i
		}
	}
	return -1
}

func runUDPSender(ctx context.Context, cli *CLIConfig, cfg *config.Config, codec *fec.Codec) error {
	var remote net.Addr
	if !cli.discover {
		addr, err := net.ResolveUDPAddr("udp", cfg.Network.RemoteAddr)
		if err != nil {
			return fmt.Errorf("failed to resolve remote address: %w", err)
		}
		remote = addr
	}

	tr, err := transport.NewUDPTransport(cfg.Network.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to open transport: %w", err)
	}
	defer tr.Close()

	return runSender(ctx, cli, cfg, codec, tr, remote)
}

func runSender(ctx context.Context, cli *CLIConfig, cfg *config.Config, codec *fec.Codec, tr transport.Transport, remote net.Addr) error {
	sender, err := session.NewSender(session.SenderConfig{
		ClockRate:      cfg.Network.ClockRate,
		PacketInterval: cfg.Network.PacketInterval,
	}, tr, remote, codec)
	if err != nil {
		return err
	}
	defer sender.Close()

	if remote == nil {
		logrus.WithFields(logrus.Fields{
			"function":   "runSender",
			"local_addr": tr.LocalAddr().String(),
		}).Info("Waiting for a receiver to announce itself")
		if err := sender.WaitForDestination(ctx); err != nil {
			return err
		}
	}

	size := cli.frameSize
	if size == 0 {
		size = codec.MaxFrameSize()
	}
	frame := patternFrame(size)

	for i := 0; i < cli.frames; i++ {
		if _, err := sender.SendFrame(ctx, frame); err != nil {
			return err
		}
	}

	stats := sender.Statistics()
	logrus.WithFields(logrus.Fields{
		"function":     "runSender",
		"frames_sent":  stats.FramesSent,
		"packets_sent": stats.PacketsSent,
		"send_errors":  stats.SendErrors,
	}).Info("Sender finished")
	return nil
}

func runReceiver(ctx context.Context, cli *CLIConfig, cfg *config.Config, codec *fec.Codec) error {
	tr, err := transport.NewUDPTransport(cfg.Network.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to open transport: %w", err)
	}
	defer tr.Close()

	receiver, err := session.NewReceiver(receiverConfig(cfg), tr, codec)
	if err != nil {
		return err
	}
	defer receiver.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	v := &verifier{limit: int64(cli.frames), done: cancel}
	if cli.announceAddr != "" {
		addr, err := net.ResolveUDPAddr("udp", cli.announceAddr)
		if err != nil {
			return fmt.Errorf("failed to resolve announce address: %w", err)
		}
		go announce(ctx, receiver, addr, v)
	}
	err = receiver.Run(ctx, v.sink)
	logReceiverStats(receiver, v)

	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err == nil {
		err = v.err()
	}
	return err
}

// runLoopback sends frames to an in-process receiver over a simulated link.
func runLoopback(ctx context.Context, cli *CLIConfig, cfg *config.Config, codec *fec.Codec) error {
	network, err := transport.NewSimulatedNetwork(cfg.Loopback)
	if err != nil {
		return err
	}
	sendTransport := network.NewTransport()
	recvTransport := network.NewTransport()

	receiver, err := session.NewReceiver(receiverConfig(cfg), recvTransport, codec)
	if err != nil {
		return err
	}
	defer receiver.Close()

	// The simulated link is lossy, so the receiver is not told to expect
	// every frame; it stops once the sender is done and the buffer drained.
	v := &verifier{}
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- receiver.Run(runCtx, v.sink) }()

	var remote net.Addr = recvTransport.LocalAddr()
	if cli.discover {
		remote = nil
		go announce(runCtx, receiver, sendTransport.LocalAddr(), v)
	}
	sendErr := runSender(ctx, cli, cfg, codec, sendTransport, remote)
	network.Flush()
	for receiver.ProcessNext(v.sink) {
	}
	stop()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	sent, dropped, duplicated, reordered := network.Stats()
	logrus.WithFields(logrus.Fields{
		"function":   "runLoopback",
		"datagrams":  sent,
		"dropped":    dropped,
		"duplicated": duplicated,
		"reordered":  reordered,
	}).Info("Simulated link finished")
	logReceiverStats(receiver, v)

	if sendErr != nil {
		return sendErr
	}
	return v.err()
}

func receiverConfig(cfg *config.Config) session.ReceiverConfig {
	return session.ReceiverConfig{
		Buffer:                cfg.Buffer,
		PollInterval:          cfg.Receiver.PollInterval,
		SourceSwitchThreshold: cfg.Receiver.SourceSwitchThreshold,
	}
}

// announce sends a hello to addr every helloInterval until the first frame
// is decoded or ctx is done.
func announce(ctx context.Context, receiver *session.Receiver, addr net.Addr, v *verifier) {
	ticker := time.NewTicker(helloInterval)
	defer ticker.Stop()

	for v.decoded.Load() == 0 {
		if err := receiver.Announce(addr); err != nil {
			if errors.Is(err, session.ErrReceiverClosed) {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function":    "announce",
				"remote_addr": addr.String(),
				"error":       err.Error(),
			}).Warn("Failed to send hello")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// verifier is a FrameSink that checks decoded frames against the pattern.
// It calls done once limit frames have arrived, if limit is positive.
type verifier struct {
	limit   int64
	done    context.CancelFunc
	decoded atomic.Int64
	corrupt atomic.Int64
}

func (v *verifier) sink(frameID jitter.FrameID, frame []byte) {
	if offset := verifyFrame(frame); offset >= 0 {
		v.corrupt.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "verifier.sink",
			"frame_id": frameID,
			"offset":   offset,
		}).Error("Decoded frame does not match pattern")
	}
	if n := v.decoded.Add(1); v.limit > 0 && n >= v.limit && v.done != nil {
		v.done()
	}
}

func (v *verifier) err() error {
	if n := v.corrupt.Load(); n > 0 {
		return fmt.Errorf("%d frames failed verification", n)
	}
	return nil
}

func logReceiverStats(receiver *session.Receiver, v *verifier) {
	stats := receiver.Statistics()
	logrus.WithFields(logrus.Fields{
		"function":            "logReceiverStats",
		"frames_decoded":      stats.FramesDecoded,
		"frames_corrupt":      v.corrupt.Load(),
		"decode_failures":     stats.DecodeFailures,
		"packets_received":    stats.PacketsReceived,
		"packets_dropped":     stats.PacketsDropped,
		"duplicate_fragments": stats.DuplicateFragments,
		"late_fragments":      stats.LateFragments,
		"source_switches":     stats.SourceSwitches,
		"incomplete_swept":    stats.Buffer.IncompleteSwept,
	}).Info("Receiver finished")
}

// setupSignalHandling sets up graceful shutdown on interrupt signals.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	go func() {
		sig := <-sigChan
		logrus.WithFields(logrus.Fields{
			"function": "setupSignalHandling",
			"signal":   sig.String(),
		}).Info("Received signal, shutting down")
		cancel()
	}()
}

func run(args []string) error {
	cli, err := parseCLIFlags(args)
	if err != nil {
		return err
	}
	if cli.help {
		printUsage(os.Stdout)
		return nil
	}
	if err := validateCLIConfig(cli); err != nil {
		return err
	}

	closer, err := setupLogging(cli)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return err
	}
	applyOverrides(cli, cfg)

	codec, err := fec.NewCodec(cfg.FEC.DataShards, cfg.FEC.TotalShards, cfg.FEC.ShardSize)
	if err != nil {
		return err
	}
	if cli.frameSize > codec.MaxFrameSize() {
		return fmt.Errorf("frame size %d exceeds code capacity %d", cli.frameSize, codec.MaxFrameSize())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	switch cli.mode {
	case "send":
		return runUDPSender(ctx, cli, cfg, codec)
	case "loopback":
		return runLoopback(ctx, cli, cfg, codec)
	default:
		return runReceiver(ctx, cli, cfg, codec)
	}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fecjitter: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}
}
