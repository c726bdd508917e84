package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/fecjitter/fec"
	"github.com/opd-ai/fecjitter/jitter"
	"github.com/opd-ai/fecjitter/rtp"
	"github.com/opd-ai/fecjitter/transport"
	"github.com/sirupsen/logrus"
)

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	Buffer       jitter.Config
	PollInterval time.Duration // backoff after a poll finds nothing ready
	// SourceSwitchThreshold is the number of consecutive packets from an
	// unexpected SSRC after which the receiver drops its state and follows
	// the new sender. Zero keeps the first sender forever.
	SourceSwitchThreshold int
}

// DefaultReceiverConfig returns a 20-frame lookback window, 1 ms polling and
// a 16-packet source switch.
func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		Buffer:                jitter.DefaultConfig(),
		PollInterval:          time.Millisecond,
		SourceSwitchThreshold: 16,
	}
}

// FrameSink receives each decoded frame. frame is owned by the sink.
type FrameSink func(frameID jitter.FrameID, frame []byte)

// ReceiverStatistics reports receiver activity.
type ReceiverStatistics struct {
	PacketsReceived    uint64
	PacketsDropped     uint64 // malformed or from an unexpected source
	DuplicateFragments uint64
	LateFragments      uint64 // arrived after their frame was retired
	SourceSwitches     uint64
	FramesDecoded      uint64
	DecodeFailures     uint64
	Buffer             jitter.Statistics
}

// Receiver reassembles and decodes frames arriving on a transport.
type Receiver struct {
	id           uuid.UUID
	transport    transport.Transport
	buffer       *jitter.FrameBuffer
	depacketizer *rtp.Depacketizer
	decoder      fec.Decoder
	pollInterval time.Duration
	releaser     jitter.Releaser
	window       int
	switchAfter  int

	// retireMu orders the late check and insertion of a fragment against
	// the retirement of its frame.
	retireMu    sync.Mutex
	lastRetired jitter.FrameID
	hasRetired  bool
	foreign     int // consecutive packets from an unexpected SSRC

	// lifecycle guards closed against concurrent fragment insertion.
	lifecycle sync.RWMutex
	closed    bool

	// decodeMu keeps displaced and reset handles from being released while
	// the decoder still reads their payloads.
	decodeMu sync.Mutex

	statsMu sync.Mutex
	stats   ReceiverStatistics
}

// NewReceiver creates a receiver and registers it as tr's fragment handler.
func NewReceiver(cfg ReceiverConfig, tr transport.Transport, dec fec.Decoder) (*Receiver, error) {
	if tr == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if dec == nil {
		return nil, fmt.Errorf("decoder cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if cfg.SourceSwitchThreshold < 0 {
		return nil, fmt.Errorf("source switch threshold cannot be negative")
	}

	buffer, err := jitter.NewFrameBuffer(cfg.Buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame buffer: %w", err)
	}

	r := &Receiver{
		id:           uuid.New(),
		transport:    tr,
		buffer:       buffer,
		depacketizer: rtp.NewDepacketizer(),
		decoder:      dec,
		pollInterval: cfg.PollInterval,
		releaser:     jitter.ReleaseFunc(releasePacket),
		window:       cfg.Buffer.LookbackWindow,
		switchAfter:  cfg.SourceSwitchThreshold,
	}

	tr.RegisterHandler(transport.PacketFECFragment, r.handleFragment)

	logrus.WithFields(logrus.Fields{
		"function":        "NewReceiver",
		"session_id":      r.id.String(),
		"local_addr":      tr.LocalAddr().String(),
		"lookback_window": cfg.Buffer.LookbackWindow,
		"poll_interval":   cfg.PollInterval.String(),
		"source_switch":   cfg.SourceSwitchThreshold,
	}).Info("Receiver created")

	return r, nil
}

// releasePacket returns a fragment's receive buffer to the transport.
func releasePacket(h jitter.Handle) {
	packet, ok := h.(*transport.Packet)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "releasePacket",
			"handle":   fmt.Sprintf("%T", h),
		}).Warn("Fragment handle is not a transport packet")
		return
	}
	packet.Release()
}

// ID returns the receiver's session id.
func (r *Receiver) ID() string {
	return r.id.String()
}

// Buffer exposes the underlying frame buffer for diagnostics.
func (r *Receiver) Buffer() *jitter.FrameBuffer {
	return r.buffer
}

// Announce sends a hello to addr so a sender without a configured
// destination starts sending frames here.
func (r *Receiver) Announce(addr net.Addr) error {
	if addr == nil {
		return fmt.Errorf("announce address cannot be nil")
	}
	if r.IsClosed() {
		return ErrReceiverClosed
	}

	hello := &transport.Packet{
		PacketType: transport.PacketHello,
		Data:       []byte(r.id.String()),
	}
	if err := r.transport.Send(hello, addr); err != nil {
		return fmt.Errorf("failed to send hello to %s: %w", addr, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Receiver.Announce",
		"session_id":  r.id.String(),
		"remote_addr": addr.String(),
	}).Debug("Sent hello")
	return nil
}

// handleFragment is the producer path. It takes ownership of packet.
func (r *Receiver) handleFragment(packet *transport.Packet, addr net.Addr) error {
	r.lifecycle.RLock()
	defer r.lifecycle.RUnlock()

	if r.closed {
		packet.Release()
		return ErrReceiverClosed
	}

	frag, err := r.depacketizer.Depacketize(packet.Data, packet)
	if errors.Is(err, rtp.ErrUnexpectedSSRC) && r.noteForeignSource() {
		r.switchSource(addr)
		frag, err = r.depacketizer.Depacketize(packet.Data, packet)
	}
	if err != nil {
		packet.Release()
		r.updateStats(func(s *ReceiverStatistics) {
			s.PacketsReceived++
			s.PacketsDropped++
		})
		logrus.WithFields(logrus.Fields{
			"function":    "Receiver.handleFragment",
			"session_id":  r.id.String(),
			"remote_addr": addr.String(),
			"error":       err.Error(),
		}).Warn("Dropping fragment")
		return err
	}

	r.retireMu.Lock()
	r.foreign = 0
	if r.isLate(frag.FrameID) {
		r.retireMu.Unlock()
		packet.Release()
		r.updateStats(func(s *ReceiverStatistics) {
			s.PacketsReceived++
			s.LateFragments++
		})
		logrus.WithFields(logrus.Fields{
			"function":    "Receiver.handleFragment",
			"session_id":  r.id.String(),
			"frame_id":    frag.FrameID,
			"block_index": frag.BlockIndex,
		}).Debug("Released fragment of retired frame")
		return nil
	}
	displaced, replaced := r.buffer.AddPacket(frag.FrameID, frag.BlockIndex, frag)
	r.retireMu.Unlock()

	if replaced {
		r.decodeMu.Lock()
		r.releaser.ReleaseFragment(displaced.Handle)
		r.decodeMu.Unlock()
	}

	r.updateStats(func(s *ReceiverStatistics) {
		s.PacketsReceived++
		if replaced {
			s.DuplicateFragments++
		}
	})
	return nil
}

// isLate reports whether frameID lies in the lookback window of the most
// recently retired frame, modulo the id wrap. Callers hold retireMu.
func (r *Receiver) isLate(frameID jitter.FrameID) bool {
	return r.hasRetired && int(r.lastRetired-frameID) < r.window
}

// markRetired records frameID as retired. The mark only moves forward, by
// the half-modulus rule, so a stale frame cannot reopen newer ids.
func (r *Receiver) markRetired(frameID jitter.FrameID) {
	r.retireMu.Lock()
	defer r.retireMu.Unlock()

	if !r.hasRetired || int(frameID-r.lastRetired) < jitter.FrameIDModulus/2 {
		r.lastRetired = frameID
		r.hasRetired = true
	}
}

// noteForeignSource counts a packet from an unexpected SSRC and reports
// whether the receiver should now follow the new sender.
func (r *Receiver) noteForeignSource() bool {
	r.retireMu.Lock()
	defer r.retireMu.Unlock()

	if r.switchAfter == 0 {
		return false
	}
	r.foreign++
	if r.foreign < r.switchAfter {
		return false
	}
	r.foreign = 0
	r.hasRetired = false
	return true
}

// switchSource forgets the current sender: its buffered fragments are
// released and the depacketizer locks onto the next SSRC it sees. A
// restarted sender counts frame ids from zero again, so retired ids are
// forgotten too.
func (r *Receiver) switchSource(addr net.Addr) {
	r.depacketizer.Reset()

	r.decodeMu.Lock()
	released := r.buffer.Reset(r.releaser)
	r.decodeMu.Unlock()

	r.updateStats(func(s *ReceiverStatistics) { s.SourceSwitches++ })
	logrus.WithFields(logrus.Fields{
		"function":    "Receiver.switchSource",
		"session_id":  r.id.String(),
		"remote_addr": addr.String(),
		"threshold":   r.switchAfter,
		"released":    released,
	}).Info("Following new sender")
}

// Run polls for ready frames until ctx is done, decoding each one into sink.
// It returns ctx.Err().
func (r *Receiver) Run(ctx context.Context, sink FrameSink) error {
	logrus.WithFields(logrus.Fields{
		"function":   "Receiver.Run",
		"session_id": r.id.String(),
	}).Info("Starting decode loop")

	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if r.ProcessNext(sink) {
			continue
		}

		timer.Reset(r.pollInterval)
		select {
		case <-ctx.Done():
			logrus.WithFields(logrus.Fields{
				"function":   "Receiver.Run",
				"session_id": r.id.String(),
			}).Info("Decode loop stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ProcessNext decodes and retires the next ready frame, if any. It reports
// whether a frame was retired. The frame is retired even if decoding fails;
// sink is only called on success.
func (r *Receiver) ProcessNext(sink FrameSink) bool {
	frame, frameID, ok, err := r.decodeNext()
	if !ok {
		return false
	}

	if err != nil {
		r.updateStats(func(s *ReceiverStatistics) { s.DecodeFailures++ })
		logrus.WithFields(logrus.Fields{
			"function":   "Receiver.ProcessNext",
			"session_id": r.id.String(),
			"frame_id":   frameID,
			"error":      err.Error(),
		}).Warn("Failed to decode frame")
		return true
	}

	r.updateStats(func(s *ReceiverStatistics) { s.FramesDecoded++ })
	logrus.WithFields(logrus.Fields{
		"function":   "Receiver.ProcessNext",
		"session_id": r.id.String(),
		"frame_id":   frameID,
		"frame_size": len(frame),
	}).Debug("Decoded frame")

	if sink != nil {
		sink(frameID, frame)
	}
	return true
}

// decodeNext decodes and retires the next ready frame. ok is false when no
// frame was retired.
func (r *Receiver) decodeNext() (frame []byte, frameID jitter.FrameID, ok bool, err error) {
	r.decodeMu.Lock()
	defer r.decodeMu.Unlock()

	frameID, ok = r.buffer.NextReadyFrame()
	if !ok {
		return nil, 0, false, nil
	}

	shares, err := r.buffer.FrameMap(frameID)
	if err != nil {
		// A fragment with a larger k arrived since the frame looked ready.
		return nil, frameID, false, nil
	}
	k, err := r.buffer.Threshold(frameID)
	if err != nil {
		return nil, frameID, false, nil
	}

	// Shares alias receive buffers, so decode before the frame is retired.
	frame, err = r.decoder.Decode(shares, k)
	r.markRetired(frameID)
	r.buffer.ClearFrame(r.releaser, frameID)
	if err != nil {
		return nil, frameID, true, fmt.Errorf("frame %d with %d shares, k=%d: %w", frameID, len(shares), k, err)
	}
	return frame, frameID, true, nil
}

func (r *Receiver) updateStats(fn func(s *ReceiverStatistics)) {
	r.statsMu.Lock()
	fn(&r.stats)
	r.statsMu.Unlock()
}

// Statistics returns a snapshot of receiver and buffer counters.
func (r *Receiver) Statistics() ReceiverStatistics {
	r.statsMu.Lock()
	stats := r.stats
	r.statsMu.Unlock()

	stats.Buffer = r.buffer.Statistics()
	return stats
}

// Close stops accepting fragments and releases everything still buffered.
// It does not close the transport.
func (r *Receiver) Close() error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	r.decodeMu.Lock()
	released := r.buffer.Reset(r.releaser)
	r.decodeMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Receiver.Close",
		"session_id": r.id.String(),
		"released":   released,
	}).Info("Receiver closed")
	return nil
}

// IsClosed reports whether Close has been called.
func (r *Receiver) IsClosed() bool {
	r.lifecycle.RLock()
	defer r.lifecycle.RUnlock()
	return r.closed
}
