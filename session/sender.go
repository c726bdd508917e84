package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/fecjitter/jitter"
	"github.com/opd-ai/fecjitter/rtp"
	"github.com/opd-ai/fecjitter/transport"
	"github.com/sirupsen/logrus"
)

// SenderConfig configures a Sender.
type SenderConfig struct {
	ClockRate      uint32
	PacketInterval time.Duration // pause between shares; zero disables pacing
}

// DefaultSenderConfig returns a 90 kHz clock with 400 µs pacing.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		ClockRate:      rtp.DefaultClockRate,
		PacketInterval: 400 * time.Microsecond,
	}
}

// FrameEncoder splits a frame into shares, the first DataShards of which are
// the data shares.
type FrameEncoder interface {
	Encode(frame []byte) ([][]byte, error)
	DataShards() int
}

// SenderStatistics reports sender activity.
type SenderStatistics struct {
	FramesSent  uint64
	PacketsSent uint64
	SendErrors  uint64
}

// Sender encodes frames and sends their shares to every known destination.
type Sender struct {
	id             uuid.UUID
	transport      transport.Transport
	encoder        FrameEncoder
	packetizer     *rtp.Packetizer
	packetInterval time.Duration

	// destMu is separate from mu so hellos are handled while a frame is
	// being paced out.
	destMu       sync.RWMutex
	destinations []net.Addr
	found        chan struct{} // closed once the first destination is known

	mu          sync.Mutex
	nextFrameID jitter.FrameID
	closed      bool
	stats       SenderStatistics
}

// NewSender creates a sender over tr. remote may be nil, in which case the
// sender waits for a receiver to announce itself with a hello.
func NewSender(cfg SenderConfig, tr transport.Transport, remote net.Addr, enc FrameEncoder) (*Sender, error) {
	if tr == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if enc == nil {
		return nil, fmt.Errorf("encoder cannot be nil")
	}
	if cfg.PacketInterval < 0 {
		return nil, fmt.Errorf("packet interval cannot be negative")
	}

	packetizer, err := rtp.NewPacketizer(cfg.ClockRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create packetizer: %w", err)
	}

	s := &Sender{
		id:             uuid.New(),
		transport:      tr,
		encoder:        enc,
		packetizer:     packetizer,
		packetInterval: cfg.PacketInterval,
		found:          make(chan struct{}),
	}
	if remote != nil {
		s.AddDestination(remote)
	}

	tr.RegisterHandler(transport.PacketHello, s.handleHello)

	logrus.WithFields(logrus.Fields{
		"function":        "NewSender",
		"session_id":      s.id.String(),
		"destinations":    len(s.Destinations()),
		"ssrc":            packetizer.SSRC(),
		"packet_interval": cfg.PacketInterval.String(),
	}).Info("Sender created")

	return s, nil
}

// handleHello adds the source of a receiver's hello as a destination.
func (s *Sender) handleHello(packet *transport.Packet, addr net.Addr) error {
	receiverID := string(packet.Data)
	packet.Release()

	if s.AddDestination(addr) {
		logrus.WithFields(logrus.Fields{
			"function":    "Sender.handleHello",
			"session_id":  s.id.String(),
			"receiver_id": receiverID,
			"remote_addr": addr.String(),
		}).Info("Receiver announced itself")
	}
	return nil
}

// AddDestination adds addr to the set of destinations. It reports false if
// addr was already known.
func (s *Sender) AddDestination(addr net.Addr) bool {
	s.destMu.Lock()
	defer s.destMu.Unlock()

	for _, known := range s.destinations {
		if known.Network() == addr.Network() && known.String() == addr.String() {
			return false
		}
	}
	s.destinations = append(s.destinations, addr)
	if len(s.destinations) == 1 {
		close(s.found)
	}
	return true
}

// Destinations returns a copy of the known destinations.
func (s *Sender) Destinations() []net.Addr {
	s.destMu.RLock()
	defer s.destMu.RUnlock()
	return append([]net.Addr(nil), s.destinations...)
}

// WaitForDestination blocks until at least one destination is known or ctx
// is done.
func (s *Sender) WaitForDestination(ctx context.Context) error {
	select {
	case <-s.found:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ID returns the sender's session id.
func (s *Sender) ID() string {
	return s.id.String()
}

// SendFrame encodes frame and sends every share, returning the frame id used.
// Frames are serialized: concurrent calls send one frame at a time. If ctx is
// cancelled mid-frame the remaining shares are not sent.
func (s *Sender) SendFrame(ctx context.Context, frame []byte) (jitter.FrameID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSenderClosed
	}

	destinations := s.Destinations()
	if len(destinations) == 0 {
		return 0, ErrNoDestination
	}

	shares, err := s.encoder.Encode(frame)
	if err != nil {
		return 0, fmt.Errorf("failed to encode frame: %w", err)
	}

	frameID := s.nextFrameID
	packets, err := s.packetizer.PacketizeFrame(frameID, uint32(s.encoder.DataShards()), shares)
	if err != nil {
		return 0, fmt.Errorf("failed to packetize frame %d: %w", frameID, err)
	}
	// The id is consumed even if sending fails part way.
	s.nextFrameID++

	for i, data := range packets {
		if i > 0 && s.packetInterval > 0 {
			if err := s.pace(ctx); err != nil {
				return frameID, err
			}
		} else if err := ctx.Err(); err != nil {
			return frameID, err
		}

		packet := &transport.Packet{
			PacketType: transport.PacketFECFragment,
			Data:       data,
		}
		for _, remote := range destinations {
			if err := s.transport.Send(packet, remote); err != nil {
				s.stats.SendErrors++
				logrus.WithFields(logrus.Fields{
					"function":    "Sender.SendFrame",
					"session_id":  s.id.String(),
					"frame_id":    frameID,
					"block_index": i,
					"remote_addr": remote.String(),
					"error":       err.Error(),
				}).Warn("Failed to send fragment")
				return frameID, fmt.Errorf("failed to send fragment %d of frame %d to %s: %w", i, frameID, remote, err)
			}
			s.stats.PacketsSent++
		}
	}

	s.stats.FramesSent++

	logrus.WithFields(logrus.Fields{
		"function":   "Sender.SendFrame",
		"session_id": s.id.String(),
		"frame_id":   frameID,
		"frame_size": len(frame),
		"packets":    len(packets),
	}).Debug("Sent frame")

	return frameID, nil
}

func (s *Sender) pace(ctx context.Context) error {
	timer := time.NewTimer(s.packetInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Statistics returns a snapshot of sender counters.
func (s *Sender) Statistics() SenderStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close stops the sender. It does not close the transport.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	logrus.WithFields(logrus.Fields{
		"function":    "Sender.Close",
		"session_id":  s.id.String(),
		"frames_sent": s.stats.FramesSent,
	}).Info("Sender closed")
	return nil
}
