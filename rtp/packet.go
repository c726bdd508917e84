package rtp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/fecjitter/jitter"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

const (
	// PayloadType is the dynamic RTP payload type used for fragments.
	PayloadType = 97

	// FragmentHeaderSize is the size of the fragment header at the start of
	// every RTP payload.
	FragmentHeaderSize = 5

	// DefaultClockRate is the RTP clock used for video-like media.
	DefaultClockRate = 90000

	// MaxThreshold and MaxBlockIndex are bounded by the 16-bit header fields.
	MaxThreshold  = 0xFFFF
	MaxBlockIndex = 0xFFFF
)

// TimeProvider abstracts time for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

// Now returns time.Now().
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// SSRCProvider generates synchronization source identifiers.
type SSRCProvider interface {
	GenerateSSRC() (uint32, error)
}

// DefaultSSRCProvider draws SSRCs from crypto/rand.
type DefaultSSRCProvider struct{}

// GenerateSSRC returns a random SSRC.
func (DefaultSSRCProvider) GenerateSSRC() (uint32, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Packetizer wraps the shares of a frame into RTP packets.
type Packetizer struct {
	mu             sync.Mutex
	ssrc           uint32
	sequenceNumber uint16
	clockRate      uint32
	start          time.Time
	timeProvider   TimeProvider
}

// NewPacketizer creates a packetizer with a random SSRC.
func NewPacketizer(clockRate uint32) (*Packetizer, error) {
	return NewPacketizerWithProviders(clockRate, DefaultSSRCProvider{}, DefaultTimeProvider{})
}

// NewPacketizerWithProviders creates a packetizer with injected SSRC and time
// sources.
func NewPacketizerWithProviders(clockRate uint32, ssrcProvider SSRCProvider, tp TimeProvider) (*Packetizer, error) {
	if clockRate == 0 {
		return nil, fmt.Errorf("clock rate cannot be zero")
	}
	if ssrcProvider == nil {
		return nil, fmt.Errorf("SSRC provider cannot be nil")
	}
	if tp == nil {
		return nil, fmt.Errorf("time provider cannot be nil")
	}

	ssrc, err := ssrcProvider.GenerateSSRC()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewPacketizer",
			"error":    err.Error(),
		}).Error("Failed to generate SSRC")
		return nil, fmt.Errorf("failed to generate SSRC: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewPacketizer",
		"ssrc":       ssrc,
		"clock_rate": clockRate,
	}).Info("Fragment packetizer created")

	return &Packetizer{
		ssrc:         ssrc,
		clockRate:    clockRate,
		start:        tp.Now(),
		timeProvider: tp,
	}, nil
}

// SSRC returns the packetizer's synchronization source.
func (p *Packetizer) SSRC() uint32 {
	return p.ssrc
}

// PacketizeFrame returns one marshaled RTP packet per share; shares[i] is
// sent with block index i.
func (p *Packetizer) PacketizeFrame(frameID jitter.FrameID, k uint32, shares [][]byte) ([][]byte, error) {
	if len(shares) == 0 {
		return nil, ErrNoShares
	}
	if k == 0 || k > MaxThreshold {
		return nil, fmt.Errorf("threshold %d outside [1, %d]", k, MaxThreshold)
	}
	if len(shares)-1 > MaxBlockIndex {
		return nil, fmt.Errorf("too many shares: %d", len(shares))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	timestamp := p.timestamp()
	packets := make([][]byte, len(shares))

	for i, share := range shares {
		payload := make([]byte, FragmentHeaderSize+len(share))
		putFragmentHeader(payload, frameID, k, uint32(i))
		copy(payload[FragmentHeaderSize:], share)

		packet := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(shares)-1,
				PayloadType:    PayloadType,
				SequenceNumber: p.sequenceNumber,
				Timestamp:      timestamp,
				SSRC:           p.ssrc,
			},
			Payload: payload,
		}

		data, err := packet.Marshal()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal RTP packet: %w", err)
		}
		packets[i] = data
		p.sequenceNumber++
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Packetizer.PacketizeFrame",
		"frame_id":  frameID,
		"threshold": k,
		"packets":   len(packets),
		"timestamp": timestamp,
	}).Debug("Packetized frame")

	return packets, nil
}

// timestamp converts elapsed time to RTP clock ticks, wrapping at 32 bits.
func (p *Packetizer) timestamp() uint32 {
	elapsed := p.timeProvider.Now().Sub(p.start)
	if elapsed < 0 {
		return 0
	}
	ticks := uint64(elapsed/time.Microsecond) * uint64(p.clockRate) / 1_000_000
	return uint32(ticks)
}

func putFragmentHeader(b []byte, frameID jitter.FrameID, k, blockIndex uint32) {
	b[0] = byte(frameID)
	binary.BigEndian.PutUint16(b[1:3], uint16(k))
	binary.BigEndian.PutUint16(b[3:5], uint16(blockIndex))
}

// Depacketizer turns RTP packets back into fragments. It locks on to the
// first SSRC it sees and rejects packets from any other source.
type Depacketizer struct {
	mu           sync.Mutex
	expectedSSRC uint32
	hasSSRC      bool
}

// NewDepacketizer creates a depacketizer with no SSRC locked.
func NewDepacketizer() *Depacketizer {
	return &Depacketizer{}
}

// Depacketize parses one RTP packet. The fragment's payload aliases data, and
// handle is attached as the fragment's ownership reference.
func (d *Depacketizer) Depacketize(data []byte, handle jitter.Handle) (jitter.Fragment, error) {
	packet := &rtp.Packet{}
	if err := packet.Unmarshal(data); err != nil {
		return jitter.Fragment{}, fmt.Errorf("failed to unmarshal RTP packet: %w", err)
	}

	if packet.PayloadType != PayloadType {
		return jitter.Fragment{}, fmt.Errorf("%w: %d", ErrUnexpectedPayloadType, packet.PayloadType)
	}
	if len(packet.Payload) < FragmentHeaderSize {
		return jitter.Fragment{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooShort, len(packet.Payload))
	}

	if err := d.checkSSRC(packet.SSRC); err != nil {
		return jitter.Fragment{}, err
	}

	payload := packet.Payload
	return jitter.Fragment{
		FrameID:    jitter.FrameID(payload[0]),
		Threshold:  uint32(binary.BigEndian.Uint16(payload[1:3])),
		BlockIndex: uint32(binary.BigEndian.Uint16(payload[3:5])),
		Payload:    payload[FragmentHeaderSize:],
		Handle:     handle,
	}, nil
}

func (d *Depacketizer) checkSSRC(ssrc uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.hasSSRC {
		d.expectedSSRC = ssrc
		d.hasSSRC = true
		logrus.WithFields(logrus.Fields{
			"function": "Depacketizer.Depacketize",
			"ssrc":     ssrc,
		}).Info("Accepted new SSRC for stream")
		return nil
	}

	if ssrc != d.expectedSSRC {
		return fmt.Errorf("%w: expected %d, got %d", ErrUnexpectedSSRC, d.expectedSSRC, ssrc)
	}
	return nil
}

// Reset forgets the locked SSRC so a restarted sender is accepted.
func (d *Depacketizer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.hasSSRC = false
	d.expectedSSRC = 0
}
