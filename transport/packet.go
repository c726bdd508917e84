package transport

import (
	"errors"
	"sync/atomic"
)

// PacketType identifies the kind of payload a packet carries.
type PacketType byte

const (
	// PacketFECFragment carries one RTP-encapsulated erasure-coded share.
	PacketFECFragment PacketType = 0x17
	// PacketHello is sent by a receiver to a sender that has no destination
	// yet. Its payload is the receiver's session id.
	PacketHello PacketType = 0x18
)

// Packet is a typed datagram.
type Packet struct {
	PacketType PacketType
	Data       []byte

	pool     *BufferPool
	buf      *[]byte
	released atomic.Bool
}

// Serialize converts a packet to a byte slice for transmission.
func (p *Packet) Serialize() ([]byte, error) {
	if p.Data == nil {
		return nil, errors.New("packet data is nil")
	}

	// Format: [packet type (1 byte)][data (variable length)]
	result := make([]byte, 1+len(p.Data))
	result[0] = byte(p.PacketType)
	copy(result[1:], p.Data)

	return result, nil
}

// ParsePacket converts a byte slice to a Packet, copying the payload.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < 1 {
		return nil, errors.New("packet too short")
	}

	packet := &Packet{
		PacketType: PacketType(data[0]),
		Data:       make([]byte, len(data)-1),
	}
	copy(packet.Data, data[1:])

	return packet, nil
}

// parsePooledPacket builds a Packet whose Data aliases buf[1:n]. The packet
// takes ownership of buf.
func parsePooledPacket(pool *BufferPool, buf *[]byte, n int) (*Packet, error) {
	if n < 1 {
		return nil, errors.New("packet too short")
	}

	data := (*buf)[:n]
	return &Packet{
		PacketType: PacketType(data[0]),
		Data:       data[1:],
		pool:       pool,
		buf:        buf,
	}, nil
}

// Release returns the packet's receive buffer to its pool. Data must not be
// used afterwards. Calls after the first, and calls on packets that do not
// come from a pool, do nothing.
func (p *Packet) Release() {
	if p.released.Swap(true) {
		return
	}
	if p.pool != nil && p.buf != nil {
		p.pool.Put(p.buf)
	}
	p.buf = nil
	p.Data = nil
}
