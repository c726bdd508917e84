package transport

import (
	"net"
)

// PacketHandler is called once per received datagram of the type it was
// registered for. The packet's Data aliases a pooled receive buffer: the
// handler owns it from the call on and must Release it exactly once, possibly
// long after returning.
type PacketHandler func(packet *Packet, addr net.Addr) error

// Transport moves typed datagrams between fecjitter endpoints. A sender pushes
// one datagram per erasure-coded share through Send; a receiver registers a
// PacketHandler for PacketFECFragment and is called on the transport's own
// read goroutine, so handlers must not block for long.
//
// Delivery is best effort. Datagrams may be lost, duplicated or reordered,
// which the frame buffer on the receiving side tolerates.
type Transport interface {
	// Send serializes packet and writes it to addr. The caller keeps
	// ownership of packet.Data.
	Send(packet *Packet, addr net.Addr) error

	// Close stops the read goroutine. Packets already handed to a handler
	// stay valid until released.
	Close() error

	// LocalAddr is the address peers send to.
	LocalAddr() net.Addr

	// RegisterHandler routes received datagrams of packetType to handler,
	// replacing any earlier registration. Unrouted datagrams are released
	// and dropped.
	RegisterHandler(packetType PacketType, handler PacketHandler)
}
