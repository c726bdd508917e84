// Package rtp carries erasure-coded fragments inside RTP packets.
//
// It uses the pion/rtp library for standards-compliant RTP headers. Each RTP
// payload starts with a 5-byte fragment header followed by the share bytes:
//
//	+----------+-------------+-------------+------------------+
//	| frame id | threshold k | block index | share ...        |
//	| 1 byte   | 2 bytes BE  | 2 bytes BE  | shareSize bytes  |
//	+----------+-------------+-------------+------------------+
//
// All shares of a frame carry the frame's RTP timestamp, and the marker bit
// is set on the last share of a frame. The receive side does not depend on
// either: fragments are routed purely by the fragment header.
//
// # Packetization
//
//	packetizer, err := rtp.NewPacketizer(90000)
//	packets, err := packetizer.PacketizeFrame(frameID, k, shares)
//
// # Depacketization
//
//	depacketizer := rtp.NewDepacketizer()
//	frag, err := depacketizer.Depacketize(data, handle)
//
// The returned fragment's payload aliases data; nothing is copied.
package rtp
