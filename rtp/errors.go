package rtp

import "errors"

var (
	// ErrPayloadTooShort indicates an RTP payload smaller than the fragment header.
	ErrPayloadTooShort = errors.New("payload shorter than fragment header")

	// ErrUnexpectedPayloadType indicates an RTP packet that does not carry fragments.
	ErrUnexpectedPayloadType = errors.New("unexpected RTP payload type")

	// ErrUnexpectedSSRC indicates a packet from a source other than the one locked on.
	ErrUnexpectedSSRC = errors.New("unexpected SSRC")

	// ErrNoShares indicates an attempt to packetize an empty share set.
	ErrNoShares = errors.New("no shares to packetize")
)
