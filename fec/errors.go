package fec

import "errors"

var (
	// ErrFrameTooLarge indicates the frame does not fit in k shares.
	ErrFrameTooLarge = errors.New("frame too large for codec")

	// ErrEmptyFrame indicates an attempt to encode zero bytes.
	ErrEmptyFrame = errors.New("frame cannot be empty")

	// ErrThresholdMismatch indicates the frame's k differs from the codec's data shard count.
	ErrThresholdMismatch = errors.New("threshold does not match codec")

	// ErrTooFewShares indicates fewer than k usable shares were supplied.
	ErrTooFewShares = errors.New("too few shares to decode")

	// ErrShareSize indicates a share whose length differs from the codec's share size.
	ErrShareSize = errors.New("share has wrong size")

	// ErrBlockIndexRange indicates a block index at or beyond n.
	ErrBlockIndexRange = errors.New("block index out of range")

	// ErrCorruptFrame indicates the recovered length prefix is impossible.
	ErrCorruptFrame = errors.New("recovered frame is corrupt")
)
