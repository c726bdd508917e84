// Package fec implements the k-of-n erasure code used to protect frames in
// transit, built on github.com/klauspost/reedsolomon.
//
// A sender encodes a frame into n equally sized shares. Any k distinct shares
// are enough for a receiver to recover the frame:
//
//	codec, err := fec.NewCodec(100, 110, 1300)
//	shares, err := codec.Encode(frame)
//	// ... shares travel as fragments, some are lost ...
//	frame, err := codec.Decode(frameMap, 100)
//
// The frame is prefixed with its 4-byte big-endian length before it is split,
// so padding in the last data share is stripped on decode.
package fec
