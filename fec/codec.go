package fec

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/reedsolomon"
	"github.com/opd-ai/fecjitter/jitter"
	"github.com/sirupsen/logrus"
)

// lengthPrefixSize is the size of the frame length header carried in the
// first data share.
const lengthPrefixSize = 4

// MaxTotalShards is the largest n a GF(2^8) Reed-Solomon code supports.
const MaxTotalShards = 256

// Encoder splits a frame into erasure-coded shares.
type Encoder interface {
	Encode(frame []byte) ([][]byte, error)
}

// Decoder recovers a frame from at least k of its shares.
type Decoder interface {
	Decode(shares jitter.FrameMap, k uint32) ([]byte, error)
}

// Codec is a Reed-Solomon k-of-n code over fixed-size shares. It is safe for
// concurrent use.
type Codec struct {
	dataShards  int
	totalShards int
	shareSize   int
	rs          reedsolomon.Encoder
}

// NewCodec creates a codec producing totalShards shares of shareSize bytes,
// any dataShards of which recover the frame.
func NewCodec(dataShards, totalShards, shareSize int) (*Codec, error) {
	if dataShards <= 0 {
		return nil, fmt.Errorf("data shards must be positive, got %d", dataShards)
	}
	if totalShards <= dataShards || totalShards > MaxTotalShards {
		return nil, fmt.Errorf("total shards must be in (%d, %d], got %d", dataShards, MaxTotalShards, totalShards)
	}
	if shareSize <= 0 {
		return nil, fmt.Errorf("share size must be positive, got %d", shareSize)
	}

	rs, err := reedsolomon.New(dataShards, totalShards-dataShards)
	if err != nil {
		return nil, fmt.Errorf("failed to create reed-solomon encoder: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewCodec",
		"data_shards":  dataShards,
		"total_shards": totalShards,
		"share_size":   shareSize,
	}).Info("Created erasure codec")

	return &Codec{
		dataShards:  dataShards,
		totalShards: totalShards,
		shareSize:   shareSize,
		rs:          rs,
	}, nil
}

// DataShards returns k.
func (c *Codec) DataShards() int { return c.dataShards }

// TotalShards returns n.
func (c *Codec) TotalShards() int { return c.totalShards }

// ShareSize returns the byte length of every share.
func (c *Codec) ShareSize() int { return c.shareSize }

// MaxFrameSize returns the largest frame Encode accepts.
func (c *Codec) MaxFrameSize() int {
	return c.dataShards*c.shareSize - lengthPrefixSize
}

// Encode returns n shares for frame; shares[i] has block index i.
func (c *Codec) Encode(frame []byte) ([][]byte, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(frame) > c.MaxFrameSize() {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrFrameTooLarge, len(frame), c.MaxFrameSize())
	}

	// One contiguous allocation backs every share.
	backing := make([]byte, c.totalShards*c.shareSize)
	binary.BigEndian.PutUint32(backing, uint32(len(frame)))
	copy(backing[lengthPrefixSize:], frame)

	shares := make([][]byte, c.totalShards)
	for i := range shares {
		shares[i] = backing[i*c.shareSize : (i+1)*c.shareSize : (i+1)*c.shareSize]
	}

	if err := c.rs.Encode(shares); err != nil {
		return nil, fmt.Errorf("failed to compute parity: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Codec.Encode",
		"frame_size": len(frame),
		"shares":     len(shares),
	}).Debug("Encoded frame")

	return shares, nil
}

// Decode reconstructs the frame from shares. k must equal the codec's data
// shard count. Extra shares beyond k are used only if some data shares are
// missing.
func (c *Codec) Decode(shares jitter.FrameMap, k uint32) ([]byte, error) {
	if int(k) != c.dataShards {
		return nil, fmt.Errorf("%w: frame k=%d, codec k=%d", ErrThresholdMismatch, k, c.dataShards)
	}
	if len(shares) < c.dataShards {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrTooFewShares, len(shares), c.dataShards)
	}

	shards := make([][]byte, c.totalShards)
	for idx, payload := range shares {
		if idx >= uint32(c.totalShards) {
			return nil, fmt.Errorf("%w: %d >= %d", ErrBlockIndexRange, idx, c.totalShards)
		}
		if len(payload) != c.shareSize {
			return nil, fmt.Errorf("%w: block %d is %d bytes, want %d", ErrShareSize, idx, len(payload), c.shareSize)
		}
		// Reconstruction writes into missing data shards only, never into
		// these, so the transport memory is left untouched.
		shards[idx] = payload
	}

	if err := c.rs.ReconstructData(shards); err != nil {
		return nil, fmt.Errorf("failed to reconstruct data shards: %w", err)
	}

	data := make([]byte, 0, c.dataShards*c.shareSize)
	for _, shard := range shards[:c.dataShards] {
		data = append(data, shard...)
	}

	frameLen := int(binary.BigEndian.Uint32(data))
	if frameLen == 0 || frameLen > len(data)-lengthPrefixSize {
		return nil, fmt.Errorf("%w: length prefix %d", ErrCorruptFrame, frameLen)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Codec.Decode",
		"shares":     len(shares),
		"frame_size": frameLen,
	}).Debug("Decoded frame")

	return data[lengthPrefixSize : lengthPrefixSize+frameLen], nil
}
