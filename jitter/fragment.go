package jitter

import "sort"

// FrameID is a value of the 8-bit cyclic frame counter.
type FrameID uint8

// FrameIDModulus is the number of distinct frame ids before the counter wraps.
const FrameIDModulus = 256

// Handle is an opaque reference to transport-owned fragment memory.
type Handle any

// Fragment is one erasure-coded share of a frame as delivered by the
// transport. Payload aliases the memory behind Handle.
type Fragment struct {
	FrameID    FrameID
	BlockIndex uint32
	Threshold  uint32 // k, distinct shares needed to decode the frame
	Payload    []byte
	Handle     Handle
}

// Releaser hands fragment memory back to the transport that owns it.
type Releaser interface {
	ReleaseFragment(h Handle)
}

// ReleaseFunc adapts an ordinary function to the Releaser interface.
type ReleaseFunc func(h Handle)

// ReleaseFragment calls f(h).
func (f ReleaseFunc) ReleaseFragment(h Handle) {
	f(h)
}

// NopReleaser is a Releaser for handles that need no disposal.
var NopReleaser Releaser = ReleaseFunc(func(Handle) {})

// FrameMap maps block index to share payload for one frame.
type FrameMap map[uint32][]byte

// Indices returns the block indices of m in ascending order.
func (m FrameMap) Indices() []uint32 {
	indices := make([]uint32, 0, len(m))
	for idx := range m {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	return indices
}
