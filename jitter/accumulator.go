package jitter

import (
	"fmt"
	"math"
)

// unsetThreshold keeps an empty accumulator from ever reporting ready.
const unsetThreshold = math.MaxUint32

// FrameAccumulator holds the fragments received so far for one frame id.
//
// The threshold is taken from the most recently inserted fragment. Senders
// that disagree on k for the same frame are not rejected; the last write wins
// and readiness follows it, which can make readiness flip back to false.
type FrameAccumulator struct {
	frameID   FrameID
	fragments map[uint32]Fragment // block index -> fragment
	threshold uint32
}

// NewFrameAccumulator creates an empty accumulator for frameID.
func NewFrameAccumulator(frameID FrameID) *FrameAccumulator {
	return &FrameAccumulator{
		frameID:   frameID,
		fragments: make(map[uint32]Fragment),
		threshold: unsetThreshold,
	}
}

// FrameID returns the frame id this accumulator collects.
func (fa *FrameAccumulator) FrameID() FrameID {
	return fa.frameID
}

// AddFragment indexes frag under blockIndex and adopts its threshold.
//
// If blockIndex was already present, the previously indexed fragment is
// returned with replaced set to true. The accumulator keeps no reference to
// it; disposing of its handle is the caller's business.
func (fa *FrameAccumulator) AddFragment(blockIndex uint32, frag Fragment) (displaced Fragment, replaced bool) {
	displaced, replaced = fa.fragments[blockIndex]
	fa.fragments[blockIndex] = frag
	fa.threshold = frag.Threshold
	return displaced, replaced
}

// IsReady reports whether the distinct block index count has reached k.
func (fa *FrameAccumulator) IsReady() bool {
	return uint64(len(fa.fragments)) >= uint64(fa.threshold)
}

// Len returns the number of distinct block indices held.
func (fa *FrameAccumulator) Len() int {
	return len(fa.fragments)
}

// Threshold returns k for a ready frame.
func (fa *FrameAccumulator) Threshold() (uint32, error) {
	if !fa.IsReady() {
		return 0, fmt.Errorf("frame %d has %d of %d fragments: %w", fa.frameID, len(fa.fragments), fa.threshold, ErrNotReady)
	}
	return fa.threshold, nil
}

// FrameMap returns block index -> payload for a ready frame.
//
// The payload slices alias transport memory and are valid only until the
// frame is retired.
func (fa *FrameAccumulator) FrameMap() (FrameMap, error) {
	if !fa.IsReady() {
		return nil, fmt.Errorf("frame %d has %d of %d fragments: %w", fa.frameID, len(fa.fragments), fa.threshold, ErrNotReady)
	}

	m := make(FrameMap, len(fa.fragments))
	for idx, frag := range fa.fragments {
		m[idx] = frag.Payload
	}
	return m, nil
}

// handles detaches and returns every indexed handle, leaving the accumulator
// empty. It is the only way handles leave an accumulator for release.
func (fa *FrameAccumulator) handles() []Handle {
	hs := make([]Handle, 0, len(fa.fragments))
	for idx, frag := range fa.fragments {
		hs = append(hs, frag.Handle)
		delete(fa.fragments, idx)
	}
	fa.threshold = unsetThreshold
	return hs
}

// Release calls r once for every indexed fragment handle and empties the
// accumulator, so a second call releases nothing. It returns the number of
// handles released.
func (fa *FrameAccumulator) Release(r Releaser) int {
	hs := fa.handles()
	for _, h := range hs {
		r.ReleaseFragment(h)
	}
	return len(hs)
}
