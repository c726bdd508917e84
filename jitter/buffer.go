package jitter

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Statistics are cumulative counters over the buffer's lifetime.
type Statistics struct {
	FragmentsAdded    uint64 // every AddPacket call
	FragmentsReplaced uint64 // AddPacket calls that displaced an indexed fragment
	FragmentsReleased uint64 // handles passed to a Releaser
	FramesCreated     uint64
	FramesCleared     uint64 // accumulators retired by ClearFrame as the target id
	FramesSwept       uint64 // accumulators retired by the lookback window
	IncompleteSwept   uint64 // swept accumulators that were not ready
}

// FrameBuffer indexes frame accumulators by frame id.
//
// It only shrinks through ClearFrame (and Reset); nothing expires on a timer.
// Memory is bounded by LookbackWindow incomplete frames plus however many
// ready frames the consumer leaves unretired.
type FrameBuffer struct {
	mu     sync.Mutex
	frames map[FrameID]*FrameAccumulator
	window int
	stats  Statistics
}

// NewFrameBuffer creates an empty buffer with the given eviction policy.
func NewFrameBuffer(cfg Config) (*FrameBuffer, error) {
	if err := cfg.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewFrameBuffer",
			"error":    err.Error(),
		}).Error("Invalid frame buffer configuration")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":        "NewFrameBuffer",
		"lookback_window": cfg.LookbackWindow,
	}).Info("Creating frame buffer")

	return &FrameBuffer{
		frames: make(map[FrameID]*FrameAccumulator),
		window: cfg.LookbackWindow,
	}, nil
}

// AddPacket routes frag to the accumulator for frameID, creating it on first
// use.
//
// A fragment already indexed under blockIndex is replaced and returned with
// replaced set to true. Ownership of the displaced fragment's handle goes
// back to the caller; the buffer will never release it.
func (fb *FrameBuffer) AddPacket(frameID FrameID, blockIndex uint32, frag Fragment) (displaced Fragment, replaced bool) {
	fb.mu.Lock()
	acc, exists := fb.frames[frameID]
	if !exists {
		acc = NewFrameAccumulator(frameID)
		fb.frames[frameID] = acc
		fb.stats.FramesCreated++
	}

	prevThreshold := acc.threshold
	displaced, replaced = acc.AddFragment(blockIndex, frag)
	fb.stats.FragmentsAdded++
	if replaced {
		fb.stats.FragmentsReplaced++
	}
	count := acc.Len()
	fb.mu.Unlock()

	if exists && prevThreshold != frag.Threshold {
		logrus.WithFields(logrus.Fields{
			"function":       "FrameBuffer.AddPacket",
			"frame_id":       frameID,
			"old_threshold":  prevThreshold,
			"new_threshold":  frag.Threshold,
			"fragment_count": count,
		}).Debug("Fragment threshold differs from earlier fragments of the frame")
	}

	return displaced, replaced
}

// FrameReady reports whether frameID has reached its threshold. Unknown ids
// are simply not ready.
func (fb *FrameBuffer) FrameReady(frameID FrameID) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	acc, exists := fb.frames[frameID]
	return exists && acc.IsReady()
}

// FrameMap returns the share payloads of a ready frame, or an error wrapping
// ErrNotReady.
func (fb *FrameBuffer) FrameMap(frameID FrameID) (FrameMap, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	acc, exists := fb.frames[frameID]
	if !exists {
		return nil, fmt.Errorf("frame %d unknown: %w", frameID, ErrNotReady)
	}
	return acc.FrameMap()
}

// Threshold returns k for a ready frame, or an error wrapping ErrNotReady.
func (fb *FrameBuffer) Threshold(frameID FrameID) (uint32, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	acc, exists := fb.frames[frameID]
	if !exists {
		return 0, fmt.Errorf("frame %d unknown: %w", frameID, ErrNotReady)
	}
	return acc.Threshold()
}

// ClearFrame retires frameID and every live id in the lookback window before
// it, then releases all of their handles through r. Ids that are not live are
// skipped, so repeated calls are harmless. It returns the number of handles
// released.
func (fb *FrameBuffer) ClearFrame(r Releaser, frameID FrameID) int {
	handles, incomplete := fb.retireWindow(frameID)

	for _, h := range handles {
		r.ReleaseFragment(h)
	}

	for _, swept := range incomplete {
		logrus.WithFields(logrus.Fields{
			"function":       "FrameBuffer.ClearFrame",
			"frame_id":       swept.id,
			"cleared_id":     frameID,
			"fragment_count": swept.fragments,
		}).Debug("Lookback window discarded incomplete frame")
	}
	if len(handles) > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "FrameBuffer.ClearFrame",
			"frame_id": frameID,
			"released": len(handles),
		}).Debug("Retired frame")
	}
	return len(handles)
}

// sweptFrame describes an incomplete frame discarded by the lookback window.
type sweptFrame struct {
	id        FrameID
	fragments int
}

// retireWindow unlinks the accumulators in [frameID-window+1, frameID] and
// detaches their handles, all under the lock. Releasing and logging happen
// outside it.
func (fb *FrameBuffer) retireWindow(frameID FrameID) ([]Handle, []sweptFrame) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	var (
		handles    []Handle
		incomplete []sweptFrame
	)
	for back := 0; back < fb.window; back++ {
		id := frameID - FrameID(back)
		acc, exists := fb.frames[id]
		if !exists {
			continue
		}

		if back == 0 {
			fb.stats.FramesCleared++
		} else {
			fb.stats.FramesSwept++
			if !acc.IsReady() {
				fb.stats.IncompleteSwept++
				incomplete = append(incomplete, sweptFrame{id: id, fragments: acc.Len()})
			}
		}

		handles = append(handles, acc.handles()...)
		delete(fb.frames, id)
	}

	fb.stats.FragmentsReleased += uint64(len(handles))
	return handles, incomplete
}

// NextReadyFrame returns the oldest ready frame id, resolving wraparound with
// NextReady.
func (fb *FrameBuffer) NextReadyFrame() (FrameID, bool) {
	fb.mu.Lock()
	ready := make([]FrameID, 0, len(fb.frames))
	for id, acc := range fb.frames {
		if acc.IsReady() {
			ready = append(ready, id)
		}
	}
	fb.mu.Unlock()

	return NextReady(ready)
}

// TotalSize returns the number of fragments held across all live frames.
func (fb *FrameBuffer) TotalSize() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	total := 0
	for _, acc := range fb.frames {
		total += acc.Len()
	}
	return total
}

// Len returns the number of live frame ids.
func (fb *FrameBuffer) Len() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	return len(fb.frames)
}

// Statistics returns a snapshot of the buffer counters.
func (fb *FrameBuffer) Statistics() Statistics {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	return fb.stats
}

// Reset retires every live frame and releases all handles through r. It is
// meant for session teardown.
func (fb *FrameBuffer) Reset(r Releaser) int {
	fb.mu.Lock()
	var handles []Handle
	for id, acc := range fb.frames {
		handles = append(handles, acc.handles()...)
		delete(fb.frames, id)
	}
	fb.stats.FragmentsReleased += uint64(len(handles))
	fb.mu.Unlock()

	for _, h := range handles {
		r.ReleaseFragment(h)
	}

	logrus.WithFields(logrus.Fields{
		"function": "FrameBuffer.Reset",
		"released": len(handles),
	}).Info("Frame buffer reset")
	return len(handles)
}
