// Package jitter reassembles erasure-coded media frames from fragments that
// arrive late, out of order, duplicated or not at all.
//
// A FrameBuffer indexes one FrameAccumulator per live frame id. Each
// accumulator collects fragments by block index and reports readiness once
// the number of distinct block indices reaches the frame's threshold k, the
// minimum number of shares an erasure decoder needs.
//
// # Data flow
//
// The network receive path inserts fragments:
//
//	buf, err := jitter.NewFrameBuffer(jitter.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	buf.AddPacket(frag.FrameID, frag.BlockIndex, frag)
//
// The decode path polls for the next ready frame, decodes it and retires it:
//
//	if id, ok := buf.NextReadyFrame(); ok {
//	    shares, _ := buf.FrameMap(id)
//	    k, _ := buf.Threshold(id)
//	    frame, err := decoder.Decode(shares, k)
//	    buf.ClearFrame(releaser, id)
//	}
//
// The buffer has no notification primitive. Callers back off between empty
// polls.
//
// # Frame ids and wraparound
//
// Frame ids are 8-bit and wrap at FrameIDModulus. When the ready frames span
// more than half the modulus, NextReadyFrame assumes the low ids belong to the
// cycle after the wrap and returns the numerically largest ready id. This is
// only correct while live frames never span more than half the modulus.
//
// # Ownership
//
// The buffer never copies or owns fragment memory. Each Fragment carries an
// opaque Handle belonging to the transport. ClearFrame unlinks the retired
// accumulators and calls Releaser.ReleaseFragment exactly once for every
// handle they index. A duplicate block index replaces the indexed fragment and
// AddPacket hands the displaced fragment straight back to the caller; the
// buffer never holds two fragments for one block index, so no handle is ever
// released twice or by the wrong party.
//
// ClearFrame also retires the LookbackWindow-1 ids preceding the cleared one,
// which bounds memory held by frames that never become ready.
//
// # Thread Safety
//
// FrameBuffer is safe for one producer and one consumer goroutine (or any
// number of each). Every operation holds a single mutex for its duration only;
// release callbacks run after the mutex is dropped. FrameAccumulator is not
// synchronized and is owned by its buffer.
package jitter
