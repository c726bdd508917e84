package jitter

// NextReady picks the frame to decode next from a set of ready frame ids.
//
// Ids are compared raw. If the spread between the smallest and largest id
// exceeds half the modulus, the counter is assumed to have wrapped between
// them: the low ids are the newer cycle and the largest id is the oldest
// frame. Otherwise the smallest id is the oldest. The heuristic holds only
// while live frames never span more than half the modulus.
func NextReady(ready []FrameID) (FrameID, bool) {
	if len(ready) == 0 {
		return 0, false
	}

	minID, maxID := ready[0], ready[0]
	for _, id := range ready[1:] {
		if id < minID {
			minID = id
		}
		if id > maxID {
			maxID = id
		}
	}

	if int(maxID)-int(minID) > FrameIDModulus/2 {
		return maxID, true
	}
	return minID, true
}
