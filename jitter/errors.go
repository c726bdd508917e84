package jitter

import "errors"

// ErrNotReady is returned by FrameMap and Threshold when the frame id is
// unknown or has fewer distinct fragments than its threshold. The two cases
// are not distinguished; retrying later is always valid.
var ErrNotReady = errors.New("frame not ready")

// ErrInvalidConfig indicates a buffer configuration outside its valid range.
var ErrInvalidConfig = errors.New("invalid buffer configuration")
