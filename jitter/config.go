package jitter

import "fmt"

// Lookback window bounds. A window wider than half the modulus would reach
// across a wrap into frames newer than the one being cleared.
const (
	DefaultLookbackWindow = 20
	MinLookbackWindow     = 1
	MaxLookbackWindow     = FrameIDModulus / 2
)

// Config holds the buffer's eviction policy.
type Config struct {
	// LookbackWindow is the number of ids ClearFrame(F) retires, F included:
	// every live id in [F-LookbackWindow+1, F] modulo FrameIDModulus.
	LookbackWindow int `yaml:"lookback_window"`
}

// DefaultConfig returns the configuration the buffer was tuned with.
func DefaultConfig() Config {
	return Config{LookbackWindow: DefaultLookbackWindow}
}

// Validate checks that the window is within [MinLookbackWindow, MaxLookbackWindow].
func (c Config) Validate() error {
	if c.LookbackWindow < MinLookbackWindow || c.LookbackWindow > MaxLookbackWindow {
		return fmt.Errorf("%w: lookback window %d outside [%d, %d]",
			ErrInvalidConfig, c.LookbackWindow, MinLookbackWindow, MaxLookbackWindow)
	}
	return nil
}
