//go:build !release

package monitor

// DefaultMode is the mode a Bus starts in.
const DefaultMode = ModeDebug
