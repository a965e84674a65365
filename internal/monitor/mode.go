package monitor

import "fmt"

// Mode selects what ReportFatal does when nobody is observing.
type Mode int

const (
	// ModeDebug panics on unobserved fatal reports.
	ModeDebug Mode = iota
	// ModeRelease logs unobserved fatal reports and continues.
	ModeRelease
)

// String returns "debug" or "release".
func (m Mode) String() string {
	if m == ModeRelease {
		return "release"
	}
	return "debug"
}

// ParseMode parses "debug" or "release". The empty string yields DefaultMode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "":
		return DefaultMode, nil
	case "debug":
		return ModeDebug, nil
	case "release":
		return ModeRelease, nil
	default:
		return ModeDebug, fmt.Errorf("unknown mode %q (want debug or release)", s)
	}
}
