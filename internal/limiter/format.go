package limiter

import (
	"fmt"
	"time"
)

// FormatRemaining renders a wait duration for end users: whole seconds below
// one minute, whole minutes at or above it, both rounded up so the displayed
// wait is never shorter than the real one.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64((d + time.Second - 1) / time.Second)
	if seconds < 60 {
		if seconds == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", seconds)
	}
	minutes := (seconds + 59) / 60
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
