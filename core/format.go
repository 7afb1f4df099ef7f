package core

import "fmt"

// FormatMissionTime renders a tick count as MM:SS. Minutes keep growing past
// 99; negative input renders as 00:00.
func FormatMissionTime(ticks int64) string {
	if ticks < 0 {
		ticks = 0
	}
	return fmt.Sprintf("%02d:%02d", ticks/60, ticks%60)
}
