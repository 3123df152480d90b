package scheduler

import "time"

// InQuietHours reports whether now falls inside the do-not-disturb window
// [startHour, endHour). Equal bounds mean the window is empty; a start after
// the end wraps across midnight. The check is hour-granular.
func InQuietHours(now time.Time, startHour, endHour int) bool {
	if startHour == endHour {
		return false
	}
	h := now.Hour()
	if startHour < endHour {
		return h >= startHour && h < endHour
	}
	return h >= startHour || h < endHour
}

// untilQuietEnd returns the duration from now until the next moment the
// quiet window ends, assuming now is inside the window.
func untilQuietEnd(now time.Time, endHour int) time.Duration {
	end := time.Date(now.Year(), now.Month(), now.Day(), endHour, 0, 0, 0, now.Location())
	if !end.After(now) {
		end = end.Add(24 * time.Hour)
	}
	return end.Sub(now)
}
