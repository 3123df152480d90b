package scheduler

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestInQuietHours(t *testing.T) {
	tests := []struct {
		name       string
		now        time.Time
		start, end int
		want       bool
	}{
		{"wrapped window, after midnight", at(0, 30), 23, 7, true},
		{"wrapped window, late evening", at(23, 5), 23, 7, true},
		{"wrapped window, midday", at(12, 0), 23, 7, false},
		{"wrapped window, exactly at end", at(7, 0), 23, 7, false},
		{"same-day window, inside", at(10, 0), 9, 17, true},
		{"same-day window, before", at(8, 59), 9, 17, false},
		{"same-day window, at start", at(9, 0), 9, 17, true},
		{"same-day window, at end", at(17, 0), 9, 17, false},
		{"equal bounds never quiet", at(23, 0), 23, 23, false},
		{"equal bounds midnight", at(0, 0), 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InQuietHours(tt.now, tt.start, tt.end); got != tt.want {
				t.Errorf("InQuietHours(%v, %d, %d) = %v, want %v",
					tt.now, tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestUntilQuietEnd(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		end  int
		want time.Duration
	}{
		{"end later today", at(2, 0), 7, 5 * time.Hour},
		{"end tomorrow", at(23, 30), 7, 7*time.Hour + 30*time.Minute},
		{"end exactly now rolls over", at(7, 0), 7, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := untilQuietEnd(tt.now, tt.end); got != tt.want {
				t.Errorf("untilQuietEnd(%v, %d) = %v, want %v", tt.now, tt.end, got, tt.want)
			}
		})
	}
}
