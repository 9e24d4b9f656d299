package schedule

import "fmt"

// FormatClockTime turns "17:30" into "5:30 PM". Input that is not a valid
// 24-hour clock time is returned unchanged.
func FormatClockTime(hhmm string) string {
	hour, minute, ok := parseClock(hhmm)
	if !ok {
		return hhmm
	}
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	h12 := hour % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, minute, suffix)
}

// FormatTimeRange renders "5:30 PM – 7:00 PM".
func FormatTimeRange(start, end string) string {
	return FormatClockTime(start) + " – " + FormatClockTime(end)
}
