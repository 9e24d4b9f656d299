package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatClockTime(t *testing.T) {
	tests := map[string]string{
		"17:30":    "5:30 PM",
		"09:05":    "9:05 AM",
		"00:00":    "12:00 AM",
		"12:00":    "12:00 PM",
		"23:59":    "11:59 PM",
		"07:45:00": "7:45 AM",
		"garbage":  "garbage",
		"25:00":    "25:00",
		"":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatClockTime(in), in)
	}
}

func TestFormatTimeRange(t *testing.T) {
	assert.Equal(t, "5:30 PM – 7:00 PM", FormatTimeRange("17:30", "19:00"))
	assert.Equal(t, "tbd – 7:00 PM", FormatTimeRange("tbd", "19:00"))
}
