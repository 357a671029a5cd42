package timeutil

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatHMS renders a video timestamp in seconds as HH:MM:SS, rounding to
// the nearest second and clamping negatives to zero.
func FormatHMS(tsS float64) string {
	total := int(tsS + 0.5)
	if tsS < 0 {
		total = 0
	}
	sec := total % 60
	totalMin := total / 60
	return fmt.Sprintf("%02d:%02d:%02d", totalMin/60, totalMin%60, sec)
}

// ParseHMS parses HH:MM:SS with optional .mmm milliseconds on the seconds
// field into seconds. An empty string parses as zero.
func ParseHMS(value string) (float64, error) {
	if value == "" {
		return 0, nil
	}
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("time must be HH:MM:SS.mmm, got %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hours in %q: %w", value, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minutes in %q: %w", value, err)
	}
	secStr, msStr, hasMS := strings.Cut(parts[2], ".")
	sec, err := strconv.Atoi(secStr)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds in %q: %w", value, err)
	}
	ms := 0
	if hasMS {
		ms, err = strconv.Atoi(msStr)
		if err != nil {
			return 0, fmt.Errorf("invalid milliseconds in %q: %w", value, err)
		}
	}
	return float64(hour)*3600 + float64(minute)*60 + float64(sec) + float64(ms)/1000, nil
}
