package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration reads command-style durations like "30m", "2h", "7d" or
// "1d12h". Days are accepted on top of time.ParseDuration units.
func ParseDuration(input string) (time.Duration, error) {
	value := strings.TrimSpace(strings.ToLower(input))
	if value == "" {
		return 0, errors.New("empty duration")
	}

	var days int64
	if idx := strings.IndexByte(value, 'd'); idx >= 0 {
		parsed, err := strconv.ParseInt(value[:idx], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", input)
		}
		days = parsed
		value = value[idx+1:]
	}

	var rest time.Duration
	if value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", input)
		}
		rest = parsed
	}

	total := time.Duration(days)*24*time.Hour + rest
	if total <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", input)
	}
	return total, nil
}
