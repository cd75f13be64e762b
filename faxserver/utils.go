package faxserver

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

var durationRe = regexp.MustCompile(`^(\d+)(ms|[smhd])$`)

// ParseDuration converts a string like "1m" or "5m" into a time.Duration
func ParseDuration(input string) (time.Duration, error) {
	matches := durationRe.FindStringSubmatch(input)
	if len(matches) != 3 {
		return 0, errors.New("invalid duration format")
	}

	value, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, err
	}

	switch matches[2] {
	case "ms":
		return time.Duration(value) * time.Millisecond, nil
	case "s":
		return time.Duration(value) * time.Second, nil
	case "m":
		return time.Duration(value) * time.Minute, nil
	case "h":
		return time.Duration(value) * time.Hour, nil
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return 0, errors.New("unsupported time unit")
	}
}

// durationOr parses input, falling back to def when it is empty or invalid.
func durationOr(input string, def time.Duration) time.Duration {
	if d, err := ParseDuration(input); err == nil {
		return d
	}
	return def
}

func atoiOr(input string, def int) int {
	if n, err := strconv.Atoi(input); err == nil && n > 0 {
		return n
	}
	return def
}
