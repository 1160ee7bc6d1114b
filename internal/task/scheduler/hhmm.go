package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// ParseHHMM parses a wall-clock time of day like "08:00" or "7:30".
func ParseHHMM(raw string) (hour, minute int, err error) {
	m := reHHMM.FindStringSubmatch(raw)
	if len(m) != 3 {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", strings.TrimSpace(raw))
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", raw)
	}
	if minute > 59 {
		return 0, 0, fmt.Errorf("invalid minutes in %q", raw)
	}
	return hour, minute, nil
}

// DailySpec converts "HH:MM" into a 5-field cron expression.
func DailySpec(atHHMM string) (string, error) {
	h, m, err := ParseHHMM(atHHMM)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}
