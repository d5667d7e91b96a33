package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime converts a range bound to unix seconds. Accepted forms are
// "" (unbounded, 0), "now", "now-<duration>", unix seconds, and the
// layouts in timeLayouts (UTC unless an offset is given).
func parseTime(s string, now time.Time) (int64, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return 0, nil
	case s == "now":
		return now.Unix(), nil
	case strings.HasPrefix(s, "now-"):
		d, err := time.ParseDuration(s[len("now-"):])
		if err != nil {
			return 0, fmt.Errorf("invalid relative time %q: %w", s, err)
		}
		return now.Add(-d).Unix(), nil
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return secs, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q", s)
}
