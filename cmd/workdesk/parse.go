package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/baiirun/workdesk/internal/model"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseWhen accepts an absolute date in local time or an offset from now
// such as "+4h" or "+3d".
func parseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "+"); ok {
		if days, ok := strings.CutSuffix(rest, "d"); ok {
			n, err := strconv.Atoi(days)
			if err != nil {
				return time.Time{}, fmt.Errorf("invalid offset %q", s)
			}
			return now.AddDate(0, 0, n), nil
		}
		d, err := time.ParseDuration(rest)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid offset %q", s)
		}
		return now.Add(d), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD, \"YYYY-MM-DD HH:MM\" or +4h/+3d)", s)
}

// parseUntil is parseWhen for the end of a recurring series: a bare date
// covers that whole day.
func parseUntil(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if day, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return parseWhen(s, now)
}

// optionalWhen parses a flag value that may be empty.
func optionalWhen(s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseWhen(s, now)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parsePriority(s string) (model.Priority, error) {
	p := model.Priority(strings.ToLower(s))
	if !p.IsValid() {
		return "", model.Invalid("priority", "must be one of critical, high, medium, low, got %q", s)
	}
	return p, nil
}

func parseStatus(s string) (model.Status, error) {
	st := model.Status(strings.ReplaceAll(strings.ToLower(s), "-", "_"))
	if !st.IsValid() {
		return "", model.Invalid("status", "unknown status %q", s)
	}
	return st, nil
}

func parseHours(s string) (float64, error) {
	h, err := strconv.ParseFloat(strings.TrimSuffix(s, "h"), 64)
	if err != nil {
		return 0, model.Invalid("hours", "%q is not a number", s)
	}
	return h, nil
}
