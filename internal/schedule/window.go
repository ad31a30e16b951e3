// Package schedule holds the pure calendar arithmetic behind campaign
// calling windows. Everything here is side-effect free so the rules can be
// tested against fixed instants and timezones.
package schedule

import (
	"strconv"
	"strings"
	"time"
)

// WithinCallingHours reports whether now, converted into tz, falls inside
// the inclusive [startHHMM, endHHMM] window. A missing bound means no
// restriction on that side; a malformed bound or timezone is treated as
// unrestricted rather than blocking dispatch.
//
// DST note: conversion uses Go's location rules, so ambiguous or skipped
// local times resolve however time.In does. No extra clamping is applied.
func WithinCallingHours(now time.Time, startHHMM, endHHMM, tz string) bool {
	if startHHMM == "" || endHHMM == "" {
		return true
	}

	start, ok := parseMinutes(startHHMM)
	if !ok {
		return true
	}
	end, ok := parseMinutes(endHHMM)
	if !ok {
		return true
	}

	local := now.In(location(tz))
	minute := local.Hour()*60 + local.Minute()

	if end < start {
		// window spans midnight
		return minute >= start || minute <= end
	}
	return minute >= start && minute <= end
}

// IsCallingDay reports whether today's weekday in tz is one of days
// (0=Sunday). An empty set means every day is a calling day.
func IsCallingDay(now time.Time, days []int, tz string) bool {
	if len(days) == 0 {
		return true
	}

	weekday := int(now.In(location(tz)).Weekday())
	for _, d := range days {
		if d == weekday {
			return true
		}
	}
	return false
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns the most recent Sunday midnight at or before t,
// in t's own location.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func parseMinutes(hhmm string) (int, bool) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
