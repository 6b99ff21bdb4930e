package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTemplateHour/Minute はテンプレートの timeOfDay が無い・壊れている場合の時刻です。
const (
	DefaultTemplateHour   = 9
	DefaultTemplateMinute = 0
)

// parseClock は "HH:MM" を厳密に解釈します。
func parseClock(s string) (hour, minute int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, okH := clockPart(parts[0], 23)
	m, okM := clockPart(parts[1], 59)
	if !okH || !okM {
		return 0, 0, false
	}
	return h, m, true
}

// parseClockLenient は "HH:MM" を解釈し、不正・欠落した部分は 0 とします。
func parseClockLenient(s string) (hour, minute int) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if h, ok := clockPart(parts[0], 23); ok {
		hour = h
	}
	if len(parts) == 2 {
		if m, ok := clockPart(parts[1], 59); ok {
			minute = m
		}
	}
	return hour, minute
}

func clockPart(s string, max int) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 2 {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > max {
		return 0, false
	}
	return n, true
}

func formatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// clockOf は t の (loc での) 時刻を "HH:MM" で返します。
func clockOf(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	return formatClock(t.Hour(), t.Minute())
}

// atClock は day の暦日 (loc) の hour:minute を返します。
func atClock(day time.Time, loc *time.Location, hour, minute int) time.Time {
	day = day.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
}
