package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in     string
		hour   int
		minute int
		ok     bool
	}{
		{"07:30", 7, 30, true},
		{"7:05", 7, 5, true},
		{" 23:59 ", 23, 59, true},
		{"00:00", 0, 0, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"1230", 0, 0, false},
		{"12:3:4", 0, 0, false},
		{"ab:cd", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		h, m, ok := parseClock(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.hour, h, tt.in)
			assert.Equal(t, tt.minute, m, tt.in)
		}
	}
}

func TestParseClockLenient(t *testing.T) {
	tests := []struct {
		in     string
		hour   int
		minute int
	}{
		{"18:45", 18, 45},
		{"18", 18, 0},
		{"xx:45", 0, 45},
		{"99:99", 0, 0},
		{"", 0, 0},
		{"6:", 6, 0},
	}
	for _, tt := range tests {
		h, m := parseClockLenient(tt.in)
		assert.Equal(t, tt.hour, h, tt.in)
		assert.Equal(t, tt.minute, m, tt.in)
	}
}

func TestAtClock_KeepsWallClockOnDSTDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 2025-03-09 は夏時間開始日 (23時間の日)
	day := time.Date(2025, 3, 9, 0, 0, 0, 0, ny)
	got := atClock(day, ny, 9, 0)
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, 9, got.Day())
	assert.Equal(t, "09:00", clockOf(got, ny))
}
