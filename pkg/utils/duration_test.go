package utils

import (
	"testing"
	"unicode/utf8"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "00:00:00"},
		{59, "00:00:59"},
		{125, "00:02:05"},
		{3600, "01:00:00"},
		{90061, "25:01:01"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatHoursMinutes(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0h 0m"},
		{59, "0h 0m"},
		{3660, "1h 1m"},
		{7325, "2h 2m"},
	}
	for _, tt := range tests {
		if got := FormatHoursMinutes(tt.seconds); got != tt.want {
			t.Errorf("FormatHoursMinutes(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("short", 10); got != "short" {
		t.Errorf("TruncateString(short, 10) = %q", got)
	}
	if got := TruncateString("0123456789", 8); got != "01234..." {
		t.Errorf("TruncateString = %q, want 01234...", got)
	}
}

func TestTruncateStringRuneBoundary(t *testing.T) {
	// "służba" repeated; cutting inside the two-byte ż must not emit a
	// broken sequence
	s := "służba służba służba"
	for maxLen := 4; maxLen < len(s); maxLen++ {
		got := TruncateString(s, maxLen)
		if !utf8.ValidString(got) {
			t.Errorf("TruncateString(%q, %d) = %q is not valid UTF-8", s, maxLen, got)
		}
		if len(got) > maxLen {
			t.Errorf("TruncateString(%q, %d) = %q exceeds max length", s, maxLen, got)
		}
	}
}
