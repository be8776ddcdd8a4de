package utils

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		input string
		want  time.Duration
	}{
		{"30m", 30 * time.Minute},
		{"2h", 2 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"1d12h", 36 * time.Hour},
		{" 45M ", 45 * time.Minute},
		{"90s", 90 * time.Second},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.input)
		if err != nil {
			t.Fatalf("%q: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestParseDurationRejectsBadInput(t *testing.T) {
	for _, input := range []string{"", "abc", "-2h", "0m", "d", "1w"} {
		if _, err := ParseDuration(input); err == nil {
			t.Fatalf("%q should not parse", input)
		}
	}
}
