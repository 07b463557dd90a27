package utils

import (
	"regexp"
	"testing"
)

func TestRandomHex(t *testing.T) {
	hexPattern := regexp.MustCompile(`^[0-9a-f]+$`)

	tests := []struct {
		name    string
		n       int
		wantLen int
	}{
		{name: "16 bytes", n: 16, wantLen: 32},
		{name: "1 byte", n: 1, wantLen: 2},
		{name: "zero bytes", n: 0, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RandomHex(tt.n)
			if err != nil {
				t.Fatalf("RandomHex(%d) returned error: %v", tt.n, err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("Expected length %d, got %d", tt.wantLen, len(got))
			}
			if tt.wantLen > 0 && !hexPattern.MatchString(got) {
				t.Errorf("Expected lowercase hex, got %q", got)
			}
		})
	}
}

func TestRandomHexUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := RandomHex(16)
		if err != nil {
			t.Fatalf("RandomHex returned error: %v", err)
		}
		if seen[id] {
			t.Fatalf("Duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{name: "Shorter than max", input: "abc", max: 5, expected: "abc"},
		{name: "Exactly max", input: "abcde", max: 5, expected: "abcde"},
		{name: "Longer than max", input: "abcdefgh", max: 5, expected: "abcde..."},
		{name: "Multibyte runes", input: "ñandú ñandú", max: 5, expected: "ñandú..."},
		{name: "Empty string", input: "", max: 5, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.input, tt.max); got != tt.expected {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.expected)
			}
		})
	}
}
