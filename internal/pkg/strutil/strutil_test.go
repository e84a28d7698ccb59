package strutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"shorter than limit", "abc", 10, "abc"},
		{"exact limit", "abcde", 5, "abcde"},
		{"ascii cut", "abcdef", 3, "abc"},
		{"zero limit", "abc", 0, ""},
		{"negative limit", "abc", -1, ""},
		{"cut inside two-byte rune", "a§b", 2, "a"},
		{"cut after two-byte rune", "a§b", 3, "a§"},
		{"cut inside emoji", "ab\U0001F6E9", 4, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in, tt.limit)
			if got != tt.want {
				t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("Truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestTruncateRegulatorySymbols(t *testing.T) {
	// Section references use U+00A7; a byte-index cut must never leave
	// half of one at the end.
	s := strings.Repeat("§", 300)
	got := Truncate(s, 499)
	if !utf8.ValidString(got) {
		t.Fatalf("invalid UTF-8: %q", got[len(got)-4:])
	}
	if len(got) != 498 {
		t.Fatalf("len = %d, want 498", len(got))
	}
}
