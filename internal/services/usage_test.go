package services

import "testing"

func TestUsageKeys(t *testing.T) {
	if got := usageKey("2026-08-30", "visitor-abc123"); got != "usage:2026-08-30:visitor-abc123" {
		t.Fatalf("usageKey = %q", got)
	}
	if got := usageMetaKey("2026-08-30", "visitor-abc123"); got != "usagemeta:2026-08-30:visitor-abc123" {
		t.Fatalf("usageMetaKey = %q", got)
	}
}

func TestTodayFormat(t *testing.T) {
	d := today()
	if len(d) != 10 || d[4] != '-' || d[7] != '-' {
		t.Fatalf("today = %q", d)
	}
}
