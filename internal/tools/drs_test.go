package tools

import "testing"

func TestNormalizeDocNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ac 25.1309-1a", "AC 25.1309-1A"},
		{"AC25.1309-1A", "AC 25.1309-1A"},
		{"  AC   20-136B  ", "AC 20-136B"},
		{"order 8110.4", "ORDER 8110.4"},
		{"TSO-C129", "TSO -C129"},
	}
	for _, tt := range tests {
		if got := normalizeDocNumber(tt.in); got != tt.want {
			t.Errorf("normalizeDocNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBaseDocNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AC 20-136B CHG 1", "AC 20-136B"},
		{"AC 20-136B Change 2", "AC 20-136B"},
		{"AC 25.1309-1A Ed Update", "AC 25.1309-1A"},
		{"AC 25.1309-1A", "AC 25.1309-1A"},
	}
	for _, tt := range tests {
		if got := baseDocNumber(tt.in); got != tt.want {
			t.Errorf("baseDocNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBestMatchTiers(t *testing.T) {
	docs := []drsDocument{
		{DocumentNumber: "AC 25.1309-1A CHG 1"},
		{DocumentNumber: "AC 25.1309-1A"},
		{DocumentNumber: "AC 25.1309-1B"},
	}

	// Exact match wins over base and prefix matches earlier in the
	// list.
	got := bestMatch(docs, "AC 25.1309-1A")
	if got.DocumentNumber != "AC 25.1309-1A" {
		t.Errorf("exact tier: got %q", got.DocumentNumber)
	}

	// No exact match: the base-number tier strips the CHG suffix.
	baseOnly := []drsDocument{
		{DocumentNumber: "AC 20-136B CHG 1"},
		{DocumentNumber: "AC 20-136C"},
	}
	got = bestMatch(baseOnly, "AC 20-136B")
	if got.DocumentNumber != "AC 20-136B CHG 1" {
		t.Errorf("base tier: got %q", got.DocumentNumber)
	}

	// No exact or base match: prefix tier.
	prefixOnly := []drsDocument{
		{DocumentNumber: "AC 23-8C"},
		{DocumentNumber: "AC 25.1309-1A"},
	}
	got = bestMatch(prefixOnly, "AC 25.1309")
	if got.DocumentNumber != "AC 25.1309-1A" {
		t.Errorf("prefix tier: got %q", got.DocumentNumber)
	}

	// Nothing matches: fall back to the first result.
	unrelated := []drsDocument{
		{DocumentNumber: "AC 43.13-1B"},
		{DocumentNumber: "AC 91-79A"},
	}
	got = bestMatch(unrelated, "AC 20-158")
	if got.DocumentNumber != "AC 43.13-1B" {
		t.Errorf("fallback tier: got %q", got.DocumentNumber)
	}
}
