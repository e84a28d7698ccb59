package agents

import (
	"testing"

	"github.com/regscout/regscout-backend/internal/platform/logger"
)

func newTestRegistry() *Registry {
	return New(logger.NewNop(), nil, nil, nil)
}

func TestLookupResolvesIndexes(t *testing.T) {
	reg := newTestRegistry()
	tests := []struct {
		agent string
		index string
	}{
		{"faa", "faa-agent"},
		{"nrc", "nrc-agent"},
		{"dod", "dod-agent"},
		{"FAA", "faa-agent"},
	}
	for _, tt := range tests {
		cfg, err := reg.Lookup(tt.agent)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", tt.agent, err)
		}
		if cfg.SearchIndex != tt.index {
			t.Errorf("Lookup(%q).SearchIndex = %q, want %q", tt.agent, cfg.SearchIndex, tt.index)
		}
		if cfg.SystemPrompt == "" {
			t.Errorf("Lookup(%q) has empty system prompt", tt.agent)
		}
	}
}

func TestLookupEnvOverride(t *testing.T) {
	t.Setenv("AZURE_SEARCH_INDEX_NRC", "nrc-agent-staging")
	cfg, err := newTestRegistry().Lookup("nrc")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if cfg.SearchIndex != "nrc-agent-staging" {
		t.Fatalf("SearchIndex = %q, want env override", cfg.SearchIndex)
	}
}

func TestLookupUnknownAgent(t *testing.T) {
	if _, err := newTestRegistry().Lookup("easa"); err == nil {
		t.Fatal("expected error for unknown agent")
	}
}

func TestAgentToolSets(t *testing.T) {
	reg := newTestRegistry()
	tests := []struct {
		agent   string
		include []string
		exclude []string
	}{
		{"faa", []string{"search_indexed_content", "fetch_cfr_section", "search_drs", "fetch_drs_document", "list_my_documents"}, []string{"search_aps"}},
		{"nrc", []string{"search_indexed_content", "fetch_cfr_section", "search_aps", "fetch_aps_document"}, []string{"search_drs"}},
		{"dod", []string{"search_indexed_content", "fetch_cfr_section", "fetch_personal_document"}, []string{"search_drs", "search_aps"}},
	}
	for _, tt := range tests {
		cfg, err := reg.Lookup(tt.agent)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", tt.agent, err)
		}
		defined := map[string]bool{}
		for _, def := range cfg.Tools {
			defined[def.Name] = true
		}
		for _, name := range tt.include {
			if !defined[name] {
				t.Errorf("agent %s missing tool definition %s", tt.agent, name)
			}
			if _, ok := cfg.Registry[name]; !ok {
				t.Errorf("agent %s missing tool implementation %s", tt.agent, name)
			}
		}
		for _, name := range tt.exclude {
			if defined[name] {
				t.Errorf("agent %s should not expose %s", tt.agent, name)
			}
		}
		if len(cfg.Tools) != len(cfg.Registry) {
			t.Errorf("agent %s: %d definitions vs %d implementations", tt.agent, len(cfg.Tools), len(cfg.Registry))
		}
	}
}
