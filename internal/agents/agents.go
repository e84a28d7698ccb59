// Package agents holds the per-agent configuration: system prompt,
// search index, and the tool set each agent exposes to the model.
package agents

import (
	"fmt"
	"strings"

	"github.com/regscout/regscout-backend/internal/cache"
	"github.com/regscout/regscout-backend/internal/platform/envutil"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/searchproxy"
	"github.com/regscout/regscout-backend/internal/tools"
)

// Config is one agent's full configuration. The orchestrator injects
// SearchIndex into tools that declare the capability, routing
// documents to the agent-specific search index.
type Config struct {
	Name         string
	SearchIndex  string
	SystemPrompt string
	Tools        []tools.Definition
	Registry     map[string]tools.Tool
}

// Registry builds and looks up agent configurations. Tool instances
// are shared across agents; only prompts, tool lists, and search
// indexes differ.
type Registry struct {
	configs map[string]Config
}

func New(log *logger.Logger, proxy searchproxy.Proxy, docCache *cache.Cache, sched tools.Scheduler) *Registry {
	searchIndexed := tools.NewSearchIndexedTool(log, proxy)
	fetchCFR := tools.NewCFRTool(log, docCache, sched)
	searchDRS := tools.NewSearchDRSTool(log)
	fetchDRS := tools.NewFetchDRSTool(log, docCache, sched)
	searchAPS := tools.NewSearchAPSTool(log)
	fetchAPS := tools.NewFetchAPSTool(log, docCache, sched)
	listDocs := tools.NewListMyDocumentsTool(log, proxy)
	deleteDoc := tools.NewDeleteMyDocumentTool(log, proxy)
	fetchPersonal := tools.NewFetchPersonalDocumentTool(log, proxy)
	searchPersonal := tools.NewSearchPersonalDocumentTool(log, proxy)

	personalDefs := []tools.Definition{
		tools.ListMyDocumentsDefinition,
		tools.DeleteMyDocumentDefinition,
		tools.FetchPersonalDocumentDefinition,
		tools.SearchPersonalDocumentDefinition,
	}
	personal := []tools.Tool{listDocs, deleteDoc, fetchPersonal, searchPersonal}

	registryOf := func(ts ...tools.Tool) map[string]tools.Tool {
		reg := make(map[string]tools.Tool, len(ts)+len(personal))
		for _, tool := range append(ts, personal...) {
			reg[tool.Name()] = tool
		}
		return reg
	}

	faa := Config{
		Name:         "faa",
		SystemPrompt: faaSystemPrompt,
		Tools: append([]tools.Definition{
			tools.SearchIndexedDefinition,
			tools.CFRDefinition,
			tools.SearchDRSDefinition,
			tools.FetchDRSDefinition,
		}, personalDefs...),
		Registry: registryOf(searchIndexed, fetchCFR, searchDRS, fetchDRS),
	}

	nrc := Config{
		Name:         "nrc",
		SystemPrompt: nrcSystemPrompt,
		Tools: append([]tools.Definition{
			nrcSearchIndexedDefinition,
			tools.CFRDefinition,
			tools.SearchAPSDefinition,
			tools.FetchAPSDefinition,
		}, personalDefs...),
		Registry: registryOf(searchIndexed, fetchCFR, searchAPS, fetchAPS),
	}

	dod := Config{
		Name:         "dod",
		SystemPrompt: dodSystemPrompt,
		Tools: append([]tools.Definition{
			dodSearchIndexedDefinition,
			tools.CFRDefinition,
		}, personalDefs...),
		Registry: registryOf(searchIndexed, fetchCFR),
	}

	return &Registry{configs: map[string]Config{
		"faa": faa,
		"nrc": nrc,
		"dod": dod,
	}}
}

// Lookup returns the named agent's configuration with its search
// index resolved from the environment at call time.
func (r *Registry) Lookup(name string) (Config, error) {
	cfg, ok := r.configs[strings.ToLower(name)]
	if !ok {
		return Config{}, fmt.Errorf("unknown agent %q, valid agents: faa, nrc, dod", name)
	}
	switch cfg.Name {
	case "faa":
		cfg.SearchIndex = envutil.Str("AZURE_SEARCH_INDEX", "faa-agent")
	case "nrc":
		cfg.SearchIndex = envutil.Str("AZURE_SEARCH_INDEX_NRC", "nrc-agent")
	case "dod":
		cfg.SearchIndex = envutil.Str("AZURE_SEARCH_INDEX_DOD", "dod-agent")
	}
	return cfg, nil
}

// Names lists the registered agent names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	return names
}

// NRC and DoD use the shared search_indexed_content schema with
// agent-specific guidance in the description.
var nrcSearchIndexedDefinition = tools.Definition{
	Name: "search_indexed_content",
	Description: `**MANDATORY FIRST STEP** - Search the cached NRC document index.

YOU MUST CALL THIS TOOL FIRST before using search_aps. This is required for every question.

This tool searches pre-indexed NRC documents (10 CFR sections, NUREGs, RGs, Part 21 reports, inspection reports, etc.).

Returns relevant document snippets with accession numbers. Use fetch_aps_document to get full text.

Only use search_aps if THIS tool returns no relevant results.`,
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Natural language search query (e.g., 'Part 21 reporting requirements' or 'safety valve defects')",
			},
			"top_k": map[string]any{
				"type":        "integer",
				"description": "Number of results to return (default: 5, max: 10)",
				"default":     5,
			},
			"doc_type": map[string]any{
				"type":        "string",
				"description": "Optional: filter by document type",
				"enum":        []string{"cfr", "nureg", "rg", "gl", "bulletin"},
			},
		},
		"required": []string{"query"},
	},
}

var dodSearchIndexedDefinition = tools.Definition{
	Name: "search_indexed_content",
	Description: `**MANDATORY FIRST STEP** - Search the cached DoD regulations index.

YOU MUST CALL THIS TOOL FIRST for every question. This is required.

This tool searches pre-indexed DoD-relevant documents:
- Title 48 CFR (FAR and DFARS clauses)
- Title 32 CFR (National Defense, NISPOM, CUI requirements)

Returns relevant document snippets with CFR citations. Use fetch_cfr_section to get full text.`,
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Natural language search query (e.g., 'DFARS cybersecurity requirements' or 'cost accounting standards')",
			},
			"top_k": map[string]any{
				"type":        "integer",
				"description": "Number of results to return (default: 5, max: 10)",
				"default":     5,
			},
			"doc_type": map[string]any{
				"type":        "string",
				"description": "Optional: filter by document type",
				"enum":        []string{"cfr", "far", "dfars"},
			},
		},
		"required": []string{"query"},
	},
}
