package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/regscout/regscout-backend/internal/pkg/strutil"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/searchproxy"
)

const searchSnippetLimit = 500

// SearchIndexedTool runs hybrid search against the agent's index
// through the isolation proxy, so results are limited to global
// content plus the caller's own uploads.
type SearchIndexedTool struct {
	log   *logger.Logger
	proxy searchproxy.Proxy
}

func NewSearchIndexedTool(log *logger.Logger, proxy searchproxy.Proxy) *SearchIndexedTool {
	return &SearchIndexedTool{log: log, proxy: proxy}
}

func (t *SearchIndexedTool) Name() string { return "search_indexed_content" }

func (t *SearchIndexedTool) Capabilities() Capability {
	return WantsIndexName | WantsFingerprint
}

func (t *SearchIndexedTool) Invoke(ctx context.Context, inv Invocation) (string, error) {
	query := strArg(inv.Input, "query", "")
	if query == "" {
		return "Error: 'query' is required", nil
	}
	topK := intArg(inv.Input, "top_k", 5)
	docType := strArg(inv.Input, "doc_type", "")

	if t.proxy == nil {
		return "Error: Azure AI Search not configured", nil
	}

	results, err := t.proxy.Search(ctx, inv.IndexName, inv.Fingerprint, query, topK, docType)
	if err != nil {
		t.log.Error("Indexed search failed", "query", query, "error", err)
		return fmt.Sprintf("Search error: %v", err), nil
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for: %s", query), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for: %s\n", query)
	for i, doc := range results {
		title := doc.Title
		if title == "" {
			title = "Untitled"
		}
		content := strutil.Truncate(doc.Content, searchSnippetLimit)
		fmt.Fprintf(&sb, "### %d. %s\n", i+1, title)
		if doc.Citation != "" {
			fmt.Fprintf(&sb, "**Citation:** %s\n", doc.Citation)
		}
		if doc.Source != "" {
			fmt.Fprintf(&sb, "**Source:** %s\n", doc.Source)
		}
		fmt.Fprintf(&sb, "\n%s...\n\n", content)
	}
	return sb.String(), nil
}

var SearchIndexedDefinition = Definition{
	Name: "search_indexed_content",
	Description: `Search the indexed FAA documents (CFR sections, Advisory Circulars, etc.) for relevant information.

Use this tool FIRST when answering questions about FAA regulations. It searches the pre-indexed knowledge base for relevant content.

When to use:
- User asks a general question about FAA certification
- Looking for relevant regulations on a topic
- Finding Advisory Circulars related to a requirement
- Before fetching specific CFR sections (to find which ones are relevant)

The search returns document snippets with citations. If you need the complete text of a specific section found in results, use fetch_cfr_section.`,
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Natural language search query (e.g., 'HIRF protection requirements' or 'lightning strike certification')",
			},
			"top_k": map[string]any{
				"type":        "integer",
				"description": "Number of results to return (default: 5, max: 10)",
				"default":     5,
			},
			"doc_type": map[string]any{
				"type":        "string",
				"description": "Optional: filter by document type",
				"enum":        []string{"cfr", "ac", "order", "policy"},
			},
		},
		"required": []string{"query"},
	},
}
