package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/regscout/regscout-backend/internal/cache"
	"github.com/regscout/regscout-backend/internal/indexer"
	"github.com/regscout/regscout-backend/internal/pkg/strutil"
	"github.com/regscout/regscout-backend/internal/platform/envutil"
	"github.com/regscout/regscout-backend/internal/platform/logger"
)

const (
	apsDefaultBaseURL = "https://adams-api.nrc.gov/aps/api/search"
	apsContentLimit   = 15000
)

// apsClient talks to the NRC ADAMS Public Search API. Without an API
// key the tools fall back to canned mock output so the NRC agent stays
// usable in development.
type apsClient struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	mockMode bool
}

func newAPSClient() *apsClient {
	return &apsClient{
		http:     &http.Client{Timeout: 60 * time.Second},
		baseURL:  envutil.Str("APS_API_BASE_URL", apsDefaultBaseURL),
		apiKey:   envutil.Str("APS_API_KEY", ""),
		mockMode: envutil.Bool("APS_MOCK_MODE", false),
	}
}

func (c *apsClient) useMock() bool { return c.mockMode || c.apiKey == "" }

type apsSearchFilter struct {
	Field    string `json:"field"`
	Value    string `json:"value"`
	Operator string `json:"operator,omitempty"`
}

type apsDocument struct {
	AccessionNumber    string   `json:"AccessionNumber"`
	DocumentTitle      string   `json:"DocumentTitle"`
	Name               string   `json:"Name"`
	DocumentDate       string   `json:"DocumentDate"`
	DateAdded          string   `json:"DateAdded"`
	DocumentType       []string `json:"DocumentType"`
	AuthorName         []string `json:"AuthorName"`
	AuthorAffiliation  string   `json:"AuthorAffiliation"`
	Keyword            string   `json:"Keyword"`
	DocketNumber       string   `json:"DocketNumber"`
	URL                string   `json:"Url"`
	Content            string   `json:"content"`
	EstimatedPageCount int      `json:"EstimatedPageCount"`
}

func (d *apsDocument) title() string {
	if d.DocumentTitle != "" {
		return d.DocumentTitle
	}
	if d.Name != "" {
		return d.Name
	}
	return "Untitled"
}

func (d *apsDocument) date() string {
	if d.DocumentDate != "" {
		return d.DocumentDate
	}
	return d.DateAdded
}

type apsSearchResult struct {
	Document apsDocument `json:"document"`
}

type apsSearchResponse struct {
	Results []apsSearchResult `json:"results"`
	Count   int               `json:"count"`
}

func (c *apsClient) search(ctx context.Context, query, docType, dateFrom, dateTo string) (*apsSearchResponse, error) {
	filters := []apsSearchFilter{}
	if docType != "" {
		filters = append(filters, apsSearchFilter{Field: "DocumentType", Value: docType, Operator: "contains"})
	}
	if dateFrom != "" {
		filters = append(filters, apsSearchFilter{Field: "DocumentDate", Value: fmt.Sprintf("(DocumentDate ge '%s')", dateFrom)})
	}
	if dateTo != "" {
		filters = append(filters, apsSearchFilter{Field: "DocumentDate", Value: fmt.Sprintf("(DocumentDate le '%s')", dateTo)})
	}

	body, err := json.Marshal(map[string]any{
		"q":               query,
		"filters":         filters,
		"anyFilters":      []apsSearchFilter{},
		"legacyLibFilter": false,
		"mainLibFilter":   true,
		"sort":            "DocumentDate",
		"sortDirection":   1,
		"skip":            0,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	var out apsSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apsClient) fetch(ctx context.Context, accessionNumber string) (*apsDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+accessionNumber, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	// Some responses wrap the document, some return it bare.
	var payload struct {
		Document *apsDocument `json:"document"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Document != nil {
		return payload.Document, nil
	}
	var doc apsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func mockSearchResults(query string) string {
	return fmt.Sprintf(`## NRC ADAMS Search Results (MOCK MODE)

Found 3 documents for: %s

### 1. Mock Part 21 Report - Safety Valve Defect
**Accession Number:** ML24001A001
**Date:** 2024-01-15
**Type:** Part 21 Correspondence
**Summary:** Mock document for testing - describes a safety valve defect notification.

### 2. Mock Inspection Report - Vogtle Unit 3
**Accession Number:** ML24001A002
**Date:** 2024-01-10
**Type:** Inspection Report
**Summary:** Mock inspection report for testing purposes.

### 3. Mock NUREG Report - Safety Analysis
**Accession Number:** ML24001A003
**Date:** 2024-01-05
**Type:** NUREG
**Summary:** Mock NUREG report for testing the NRC agent.

---
*Note: These are mock results. Set APS_MOCK_MODE=false and provide APS_API_KEY for real results.*`, query)
}

func mockDocument(accessionNumber string) string {
	return fmt.Sprintf(`## NRC Document: %s (MOCK MODE)

**Accession Number:** %s
**Title:** Mock NRC Document for Testing
**Document Date:** 2024-01-15
**Document Type:** Part 21 Correspondence

### Document Content

This is mock content for testing the NRC agent when the ADAMS API key is not configured.

### References
- 10 CFR Part 21 - Reporting of Defects and Noncompliance
- NUREG-0800 - Standard Review Plan
- Regulatory Guide 1.174 - Risk-Informed Decision Making

---
*Note: This is mock content. Set APS_MOCK_MODE=false and provide APS_API_KEY for real documents.*`, accessionNumber, accessionNumber)
}

// SearchAPSTool searches NRC ADAMS through the public search API.
type SearchAPSTool struct {
	log    *logger.Logger
	client *apsClient
}

func NewSearchAPSTool(log *logger.Logger) *SearchAPSTool {
	return &SearchAPSTool{log: log, client: newAPSClient()}
}

func (t *SearchAPSTool) Name() string { return "search_aps" }

func (t *SearchAPSTool) Capabilities() Capability { return 0 }

func (t *SearchAPSTool) Invoke(ctx context.Context, inv Invocation) (string, error) {
	query := strArg(inv.Input, "query", "")
	if query == "" {
		return "Error: 'query' is required", nil
	}
	docType := strArg(inv.Input, "doc_type", "")
	maxResults := intArg(inv.Input, "max_results", 20)
	dateFrom := strArg(inv.Input, "date_from", "")
	dateTo := strArg(inv.Input, "date_to", "")

	if t.client.useMock() {
		t.log.Warn("APS mock mode active", "query", query)
		return mockSearchResults(query), nil
	}

	t.log.Info("APS search", "query", query, "doc_type", docType)

	data, err := t.client.search(ctx, query, docType, dateFrom, dateTo)
	if err != nil {
		t.log.Error("APS search failed", "error", err)
		return fmt.Sprintf("Error searching NRC ADAMS: %v", err), nil
	}
	if len(data.Results) == 0 {
		return fmt.Sprintf("No results found for: %s", query), nil
	}

	total := data.Count
	if total == 0 {
		total = len(data.Results)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## NRC ADAMS Search Results\n\nFound %d documents for: %s\n", total, query)
	shown := 0
	for i, result := range data.Results {
		if i >= maxResults {
			break
		}
		shown++
		doc := result.Document
		accession := doc.AccessionNumber
		if accession == "" {
			accession = "Unknown"
		}
		fmt.Fprintf(&sb, "\n### %d. %s\n- **Accession Number:** %s\n", i+1, doc.title(), accession)
		if len(doc.DocumentType) > 0 {
			fmt.Fprintf(&sb, "- **Type:** %s\n", strings.Join(doc.DocumentType, ", "))
		}
		if doc.date() != "" {
			fmt.Fprintf(&sb, "- **Date:** %s\n", doc.date())
		}
	}
	if total > maxResults {
		fmt.Fprintf(&sb, "\n*Showing %d of %d results*", shown, total)
	}
	return sb.String(), nil
}

// FetchAPSTool fetches one ADAMS document by accession number.
// Cache-first like the other document fetchers.
type FetchAPSTool struct {
	log       *logger.Logger
	client    *apsClient
	cache     *cache.Cache
	sched     Scheduler
	autoIndex bool
}

func NewFetchAPSTool(log *logger.Logger, docCache *cache.Cache, sched Scheduler) *FetchAPSTool {
	return &FetchAPSTool{
		log:       log,
		client:    newAPSClient(),
		cache:     docCache,
		sched:     sched,
		autoIndex: envutil.Bool("AUTO_INDEX_ON_CACHE_HIT", true),
	}
}

func (t *FetchAPSTool) Name() string { return "fetch_aps_document" }

func (t *FetchAPSTool) Capabilities() Capability { return WantsIndexName }

func (t *FetchAPSTool) Invoke(ctx context.Context, inv Invocation) (string, error) {
	accession := strings.ToUpper(strings.TrimSpace(strArg(inv.Input, "accession_number", "")))
	if accession == "" {
		return "Error: 'accession_number' is required", nil
	}

	if t.client.useMock() {
		t.log.Warn("APS mock mode active", "accession_number", accession)
		return mockDocument(accession), nil
	}

	cacheKey := cache.APSKey(accession)
	sourceURL := fmt.Sprintf("https://adams.nrc.gov/wba/public/doc/%s", accession)

	if t.cache != nil {
		if cached := t.cache.Get(ctx, cacheKey); cached != nil {
			t.log.Info("APS cache hit", "accession_number", accession)
			if !cached.Indexed && t.autoIndex && t.sched != nil {
				docTitle := cached.Title
				if docTitle == "" {
					docTitle = fmt.Sprintf("NRC Document %s", accession)
				}
				t.sched.Schedule(indexer.Request{
					Content:   cached.Content,
					DocType:   "aps",
					DocID:     accession,
					Title:     docTitle,
					SourceURL: sourceURL,
					CacheKey:  cacheKey,
					IndexName: inv.IndexName,
				})
			}
			return cached.Content, nil
		}
	}

	t.log.Info("Fetching APS document", "accession_number", accession)

	doc, err := t.client.fetch(ctx, accession)
	if err != nil {
		t.log.Error("APS fetch failed", "accession_number", accession, "error", err)
		return fmt.Sprintf("Error fetching NRC document: %v", err), nil
	}
	if doc == nil {
		return fmt.Sprintf("Document not found: %s", accession), nil
	}

	title := doc.title()
	docType := strings.Join(doc.DocumentType, ", ")
	if docType == "" {
		docType = "Unknown"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s: %s\n**Accession Number:** %s", docType, title, accession)
	if doc.date() != "" {
		fmt.Fprintf(&sb, "\n**Document Date:** %s", doc.date())
	}
	if len(doc.AuthorName) > 0 {
		fmt.Fprintf(&sb, "\n**Author:** %s", strings.Join(doc.AuthorName, ", "))
	}
	if doc.AuthorAffiliation != "" {
		fmt.Fprintf(&sb, "\n**Author Affiliation:** %s", doc.AuthorAffiliation)
	}
	if doc.DocketNumber != "" {
		fmt.Fprintf(&sb, "\n**Docket Number:** %s", doc.DocketNumber)
	}
	if doc.Keyword != "" {
		fmt.Fprintf(&sb, "\n**Keywords:** %s", doc.Keyword)
	}
	if doc.EstimatedPageCount > 0 {
		fmt.Fprintf(&sb, "\n**Estimated Pages:** %d", doc.EstimatedPageCount)
	}
	if doc.URL != "" {
		fmt.Fprintf(&sb, "\n\n**Document URL:** %s", doc.URL)
	}

	if doc.Content != "" {
		content := doc.Content
		if len(content) > apsContentLimit {
			content = strutil.Truncate(content, apsContentLimit) + "\n\n[... Document truncated. Full document is larger.]"
		}
		fmt.Fprintf(&sb, "\n\n### Document Content\n\n%s", content)
	} else {
		sb.WriteString("\n\n*Document content not included in API response. Use the URL above to access the full document.*")
	}

	fullContent := sb.String()

	if t.cache != nil {
		err := t.cache.Put(ctx, cacheKey, fullContent, "aps", accession, title, map[string]string{
			"document_type": docType,
			"document_date": doc.date(),
			"docket":        doc.DocketNumber,
		})
		if err != nil {
			t.log.Warn("Failed to cache APS document", "key", cacheKey, "error", err)
		} else if t.autoIndex && t.sched != nil {
			t.sched.Schedule(indexer.Request{
				Content:   fullContent,
				DocType:   "aps",
				DocID:     accession,
				Title:     title,
				SourceURL: sourceURL,
				CacheKey:  cacheKey,
				IndexName: inv.IndexName,
			})
		}
	}

	return fullContent, nil
}

var SearchAPSDefinition = Definition{
	Name: "search_aps",
	Description: `Search NRC ADAMS (Agency-wide Documents Access and Management System) for regulatory documents.

**IMPORTANT**: Always use search_indexed_content FIRST before using this tool. Only use search_aps when:
- The index search returned no results or insufficient results
- You need documents that might not be in the index yet
- Looking for very recent documents (last few days)

Use this tool for:
- Looking for NRC inspection reports, NUREG reports, or correspondence
- Searching for nuclear regulatory guidance documents
- Finding documents related to specific dockets, licensees, or facilities

Document types include:
- NUREG reports
- Inspection Reports
- Correspondence
- Regulatory Guides
- License amendments
- Part 21 Reports

The search uses a full-text query to find relevant documents. Results include accession numbers and titles.`,
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query (e.g., 'safety valve Part 21' or 'Vogtle inspection report')",
			},
			"doc_type": map[string]any{
				"type":        "string",
				"description": "Optional document type filter (e.g., 'NUREG', 'Inspection Report', 'Regulatory Guide', 'Part 21')",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum results to return (default: 20)",
				"default":     20,
			},
			"date_from": map[string]any{
				"type":        "string",
				"description": "Optional: filter documents from this date (YYYY-MM-DD format)",
			},
			"date_to": map[string]any{
				"type":        "string",
				"description": "Optional: filter documents until this date (YYYY-MM-DD format)",
			},
		},
		"required": []string{"query"},
	},
}

var FetchAPSDefinition = Definition{
	Name: "fetch_aps_document",
	Description: `Fetch a specific NRC document from ADAMS by its accession number.

Use this tool when:
- You have a specific accession number (e.g., 'ML13095A205')
- You found a document in search results and want the full content
- User asks for a specific NRC document

This retrieves document metadata and content from the ADAMS API.`,
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"accession_number": map[string]any{
				"type":        "string",
				"description": "ADAMS accession number (e.g., 'ML13095A205')",
			},
		},
		"required": []string{"accession_number"},
	},
}
