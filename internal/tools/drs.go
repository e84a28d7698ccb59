package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/regscout/regscout-backend/internal/cache"
	"github.com/regscout/regscout-backend/internal/indexer"
	"github.com/regscout/regscout-backend/internal/pkg/strutil"
	"github.com/regscout/regscout-backend/internal/platform/envutil"
	"github.com/regscout/regscout-backend/internal/platform/logger"
)

const (
	drsDefaultBaseURL = "https://drs.faa.gov/api"
	drsMaxKeywords    = 10
	drsContentLimit   = 15000
)

type drsDocument struct {
	DocumentNumber string `json:"drs:documentNumber"`
	Title          string `json:"drs:title"`
	Status         string `json:"drs:status"`
	GUID           string `json:"documentGuid"`
	DownloadURL    string `json:"mainDocumentDownloadURL"`
}

type drsResponse struct {
	Documents []drsDocument `json:"documents"`
	Summary   struct {
		TotalItems int `json:"totalItems"`
	} `json:"summary"`
}

// drsClient talks to the FAA Dynamic Regulatory System data-pull API.
type drsClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func newDRSClient() *drsClient {
	return &drsClient{
		http:    &http.Client{Timeout: 60 * time.Second},
		baseURL: envutil.Str("DRS_API_BASE_URL", drsDefaultBaseURL),
		apiKey:  envutil.Str("DRS_API_KEY", ""),
	}
}

func (c *drsClient) search(ctx context.Context, docType string, keywords, statusFilter []string) (*drsResponse, error) {
	if len(keywords) > drsMaxKeywords {
		keywords = keywords[:drsMaxKeywords]
	}
	body, err := json.Marshal(map[string]any{
		"offset": 0,
		"documentFilters": map[string]any{
			"drs:status": statusFilter,
			"Keyword":    keywords,
		},
	})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/data-pull/%s/filtered", c.baseURL, docType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	var out drsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *drsClient) downloadPDFText(ctx context.Context, downloadURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("x-api-key", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return extractPDFText(data)
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

var (
	docNumSpaces = regexp.MustCompile(`\s+`)
	docNumPrefix = regexp.MustCompile(`^(AC|AD|TSO|ORDER)\s*`)
	docNumChg    = regexp.MustCompile(`(?i)\s+(CHG|CHANGE)\s*\d*$`)
	docNumEdUpd  = regexp.MustCompile(`(?i)\s+ED\s+UPDATE\s*\d*$`)
)

func normalizeDocNumber(num string) string {
	normalized := strings.ToUpper(strings.TrimSpace(num))
	normalized = docNumSpaces.ReplaceAllString(normalized, " ")
	normalized = docNumPrefix.ReplaceAllString(normalized, "$1 ")
	return normalized
}

// baseDocNumber strips change and edition-update suffixes so
// "AC 20-136B CHG 1" compares equal to "AC 20-136B".
func baseDocNumber(num string) string {
	normalized := normalizeDocNumber(num)
	normalized = docNumChg.ReplaceAllString(normalized, "")
	normalized = docNumEdUpd.ReplaceAllString(normalized, "")
	return strings.TrimSpace(normalized)
}

// bestMatch picks the result closest to the requested document number.
// Tiers, strongest first: exact normalized match, base-number match,
// prefix match, then the first result as a last resort.
func bestMatch(docs []drsDocument, requested string) drsDocument {
	input := normalizeDocNumber(requested)
	inputBase := baseDocNumber(requested)

	for _, doc := range docs {
		if normalizeDocNumber(doc.DocumentNumber) == input {
			return doc
		}
	}
	for _, doc := range docs {
		if baseDocNumber(doc.DocumentNumber) == inputBase {
			return doc
		}
	}
	for _, doc := range docs {
		normalized := normalizeDocNumber(doc.DocumentNumber)
		if strings.HasPrefix(normalized, input) || strings.HasPrefix(input, baseDocNumber(doc.DocumentNumber)) {
			return doc
		}
	}
	return docs[0]
}

// SearchDRSTool searches DRS by keyword and formats result metadata.
type SearchDRSTool struct {
	log    *logger.Logger
	client *drsClient
}

func NewSearchDRSTool(log *logger.Logger) *SearchDRSTool {
	return &SearchDRSTool{log: log, client: newDRSClient()}
}

func (t *SearchDRSTool) Name() string { return "search_drs" }

func (t *SearchDRSTool) Capabilities() Capability { return 0 }

func (t *SearchDRSTool) Invoke(ctx context.Context, inv Invocation) (string, error) {
	keywords := strSliceArg(inv.Input, "keywords")
	if len(keywords) == 0 {
		return "Error: at least one keyword is required", nil
	}
	docType := strArg(inv.Input, "doc_type", "AC")
	maxResults := intArg(inv.Input, "max_results", 10)
	statusFilter := strSliceArg(inv.Input, "status_filter")
	if len(statusFilter) == 0 {
		statusFilter = []string{"Current"}
	}

	if t.client.apiKey == "" {
		return "Error: DRS_API_KEY not configured", nil
	}

	t.log.Info("DRS search", "keywords", keywords, "doc_type", docType, "status", statusFilter)

	data, err := t.client.search(ctx, docType, keywords, statusFilter)
	if err != nil {
		t.log.Error("DRS search failed", "error", err)
		return fmt.Sprintf("DRS search error: %v", err), nil
	}
	if len(data.Documents) == 0 {
		return fmt.Sprintf("No DRS documents found for keywords: %s", strings.Join(keywords, ", ")), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## DRS Search Results\n**Keywords:** %s\n**Type:** %s\n", strings.Join(keywords, ", "), docType)
	shown := 0
	for i, doc := range data.Documents {
		if i >= maxResults {
			break
		}
		shown++
		docNumber := doc.DocumentNumber
		if docNumber == "" {
			docNumber = "Unknown"
		}
		title := doc.Title
		if title == "" {
			title = docNumber
		}
		fmt.Fprintf(&sb, "### %d. %s\n**Title:** %s\n", i+1, docNumber, title)
		if doc.Status != "" {
			fmt.Fprintf(&sb, "**Status:** %s\n", doc.Status)
		}
		if doc.GUID != "" {
			fmt.Fprintf(&sb, "**GUID:** %s\n", doc.GUID)
		}
		sb.WriteString("\n")
	}
	total := data.Summary.TotalItems
	if total == 0 {
		total = len(data.Documents)
	}
	fmt.Fprintf(&sb, "\n*Showing %d of %d results*", shown, total)
	return sb.String(), nil
}

// FetchDRSTool fetches one DRS document by number, extracting text from
// the attached PDF. Cache-first like the CFR tool.
type FetchDRSTool struct {
	log       *logger.Logger
	client    *drsClient
	cache     *cache.Cache
	sched     Scheduler
	autoIndex bool
}

func NewFetchDRSTool(log *logger.Logger, docCache *cache.Cache, sched Scheduler) *FetchDRSTool {
	return &FetchDRSTool{
		log:       log,
		client:    newDRSClient(),
		cache:     docCache,
		sched:     sched,
		autoIndex: envutil.Bool("AUTO_INDEX_ON_CACHE_HIT", true),
	}
}

func (t *FetchDRSTool) Name() string { return "fetch_drs_document" }

func (t *FetchDRSTool) Capabilities() Capability { return WantsIndexName }

func (t *FetchDRSTool) Invoke(ctx context.Context, inv Invocation) (string, error) {
	docNumber := strArg(inv.Input, "doc_number", "")
	if docNumber == "" {
		return "Error: 'doc_number' is required", nil
	}
	docType := strArg(inv.Input, "doc_type", "AC")

	if t.client.apiKey == "" {
		return "Error: DRS_API_KEY not configured", nil
	}

	t.log.Info("DRS fetch", "doc_type", docType, "doc_number", docNumber)

	cacheKey := cache.DRSKey(docType, docNumber)
	if t.cache != nil {
		if cached := t.cache.Get(ctx, cacheKey); cached != nil {
			t.log.Info("DRS cache hit", "doc_type", docType, "doc_number", docNumber)
			if !cached.Indexed && t.autoIndex && t.sched != nil {
				docTitle := cached.Title
				if docTitle == "" {
					docTitle = fmt.Sprintf("%s %s", docType, docNumber)
				}
				t.sched.Schedule(indexer.Request{
					Content:   cached.Content,
					DocType:   "drs",
					DocID:     cached.DocID,
					Title:     docTitle,
					SourceURL: fmt.Sprintf("https://drs.faa.gov/browse/FSIMS/doctypeDetails?docType=%s", docType),
					CacheKey:  cacheKey,
					IndexName: inv.IndexName,
				})
			}
			return cached.Content, nil
		}
	}

	data, err := t.client.search(ctx, docType, []string{docNumber}, []string{"Current"})
	if err != nil {
		t.log.Error("DRS fetch failed", "error", err)
		return fmt.Sprintf("DRS fetch error: %v", err), nil
	}
	if len(data.Documents) == 0 {
		return fmt.Sprintf("Document not found: %s/%s", docType, docNumber), nil
	}

	match := bestMatch(data.Documents, docNumber)
	if normalizeDocNumber(match.DocumentNumber) != normalizeDocNumber(docNumber) {
		t.log.Warn("No exact DRS match", "requested", docNumber, "using", match.DocumentNumber)
	}

	docNumberFound := match.DocumentNumber
	if docNumberFound == "" {
		docNumberFound = "Unknown"
	}
	title := match.Title
	if title == "" {
		title = docNumberFound
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s %s\n**Title:** %s", docType, docNumberFound, title)
	if match.Status != "" {
		fmt.Fprintf(&sb, "\n**Status:** %s", match.Status)
	}

	if match.DownloadURL != "" {
		text, err := t.client.downloadPDFText(ctx, match.DownloadURL)
		if err != nil {
			t.log.Error("DRS PDF extraction failed", "doc_number", docNumberFound, "error", err)
			fmt.Fprintf(&sb, "\n\n**Download URL available:** Yes (GUID: %s)\n\n*Could not extract text from PDF automatically.*", match.GUID)
		} else {
			if len(text) > drsContentLimit {
				text = strutil.Truncate(text, drsContentLimit) + "\n\n[... Document truncated. Full document is larger.]"
			}
			fmt.Fprintf(&sb, "\n\n### Document Content\n\n%s", text)
		}
	} else {
		sb.WriteString("\n\n*No download URL available for this document.*")
	}

	fullContent := sb.String()

	if t.cache != nil {
		docID := fmt.Sprintf("%s-%s", docType, strings.ReplaceAll(normalizeDocNumber(docNumberFound), " ", "-"))
		err := t.cache.Put(ctx, cacheKey, fullContent, "drs", docID, title, map[string]string{
			"doc_type":   docType,
			"doc_number": docNumberFound,
			"status":     match.Status,
			"guid":       match.GUID,
		})
		if err != nil {
			t.log.Warn("Failed to cache DRS document", "key", cacheKey, "error", err)
		}
	}

	return fullContent, nil
}

var SearchDRSDefinition = Definition{
	Name: "search_drs",
	Description: `Search the FAA Dynamic Regulatory System (DRS) for Advisory Circulars and other regulatory documents.

Use this tool when:
- Looking for Advisory Circulars (ACs) on a topic
- Searching for FAA guidance documents
- Finding documents that are NOT in the indexed content
- User specifically asks about ACs or guidance material

Document types:
- AC: Advisory Circulars (most common)
- AD: Airworthiness Directives
- TSO: Technical Standard Orders
- Order: FAA Orders

The search uses keywords to find relevant documents. Results include document numbers and titles.`,
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"keywords": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Keywords to search for (e.g., ['HIRF', 'protection'] or ['system safety', 'assessment'])",
			},
			"doc_type": map[string]any{
				"type":        "string",
				"description": "Document type to search",
				"enum":        []string{"AC", "AD", "TSO", "Order"},
				"default":     "AC",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum results to return (default: 10)",
				"default":     10,
			},
		},
		"required": []string{"keywords"},
	},
}

var FetchDRSDefinition = Definition{
	Name: "fetch_drs_document",
	Description: `Fetch a specific FAA document from DRS by its document number.

Use this tool when:
- You know the specific document number (e.g., "AC 25.1309-1A")
- You found a document in search results and want the full content
- User asks for a specific Advisory Circular

This downloads the PDF and extracts the text content.`,
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"doc_number": map[string]any{
				"type":        "string",
				"description": "Document number (e.g., 'AC 25.1309-1A', 'AC 23-8C')",
			},
			"doc_type": map[string]any{
				"type":        "string",
				"description": "Document type",
				"enum":        []string{"AC", "AD", "TSO", "Order"},
				"default":     "AC",
			},
		},
		"required": []string{"doc_number"},
	},
}
