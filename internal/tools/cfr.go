package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/regscout/regscout-backend/internal/cache"
	"github.com/regscout/regscout-backend/internal/indexer"
	"github.com/regscout/regscout-backend/internal/platform/envutil"
	"github.com/regscout/regscout-backend/internal/platform/logger"
)

const ecfrDefaultBaseURL = "https://www.ecfr.gov/api/versioner/v1"

// CFRTool fetches the full text of a CFR section from the eCFR API.
// Cache-first: a hit returns the stored text and, if the document has
// never been indexed, schedules background indexing.
type CFRTool struct {
	log       *logger.Logger
	cache     *cache.Cache
	sched     Scheduler
	http      *http.Client
	baseURL   string
	autoIndex bool
}

func NewCFRTool(log *logger.Logger, docCache *cache.Cache, sched Scheduler) *CFRTool {
	return &CFRTool{
		log:       log,
		cache:     docCache,
		sched:     sched,
		http:      &http.Client{Timeout: 30 * time.Second},
		baseURL:   envutil.Str("ECFR_API_BASE_URL", ecfrDefaultBaseURL),
		autoIndex: envutil.Bool("AUTO_INDEX_ON_CACHE_HIT", true),
	}
}

func (t *CFRTool) Name() string { return "fetch_cfr_section" }

func (t *CFRTool) Capabilities() Capability { return WantsIndexName }

func (t *CFRTool) Invoke(ctx context.Context, inv Invocation) (string, error) {
	part := intArg(inv.Input, "part", 0)
	section := strArg(inv.Input, "section", "")
	title := intArg(inv.Input, "title", 14)
	if part == 0 || section == "" {
		return "Error: both 'part' and 'section' are required", nil
	}

	// Subsection references like "1309(b)(1)" collapse to the base
	// section for the API call.
	sectionBase := section
	if i := strings.IndexAny(sectionBase, "(["); i >= 0 {
		sectionBase = sectionBase[:i]
	}
	sectionBase = strings.TrimSpace(sectionBase)

	cacheKey := cache.CFRKey(title, part, sectionBase)
	docID := fmt.Sprintf("%d-%d-%s", title, part, sectionBase)

	if t.cache != nil {
		if cached := t.cache.Get(ctx, cacheKey); cached != nil {
			t.log.Info("CFR cache hit", "title", title, "part", part, "section", sectionBase)
			if !cached.Indexed && t.autoIndex && t.sched != nil {
				docTitle := cached.Title
				if docTitle == "" {
					docTitle = fmt.Sprintf("%d CFR §%d.%s", title, part, sectionBase)
				}
				t.sched.Schedule(indexer.Request{
					Content:   cached.Content,
					DocType:   "cfr",
					DocID:     docID,
					Title:     docTitle,
					SourceURL: fmt.Sprintf("https://www.ecfr.gov/current/title-%d/part-%d/section-%d.%s", title, part, part, sectionBase),
					CacheKey:  cacheKey,
					IndexName: inv.IndexName,
				})
			}
			return cached.Content, nil
		}
	}

	date := strArg(inv.Input, "date", "")
	if date == "" {
		var err error
		date, err = t.latestIssueDate(ctx, title)
		if err != nil {
			t.log.Error("eCFR latest date lookup failed", "title", title, "error", err)
			return fmt.Sprintf("Error: Could not determine latest date for Title %d", title), nil
		}
	}

	fetchURL := fmt.Sprintf("%s/full/%s/title-%d.xml", t.baseURL, date, title)
	params := url.Values{}
	params.Set("part", fmt.Sprintf("%d", part))
	params.Set("section", fmt.Sprintf("%d.%s", part, sectionBase))

	t.log.Info("Fetching CFR section", "title", title, "part", part, "section", sectionBase, "date", date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		t.log.Error("eCFR request failed", "url", fetchURL, "error", err)
		return fmt.Sprintf("Error fetching %d CFR %d.%s: %v", title, part, sectionBase, err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Sprintf("Section not found: %d CFR %d.%s", title, part, sectionBase), nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error fetching %d CFR %d.%s: HTTP %d", title, part, sectionBase, resp.StatusCode), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error fetching %d CFR %d.%s: %v", title, part, sectionBase, err), nil
	}

	docTitle := fmt.Sprintf("%d CFR §%d.%s", title, part, sectionBase)
	fullContent := fmt.Sprintf("## %s\n\n%s", docTitle, extractTextFromXML(string(body)))

	if t.cache != nil {
		err := t.cache.Put(ctx, cacheKey, fullContent, "cfr", docID, docTitle, map[string]string{
			"title":   fmt.Sprintf("%d", title),
			"part":    fmt.Sprintf("%d", part),
			"section": sectionBase,
			"date":    date,
		})
		if err != nil {
			t.log.Warn("Failed to cache CFR section", "key", cacheKey, "error", err)
		}
	}

	return fullContent, nil
}

func (t *CFRTool) latestIssueDate(ctx context.Context, title int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/titles.json", nil)
	if err != nil {
		return "", err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("titles lookup: HTTP %d", resp.StatusCode)
	}
	var payload struct {
		Titles []struct {
			Number          int    `json:"number"`
			LatestIssueDate string `json:"latest_issue_date"`
		} `json:"titles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	for _, entry := range payload.Titles {
		if entry.Number == title && entry.LatestIssueDate != "" {
			return entry.LatestIssueDate, nil
		}
	}
	return "", fmt.Errorf("no issue date for title %d", title)
}

var (
	xmlParaOpen   = regexp.MustCompile(`<P[^>]*>`)
	xmlParaClose  = regexp.MustCompile(`</P>`)
	xmlHeadPrime  = regexp.MustCompile(`<HD[^>]*SOURCE="HD1"[^>]*>([^<]+)</HD>`)
	xmlHead       = regexp.MustCompile(`<HD[^>]*>([^<]+)</HD>`)
	xmlSectNo     = regexp.MustCompile(`<SECTNO>([^<]+)</SECTNO>`)
	xmlSubject    = regexp.MustCompile(`<SUBJECT>([^<]+)</SUBJECT>`)
	xmlAnyTag     = regexp.MustCompile(`<[^>]+>`)
	multiNewlines = regexp.MustCompile(`\n\s*\n\s*\n`)
)

// extractTextFromXML converts an eCFR XML fragment into readable
// markdown. Regexp stripping is enough here; the agent consumes prose,
// not structure.
func extractTextFromXML(xmlContent string) string {
	text := xmlParaOpen.ReplaceAllString(xmlContent, "\n")
	text = xmlParaClose.ReplaceAllString(text, "")
	text = xmlHeadPrime.ReplaceAllString(text, "\n### $1\n")
	text = xmlHead.ReplaceAllString(text, "\n**$1**\n")
	text = xmlSectNo.ReplaceAllString(text, "**$1**")
	text = xmlSubject.ReplaceAllString(text, "*$1*\n")
	text = xmlAnyTag.ReplaceAllString(text, "")
	text = multiNewlines.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	replacer := strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`)
	return replacer.Replace(text)
}

var CFRDefinition = Definition{
	Name: "fetch_cfr_section",
	Description: `Fetch the complete text of a Code of Federal Regulations (CFR) section from the official eCFR API.

Use this tool when:
- User asks for the text of a specific CFR section
- You need the complete regulatory text (not just a summary)
- You want to verify the exact wording of a regulation

FAA regulations are in Title 14. Common parts:
- Part 21: Certification procedures
- Part 23: Normal category airplanes
- Part 25: Transport category airplanes
- Part 27: Normal category rotorcraft
- Part 29: Transport category rotorcraft
- Part 33: Aircraft engines
- Part 35: Propellers

Example: To get §25.1309, use title=14, part=25, section="1309"`,
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "integer",
				"description": "CFR title number. Use 14 for FAA regulations.",
				"default":     14,
			},
			"part": map[string]any{
				"type":        "integer",
				"description": "CFR part number (e.g., 25 for transport aircraft airworthiness)",
			},
			"section": map[string]any{
				"type":        "string",
				"description": "Section number (e.g., '1309' for §25.1309)",
			},
		},
		"required": []string{"part", "section"},
	},
}
