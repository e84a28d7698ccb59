package searchproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/regscout/regscout-backend/internal/platform/logger"
)

const searchAPIVersion = "2024-07-01"

type vectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	Fields string    `json:"fields"`
	K      int       `json:"k"`
}

type searchQuery struct {
	Search        string        `json:"search"`
	Top           int           `json:"top"`
	Select        string        `json:"select"`
	QueryType     string        `json:"queryType,omitempty"`
	Filter        string        `json:"filter"`
	OrderBy       string        `json:"orderby,omitempty"`
	VectorQueries []vectorQuery `json:"vectorQueries,omitempty"`
}

// rawDoc is one index row as returned by the search API.
type rawDoc struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Content          string  `json:"content"`
	Source           string  `json:"source"`
	DocType          string  `json:"doc_type"`
	Citation         string  `json:"citation"`
	OwnerFingerprint string  `json:"owner_fingerprint"`
	UploadedAt       string  `json:"uploaded_at"`
	PageCount        int     `json:"page_count"`
	FileHash         string  `json:"file_hash"`
	Score            float64 `json:"@search.score"`
}

type indexAction struct {
	Action string
	Chunk  *Chunk // nil for deletes
	ID     string // delete target
}

type batchItemResult struct {
	Key          string `json:"key"`
	Status       bool   `json:"status"`
	StatusCode   int    `json:"statusCode"`
	ErrorMessage string `json:"errorMessage"`
}

// searchClient is the low-level index API. The Azure implementation is
// the only holder of search credentials in the process.
type searchClient interface {
	Search(ctx context.Context, index string, q searchQuery) ([]rawDoc, error)
	IndexBatch(ctx context.Context, index string, actions []indexAction) ([]batchItemResult, error)
}

type azureSearchClient struct {
	log        *logger.Logger
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func newAzureSearchClient(log *logger.Logger) (*azureSearchClient, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(os.Getenv("AZURE_SEARCH_ENDPOINT")), "/")
	apiKey := strings.TrimSpace(os.Getenv("AZURE_SEARCH_KEY"))
	if endpoint == "" || apiKey == "" {
		return nil, fmt.Errorf("missing AZURE_SEARCH_ENDPOINT or AZURE_SEARCH_KEY")
	}
	return &azureSearchClient{
		log:        log.With("service", "AzureSearchClient"),
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *azureSearchClient) Search(ctx context.Context, index string, q searchQuery) ([]rawDoc, error) {
	url := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s", c.endpoint, index, searchAPIVersion)

	var payload struct {
		Value []rawDoc `json:"value"`
	}
	if err := c.post(ctx, url, q, &payload); err != nil {
		return nil, err
	}
	return payload.Value, nil
}

func (c *azureSearchClient) IndexBatch(ctx context.Context, index string, actions []indexAction) ([]batchItemResult, error) {
	url := fmt.Sprintf("%s/indexes/%s/docs/index?api-version=%s", c.endpoint, index, searchAPIVersion)

	value := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		switch a.Action {
		case "delete":
			value = append(value, map[string]any{
				"@search.action": "delete",
				"id":             a.ID,
			})
		default:
			doc := map[string]any{
				"@search.action": "upload",
				"id":             a.Chunk.ID,
				"title":          a.Chunk.Title,
				"content":        a.Chunk.Content,
				"source":         a.Chunk.Source,
				"doc_type":       a.Chunk.DocType,
			}
			if a.Chunk.OwnerFingerprint != "" {
				doc["owner_fingerprint"] = a.Chunk.OwnerFingerprint
			}
			if a.Chunk.Citation != "" {
				doc["citation"] = a.Chunk.Citation
			}
			if a.Chunk.UploadedAt != "" {
				doc["uploaded_at"] = a.Chunk.UploadedAt
			}
			if a.Chunk.PageCount > 0 {
				doc["page_count"] = a.Chunk.PageCount
			}
			if a.Chunk.FileHash != "" {
				doc["file_hash"] = a.Chunk.FileHash
			}
			if len(a.Chunk.Embedding) > 0 {
				doc["embedding"] = a.Chunk.Embedding
			}
			value = append(value, doc)
		}
	}

	var payload struct {
		Value []batchItemResult `json:"value"`
	}
	if err := c.post(ctx, url, map[string]any{"value": value}, &payload); err != nil {
		return nil, err
	}
	return payload.Value, nil
}

func (c *azureSearchClient) post(ctx context.Context, url string, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("search service error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("search response decode error: %w", err)
	}
	return nil
}
