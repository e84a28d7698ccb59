package embeddings

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

// Cohere embed-v3 produces 1024-dimensional vectors.
const Dimensions = 1024

const (
	maxInputChars = 8000
	batchSize     = 20
)

// Client generates dense vectors through the Azure AI Services
// embeddings endpoint.
type Client interface {
	// Embed returns one vector per input, in order. A nil vector for an
	// input means embedding failed for its batch; callers fall back to
	// keyword-only search.
	Embed(ctx context.Context, inputs []string, inputType string) ([][]float32, error)
	// EmbedQuery is Embed for a single search query.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

type client struct {
	log        *logger.Logger
	endpoint   string
	apiKey     string
	deployment string
	httpClient *http.Client
}

// NewClient returns nil (no error) when the embeddings endpoint is not
// configured; callers treat a nil client as keyword-only mode.
func NewClient(log *logger.Logger) (Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(os.Getenv("AZURE_AI_SERVICES_ENDPOINT")), "/")
	apiKey := strings.TrimSpace(os.Getenv("AZURE_AI_SERVICES_KEY"))
	if endpoint == "" || apiKey == "" {
		log.Warn("Azure AI Services not configured; embeddings disabled")
		return nil, nil
	}

	deployment := strings.TrimSpace(os.Getenv("AZURE_AI_SERVICES_EMBEDDING_DEPLOYMENT"))
	if deployment == "" {
		deployment = "cohere-embed"
	}

	return &client{
		log:        log.With("service", "EmbeddingsClient"),
		endpoint:   endpoint,
		apiKey:     apiKey,
		deployment: deployment,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type embeddingsRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string, inputType string) ([][]float32, error) {
	if inputType == "" {
		inputType = "document"
	}
	results := make([][]float32, 0, len(inputs))
	for start := 0; start < len(inputs); start += batchSize {
		end := start + batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		batch := make([]string, 0, end-start)
		for _, t := range inputs[start:end] {
			if len(t) > maxInputChars {
				t = t[:maxInputChars]
			}
			batch = append(batch, t)
		}

		vectors, err := c.embedBatch(ctx, batch, inputType)
		if err != nil {
			c.log.Error("Batch embedding error",
				"batch", start/batchSize+1,
				"size", len(batch),
				"error", err,
			)
			for range batch {
				results = append(results, nil)
			}
			continue
		}
		results = append(results, vectors...)
	}
	return results, nil
}

func (c *client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{query}, "query")
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	return vectors[0], nil
}

func (c *client) embedBatch(ctx context.Context, batch []string, inputType string) ([][]float32, error) {
	body := embeddingsRequest{
		Input:     batch,
		Model:     c.deployment,
		InputType: inputType,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	url := c.endpoint + "/models/embeddings?api-version=2024-05-01-preview"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("extra-parameters", "pass-through")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embeddings request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var payload embeddingsResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("embeddings decode error: %w", err)
	}
	if len(payload.Data) != len(batch) {
		return nil, fmt.Errorf("embeddings count mismatch: requested=%d returned=%d", len(batch), len(payload.Data))
	}
	out := make([][]float32, len(payload.Data))
	for i, d := range payload.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
