package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/regscout/regscout-backend/internal/pkg/httpx"
	"github.com/regscout/regscout-backend/internal/platform/logger"
)

const (
	apiVersion         = "2023-06-01"
	interleavedBeta    = "interleaved-thinking-2025-05-14"
	defaultModel       = "claude-sonnet-4-5-20250929"
	defaultMaxTokens   = 16384
	defaultThinkBudget = 10000
)

// Client streams one assistant turn per call. Retry policy lives with
// the caller so it can surface retry progress to its own consumers.
type Client interface {
	// StreamMessage calls the messages API with streaming enabled,
	// invoking onEvent for every decoded stream event, and returns the
	// assembled final message. onEvent returning an error aborts the
	// stream and propagates that error unchanged.
	StreamMessage(ctx context.Context, req StreamRequest, onEvent func(StreamEvent) error) (*MessageResult, error)
}

// APIError is a non-2xx response from the messages API. RetryAfter is
// the server's Retry-After hint, zero when absent.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic api error: status=%d type=%s message=%s", e.StatusCode, e.Type, e.Message)
}

func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

// IsRetryable reports whether err is a transient provider failure:
// rate limit or overload statuses, an overloaded error body, or a
// transport-level failure. Fatal API errors are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := err.(*APIError); ok {
		if apiErr.StatusCode == 429 || apiErr.StatusCode == 529 {
			return true
		}
		return apiErr.Type == "overloaded_error"
	}
	return httpx.IsRetryableError(err)
}

type client struct {
	log            *logger.Logger
	baseURL        string
	apiKey         string
	model          string
	maxTokens      int
	thinkingBudget int
	httpClient     *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing ANTHROPIC_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL"))
	if model == "" {
		model = defaultModel
	}

	maxTokens := defaultMaxTokens
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_MAX_TOKENS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxTokens = parsed
		}
	}

	thinkingBudget := defaultThinkBudget
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_THINKING_BUDGET")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			thinkingBudget = parsed
		}
	}

	timeoutSec := 300
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	return &client{
		log:            log.With("service", "AnthropicClient"),
		baseURL:        baseURL,
		apiKey:         apiKey,
		model:          model,
		maxTokens:      maxTokens,
		thinkingBudget: thinkingBudget,
		httpClient:     &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

type messagesRequest struct {
	Model     string           `json:"model"`
	MaxTokens int              `json:"max_tokens"`
	System    string           `json:"system,omitempty"`
	Messages  []Message        `json:"messages"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
	Stream    bool             `json:"stream"`
	Thinking  *thinkingConfig  `json:"thinking,omitempty"`
}

type thinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

func (c *client) StreamMessage(ctx context.Context, streamReq StreamRequest, onEvent func(StreamEvent) error) (*MessageResult, error) {
	maxTokens := streamReq.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	body := messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    streamReq.System,
		Messages:  streamReq.Messages,
		Tools:     streamReq.Tools,
		Stream:    true,
	}
	budget := streamReq.ThinkingBudget
	if budget == 0 {
		budget = c.thinkingBudget
	}
	if budget > 0 {
		body.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: budget}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
	if body.Thinking != nil {
		req.Header.Set("anthropic-beta", interleavedBeta)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		apiErr := decodeAPIError(resp.StatusCode, raw)
		apiErr.RetryAfter = httpx.RetryAfterDuration(resp, 0, time.Minute)
		return nil, apiErr
	}

	asm := newAssembler()
	err = streamSSE(resp.Body, func(event, data string) error {
		return c.handleSSEEvent(asm, event, data, onEvent)
	})
	if err != nil {
		return nil, err
	}
	result := asm.result()
	c.log.Debug("Stream complete",
		"stop_reason", result.StopReason,
		"output_tokens", result.OutputTokens,
		"blocks", len(result.Content),
	)
	if result.StopReason == "max_tokens" {
		c.log.Warn("Response truncated by max_tokens", "output_tokens", result.OutputTokens)
	}
	return result, nil
}

type sseEnvelope struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		Signature   string `json:"signature"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`

	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`

	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) handleSSEEvent(asm *assembler, event, data string, onEvent func(StreamEvent) error) error {
	if event == "ping" || data == "" {
		return nil
	}
	var env sseEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		c.log.Warn("Undecodable stream event", "event", event, "error", err)
		return nil
	}

	emit := func(ev StreamEvent) error {
		if onEvent == nil {
			return nil
		}
		return onEvent(ev)
	}

	switch env.Type {
	case "message_start":
		return nil
	case "content_block_start":
		if env.ContentBlock == nil {
			return nil
		}
		switch env.ContentBlock.Type {
		case "text":
			asm.startText()
			return emit(TextStart{})
		case "thinking":
			asm.startThinking()
			return emit(ThinkingStart{})
		case "tool_use":
			asm.startToolUse(env.ContentBlock.ID, env.ContentBlock.Name)
			return emit(ToolUseStart{ID: env.ContentBlock.ID, Name: env.ContentBlock.Name})
		}
		return nil
	case "content_block_delta":
		if env.Delta == nil {
			return nil
		}
		switch env.Delta.Type {
		case "text_delta":
			asm.appendText(env.Delta.Text)
			return emit(TextDelta{Text: env.Delta.Text})
		case "thinking_delta":
			asm.appendThinking(env.Delta.Thinking)
			return emit(ThinkingDelta{Thinking: env.Delta.Thinking})
		case "signature_delta":
			asm.setSignature(env.Delta.Signature)
			return emit(SignatureDelta{Signature: env.Delta.Signature})
		case "input_json_delta":
			asm.appendInputJSON(env.Delta.PartialJSON)
			return emit(InputJSONDelta{Partial: env.Delta.PartialJSON})
		}
		return nil
	case "content_block_stop":
		asm.stopBlock()
		return emit(BlockStop{})
	case "message_delta":
		if env.Delta != nil && env.Delta.StopReason != "" {
			asm.setStopReason(env.Delta.StopReason)
		}
		if env.Usage != nil {
			asm.setOutputTokens(env.Usage.OutputTokens)
		}
		return nil
	case "message_stop":
		return emit(MessageStop{StopReason: asm.stopReason})
	case "error":
		if env.Error != nil {
			return &APIError{StatusCode: 0, Type: env.Error.Type, Message: env.Error.Message}
		}
		return &APIError{StatusCode: 0, Type: "unknown", Message: "stream error"}
	}
	return nil
}

func decodeAPIError(status int, raw []byte) *APIError {
	var payload struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return &APIError{StatusCode: status, Type: payload.Error.Type, Message: payload.Error.Message}
	}
	return &APIError{StatusCode: status, Type: "http_error", Message: strings.TrimSpace(string(raw))}
}

// assembler rebuilds the final message from stream deltas, mirroring
// the content_block_* lifecycle.
type assembler struct {
	blocks       []ContentBlock
	current      *ContentBlock
	inputJSON    strings.Builder
	stopReason   string
	outputTokens int
}

func newAssembler() *assembler { return &assembler{} }

func (a *assembler) startText() {
	a.current = &ContentBlock{Type: "text"}
}

func (a *assembler) startThinking() {
	a.current = &ContentBlock{Type: "thinking"}
}

func (a *assembler) startToolUse(id, name string) {
	a.current = &ContentBlock{Type: "tool_use", ID: id, Name: name}
	a.inputJSON.Reset()
}

func (a *assembler) appendText(s string) {
	if a.current != nil && a.current.Type == "text" {
		a.current.Text += s
	}
}

func (a *assembler) appendThinking(s string) {
	if a.current != nil && a.current.Type == "thinking" {
		a.current.Thinking += s
	}
}

func (a *assembler) setSignature(s string) {
	if a.current != nil && a.current.Type == "thinking" {
		a.current.Signature = s
	}
}

func (a *assembler) appendInputJSON(s string) {
	if a.current != nil && a.current.Type == "tool_use" {
		a.inputJSON.WriteString(s)
	}
}

func (a *assembler) stopBlock() {
	if a.current == nil {
		return
	}
	if a.current.Type == "tool_use" {
		raw := strings.TrimSpace(a.inputJSON.String())
		if raw == "" {
			raw = "{}"
		}
		a.current.Input = json.RawMessage(raw)
	}
	a.blocks = append(a.blocks, *a.current)
	a.current = nil
}

func (a *assembler) setStopReason(r string) { a.stopReason = r }
func (a *assembler) setOutputTokens(n int)  { a.outputTokens = n }

func (a *assembler) result() *MessageResult {
	return &MessageResult{
		Content:      a.blocks,
		StopReason:   a.stopReason,
		OutputTokens: a.outputTokens,
	}
}
