package anthropic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/regscout/regscout-backend/internal/platform/logger"
)

func newTestClient(baseURL string) *client {
	return &client{
		log:            logger.NewNop(),
		baseURL:        baseURL,
		apiKey:         "test-key",
		model:          "claude-sonnet-4-5-20250929",
		maxTokens:      1024,
		thinkingBudget: 0,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}
}

const sampleStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","role":"assistant"}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me check "}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"that section."}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: content_block_start
data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"fetch_cfr_section"}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"section\":"}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"25.1309\"}"}}

event: content_block_stop
data: {"type":"content_block_stop","index":1}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":42}}

event: message_stop
data: {"type":"message_stop"}

`

func TestStreamMessageAssemblesToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sampleStream))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	var events []StreamEvent
	result, err := c.StreamMessage(context.Background(), StreamRequest{
		System:   "You are a regulatory assistant.",
		Messages: []Message{{Role: "user", Content: []ContentBlock{TextBlock("What does 25.1309 require?")}}},
	}, func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	if result.StopReason != "tool_use" {
		t.Fatalf("stop reason = %q, want tool_use", result.StopReason)
	}
	if result.OutputTokens != 42 {
		t.Fatalf("output tokens = %d, want 42", result.OutputTokens)
	}
	if len(result.Content) != 2 {
		t.Fatalf("got %d blocks, want 2", len(result.Content))
	}
	if result.Content[0].Type != "text" || result.Content[0].Text != "Let me check that section." {
		t.Fatalf("text block = %+v", result.Content[0])
	}
	tool := result.Content[1]
	if tool.Type != "tool_use" || tool.ID != "toolu_1" || tool.Name != "fetch_cfr_section" {
		t.Fatalf("tool block = %+v", tool)
	}
	if string(tool.Input) != `{"section":"25.1309"}` {
		t.Fatalf("tool input = %s", tool.Input)
	}

	uses := result.ToolUses()
	if len(uses) != 1 || uses[0].Name != "fetch_cfr_section" {
		t.Fatalf("tool uses = %+v", uses)
	}

	var sawToolStart bool
	var textChars int
	for _, ev := range events {
		switch e := ev.(type) {
		case TextDelta:
			textChars += len(e.Text)
		case ToolUseStart:
			sawToolStart = true
		}
	}
	if !sawToolStart {
		t.Fatal("never saw ToolUseStart event")
	}
	if textChars != len("Let me check that section.") {
		t.Fatalf("streamed %d text chars", textChars)
	}
}

func TestStreamMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.StreamMessage(context.Background(), StreamRequest{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type %T", err)
	}
	if apiErr.StatusCode != 429 || apiErr.Type != "rate_limit_error" {
		t.Fatalf("api error = %+v", apiErr)
	}
	if !IsRetryable(err) {
		t.Fatal("429 should be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", &APIError{StatusCode: 429}, true},
		{"overloaded status", &APIError{StatusCode: 529}, true},
		{"overloaded body", &APIError{StatusCode: 500, Type: "overloaded_error"}, true},
		{"bad request", &APIError{StatusCode: 400, Type: "invalid_request_error"}, false},
		{"auth failure", &APIError{StatusCode: 401, Type: "authentication_error"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
