// Package orchestrator drives the model conversation loop: stream a
// turn, execute requested tools, feed results back, repeat until the
// model answers without tools.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/regscout/regscout-backend/internal/agents"
	"github.com/regscout/regscout-backend/internal/pkg/strutil"
	"github.com/regscout/regscout-backend/internal/platform/anthropic"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/tools"
)

const (
	maxRetries     = 3
	baseRetryDelay = 2 * time.Second

	// Rough token estimate at ~4 chars per token against the model's
	// context window.
	tokenWarnThreshold = 150000
	tokenLimit         = 200000

	resultDisplayLimit = 500
)

// Event stream types.
const (
	EventText          = "text"
	EventThinking      = "thinking"
	EventToolExecuting = "tool_executing"
	EventToolResult    = "tool_result"
	EventClearText     = "clear_text"
	EventWarning       = "warning"
	EventError         = "error"
	EventDone          = "done"
)

// Event is one item of the outbound conversation stream.
type Event struct {
	Type    string         `json:"type"`
	Content string         `json:"content,omitempty"`
	Tool    string         `json:"tool,omitempty"`
	Input   map[string]any `json:"input,omitempty"`
	Result  string         `json:"result,omitempty"`
	Chars   int            `json:"chars,omitempty"`
}

// errEmitClosed signals that the event consumer went away; the run
// aborts without touching history.
var errEmitClosed = errors.New("event consumer closed")

type Orchestrator struct {
	log      *logger.Logger
	client   anthropic.Client
	store    Store
	executor *Executor

	sleep func(time.Duration)
}

func New(log *logger.Logger, client anthropic.Client, store Store) *Orchestrator {
	return &Orchestrator{
		log:      log,
		client:   client,
		store:    store,
		executor: NewExecutor(log),
		sleep:    time.Sleep,
	}
}

// Run handles one user message. Events are pushed through emit; emit
// returning false means the transport closed and the run stops
// silently. History is persisted only when the loop completes
// normally.
func (o *Orchestrator) Run(ctx context.Context, conversationID, userMessage string, cfg agents.Config, fingerprint string, emit func(Event) bool) error {
	send := func(ev Event) error {
		if !emit(ev) {
			return errEmitClosed
		}
		return nil
	}

	docCache := tools.NewDocCache()

	userMsg := anthropic.Message{Role: "user", Content: []anthropic.ContentBlock{anthropic.TextBlock(userMessage)}}
	messages := append(o.store.History(conversationID), userMsg)

	if est := estimateTokens(messages, cfg.SystemPrompt); est > tokenWarnThreshold {
		pct := est * 100 / tokenLimit
		warning := fmt.Sprintf(
			"⚠️ This conversation is using ~%d%% of the context limit (%s / %s tokens). Consider starting a new conversation to avoid errors.",
			pct, commas(est), commas(tokenLimit))
		if err := send(Event{Type: EventWarning, Content: warning}); err != nil {
			return nil
		}
		o.log.Warn("Conversation approaching token limit", "conversation_id", conversationID, "estimated_tokens", est)
	}

	o.log.Info("Starting conversation turn", "agent", cfg.Name, "conversation_id", conversationID)

	var finalContent []anthropic.ContentBlock
	for iteration := 1; ; iteration++ {
		o.log.Info("Calling model", "iteration", iteration, "messages", len(messages))

		turn, err := o.streamWithRetry(ctx, cfg, messages, send)
		if err != nil {
			if errors.Is(err, errEmitClosed) {
				o.log.Info("Client disconnected, aborting turn", "conversation_id", conversationID)
				return nil
			}
			return err
		}

		toolUses := turn.msg.ToolUses()
		if len(toolUses) == 0 {
			finalContent = turn.msg.Content
			break
		}

		messages = append(messages, anthropic.Message{Role: "assistant", Content: turn.keptContent()})

		toolResults := make([]anthropic.ContentBlock, 0, len(toolUses))
		for _, use := range toolUses {
			input := parseToolInput(use.Input)
			o.log.Info("Executing tool", "tool", use.Name)
			if err := send(Event{Type: EventToolExecuting, Tool: use.Name, Input: input}); err != nil {
				return nil
			}

			result := o.executor.Execute(ctx, cfg, use.Name, input, fingerprint, docCache)

			display := strutil.Truncate(result, resultDisplayLimit)
			if err := send(Event{Type: EventToolResult, Tool: use.Name, Result: display}); err != nil {
				return nil
			}
			toolResults = append(toolResults, anthropic.ToolResultBlock(use.ID, result))
		}

		messages = append(messages, anthropic.Message{Role: "user", Content: toolResults})
	}

	o.store.Append(conversationID, userMsg, anthropic.Message{Role: "assistant", Content: finalContent})
	o.log.Info("Conversation turn completed", "conversation_id", conversationID)

	if err := send(Event{Type: EventDone}); err != nil {
		return nil
	}
	return nil
}

// turnResult pairs the assembled assistant message with the indexes of
// text blocks that were cleared as meta-commentary.
type turnResult struct {
	msg     *anthropic.MessageResult
	dropped map[int]bool
}

// keptContent is the assistant content minus cleared text blocks, so
// the model does not see its own discarded lead-in on the next turn.
func (t *turnResult) keptContent() []anthropic.ContentBlock {
	if len(t.dropped) == 0 {
		return t.msg.Content
	}
	kept := make([]anthropic.ContentBlock, 0, len(t.msg.Content))
	for i, block := range t.msg.Content {
		if t.dropped[i] {
			continue
		}
		kept = append(kept, block)
	}
	return kept
}

func (o *Orchestrator) streamWithRetry(ctx context.Context, cfg agents.Config, messages []anthropic.Message, send func(Event) error) (*turnResult, error) {
	req := anthropic.StreamRequest{
		System:   cfg.SystemPrompt,
		Messages: messages,
		Tools:    cfg.Tools,
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		turn, err := o.streamOnce(ctx, req, send)
		if err == nil {
			return turn, nil
		}
		if errors.Is(err, errEmitClosed) {
			return nil, err
		}
		lastErr = err

		if anthropic.IsRetryable(err) {
			if attempt < maxRetries-1 {
				delay := baseRetryDelay << attempt
				var apiErr *anthropic.APIError
				if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
					delay = apiErr.RetryAfter
				}
				o.log.Warn("Model API busy, retrying", "attempt", attempt+1, "max", maxRetries, "delay", delay)
				notice := fmt.Sprintf("\n\n*API busy, retrying in %ds...*\n\n", int(delay.Seconds()))
				if err := send(Event{Type: EventText, Content: notice}); err != nil {
					return nil, err
				}
				o.sleep(delay)
			}
			continue
		}

		o.log.Error("Model API error", "error", err)
		if sendErr := send(Event{Type: EventError, Content: fmt.Sprintf("LLM API error: %v", err)}); sendErr != nil {
			return nil, sendErr
		}
		return nil, err
	}

	o.log.Error("Model API retries exhausted", "error", lastErr)
	if sendErr := send(Event{Type: EventError, Content: fmt.Sprintf("LLM API unavailable after %d retries: %v", maxRetries, lastErr)}); sendErr != nil {
		return nil, sendErr
	}
	return nil, lastErr
}

// streamOnce runs a single provider call, forwarding deltas as events.
// Text streams immediately for responsiveness; when a tool_use block
// starts on the heels of streamed text, that text was meta-commentary
// ("Let me check...") and a clear_text event tells the consumer to
// remove it.
func (o *Orchestrator) streamOnce(ctx context.Context, req anthropic.StreamRequest, send func(Event) error) (*turnResult, error) {
	var (
		blockIndex    = -1
		lastTextIndex = -1
		textChars     int
		inTextBlock   bool
		dropped       = make(map[int]bool)
	)

	onEvent := func(ev anthropic.StreamEvent) error {
		switch e := ev.(type) {
		case anthropic.TextStart:
			blockIndex++
			lastTextIndex = blockIndex
			textChars = 0
			inTextBlock = true
		case anthropic.ThinkingStart:
			blockIndex++
			textChars = 0
			inTextBlock = false
		case anthropic.ToolUseStart:
			blockIndex++
			if textChars > 0 && lastTextIndex >= 0 {
				o.log.Info("Clearing meta-commentary", "chars", textChars)
				dropped[lastTextIndex] = true
				if err := send(Event{Type: EventClearText, Chars: textChars}); err != nil {
					return err
				}
			}
			textChars = 0
			inTextBlock = false
		case anthropic.TextDelta:
			if inTextBlock {
				textChars += len(e.Text)
			}
			return send(Event{Type: EventText, Content: e.Text})
		case anthropic.ThinkingDelta:
			return send(Event{Type: EventThinking, Content: e.Thinking})
		case anthropic.BlockStop:
			// Keep the char count after a text block ends: a tool_use
			// block may start next.
			if !inTextBlock {
				textChars = 0
			}
			inTextBlock = false
		case anthropic.MessageStop:
			textChars = 0
		}
		return nil
	}

	msg, err := o.client.StreamMessage(ctx, req, onEvent)
	if err != nil {
		return nil, err
	}
	return &turnResult{msg: msg, dropped: dropped}, nil
}

func parseToolInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil || input == nil {
		return map[string]any{}
	}
	return input
}

func estimateTokens(messages []anthropic.Message, system string) int {
	total := len(system)
	for _, msg := range messages {
		for _, block := range msg.Content {
			total += len(block.Text) + len(block.Thinking) + len(block.Content) + len(block.Input)
		}
	}
	return total / 4
}

func commas(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}
