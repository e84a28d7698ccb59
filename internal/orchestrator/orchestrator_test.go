package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/regscout/regscout-backend/internal/platform/anthropic"
	"github.com/regscout/regscout-backend/internal/platform/logger"
)

func newTestOrchestrator(client anthropic.Client) (*Orchestrator, *MemoryStore, *[]time.Duration) {
	store := NewMemoryStore()
	o := New(logger.NewNop(), client, store)
	var slept []time.Duration
	o.sleep = func(d time.Duration) { slept = append(slept, d) }
	return o, store, &slept
}

func collectEvents(events *[]Event) func(Event) bool {
	return func(ev Event) bool {
		*events = append(*events, ev)
		return true
	}
}

func eventsOfType(events []Event, typ string) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func textTurn(text string) anthropic.ScriptedTurn {
	return anthropic.ScriptedTurn{
		Events: []anthropic.StreamEvent{
			anthropic.TextStart{},
			anthropic.TextDelta{Text: text},
			anthropic.BlockStop{},
			anthropic.MessageStop{StopReason: "end_turn"},
		},
		Result: &anthropic.MessageResult{
			Content:    []anthropic.ContentBlock{anthropic.TextBlock(text)},
			StopReason: "end_turn",
		},
	}
}

func TestRunSingleTurnNoTools(t *testing.T) {
	client := &anthropic.MockClient{Turns: []anthropic.ScriptedTurn{textTurn("Hello there.")}}
	o, store, _ := newTestOrchestrator(client)

	var events []Event
	err := o.Run(context.Background(), "conv-1", "hi", testConfig(), "fp", collectEvents(&events))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.Calls != 1 {
		t.Fatalf("Calls = %d, want 1", client.Calls)
	}

	texts := eventsOfType(events, EventText)
	if len(texts) != 1 || texts[0].Content != "Hello there." {
		t.Fatalf("text events = %+v", texts)
	}
	if len(eventsOfType(events, EventDone)) != 1 {
		t.Fatal("missing done event")
	}

	history := store.History("conv-1")
	if len(history) != 2 {
		t.Fatalf("history len = %d, want 2", len(history))
	}
	if history[0].Role != "user" || history[0].Content[0].Text != "hi" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1].Role != "assistant" || history[1].Content[0].Text != "Hello there." {
		t.Errorf("history[1] = %+v", history[1])
	}
}

func TestRunToolLoopClearsMetaCommentary(t *testing.T) {
	leadIn := strings.Repeat("x", 40)
	toolInput := json.RawMessage(`{"query":"icing"}`)

	toolTurn := anthropic.ScriptedTurn{
		Events: []anthropic.StreamEvent{
			anthropic.TextStart{},
			anthropic.TextDelta{Text: leadIn},
			anthropic.BlockStop{},
			anthropic.ToolUseStart{ID: "toolu_1", Name: "lookup"},
			anthropic.InputJSONDelta{Partial: string(toolInput)},
			anthropic.BlockStop{},
			anthropic.MessageStop{StopReason: "tool_use"},
		},
		Result: &anthropic.MessageResult{
			Content: []anthropic.ContentBlock{
				anthropic.TextBlock(leadIn),
				{Type: "tool_use", ID: "toolu_1", Name: "lookup", Input: toolInput},
			},
			StopReason: "tool_use",
		},
	}

	client := &anthropic.MockClient{Turns: []anthropic.ScriptedTurn{toolTurn, textTurn("Final answer.")}}
	o, store, _ := newTestOrchestrator(client)

	tool := &staticTool{name: "lookup", result: "lookup result body"}
	cfg := testConfig(tool)

	var events []Event
	if err := o.Run(context.Background(), "conv-1", "question", cfg, "fp", collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.Calls != 2 {
		t.Fatalf("Calls = %d, want 2", client.Calls)
	}

	clears := eventsOfType(events, EventClearText)
	if len(clears) != 1 || clears[0].Chars != 40 {
		t.Fatalf("clear_text events = %+v", clears)
	}

	execs := eventsOfType(events, EventToolExecuting)
	if len(execs) != 1 || execs[0].Tool != "lookup" || execs[0].Input["query"] != "icing" {
		t.Fatalf("tool_executing events = %+v", execs)
	}
	results := eventsOfType(events, EventToolResult)
	if len(results) != 1 || results[0].Result != "lookup result body" {
		t.Fatalf("tool_result events = %+v", results)
	}

	// Second request carries the tool exchange, with the cleared text
	// block gone from the assistant turn.
	second := client.Requests[1].Messages
	assistant := second[len(second)-2]
	if assistant.Role != "assistant" || len(assistant.Content) != 1 || assistant.Content[0].Type != "tool_use" {
		t.Fatalf("assistant turn = %+v", assistant)
	}
	resultTurn := second[len(second)-1]
	if resultTurn.Role != "user" || resultTurn.Content[0].ToolUseID != "toolu_1" || resultTurn.Content[0].Content != "lookup result body" {
		t.Fatalf("tool result turn = %+v", resultTurn)
	}

	// Only the user message and the final answer are persisted.
	history := store.History("conv-1")
	if len(history) != 2 || history[1].Content[0].Text != "Final answer." {
		t.Fatalf("history = %+v", history)
	}
}

func TestRunTruncatesToolResultDisplay(t *testing.T) {
	// The § at the cut point must be dropped whole, not split.
	long := strings.Repeat("r", resultDisplayLimit-1) + strings.Repeat("§", 101)
	toolTurn := anthropic.ScriptedTurn{
		Result: &anthropic.MessageResult{
			Content: []anthropic.ContentBlock{
				{Type: "tool_use", ID: "toolu_1", Name: "lookup", Input: json.RawMessage(`{}`)},
			},
			StopReason: "tool_use",
		},
	}
	client := &anthropic.MockClient{Turns: []anthropic.ScriptedTurn{toolTurn, textTurn("done")}}
	o, _, _ := newTestOrchestrator(client)
	cfg := testConfig(&staticTool{name: "lookup", result: long})

	var events []Event
	if err := o.Run(context.Background(), "conv-1", "q", cfg, "fp", collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	results := eventsOfType(events, EventToolResult)
	if len(results) != 1 || len(results[0].Result) != resultDisplayLimit-1 {
		t.Fatalf("displayed result length = %d", len(results[0].Result))
	}
	if !utf8.ValidString(results[0].Result) {
		t.Fatal("displayed result is not valid UTF-8")
	}
	// The model still sees the full result.
	second := client.Requests[1].Messages
	if got := second[len(second)-1].Content[0].Content; len(got) != len(long) {
		t.Fatalf("model-visible result length = %d, want %d", len(got), len(long))
	}
}

func TestRunRetriesThenExhausts(t *testing.T) {
	busy := &anthropic.APIError{StatusCode: 429, Type: "rate_limit_error", Message: "busy"}
	client := &anthropic.MockClient{Turns: []anthropic.ScriptedTurn{
		{Err: busy}, {Err: busy}, {Err: busy},
	}}
	o, store, slept := newTestOrchestrator(client)

	var events []Event
	err := o.Run(context.Background(), "conv-1", "q", testConfig(), "fp", collectEvents(&events))
	if err == nil {
		t.Fatal("Run succeeded, want error")
	}
	if client.Calls != 3 {
		t.Fatalf("Calls = %d, want 3", client.Calls)
	}
	if want := []time.Duration{2 * time.Second, 4 * time.Second}; len(*slept) != 2 || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Fatalf("sleeps = %v, want %v", *slept, want)
	}

	texts := eventsOfType(events, EventText)
	if len(texts) != 2 {
		t.Fatalf("retry notices = %d, want 2", len(texts))
	}
	if texts[0].Content != "\n\n*API busy, retrying in 2s...*\n\n" || texts[1].Content != "\n\n*API busy, retrying in 4s...*\n\n" {
		t.Fatalf("retry notices = %+v", texts)
	}

	errs := eventsOfType(events, EventError)
	if len(errs) != 1 || !strings.HasPrefix(errs[0].Content, "LLM API unavailable after 3 retries:") {
		t.Fatalf("error events = %+v", errs)
	}
	if len(store.History("conv-1")) != 0 {
		t.Fatal("history persisted after failed turn")
	}
}

func TestRunRecoversAfterRetry(t *testing.T) {
	busy := &anthropic.APIError{StatusCode: 529, Type: "overloaded_error", Message: "overloaded"}
	client := &anthropic.MockClient{Turns: []anthropic.ScriptedTurn{
		{Err: busy}, textTurn("Recovered."),
	}}
	o, store, slept := newTestOrchestrator(client)

	var events []Event
	if err := o.Run(context.Background(), "conv-1", "q", testConfig(), "fp", collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.Calls != 2 || len(*slept) != 1 {
		t.Fatalf("Calls = %d sleeps = %v", client.Calls, *slept)
	}
	if len(eventsOfType(events, EventError)) != 0 {
		t.Fatal("unexpected error event")
	}
	if len(store.History("conv-1")) != 2 {
		t.Fatal("history not persisted after recovery")
	}
}

func TestRunHonorsRetryAfterHint(t *testing.T) {
	busy := &anthropic.APIError{StatusCode: 429, Type: "rate_limit_error", Message: "busy", RetryAfter: 5 * time.Second}
	client := &anthropic.MockClient{Turns: []anthropic.ScriptedTurn{
		{Err: busy}, textTurn("Recovered."),
	}}
	o, _, slept := newTestOrchestrator(client)

	var events []Event
	if err := o.Run(context.Background(), "conv-1", "q", testConfig(), "fp", collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != 5*time.Second {
		t.Fatalf("sleeps = %v, want [5s]", *slept)
	}

	var notice string
	for _, ev := range eventsOfType(events, EventText) {
		if strings.Contains(ev.Content, "retrying") {
			notice = ev.Content
		}
	}
	if !strings.Contains(notice, "retrying in 5s") {
		t.Fatalf("retry notice = %q", notice)
	}
}

func TestRunNonRetryableErrorFailsFast(t *testing.T) {
	fatal := &anthropic.APIError{StatusCode: 400, Type: "invalid_request_error", Message: "bad request"}
	client := &anthropic.MockClient{Turns: []anthropic.ScriptedTurn{{Err: fatal}}}
	o, store, slept := newTestOrchestrator(client)

	var events []Event
	err := o.Run(context.Background(), "conv-1", "q", testConfig(), "fp", collectEvents(&events))
	if err == nil {
		t.Fatal("Run succeeded, want error")
	}
	if client.Calls != 1 || len(*slept) != 0 {
		t.Fatalf("Calls = %d sleeps = %v", client.Calls, *slept)
	}
	errs := eventsOfType(events, EventError)
	if len(errs) != 1 || !strings.HasPrefix(errs[0].Content, "LLM API error:") {
		t.Fatalf("error events = %+v", errs)
	}
	if len(store.History("conv-1")) != 0 {
		t.Fatal("history persisted after failed turn")
	}
}

func TestRunAbortsSilentlyWhenConsumerCloses(t *testing.T) {
	client := &anthropic.MockClient{Turns: []anthropic.ScriptedTurn{textTurn("Hello.")}}
	o, store, _ := newTestOrchestrator(client)

	err := o.Run(context.Background(), "conv-1", "q", testConfig(), "fp", func(Event) bool { return false })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.History("conv-1")) != 0 {
		t.Fatal("history persisted after aborted turn")
	}
}

func TestRunWarnsNearTokenLimit(t *testing.T) {
	client := &anthropic.MockClient{Turns: []anthropic.ScriptedTurn{textTurn("ok")}}
	o, _, _ := newTestOrchestrator(client)

	// ~170k estimated tokens at 4 chars per token.
	big := strings.Repeat("a", 680000)
	var events []Event
	if err := o.Run(context.Background(), "conv-1", big, testConfig(), "fp", collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	warnings := eventsOfType(events, EventWarning)
	if len(warnings) != 1 {
		t.Fatalf("warning events = %d, want 1", len(warnings))
	}
	if !strings.Contains(warnings[0].Content, "~85% of the context limit (170,000 / 200,000 tokens)") {
		t.Fatalf("warning = %q", warnings[0].Content)
	}
}

func TestThinkingDoesNotTriggerClearText(t *testing.T) {
	turn := anthropic.ScriptedTurn{
		Events: []anthropic.StreamEvent{
			anthropic.TextStart{},
			anthropic.TextDelta{Text: "some text"},
			anthropic.BlockStop{},
			anthropic.ThinkingStart{},
			anthropic.ThinkingDelta{Thinking: "pondering"},
			anthropic.BlockStop{},
			anthropic.ToolUseStart{ID: "toolu_1", Name: "lookup"},
			anthropic.BlockStop{},
			anthropic.MessageStop{StopReason: "tool_use"},
		},
		Result: &anthropic.MessageResult{
			Content: []anthropic.ContentBlock{
				anthropic.TextBlock("some text"),
				{Type: "thinking", Thinking: "pondering"},
				{Type: "tool_use", ID: "toolu_1", Name: "lookup", Input: json.RawMessage(`{}`)},
			},
			StopReason: "tool_use",
		},
	}
	client := &anthropic.MockClient{Turns: []anthropic.ScriptedTurn{turn, textTurn("done")}}
	o, _, _ := newTestOrchestrator(client)
	cfg := testConfig(&staticTool{name: "lookup", result: "r"})

	var events []Event
	if err := o.Run(context.Background(), "conv-1", "q", cfg, "fp", collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if clears := eventsOfType(events, EventClearText); len(clears) != 0 {
		t.Fatalf("clear_text events = %+v", clears)
	}
	// The text block stays in the assistant turn.
	assistant := client.Requests[1].Messages[1]
	if len(assistant.Content) != 3 || assistant.Content[0].Text != "some text" {
		t.Fatalf("assistant turn = %+v", assistant)
	}
}

func TestParseToolInput(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"valid", `{"a":1,"b":"x"}`, 2},
		{"empty", "", 0},
		{"null", "null", 0},
		{"invalid", `{"a":`, 0},
	}
	for _, tc := range cases {
		got := parseToolInput(json.RawMessage(tc.raw))
		if got == nil {
			t.Errorf("%s: returned nil map", tc.name)
			continue
		}
		if len(got) != tc.want {
			t.Errorf("%s: len = %d, want %d", tc.name, len(got), tc.want)
		}
	}
}

func TestCommas(t *testing.T) {
	cases := map[int]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		150000:  "150,000",
		200000:  "200,000",
		1234567: "1,234,567",
	}
	for n, want := range cases {
		if got := commas(n); got != want {
			t.Errorf("commas(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestMemoryStoreHistoryIsCopy(t *testing.T) {
	store := NewMemoryStore()
	store.Append("c", anthropic.Message{Role: "user", Content: []anthropic.ContentBlock{anthropic.TextBlock("hi")}})

	h := store.History("c")
	h[0].Role = "mutated"
	if store.History("c")[0].Role != "user" {
		t.Fatal("History returned shared backing slice")
	}
	if len(store.History("missing")) != 0 {
		t.Fatal("unknown conversation should have empty history")
	}
}
