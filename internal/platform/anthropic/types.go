package anthropic

import "encoding/json"

// ContentBlock is one block of a message turn. Type is one of "text",
// "thinking", "tool_use", "tool_result".
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

func ToolResultBlock(toolUseID, content string) ContentBlock {
	return ContentBlock{Type: "tool_result", ToolUseID: toolUseID, Content: content}
}

type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ToolDefinition is the JSON-schema shaped tool declaration sent to the
// model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type StreamRequest struct {
	System         string
	Messages       []Message
	Tools          []ToolDefinition
	MaxTokens      int
	ThinkingBudget int
}

// StreamEvent is the closed set of provider stream events. The
// orchestrator switches exhaustively over these variants.
type StreamEvent interface{ streamEvent() }

type TextStart struct{}
type TextDelta struct{ Text string }
type ThinkingStart struct{}
type ThinkingDelta struct{ Thinking string }
type SignatureDelta struct{ Signature string }
type ToolUseStart struct {
	ID   string
	Name string
}
type InputJSONDelta struct{ Partial string }
type BlockStop struct{}
type MessageStop struct{ StopReason string }

func (TextStart) streamEvent()      {}
func (TextDelta) streamEvent()      {}
func (ThinkingStart) streamEvent()  {}
func (ThinkingDelta) streamEvent()  {}
func (SignatureDelta) streamEvent() {}
func (ToolUseStart) streamEvent()   {}
func (InputJSONDelta) streamEvent() {}
func (BlockStop) streamEvent()      {}
func (MessageStop) streamEvent()    {}

// MessageResult is the fully assembled assistant message after the
// stream completes.
type MessageResult struct {
	Content      []ContentBlock
	StopReason   string
	OutputTokens int
}

// ToolUses returns the tool_use blocks in the order the model emitted
// them.
func (r *MessageResult) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range r.Content {
		if b.Type == "tool_use" {
			out = append(out, b)
		}
	}
	return out
}
