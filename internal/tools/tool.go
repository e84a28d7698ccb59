package tools

import (
	"context"
	"sync"

	"github.com/regscout/regscout-backend/internal/indexer"
	"github.com/regscout/regscout-backend/internal/platform/anthropic"
)

// Capability declares which conversation-level values a tool needs
// injected at execution time, beyond what the model supplies in its
// input.
type Capability uint8

const (
	// WantsIndexName requests the agent's search index, unless the
	// model already supplied one.
	WantsIndexName Capability = 1 << iota
	// WantsFingerprint requests the requesting user's fingerprint.
	WantsFingerprint
	// WantsDocCache requests the conversation's personal document
	// cache.
	WantsDocCache
)

func (c Capability) Has(f Capability) bool { return c&f != 0 }

// Definition is the JSON schema advertised to the model for a tool.
type Definition = anthropic.ToolDefinition

// Invocation carries one tool call: the model's parsed input plus the
// injected values the tool's capabilities asked for.
type Invocation struct {
	Input       map[string]any
	IndexName   string
	Fingerprint string
	DocCache    *DocCache
}

// Tool is a single callable exposed to the model. Invoke returns the
// string handed back to the model as the tool result; origin-system
// failures are reported in that string, a non-nil error is reserved
// for faults the executor should surface itself.
type Tool interface {
	Name() string
	Capabilities() Capability
	Invoke(ctx context.Context, inv Invocation) (string, error)
}

// Scheduler accepts background indexing work. Satisfied by
// indexer.Scheduler.
type Scheduler interface {
	Schedule(req indexer.Request) bool
}

// DocCache holds full personal-document text for the lifetime of one
// conversation so follow-up searches avoid refetching.
type DocCache struct {
	mu   sync.Mutex
	docs map[string]string
}

func NewDocCache() *DocCache {
	return &DocCache{docs: make(map[string]string)}
}

func docCacheKey(documentID string) string { return "personal_doc_" + documentID }

func (c *DocCache) Put(documentID, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[docCacheKey(documentID)] = content
}

func (c *DocCache) Get(documentID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.docs[docCacheKey(documentID)]
	return content, ok
}

func strArg(in map[string]any, key, def string) string {
	if v, ok := in[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intArg(in map[string]any, key string, def int) int {
	switch v := in[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func strSliceArg(in map[string]any, key string) []string {
	raw, ok := in[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
