package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/regscout/regscout-backend/internal/agents"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/tools"
)

// Executor runs one tool call with capability-driven injection: the
// agent's search index, the caller's fingerprint, and the
// conversation's document cache are handed only to tools that declare
// a need for them.
type Executor struct {
	log *logger.Logger
}

func NewExecutor(log *logger.Logger) *Executor {
	return &Executor{log: log}
}

// Execute never returns an error: every failure mode, unknown tool,
// tool error, or panic, becomes the result string the model sees.
func (e *Executor) Execute(ctx context.Context, cfg agents.Config, name string, input map[string]any, fingerprint string, docCache *tools.DocCache) (result string) {
	tool, ok := cfg.Registry[name]
	if !ok {
		e.log.Warn("Unknown tool requested", "agent", cfg.Name, "tool", name)
		return fmt.Sprintf("Error: Unknown tool '%s'", name)
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Tool panicked", "tool", name, "panic", r)
			result = fmt.Sprintf("Error executing %s: %v", name, r)
		}
	}()

	inv := tools.Invocation{Input: input}
	caps := tool.Capabilities()
	if caps.Has(tools.WantsIndexName) {
		inv.IndexName = cfg.SearchIndex
	}
	if caps.Has(tools.WantsFingerprint) {
		inv.Fingerprint = fingerprint
	}
	if caps.Has(tools.WantsDocCache) {
		inv.DocCache = docCache
	}

	out, err := tool.Invoke(ctx, inv)
	if err != nil {
		e.log.Error("Tool failed", "tool", name, "error", err)
		return fmt.Sprintf("Error executing %s: %v", name, err)
	}
	if strings.TrimSpace(out) == "" {
		return fmt.Sprintf("Tool %s completed but returned no content.", name)
	}
	return out
}
