package verify

import (
	"context"
	"fmt"

	"github.com/ajramos/keycheck/internal/catalog"
)

// Observation is what an agent saw after performing one shortcut
type Observation struct {
	// Succeeded reports whether the expected effect was observed
	Succeeded bool `json:"succeeded" yaml:"succeeded"`
	// Note is free-form detail kept as the result observation
	Note string `json:"note,omitempty" yaml:"note,omitempty"`
	// Skipped means the agent could not test the shortcut in its current setup
	Skipped bool `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Agent performs a shortcut against the live application and reports what
// happened. Check must honour ctx: the runner abandons a check whose context
// expired, and a check that keeps running after that only wastes a goroutine.
type Agent interface {
	Check(ctx context.Context, def catalog.Definition) (Observation, error)
}

// AgentFunc adapts a function to the Agent interface
type AgentFunc func(ctx context.Context, def catalog.Definition) (Observation, error)

// Check calls f
func (f AgentFunc) Check(ctx context.Context, def catalog.Definition) (Observation, error) {
	return f(ctx, def)
}

// SessionProvider is implemented by agents able to open isolated sessions
// (separate browser tabs, separate bridge sessions). Only such agents are
// driven in parallel; each worker owns one session for the whole run.
type SessionProvider interface {
	Agent
	NewSession(ctx context.Context) (Agent, func(), error)
}

// Named is implemented by agents that want their name in the report metadata
type Named interface {
	Name() string
}

// CategoryAgent dispatches each definition to the agent registered for its
// category, falling back to Fallback
type CategoryAgent struct {
	Agents   map[catalog.Category]Agent
	Fallback Agent
}

// Check implements Agent
func (c CategoryAgent) Check(ctx context.Context, def catalog.Definition) (Observation, error) {
	if a, ok := c.Agents[def.Category()]; ok && a != nil {
		return a.Check(ctx, def)
	}
	if c.Fallback != nil {
		return c.Fallback.Check(ctx, def)
	}
	return Observation{Skipped: true, Note: fmt.Sprintf("no agent for category %s", def.Category())}, nil
}

// Name implements Named
func (c CategoryAgent) Name() string { return "category" }

func agentName(a Agent) string {
	if n, ok := a.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", a)
}
