package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/ajramos/keycheck/internal/config"
	"github.com/ajramos/keycheck/internal/db"
	"github.com/ajramos/keycheck/internal/llm"
	"github.com/ajramos/keycheck/internal/tui"
	"github.com/ajramos/keycheck/internal/verify"
	"github.com/derailed/tcell/v2"
)

// Deps carries the runtime resources some agents need
type Deps struct {
	// In and Out default to stdin and stdout for the operator agent
	In  io.Reader
	Out io.Writer

	// History backs replay from the latest persisted run
	History *db.RunStore

	// Screen overrides the terminal used by the console agent
	Screen tcell.Screen

	// Logger receives the console agent's status messages
	Logger *log.Logger
}

// NewFromConfig builds the agent selected by cfg.Agent.Kind. The returned
// stop function releases the agent's resources and is never nil.
func NewFromConfig(ctx context.Context, cfg *config.Config, deps Deps) (verify.Agent, func(), error) {
	noop := func() {}
	if cfg == nil {
		return nil, noop, fmt.Errorf("nil config")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Agent.Kind)) {
	case config.AgentReplay, "":
		a, err := newReplayFromConfig(ctx, cfg, deps)
		return a, noop, err

	case config.AgentOperator:
		in, out := deps.In, deps.Out
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stdout
		}
		return NewOperator(in, out), noop, nil

	case config.AgentConsole:
		c := tui.NewConsole(deps.Screen)
		if deps.Logger != nil {
			c.SetLogger(deps.Logger)
		}
		c.Start()
		return c, c.Stop, nil

	case config.AgentBridge:
		if strings.TrimSpace(cfg.Agent.Bridge.Endpoint) == "" {
			return nil, noop, fmt.Errorf("agent.bridge.endpoint is required")
		}
		b := NewBridge(cfg.Agent.Bridge.Endpoint, cfg.GetBridgeTimeout())
		if !cfg.Agent.Bridge.Sessions {
			return sequential{agent: b}, noop, nil
		}
		return b, noop, nil

	case config.AgentLLM:
		lc := cfg.Agent.LLM
		p, err := llm.NewProviderFromConfig(ctx, lc.Provider, lc.Endpoint, lc.Model, lc.Region, cfg.GetLLMTimeout())
		if err != nil {
			return nil, noop, fmt.Errorf("llm agent: %w", err)
		}
		return NewLLM(p, lc.GetCheckPrompt(), cfg.Target.Application, cfg.Target.URL), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown agent kind %q (want one of %s)", cfg.Agent.Kind, strings.Join(config.AgentKinds, ", "))
	}
}

func newReplayFromConfig(ctx context.Context, cfg *config.Config, deps Deps) (*Replay, error) {
	switch src := strings.TrimSpace(cfg.Agent.Recording); src {
	case "":
		return NewReplay(SlashyRecording())
	case config.RecordingHistory:
		if deps.History == nil {
			return nil, fmt.Errorf("replay from history requires history.enabled")
		}
		rep, err := deps.History.Latest(ctx)
		if err != nil {
			return nil, fmt.Errorf("replay from history: %w", err)
		}
		return ReplayFromReport(rep), nil
	default:
		rec, err := LoadRecording(config.ResolvePath(src))
		if err != nil {
			return nil, err
		}
		return NewReplay(rec)
	}
}
