package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ajramos/keycheck/internal/catalog"
	"github.com/ajramos/keycheck/internal/llm"
	"github.com/ajramos/keycheck/internal/render"
	"github.com/ajramos/keycheck/internal/verify"
)

// ErrUnparseableReply is returned when the model reply holds no observation
var ErrUnparseableReply = errors.New("model reply holds no JSON observation")

// LLM delegates each check to a language model whose tooling drives the
// browser. The prompt template receives the definition fields as
// {{placeholders}}; the reply must contain a JSON object with succeeded,
// note and skipped.
type LLM struct {
	provider    llm.Provider
	template    string
	application string
	url         string
}

// NewLLM creates an LLM agent
func NewLLM(provider llm.Provider, template, application, url string) *LLM {
	return &LLM{provider: provider, template: template, application: application, url: url}
}

// Name implements verify.Named
func (a *LLM) Name() string { return "llm:" + a.provider.Name() }

// Prompt renders the template for def. Placeholders are replaced in one
// pass, so text inside a substituted value is never expanded again.
func (a *LLM) Prompt(def catalog.Definition) string {
	return strings.NewReplacer(
		"{{application}}", a.application,
		"{{url}}", a.url,
		"{{keys}}", def.Keys().String(),
		"{{category}}", string(def.Category()),
		"{{context}}", def.Context(),
		"{{expected_effect}}", def.ExpectedEffect(),
		"{{description}}", def.Description(),
	).Replace(a.template)
}

// Check implements verify.Agent
func (a *LLM) Check(ctx context.Context, def catalog.Definition) (verify.Observation, error) {
	reply, err := a.provider.Generate(ctx, a.Prompt(def))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return verify.Observation{}, ctxErr
		}
		return verify.Observation{}, fmt.Errorf("%w: %s: %w", verify.ErrTransport, a.provider.Name(), err)
	}
	obs, err := ParseReply(reply)
	if err != nil {
		return verify.Observation{}, err
	}
	return obs, nil
}

// ParseReply extracts the first JSON object from a model reply. Models
// often wrap the object in prose or a code fence.
func ParseReply(reply string) (verify.Observation, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end < start {
		return verify.Observation{}, fmt.Errorf("%w: %q", ErrUnparseableReply, truncate(reply, 80))
	}

	var raw struct {
		Succeeded *bool  `json:"succeeded"`
		Note      string `json:"note"`
		Skipped   bool   `json:"skipped"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return verify.Observation{}, fmt.Errorf("%w: %w", ErrUnparseableReply, err)
	}
	if raw.Succeeded == nil && !raw.Skipped {
		return verify.Observation{}, fmt.Errorf("%w: missing \"succeeded\"", ErrUnparseableReply)
	}
	obs := verify.Observation{Note: render.PlainNote(raw.Note), Skipped: raw.Skipped}
	if raw.Succeeded != nil {
		obs.Succeeded = *raw.Succeeded
	}
	return obs, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
