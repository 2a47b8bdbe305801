package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NewProviderFromConfig creates a Provider from config fields
func NewProviderFromConfig(ctx context.Context, provider, endpoint, model, region string, timeout time.Duration) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "ollama", "":
		if endpoint == "" {
			endpoint = "http://localhost:11434/api/generate"
		}
		if model == "" {
			return nil, fmt.Errorf("ollama model is required")
		}
		return NewClient(endpoint, model, timeout), nil
	case "bedrock":
		return NewBedrock(ctx, region, model, timeout)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (want ollama or bedrock)", provider)
	}
}
