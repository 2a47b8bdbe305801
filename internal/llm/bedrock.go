package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// modelInvoker is the part of the Bedrock runtime client the provider uses
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient implements Provider for Amazon Bedrock
type BedrockClient struct {
	Region    string
	Model     string
	Timeout   time.Duration
	MaxTokens int

	svc modelInvoker
}

// NewBedrock initializes a Bedrock client using default AWS config chain
func NewBedrock(ctx context.Context, region, model string, timeout time.Duration) (*BedrockClient, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("bedrock model is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var opts []func(*awsconfig.LoadOptions) error
	if strings.TrimSpace(region) != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	// Without an explicit region it is resolved from AWS profile/env
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("AWS region not resolved: set agent.llm.region, AWS_REGION or a region in the selected AWS profile")
	}
	return newBedrockWithInvoker(bedrockruntime.NewFromConfig(cfg), cfg.Region, model, timeout), nil
}

func newBedrockWithInvoker(svc modelInvoker, region, model string, timeout time.Duration) *BedrockClient {
	return &BedrockClient{Region: region, Model: model, Timeout: timeout, MaxTokens: 1024, svc: svc}
}

// Name returns provider name
func (b *BedrockClient) Name() string { return "bedrock" }

// Generate sends a prompt to Bedrock and returns the generated text
func (b *BedrockClient) Generate(ctx context.Context, prompt string) (string, error) {
	if !isAnthropicModel(b.Model) {
		return "", fmt.Errorf("unsupported Bedrock model family for %q (only anthropic.* models are supported)", b.Model)
	}
	return b.generateAnthropic(ctx, prompt)
}

func (b *BedrockClient) generateAnthropic(ctx context.Context, prompt string) (string, error) {
	// Leave ARNs and inference profiles untouched
	modelID := b.Model
	lower := strings.ToLower(modelID)
	if !strings.HasPrefix(lower, "arn:") && !strings.Contains(lower, "inference-profile/") && !strings.Contains(modelID, ":") {
		// Some integrations require the revision suffix (:0)
		modelID += ":0"
	}
	payload := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        b.MaxTokens,
		"temperature":       0,
		"messages": []any{
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "text", "text": prompt},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}
	out, err := b.svc.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", annotateBedrockError(fmt.Errorf("bedrock invoke error: %w", err), modelID)
	}

	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		OutputText string `json:"outputText"`
	}
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode Anthropic response: %w", err)
	}
	for _, c := range resp.Content {
		if c.Type == "text" && strings.TrimSpace(c.Text) != "" {
			return strings.TrimSpace(c.Text), nil
		}
	}
	if t := strings.TrimSpace(resp.OutputText); t != "" {
		return t, nil
	}
	return "", ErrEmptyResponse
}

func isAnthropicModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "anthropic.")
}

// annotateBedrockError adds common hints for Bedrock model ID issues
func annotateBedrockError(err error, modelID string) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "validationexception") && strings.Contains(msg, "throughput isn't supported") {
		return fmt.Errorf("%w\nHint: this model may require an inference profile; set agent.llm.model to the profile ID/ARN for %q", err, modelID)
	}
	if strings.Contains(msg, "provided model identifier is invalid") {
		return fmt.Errorf("%w\nHint: verify the exact Bedrock ModelId; regional prefixes (us.) and the revision suffix (:0) may be required", err)
	}
	return err
}
