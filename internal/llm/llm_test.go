package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOllama_Generate(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Response{Response: "  {\"succeeded\": true}\n"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/generate", "llama3", 5*time.Second)
	out, err := c.Generate(context.Background(), "press J")
	require.NoError(t, err)
	assert.Equal(t, `{"succeeded": true}`, out)
	assert.Equal(t, "llama3", got.Model)
	assert.Equal(t, "press J", got.Prompt)
	assert.False(t, got.Stream)
	assert.Equal(t, "ollama", c.Name())
}

func TestOllama_Errors(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		expectedErr string
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}, "model not found"},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}, "decode"},
		{"empty", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"response": "  "}`))
		}, "empty response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, "m", time.Second).Generate(context.Background(), "p")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestOllama_HonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewClient(srv.URL, "m", 0).Generate(ctx, "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestOllama_IsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.True(t, NewClient(srv.URL+"/api/generate", "m", time.Second).IsAvailable(context.Background()))
	srv.Close()
	assert.False(t, NewClient(srv.URL+"/api/generate", "m", time.Second).IsAvailable(context.Background()))
}

// MockInvoker is a testify mock of the Bedrock runtime client
type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*bedrockruntime.InvokeModelOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestBedrock_GenerateAnthropic(t *testing.T) {
	inv := new(MockInvoker)
	body := []byte(`{"content":[{"type":"text","text":" {\"succeeded\": false, \"note\": \"no-op\"} "}]}`)
	inv.On("InvokeModel", mock.Anything, mock.MatchedBy(func(in *bedrockruntime.InvokeModelInput) bool {
		var payload map[string]any
		if err := json.Unmarshal(in.Body, &payload); err != nil {
			return false
		}
		return aws.ToString(in.ModelId) == "anthropic.claude-3-haiku:0" && payload["anthropic_version"] == "bedrock-2023-05-31"
	})).Return(&bedrockruntime.InvokeModelOutput{Body: body}, nil)

	b := newBedrockWithInvoker(inv, "us-east-1", "anthropic.claude-3-haiku", time.Second)
	out, err := b.Generate(context.Background(), "press J")
	require.NoError(t, err)
	assert.Equal(t, `{"succeeded": false, "note": "no-op"}`, out)
	assert.Equal(t, "bedrock", b.Name())
	inv.AssertExpectations(t)
}

func TestBedrock_Errors(t *testing.T) {
	t.Run("unsupported_family", func(t *testing.T) {
		b := newBedrockWithInvoker(new(MockInvoker), "us-east-1", "meta.llama3", time.Second)
		_, err := b.Generate(context.Background(), "p")
		assert.ErrorContains(t, err, "unsupported Bedrock model family")
	})

	t.Run("invoke_error_hint", func(t *testing.T) {
		inv := new(MockInvoker)
		inv.On("InvokeModel", mock.Anything, mock.Anything).Return(nil, errors.New("ValidationException: provided model identifier is invalid"))
		b := newBedrockWithInvoker(inv, "us-east-1", "arn:aws:bedrock:us-east-1::foundation-model/anthropic.claude", time.Second)
		_, err := b.Generate(context.Background(), "p")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Hint")
	})

	t.Run("empty", func(t *testing.T) {
		inv := new(MockInvoker)
		inv.On("InvokeModel", mock.Anything, mock.Anything).Return(&bedrockruntime.InvokeModelOutput{Body: []byte(`{"content":[]}`)}, nil)
		b := newBedrockWithInvoker(inv, "us-east-1", "anthropic.claude-3-haiku:0", time.Second)
		_, err := b.Generate(context.Background(), "p")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestNewProviderFromConfig(t *testing.T) {
	p, err := NewProviderFromConfig(context.Background(), "", "", "llama3", "", time.Second)
	require.NoError(t, err)
	c, ok := p.(*Client)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:11434/api/generate", c.Endpoint)

	_, err = NewProviderFromConfig(context.Background(), "ollama", "", "", "", time.Second)
	assert.ErrorContains(t, err, "model is required")

	_, err = NewProviderFromConfig(context.Background(), "openai", "", "gpt", "", time.Second)
	assert.ErrorContains(t, err, "unknown LLM provider")

	_, err = NewProviderFromConfig(context.Background(), "bedrock", "", "", "us-east-1", time.Second)
	assert.ErrorContains(t, err, "bedrock model is required")
}
