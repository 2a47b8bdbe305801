package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ajramos/keycheck/internal/catalog"
	"github.com/ajramos/keycheck/internal/render"
	"github.com/ajramos/keycheck/internal/verify"
)

// CheckRequest is the body of POST {endpoint}/check
type CheckRequest struct {
	Session        string             `json:"session,omitempty"`
	ID             string             `json:"id"`
	Keys           string             `json:"keys"`
	Leaders        []string           `json:"leaders,omitempty"`
	Modifiers      []catalog.Modifier `json:"modifiers,omitempty"`
	Key            string             `json:"key"`
	Category       string             `json:"category"`
	Context        string             `json:"context"`
	ExpectedEffect string             `json:"expectedEffect"`
	Description    string             `json:"description,omitempty"`
}

type sessionResponse struct {
	ID string `json:"id"`
}

// Bridge drives a browser through an HTTP bridge process (a DevTools driver
// or a browser extension host). Notes returned as HTML are flattened to text.
type Bridge struct {
	Endpoint string
	Timeout  time.Duration

	session    string
	httpClient *http.Client
}

// NewBridge creates a bridge agent for endpoint
func NewBridge(endpoint string, timeout time.Duration) *Bridge {
	return &Bridge{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		Timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements verify.Named
func (b *Bridge) Name() string {
	if b.session != "" {
		return "bridge:" + b.session
	}
	return "bridge"
}

// Check implements verify.Agent
func (b *Bridge) Check(ctx context.Context, def catalog.Definition) (verify.Observation, error) {
	keys := def.Keys()
	body := CheckRequest{
		Session:        b.session,
		ID:             def.ID(),
		Keys:           keys.String(),
		Leaders:        keys.Leaders(),
		Modifiers:      keys.Modifiers(),
		Key:            keys.Key(),
		Category:       string(def.Category()),
		Context:        def.Context(),
		ExpectedEffect: def.ExpectedEffect(),
		Description:    def.Description(),
	}

	var obs verify.Observation
	if err := b.do(ctx, http.MethodPost, "/check", body, &obs); err != nil {
		return verify.Observation{}, err
	}
	obs.Note = render.PlainNote(obs.Note)
	return obs, nil
}

// NewSession implements verify.SessionProvider. Each session is a separate
// browser tab on the bridge side.
func (b *Bridge) NewSession(ctx context.Context) (verify.Agent, func(), error) {
	var resp sessionResponse
	if err := b.do(ctx, http.MethodPost, "/sessions", struct{}{}, &resp); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", verify.ErrSession, err)
	}
	if resp.ID == "" {
		return nil, nil, fmt.Errorf("%w: bridge returned no session id", verify.ErrSession)
	}

	s := &Bridge{Endpoint: b.Endpoint, Timeout: b.Timeout, session: resp.ID, httpClient: b.client()}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(resp.ID), nil, nil)
	}
	return s, release, nil
}

// do sends one JSON request. Context errors are returned as they are so the
// runner can tell a timeout from a broken bridge.
func (b *Bridge) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode bridge request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.Endpoint+path, body)
	if err != nil {
		return fmt.Errorf("%w: %w", verify.ErrTransport, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client().Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", verify.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: bridge returned status %s: %s", verify.ErrTransport, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode bridge response: %w", verify.ErrTransport, err)
	}
	return nil
}

func (b *Bridge) client() *http.Client {
	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: b.Timeout}
	}
	return b.httpClient
}

// sequential hides the session support of an agent so the runner drives it
// from a single goroutine
type sequential struct {
	agent verify.Agent
}

func (s sequential) Check(ctx context.Context, def catalog.Definition) (verify.Observation, error) {
	return s.agent.Check(ctx, def)
}

func (s sequential) Name() string {
	if n, ok := s.agent.(verify.Named); ok {
		return n.Name()
	}
	return "agent"
}
