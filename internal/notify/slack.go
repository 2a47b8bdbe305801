package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ajramos/keycheck/internal/config"
	"github.com/ajramos/keycheck/internal/report"
)

// SlackMessage represents a message to be sent to Slack
type SlackMessage struct {
	Text string `json:"text"`
}

// SlackNotifier posts run summaries to a Slack incoming webhook
type SlackNotifier struct {
	config     config.SlackConfig
	httpClient *http.Client
}

// NewSlackNotifier creates a new notifier for cfg
func NewSlackNotifier(cfg config.SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Notify posts the summary of rep. delta, when not nil, adds the changes
// against the previous run. It reports whether a message was sent: nothing
// is sent when the notifier is disabled, or when only failures are
// configured and every check passed.
func (s *SlackNotifier) Notify(ctx context.Context, rep *report.Report, delta *report.Delta) (bool, error) {
	if !s.config.Enabled || rep == nil {
		return false, nil
	}
	if s.config.OnlyOnFailure && rep.Passed() {
		return false, nil
	}
	if err := s.sendToSlack(ctx, FormatSummary(rep, delta, s.config.MaxFailures), s.config.WebhookURL); err != nil {
		return false, fmt.Errorf("failed to send to Slack: %w", err)
	}
	return true, nil
}

// ValidateWebhook validates a Slack webhook URL by sending a test message
func (s *SlackNotifier) ValidateWebhook(ctx context.Context, webhookURL string) error {
	return s.sendToSlack(ctx, SlackMessage{Text: "⌨️ keycheck - webhook validation test"}, webhookURL)
}

// FormatSummary renders the Slack text of a run. At most maxFailures
// failures are listed; maxFailures <= 0 lists them all.
func FormatSummary(rep *report.Report, delta *report.Delta, maxFailures int) SlackMessage {
	var b strings.Builder
	meta := rep.Metadata()
	sum := rep.Summary()

	icon := "✅"
	if !rep.Passed() {
		icon = "❌"
	}
	app := meta.Application
	if app == "" {
		app = "keyboard shortcuts"
	}
	fmt.Fprintf(&b, "%s *%s*: %s (%.1f%% pass rate)\n", icon, app, rep.Status(), sum.PassRate*100)
	fmt.Fprintf(&b, "%d checked: %d passed, %d failed, %d errors, %d skipped", sum.Total, sum.Pass, sum.Fail, sum.Error, sum.Skipped)
	if meta.Agent != "" {
		fmt.Fprintf(&b, " · agent %s", meta.Agent)
	}
	b.WriteString("\n")

	var failures []string
	for def, res := range rep.Failures() {
		line := fmt.Sprintf("• `%s` (%s) %s", def.Keys(), def.Context(), res.Verdict)
		if res.Observation != "" {
			line += ": " + res.Observation
		}
		failures = append(failures, line)
	}
	if len(failures) > 0 {
		b.WriteString("\n*Failures*\n")
		shown := failures
		if maxFailures > 0 && len(shown) > maxFailures {
			shown = shown[:maxFailures]
		}
		b.WriteString(strings.Join(shown, "\n"))
		if n := len(failures) - len(shown); n > 0 {
			fmt.Fprintf(&b, "\n…and %d more", n)
		}
		b.WriteString("\n")
	}

	if delta != nil {
		if len(delta.Regressions) > 0 {
			b.WriteString("\n*Regressions since last run*\n")
			for _, c := range delta.Regressions {
				fmt.Fprintf(&b, "• %s: %s → %s\n", c.DefinitionID, c.Before, c.After)
			}
		}
		if len(delta.Fixes) > 0 {
			b.WriteString("\n*Fixed since last run*\n")
			for _, c := range delta.Fixes {
				fmt.Fprintf(&b, "• %s: %s → %s\n", c.DefinitionID, c.Before, c.After)
			}
		}
	}

	return SlackMessage{Text: strings.TrimRight(b.String(), "\n")}
}

// sendToSlack sends a message to Slack webhook
func (s *SlackNotifier) sendToSlack(ctx context.Context, message SlackMessage, webhookURL string) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	return nil
}
