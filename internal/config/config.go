package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ajramos/keycheck/internal/catalog"
)

// Agent kinds accepted in agent.kind
const (
	AgentReplay   = "replay"
	AgentOperator = "operator"
	AgentConsole  = "console"
	AgentBridge   = "bridge"
	AgentLLM      = "llm"
)

// AgentKinds lists every supported agent kind
var AgentKinds = []string{AgentReplay, AgentOperator, AgentConsole, AgentBridge, AgentLLM}

// RecordingHistory selects the latest persisted run as replay source
const RecordingHistory = "history"

// Config holds all configuration for keycheck
type Config struct {
	// Catalog source
	Catalog CatalogConfig `json:"catalog"`

	// Application under test, copied into report metadata
	Target TargetConfig `json:"target"`

	// Automation agent
	Agent AgentConfig `json:"agent"`

	// Run settings
	Runner RunnerConfig `json:"runner"`

	// Report output
	Report ReportConfig `json:"report"`

	// Run history persistence
	History HistoryConfig `json:"history"`

	// Slack notification
	Slack SlackConfig `json:"slack"`

	// Web runner
	Server ServerConfig `json:"server"`

	// Logging
	LogFile string `json:"log_file"`
}

// CatalogConfig points to the shortcut catalog
type CatalogConfig struct {
	// Path to a YAML or JSON catalog; empty uses the built-in catalog
	Path string `json:"path"`
}

// TargetConfig describes the application under test
type TargetConfig struct {
	Application string `json:"application"`
	URL         string `json:"url"`
	Platform    string `json:"platform"`
	Browser     string `json:"browser"`
}

// AgentConfig selects and configures the automation agent
type AgentConfig struct {
	// Kind is one of replay, operator, console, bridge, llm
	Kind string `json:"kind"`

	// Recording file for the replay agent; empty uses the bundled recording,
	// "history" replays the latest persisted run
	Recording string `json:"recording"`

	Bridge BridgeConfig `json:"bridge"`
	LLM    LLMConfig    `json:"llm"`
}

// BridgeConfig configures the HTTP bridge to a browser driver
type BridgeConfig struct {
	Endpoint string `json:"endpoint"`
	Timeout  string `json:"timeout"`
	// Sessions enables one bridge session per parallel worker
	Sessions bool `json:"sessions"`
}

// LLMConfig holds all LLM-related configuration
type LLMConfig struct {
	Provider string `json:"provider"` // ollama, bedrock
	Model    string `json:"model"`
	Endpoint string `json:"endpoint"`
	Region   string `json:"region"` // For AWS Bedrock
	Timeout  string `json:"timeout"`

	// Template file path (relative to config dir or absolute)
	CheckTemplate string `json:"check_template"`

	// Inline prompt override (optional - takes precedence over the file)
	// Available variables: {{keys}}, {{category}}, {{context}}, {{expected_effect}},
	// {{description}}, {{application}}, {{url}}
	CheckPrompt string `json:"check_prompt,omitempty"`
}

// RunnerConfig controls timeouts and parallelism
type RunnerConfig struct {
	DefaultTimeout string `json:"default_timeout"`
	// Timeouts per category name, e.g. {"Navigation": "5s"}
	Timeouts    map[string]string `json:"timeouts"`
	Concurrency int               `json:"concurrency"`
}

// ReportConfig controls the printed report
type ReportConfig struct {
	Format       string `json:"format"` // text, json, yaml, markdown, html
	Width        int    `json:"width"`
	FailuresOnly bool   `json:"failures_only"`
}

// HistoryConfig controls run persistence
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SlackConfig contains the Slack notification settings
type SlackConfig struct {
	// Enabled controls whether a summary is posted after each run
	Enabled bool `json:"enabled"`

	// WebhookURL is the Slack incoming webhook
	WebhookURL string `json:"webhook_url"`

	// OnlyOnFailure skips the notification when every checked shortcut passed
	OnlyOnFailure bool `json:"only_on_failure"`

	// MaxFailures caps the failure lines in the message
	MaxFailures int `json:"max_failures"`
}

// ServerConfig configures the web runner
type ServerConfig struct {
	Addr string `json:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Target:  DefaultTargetConfig(),
		Agent:   DefaultAgentConfig(),
		Runner:  DefaultRunnerConfig(),
		Report:  DefaultReportConfig(),
		History: DefaultHistoryConfig(),
		Slack:   DefaultSlackConfig(),
		Server:  DefaultServerConfig(),
	}
}

// DefaultTargetConfig returns the default target settings
func DefaultTargetConfig() TargetConfig {
	return TargetConfig{Browser: "Chrome"}
}

// DefaultAgentConfig returns the default agent settings
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Kind: AgentReplay,
		Bridge: BridgeConfig{
			Endpoint: "http://127.0.0.1:9333",
			Timeout:  "15s",
		},
		LLM: DefaultLLMConfig(),
	}
}

// DefaultLLMConfig returns the default LLM settings
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider: "ollama",
		Model:    "llama3.2:latest",
		Endpoint: "http://localhost:11434/api/generate",
		Timeout:  "60s",
	}
}

// DefaultRunnerConfig returns the default runner settings
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		DefaultTimeout: "10s",
		Timeouts:       map[string]string{},
		Concurrency:    1,
	}
}

// DefaultReportConfig returns the default report settings
func DefaultReportConfig() ReportConfig {
	return ReportConfig{Format: "text", Width: 100}
}

// DefaultHistoryConfig returns the default history settings
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{Enabled: false, Path: DefaultHistoryPath()}
}

// DefaultSlackConfig returns the default Slack settings
func DefaultSlackConfig() SlackConfig {
	return SlackConfig{Enabled: false, MaxFailures: 10}
}

// DefaultServerConfig returns the default web runner settings
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Addr: "127.0.0.1:5000"}
}

// LoadConfig loads configuration from file. A missing file yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", configPath, err)
			}
		}
	}

	return cfg, nil
}

// ConfigDir returns the keycheck configuration directory
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "keycheck")
}

// DefaultConfigPath returns the configuration file path, honouring KEYCHECK_CONFIG
func DefaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("KEYCHECK_CONFIG")); p != "" {
		return p
	}
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.json")
}

// DefaultHistoryPath returns the default sqlite history database path
func DefaultHistoryPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "history.sqlite3")
}

// DefaultLogDir returns the default log directory path
func DefaultLogDir() string {
	return ConfigDir()
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	kind := strings.ToLower(strings.TrimSpace(c.Agent.Kind))
	valid := false
	for _, k := range AgentKinds {
		if kind == k {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown agent kind %q (want one of %s)", c.Agent.Kind, strings.Join(AgentKinds, ", "))
	}
	for _, d := range []struct{ name, value string }{
		{"runner.default_timeout", c.Runner.DefaultTimeout},
		{"agent.bridge.timeout", c.Agent.Bridge.Timeout},
		{"agent.llm.timeout", c.Agent.LLM.Timeout},
	} {
		if d.value == "" {
			continue
		}
		if v, err := time.ParseDuration(d.value); err != nil || v <= 0 {
			return fmt.Errorf("invalid %s %q", d.name, d.value)
		}
	}
	if _, err := c.GetCategoryTimeouts(); err != nil {
		return err
	}
	if c.Runner.Concurrency < 0 {
		return fmt.Errorf("runner.concurrency must not be negative")
	}
	if c.Slack.Enabled && strings.TrimSpace(c.Slack.WebhookURL) == "" {
		return fmt.Errorf("slack is enabled but webhook_url is empty")
	}
	if kind == AgentBridge && strings.TrimSpace(c.Agent.Bridge.Endpoint) == "" {
		return fmt.Errorf("bridge agent requires agent.bridge.endpoint")
	}
	return nil
}

// GetDefaultTimeout returns the per-check timeout used when no category timeout applies
func (c *Config) GetDefaultTimeout() time.Duration {
	return parseDuration(c.Runner.DefaultTimeout, 10*time.Second)
}

// GetCategoryTimeouts parses runner.timeouts into per-category durations
func (c *Config) GetCategoryTimeouts() (map[catalog.Category]time.Duration, error) {
	out := make(map[catalog.Category]time.Duration, len(c.Runner.Timeouts))
	for name, value := range c.Runner.Timeouts {
		cat, err := catalog.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("runner.timeouts: %w", err)
		}
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("runner.timeouts: invalid duration %q for %s", value, name)
		}
		out[cat] = d
	}
	return out, nil
}

// GetCategoryTimeout returns the timeout for one category, falling back to the default
func (c *Config) GetCategoryTimeout(cat catalog.Category) time.Duration {
	for name, value := range c.Runner.Timeouts {
		if strings.EqualFold(name, string(cat)) {
			return parseDuration(value, c.GetDefaultTimeout())
		}
	}
	return c.GetDefaultTimeout()
}

// GetLLMTimeout returns parsed timeout for LLM
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.Agent.LLM.Timeout, 60*time.Second)
}

// GetBridgeTimeout returns parsed timeout for bridge HTTP calls
func (c *Config) GetBridgeTimeout() time.Duration {
	return parseDuration(c.Agent.Bridge.Timeout, 15*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// ResolvePath makes a path relative to the config directory absolute and expands ~
func ResolvePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = ExpandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(DefaultConfigPath()), p)
}

// ExpandHome expands a leading ~ to the home directory
func ExpandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
		}
	}
	return p
}

// LoadTemplate loads a template with proper priority: file first, then inline, then fallback
func LoadTemplate(templatePath, inlinePrompt, fallbackPrompt string) string {
	// First priority: the template file, relative to the config directory
	if strings.TrimSpace(templatePath) != "" {
		if content, err := os.ReadFile(ResolvePath(templatePath)); err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	// Second priority: Use inline prompt if provided
	if strings.TrimSpace(inlinePrompt) != "" {
		return inlinePrompt
	}

	// Final fallback: Use provided fallback prompt
	return fallbackPrompt
}

// DefaultCheckPrompt drives a browser-capable model through one shortcut
const DefaultCheckPrompt = `You are testing keyboard shortcuts of {{application}} ({{url}}) in a browser you control.

1. Make sure the application is in this state: {{context}}.
2. Press the key combination {{keys}} ({{description}}, category {{category}}).
3. Observe whether this happens: {{expected_effect}}.
4. Undo any side effect if you can.

Answer with a single JSON object and nothing else:
{"succeeded": true|false, "note": "what you observed", "skipped": true|false}
Set "skipped" to true only if the shortcut cannot be tested in this environment.`

// GetCheckPrompt returns the check prompt, loading from template file if needed
func (c *LLMConfig) GetCheckPrompt() string {
	return LoadTemplate(c.CheckTemplate, c.CheckPrompt, DefaultCheckPrompt)
}
