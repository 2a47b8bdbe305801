package config

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"
	"time"
)

// Manager provides centralized configuration management with validation and watching
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	watchers []func(*Config)

	// File watching
	configPath    string
	lastModTime   time.Time
	watchCancel   context.CancelFunc
	watchRunning  bool
	watchInterval time.Duration
	watchDone     chan struct{}
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		config:        DefaultConfig(),
		watchInterval: time.Second,
	}
}

// SetWatchInterval changes how often Watch polls the file
func (m *Manager) SetWatchInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.watchInterval = d
	}
}

// LoadFromFile loads configuration from a file with validation
func (m *Manager) LoadFromFile(configPath string) error {
	configPath = ExpandHome(configPath)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.configPath = configPath
	if stat, err := os.Stat(configPath); err == nil {
		m.lastModTime = stat.ModTime()
	}
	watchers := m.snapshotWatchers()
	m.mu.Unlock()

	notify(watchers, cfg)
	return nil
}

// LoadFromDefaults loads default configuration
func (m *Manager) LoadFromDefaults() {
	cfg := DefaultConfig()

	m.mu.Lock()
	m.config = cfg
	m.configPath = ""
	m.lastModTime = time.Time{}
	watchers := m.snapshotWatchers()
	m.mu.Unlock()

	notify(watchers, cfg)
}

// GetConfig returns a copy of the current configuration
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyConfig(m.config)
}

// Path returns the file the configuration was loaded from
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configPath
}

// UpdateConfig replaces the configuration after validation
func (m *Manager) UpdateConfig(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m.mu.Lock()
	m.config = copyConfig(cfg)
	watchers := m.snapshotWatchers()
	m.mu.Unlock()

	notify(watchers, cfg)
	return nil
}

// SaveToFile saves the current configuration to a file
func (m *Manager) SaveToFile(filePath string) error {
	cfg := m.GetConfig()
	if err := cfg.SaveConfig(filePath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Watch starts polling the configuration file for changes until ctx ends
// or StopWatching is called
func (m *Manager) Watch(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.configPath == "" {
		return fmt.Errorf("no config file path set")
	}
	if m.watchRunning {
		return fmt.Errorf("already watching configuration file")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	m.watchCancel = cancel
	m.watchRunning = true
	m.watchDone = make(chan struct{})

	go m.watchConfigFile(watchCtx, m.watchInterval, m.watchDone)
	return nil
}

// StopWatching stops watching the configuration file and waits for the watcher to exit
func (m *Manager) StopWatching() {
	m.mu.Lock()
	cancel, done := m.watchCancel, m.watchDone
	m.watchCancel, m.watchDone = nil, nil
	m.watchRunning = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// AddWatcher adds a configuration change watcher. Watchers run synchronously
// on the goroutine that loaded the new configuration.
func (m *Manager) AddWatcher(watcher func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, watcher)
}

func (m *Manager) snapshotWatchers() []func(*Config) {
	return slices.Clone(m.watchers)
}

func notify(watchers []func(*Config), cfg *Config) {
	for _, w := range watchers {
		w(copyConfig(cfg))
	}
}

// copyConfig creates a deep copy of the configuration
func copyConfig(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	c := *cfg
	c.Runner.Timeouts = maps.Clone(cfg.Runner.Timeouts)
	return &c
}

// watchConfigFile polls the configuration file for changes
func (m *Manager) watchConfigFile(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkConfigFileChanges()
		}
	}
}

// checkConfigFileChanges reloads the file when its modification time moved.
// An invalid file keeps the previous configuration.
func (m *Manager) checkConfigFileChanges() {
	m.mu.RLock()
	configPath := m.configPath
	lastModTime := m.lastModTime
	m.mu.RUnlock()

	if configPath == "" {
		return
	}
	stat, err := os.Stat(configPath)
	if err != nil {
		return
	}
	if stat.ModTime().After(lastModTime) {
		if err := m.LoadFromFile(configPath); err != nil {
			m.mu.Lock()
			m.lastModTime = stat.ModTime()
			m.mu.Unlock()
		}
	}
}
