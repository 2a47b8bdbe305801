package tui

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

// Level represents the severity of a status message
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
	LevelSuccess
)

// StatusBar is a one-line view showing a transient message over a
// persistent progress message, falling back to a baseline hint.
// Show and SetProgress must be called on the UI goroutine.
type StatusBar struct {
	mu         sync.Mutex
	view       *tview.TextView
	queue      func(func())
	logger     *log.Logger
	baseline   string
	persistent string
	current    string
	timer      *time.Timer
	flashFor   time.Duration
}

// NewStatusBar wraps view. queue schedules a function on the UI goroutine;
// it is used to clear transient messages after flashFor (0 keeps them).
func NewStatusBar(view *tview.TextView, baseline string, queue func(func()), flashFor time.Duration) *StatusBar {
	s := &StatusBar{view: view, baseline: baseline, queue: queue, flashFor: flashFor}
	s.refresh()
	return s
}

// SetLogger logs every shown message
func (s *StatusBar) SetLogger(l *log.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = l
}

// Show displays a transient message
func (s *StatusBar) Show(msg string, level Level) {
	if strings.TrimSpace(msg) == "" {
		return
	}
	formatted := formatMessage(msg, level)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logger != nil {
		s.logger.Printf("%s: %s", levelToString(level), msg)
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.current = formatted
	s.view.SetTextColor(levelToColor(level))
	s.refresh()

	if s.flashFor > 0 && s.queue != nil {
		s.timer = time.AfterFunc(s.flashFor, func() {
			s.queue(func() { s.clearIf(formatted) })
		})
	}
}

// SetProgress sets the persistent message and drops the transient one
func (s *StatusBar) SetProgress(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistent = msg
	s.view.SetTextColor(levelToColor(LevelInfo))
	s.refresh()
}

// Text returns what the bar currently shows
func (s *StatusBar) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text()
}

// clearIf drops the transient message unless a newer one replaced it
func (s *StatusBar) clearIf(expected string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == expected {
		s.current = ""
		s.view.SetTextColor(levelToColor(LevelInfo))
		s.refresh()
	}
}

func (s *StatusBar) text() string {
	switch {
	case s.current != "":
		return s.current
	case s.persistent != "":
		return s.persistent + "  |  " + s.baseline
	}
	return s.baseline
}

func (s *StatusBar) refresh() {
	s.view.SetText(s.text())
}

func formatMessage(msg string, level Level) string {
	var icon string
	switch level {
	case LevelInfo:
		icon = "ℹ️"
	case LevelWarning:
		icon = "⚠️"
	case LevelError:
		icon = "❌"
	case LevelSuccess:
		icon = "✅"
	default:
		icon = "•"
	}
	return fmt.Sprintf("%s %s", icon, msg)
}

func levelToString(level Level) string {
	switch level {
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelSuccess:
		return "SUCCESS"
	}
	return "UNKNOWN"
}

func levelToColor(level Level) tcell.Color {
	switch level {
	case LevelWarning:
		return tcell.ColorYellow
	case LevelError:
		return tcell.ColorRed
	case LevelSuccess:
		return tcell.ColorGreen
	}
	return tcell.ColorWhite
}
