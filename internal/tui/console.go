package tui

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ajramos/keycheck/internal/catalog"
	"github.com/ajramos/keycheck/internal/verify"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

// Console is the terminal UI operator agent: it shows one shortcut at a
// time and waits for the operator to press Pass, Fail or Skip.
// F1, F2 and F3 answer from anywhere, including the note field.
type Console struct {
	app    *tview.Application
	root   *tview.Flex
	info   *tview.TextView
	note   *tview.InputField
	form   *tview.Form
	state  *tview.TextView
	status *StatusBar

	mu       sync.Mutex
	running  bool
	pending  bool
	answers  chan verify.Observation
	progress int
	current  string
}

const consoleHint = "F1 pass | F2 fail | F3 skip | Tab to move"

// NewConsole builds the console. A nil screen lets tview open the terminal.
func NewConsole(screen tcell.Screen) *Console {
	c := &Console{
		app:     tview.NewApplication(),
		answers: make(chan verify.Observation, 1),
	}
	if screen != nil {
		c.app.SetScreen(screen)
	}

	c.info = tview.NewTextView()
	c.info.SetWordWrap(true)
	c.info.SetBorder(true)
	c.info.SetTitle(" keycheck ")

	c.note = tview.NewInputField().SetLabel("Note: ").SetFieldWidth(60)

	c.form = tview.NewForm()
	c.form.AddFormItem(c.note)
	c.form.AddButton("Pass", func() { c.submit(verify.Observation{Succeeded: true}) })
	c.form.AddButton("Fail", func() { c.submit(verify.Observation{}) })
	c.form.AddButton("Skip", func() { c.submit(verify.Observation{Skipped: true}) })

	c.state = tview.NewTextView().SetTextAlign(tview.AlignRight)
	c.status = NewStatusBar(c.state, consoleHint, c.queue, 3*time.Second)

	c.root = tview.NewFlex().SetDirection(tview.FlexRow)
	c.root.AddItem(c.info, 0, 1, false)
	c.root.AddItem(c.form, 5, 0, true)
	c.root.AddItem(c.state, 1, 0, false)
	c.root.SetInputCapture(c.handleKey)

	c.app.SetRoot(c.root, true)
	return c
}

// SetLogger logs the answers shown in the status line
func (c *Console) SetLogger(l *log.Logger) { c.status.SetLogger(l) }

// Name implements verify.Named
func (c *Console) Name() string { return "console" }

// Start runs the UI loop in the background. Call Stop when the run ends.
func (c *Console) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	go func() {
		_ = c.app.Run()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		c.submit(verify.Observation{Skipped: true, Note: "console closed"})
	}()
}

// Stop ends the UI loop
func (c *Console) Stop() {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running {
		c.app.Stop()
	}
}

// Waiting reports whether a check is waiting for an answer
func (c *Console) Waiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Check implements verify.Agent
func (c *Console) Check(ctx context.Context, def catalog.Definition) (verify.Observation, error) {
	if err := c.update(ctx, func() { c.show(def) }); err != nil {
		return verify.Observation{}, err
	}

	c.mu.Lock()
	select {
	case <-c.answers:
	default:
	}
	c.pending = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pending = false
		c.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return verify.Observation{}, ctx.Err()
	case obs := <-c.answers:
		return obs, nil
	}
}

func (c *Console) show(def catalog.Definition) {
	c.progress++
	var b strings.Builder
	fmt.Fprintf(&b, "#%d  %s\n\n", c.progress, def.Keys())
	fmt.Fprintf(&b, "Category: %s\nContext:  %s\n", def.Category(), def.Context())
	if d := def.Description(); d != "" {
		fmt.Fprintf(&b, "Action:   %s\n", d)
	}
	fmt.Fprintf(&b, "\nExpected: %s\n", def.ExpectedEffect())
	c.info.SetText(b.String())
	c.note.SetText("")

	c.mu.Lock()
	c.current = def.ID()
	c.mu.Unlock()
	c.status.SetProgress(fmt.Sprintf("checking #%d %s", c.progress, def))
}

// queue runs f on the UI goroutine; it is dropped when the loop is not running
func (c *Console) queue(f func()) {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running {
		c.app.QueueUpdateDraw(f)
	}
}

// update runs f on the UI goroutine when the loop is running, inline otherwise
func (c *Console) update(ctx context.Context, f func()) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		f()
		return nil
	}
	done := make(chan struct{})
	c.app.QueueUpdateDraw(func() {
		f()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Console) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyF1:
		c.submit(verify.Observation{Succeeded: true})
	case tcell.KeyF2:
		c.submit(verify.Observation{})
	case tcell.KeyF3:
		c.submit(verify.Observation{Skipped: true})
	default:
		return event
	}
	return nil
}

// submit hands the answer to the waiting check, attaching the note. Answers
// with no check waiting are dropped.
func (c *Console) submit(obs verify.Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pending {
		return
	}
	if obs.Note == "" {
		obs.Note = strings.TrimSpace(c.note.GetText())
	}
	select {
	case c.answers <- obs:
		c.pending = false
	default:
		return
	}

	switch {
	case obs.Skipped:
		c.status.Show(c.current+" skipped", LevelWarning)
	case obs.Succeeded:
		c.status.Show(c.current+" passed", LevelSuccess)
	default:
		c.status.Show(c.current+" failed", LevelError)
	}
}
