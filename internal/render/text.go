package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ajramos/keycheck/internal/report"
	"github.com/mattn/go-runewidth"
)

// TextOptions controls the terminal table layout
type TextOptions struct {
	// Width is the total line width; 0 means 100 columns
	Width int
	// FailuresOnly drops passing and skipped rows from the table
	FailuresOnly bool
}

const (
	defaultTextWidth = 100
	statusColWidth   = 9
	keysColWidth     = 14
	contextColWidth  = 10
	minEffectWidth   = 12
)

// WriteText prints a terminal report: header, per-group tables, category
// breakdown and the summary block
func WriteText(w io.Writer, r *report.Report, opts TextOptions) error {
	width := opts.Width
	if width <= 0 {
		width = defaultTextWidth
	}
	tw := &textWriter{w: w}

	meta := r.Metadata()
	title := "KEYBOARD SHORTCUT VERIFICATION REPORT"
	if meta.Application != "" {
		title = strings.ToUpper(meta.Application) + " " + title
	}
	rule := strings.Repeat("=", width)
	tw.line(rule)
	tw.line(title)
	tw.line(rule)
	if meta.URL != "" {
		tw.linef("URL:      %s", meta.URL)
	}
	if meta.Platform != "" || meta.Browser != "" {
		tw.linef("Platform: %s %s", meta.Platform, meta.Browser)
	}
	if meta.Agent != "" {
		tw.linef("Agent:    %s", meta.Agent)
	}
	if !meta.StartedAt.IsZero() {
		tw.linef("Started:  %s", meta.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if d := r.Duration(); d > 0 {
		tw.linef("Duration: %s", d.Round(time.Millisecond))
	}
	tw.line("")

	// Column widths: status | keys | context | effect/observation
	effectWidth := width - statusColWidth - keysColWidth - contextColWidth - 3
	if effectWidth < minEffectWidth {
		effectWidth = minEffectWidth
	}

	groups := make(map[string][]row)
	var order []string
	for d, res := range r.Entries() {
		if opts.FailuresOnly && !res.Verdict.IsFailure() {
			continue
		}
		g := d.Group()
		if g == "" {
			g = string(d.Category())
		}
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		text := d.ExpectedEffect()
		if res.Observation != "" {
			text += " (" + PlainNote(res.Observation) + ")"
		}
		groups[g] = append(groups[g], row{
			status:  res.Verdict.Icon() + " " + string(res.Verdict),
			keys:    d.Keys().String(),
			context: d.Context(),
			text:    text,
		})
	}

	for _, g := range order {
		tw.line(strings.ToUpper(g) + ":")
		for _, rw := range groups[g] {
			tw.line(strings.Join([]string{
				fitWidth(rw.status, statusColWidth),
				fitWidth(rw.keys, keysColWidth),
				fitWidth(rw.context, contextColWidth),
				fitWidth(rw.text, effectWidth),
			}, " "))
		}
		tw.line("")
	}

	tw.line(strings.Repeat("-", width))
	tw.line("BY CATEGORY:")
	for _, st := range r.ByCategory() {
		tw.line(fitWidth(st.Name, keysColWidth) + " " +
			rightFit(fmt.Sprintf("%d/%d", st.Summary.Pass, st.Summary.Total-st.Summary.Skipped), 7) + " " +
			rightFit(fmt.Sprintf("%.1f%%", st.Summary.PassRate*100), 7))
	}
	tw.line("")

	s := r.Summary()
	tw.line(rule)
	tw.line("SUMMARY")
	tw.line(rule)
	tw.linef("Total:    %d", s.Total)
	tw.linef("Passed:   %d", s.Pass)
	tw.linef("Failed:   %d", s.Fail)
	tw.linef("Errors:   %d", s.Error)
	tw.linef("Skipped:  %d", s.Skipped)
	if n := len(r.Excluded()); n > 0 {
		tw.linef("Excluded: %d", n)
	}
	tw.linef("Pass rate: %.1f%%", s.PassRate*100)
	tw.linef("Status:   %s", r.Status())

	return tw.err
}

type row struct {
	status  string
	keys    string
	context string
	text    string
}

// textWriter keeps the first write error so the layout code stays linear
type textWriter struct {
	w   io.Writer
	err error
}

func (t *textWriter) line(s string) {
	if t.err != nil {
		return
	}
	_, t.err = io.WriteString(t.w, strings.TrimRight(s, " ")+"\n")
}

func (t *textWriter) linef(format string, args ...any) {
	t.line(fmt.Sprintf(format, args...))
}

// fitWidth truncates and pads on the right to fit a fixed width
func fitWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = runewidth.Truncate(s, width, "...")
	pad := width - runewidth.StringWidth(s)
	if pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}

// rightFit truncates and right-aligns to width
func rightFit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = runewidth.TruncateLeft(s, width, "")
	pad := width - runewidth.StringWidth(s)
	if pad > 0 {
		s = strings.Repeat(" ", pad) + s
	}
	return s
}
