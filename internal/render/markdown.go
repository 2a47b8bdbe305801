package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/ajramos/keycheck/internal/report"
)

// WriteMarkdown renders r as a Markdown document with a summary table, a
// failure list and one table per category
func WriteMarkdown(w io.Writer, r *report.Report) error {
	var b strings.Builder
	meta := r.Metadata()
	s := r.Summary()

	title := "Keyboard Shortcut Verification Report"
	if meta.Application != "" {
		title = meta.Application + " " + title
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if meta.URL != "" {
		fmt.Fprintf(&b, "- **URL:** %s\n", meta.URL)
	}
	if meta.Agent != "" {
		fmt.Fprintf(&b, "- **Agent:** %s\n", meta.Agent)
	}
	if !meta.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- **Started:** %s\n", meta.StartedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(&b, "- **Status:** %s\n\n", r.Status())

	b.WriteString("| Total | Pass | Fail | Error | Skipped | Pass rate |\n")
	b.WriteString("|---:|---:|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %.1f%% |\n\n", s.Total, s.Pass, s.Fail, s.Error, s.Skipped, s.PassRate*100)

	b.WriteString("## Failures\n\n")
	n := 0
	for d, res := range r.Failures() {
		n++
		fmt.Fprintf(&b, "- `%s` (%s) **%s**", d.Keys(), mdEscape(d.Context()), res.Verdict)
		if res.Observation != "" {
			fmt.Fprintf(&b, ": %s", mdEscape(PlainNote(res.Observation)))
		}
		b.WriteByte('\n')
	}
	if n == 0 {
		b.WriteString("None.\n")
	}
	b.WriteByte('\n')

	sections := make(map[string]*strings.Builder)
	var order []string
	for d, res := range r.Entries() {
		cat := string(d.Category())
		sec, ok := sections[cat]
		if !ok {
			sec = &strings.Builder{}
			sections[cat] = sec
			order = append(order, cat)
		}
		fmt.Fprintf(sec, "| `%s` | %s | %s | %s %s | %s |\n",
			d.Keys(), mdEscape(d.Context()), mdEscape(d.ExpectedEffect()),
			res.Verdict.Icon(), res.Verdict, mdEscape(PlainNote(res.Observation)))
	}
	for _, cat := range order {
		fmt.Fprintf(&b, "## %s\n\n", cat)
		b.WriteString("| Keys | Context | Expected effect | Verdict | Observation |\n")
		b.WriteString("|---|---|---|---|---|\n")
		b.WriteString(sections[cat].String())
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

var mdReplacer = strings.NewReplacer("|", `\|`, "\n", " ")

func mdEscape(s string) string { return mdReplacer.Replace(s) }
