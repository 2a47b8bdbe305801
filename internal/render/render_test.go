package render

import (
	"bytes"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ajramos/keycheck/internal/catalog"
	"github.com/ajramos/keycheck/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func scenarioReport(t *testing.T) *report.Report {
	t.Helper()
	cat, err := catalog.LoadWithMeta(catalog.Meta{Application: "Slashy Mail", URL: "https://slashy.com"}, []catalog.Record{
		{KeyCombination: "C", Category: "Compose", Context: "Any", ExpectedEffect: "compose window opens", Group: "Composing & Replying"},
		{KeyCombination: "J", Category: "Navigation", Context: "Inbox", ExpectedEffect: "next message selected", Group: "Navigation"},
		{KeyCombination: "Cmd+B", Category: "Global", Context: "Any", ExpectedEffect: "sidebar toggles"},
	})
	require.NoError(t, err)

	start := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	defs := slices.Collect(cat.Entries())
	b := report.NewBuilder(cat, defs, report.Metadata{Application: "Slashy Mail", URL: "https://slashy.com", Agent: "replay", StartedAt: start})
	verdicts := []report.Verdict{report.VerdictPass, report.VerdictFail, report.VerdictPass}
	notes := []string{"", "<p>no-op &amp; <b>nothing</b> moved</p>", ""}
	for i, d := range defs {
		require.NoError(t, b.Record(i, report.Result{DefinitionID: d.ID(), Verdict: verdicts[i], Observation: notes[i], Timestamp: start}))
	}
	b.SetFinished(start.Add(1500 * time.Millisecond))
	r, err := b.Seal()
	require.NoError(t, err)
	return r
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatText},
		{"TEXT", FormatText},
		{"json", FormatJSON},
		{".yml", FormatYAML},
		{"md", FormatMarkdown},
		{"html", FormatHTML},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseFormat("pdf")
	assert.ErrorContains(t, err, "unknown report format")
}

func TestPlainNote(t *testing.T) {
	assert.Equal(t, "no-op & nothing moved", PlainNote("<p>no-op &amp; <b>nothing</b> moved</p>"))
	assert.Equal(t, "line one line two", PlainNote("line one\nline two"))
	assert.Equal(t, "wait... - done", PlainNote("wait… — done"))
	assert.Equal(t, "", PlainNote(""))
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, scenarioReport(t), TextOptions{Width: 100}))
	out := buf.String()

	assert.Contains(t, out, "SLASHY MAIL KEYBOARD SHORTCUT VERIFICATION REPORT")
	assert.Contains(t, out, "COMPOSING & REPLYING:")
	assert.Contains(t, out, "GLOBAL:", "ungrouped rows fall back to the category")
	assert.Contains(t, out, "no-op & nothing moved")
	assert.Contains(t, out, "Duration: 1.5s")
	assert.Contains(t, out, "Pass rate: 66.7%")
	assert.Contains(t, out, "Status:   MOSTLY FUNCTIONAL")

	for _, ln := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		assert.LessOrEqual(t, len([]rune(ln)), 100, "line too wide: %q", ln)
		assert.Equal(t, strings.TrimRight(ln, " "), ln, "trailing spaces: %q", ln)
	}
}

func TestWriteText_FailuresOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, scenarioReport(t), TextOptions{FailuresOnly: true}))
	out := buf.String()

	assert.Contains(t, out, "next message selected")
	assert.NotContains(t, out, "compose window opens")
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, scenarioReport(t)))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Slashy Mail Keyboard Shortcut Verification Report\n"))
	assert.Contains(t, out, "| 3 | 2 | 1 | 0 | 0 | 66.7% |")
	assert.Contains(t, out, "- `J` (Inbox) **FAIL**: no-op & nothing moved")
	assert.Equal(t, 1, strings.Count(out, "## Compose\n"))
	assert.Contains(t, out, "| `Cmd+B` | Any | sidebar toggles | ✓ PASS |  |")
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, scenarioReport(t)))

	doc, err := html.Parse(&buf)
	require.NoError(t, err)

	status := findByID(doc, "status")
	require.NotNil(t, status)
	assert.Equal(t, "MOSTLY FUNCTIONAL", textOf(status))

	results := findByID(doc, "results")
	require.NotNil(t, results)
	var rows []*html.Node
	walk(results, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" && attr(n, "data-id") != "" {
			rows = append(rows, n)
		}
	})
	require.Len(t, rows, 3)
	assert.Equal(t, "j@inbox", attr(rows[1], "data-id"))
	assert.Equal(t, "fail", attr(rows[1], "class"))
	assert.Contains(t, textOf(rows[1]), "no-op & nothing moved")

	failures := findByID(doc, "failures")
	require.NotNil(t, failures)
	assert.Contains(t, textOf(failures), "J (Inbox) FAIL")
}

func TestWrite_Dispatch(t *testing.T) {
	r := scenarioReport(t)
	for _, f := range Formats {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, r, f), f)
		assert.NotZero(t, buf.Len(), f)
	}
	assert.Error(t, Write(&bytes.Buffer{}, r, Format("pdf")))
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
		}
	})
	return found
}

func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return strings.Join(strings.Fields(b.String()), " ")
}
