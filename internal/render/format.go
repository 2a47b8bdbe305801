package render

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/ajramos/keycheck/internal/report"
	"golang.org/x/net/html"
)

// Format selects a report encoding
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Formats lists the supported encodings
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatMarkdown, FormatHTML}

// ParseFormat accepts a format name or a common file extension
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unknown report format %q (want text, json, yaml, markdown or html)", s)
}

// Write encodes r to w in format f
func Write(w io.Writer, r *report.Report, f Format) error {
	switch f {
	case FormatText:
		return WriteText(w, r, TextOptions{})
	case FormatJSON:
		return report.WriteJSON(w, r)
	case FormatYAML:
		return report.WriteYAML(w, r)
	case FormatMarkdown:
		return WriteMarkdown(w, r)
	case FormatHTML:
		return WriteHTML(w, r)
	}
	return fmt.Errorf("unknown report format %q", f)
}

// PlainNote turns an observation into a single terminal-safe line. Agents
// driving a browser sometimes hand back HTML fragments; those are reduced to
// their text.
func PlainNote(s string) string {
	if strings.ContainsRune(s, '<') {
		if text, err := htmlToText(s); err == nil {
			s = text
		}
	}
	s = sanitizeForTerminal(s)
	return strings.Join(strings.Fields(s), " ")
}

func htmlToText(fragment string) (string, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	collectText(&b, doc)
	return b.String(), nil
}

func collectText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode:
		switch strings.ToLower(n.Data) {
		case "head", "style", "script", "title":
			return
		case "br", "p", "div", "li":
			defer b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}
}

// sanitizeForTerminal replaces common rich-text glyphs with ASCII-safe equivalents
func sanitizeForTerminal(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\u00A0', '\u202F': // no-break spaces
			b.WriteRune(' ')
		case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u2060', '\u00AD':
			// zero-width, BOM, soft hyphen
		case '\u2013', '\u2014':
			b.WriteRune('-')
		case '\u2018', '\u2019':
			b.WriteRune('\'')
		case '\u201C', '\u201D':
			b.WriteRune('"')
		case '\u2026':
			b.WriteString("...")
		default:
			if unicode.IsControl(r) && r != '\n' && r != '\t' {
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
