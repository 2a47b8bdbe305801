package render

import (
	"html/template"
	"io"
	"strings"

	"github.com/ajramos/keycheck/internal/report"
)

var htmlFuncs = template.FuncMap{
	"pct":   func(f float64) float64 { return f * 100 },
	"lower": strings.ToLower,
	"note":  PlainNote,
}

var reportTemplate = template.Must(template.New("report").Funcs(htmlFuncs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{with .Metadata.Application}}{{.}} {{end}}Keyboard Shortcut Report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1.5em; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
tr.pass td.verdict { color: #1a7f37; }
tr.fail td.verdict, tr.error td.verdict { color: #cf222e; }
tr.skipped td.verdict { color: #6e7781; }
</style>
</head>
<body>
<h1>{{with .Metadata.Application}}{{.}} {{end}}Keyboard Shortcut Report</h1>
<p id="status">{{.Status}}</p>
<table id="summary">
<tr><th>Total</th><th>Pass</th><th>Fail</th><th>Error</th><th>Skipped</th><th>Pass rate</th></tr>
<tr><td>{{.TotalCount}}</td><td>{{.PassCount}}</td><td>{{.FailCount}}</td><td>{{.ErrorCount}}</td><td>{{.SkippedCount}}</td><td>{{printf "%.1f" (pct .PassRate)}}%</td></tr>
</table>
<h2>Failures</h2>
<ul id="failures">
{{- range .Failures}}
<li data-id="{{.ID}}"><code>{{.KeyCombination}}</code> ({{.Context}}) {{.Verdict}}{{with .Observation}}: {{note .}}{{end}}</li>
{{- else}}
<li>None</li>
{{- end}}
</ul>
<h2>Results</h2>
<table id="results">
<tr><th>Keys</th><th>Category</th><th>Context</th><th>Expected effect</th><th>Verdict</th><th>Observation</th></tr>
{{- range .Results}}
<tr class="{{lower (printf "%s" .Verdict)}}" data-id="{{.ID}}"><td><code>{{.KeyCombination}}</code></td><td>{{.Category}}</td><td>{{.Context}}</td><td>{{.ExpectedEffect}}</td><td class="verdict">{{.Verdict}}</td><td>{{note .Observation}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

// WriteHTML renders r as a standalone HTML page
func WriteHTML(w io.Writer, r *report.Report) error {
	return reportTemplate.Execute(w, r.Document())
}
