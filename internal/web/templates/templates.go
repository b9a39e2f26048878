// Package templates renders the DataFinder HTML views as templ components.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// RunRow is one line of the recent runs table.
type RunRow struct {
	ID        string
	Kind      string
	StartedAt string
	Duration  string
	Rows      int
	Success   bool
	Error     string
}

// MetricRow is one line of the timings table.
type MetricRow struct {
	Operation string
	Count     int
	Failures  int
	Mean      string
	Min       string
	Max       string
}

// DashboardData feeds Dashboard.
type DashboardData struct {
	HistoryEnabled bool
	Runs           []RunRow
	Metrics        []MetricRow
	ActiveRuns     int
	MaxRuns        int
	InputDir       string
	OutputDir      string
}

const styles = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2933}
table{border-collapse:collapse;margin-bottom:2rem;min-width:40rem}
th,td{border-bottom:1px solid #d9e2ec;padding:.4rem .8rem;text-align:left}
th{background:#f0f4f8}.ok{color:#2f855a}.fail{color:#c53030}
.alert{border:1px solid #c53030;background:#fff5f5;padding:1rem;margin:1rem 0}
.muted{color:#829ab1}`

// Dashboard is the landing page: slot usage, recent runs and timings.
func Dashboard(d DashboardData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!doctype html><html lang="en"><head><meta charset="utf-8"><title>DataFinder</title><style>`)
		b.WriteString(styles)
		b.WriteString(`</style></head><body><h1>DataFinder</h1>`)

		fmt.Fprintf(&b, `<p>Runs in progress: <strong>%d</strong> of %d</p>`, d.ActiveRuns, d.MaxRuns)
		fmt.Fprintf(&b, `<p class="muted">Input: %s &middot; Output: %s</p>`,
			templ.EscapeString(d.InputDir), templ.EscapeString(d.OutputDir))

		b.WriteString(`<h2>Recent runs</h2>`)
		switch {
		case !d.HistoryEnabled:
			b.WriteString(`<p class="muted">Run history is disabled. Set HISTORY_DSN to enable it.</p>`)
		case len(d.Runs) == 0:
			b.WriteString(`<p class="muted">No runs yet.</p>`)
		default:
			b.WriteString(`<table><thead><tr><th>Started</th><th>Kind</th><th>Rows</th><th>Duration</th><th>Status</th></tr></thead><tbody>`)
			for _, r := range d.Runs {
				status := `<span class="ok">ok</span>`
				if !r.Success {
					status = `<span class="fail" title="` + templ.EscapeString(r.Error) + `">failed</span>`
				}
				fmt.Fprintf(&b, `<tr id="run-%s"><td>%s</td><td>%s</td><td>%d</td><td>%s</td><td>%s</td></tr>`,
					templ.EscapeString(r.ID), templ.EscapeString(r.StartedAt), templ.EscapeString(r.Kind),
					r.Rows, templ.EscapeString(r.Duration), status)
			}
			b.WriteString(`</tbody></table>`)
		}

		b.WriteString(`<h2>Timings</h2>`)
		if len(d.Metrics) == 0 {
			b.WriteString(`<p class="muted">Nothing measured yet.</p>`)
		} else {
			b.WriteString(`<table><thead><tr><th>Operation</th><th>Count</th><th>Failures</th><th>Mean</th><th>Min</th><th>Max</th></tr></thead><tbody>`)
			for _, m := range d.Metrics {
				fmt.Fprintf(&b, `<tr><td>%s</td><td>%d</td><td>%d</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
					templ.EscapeString(m.Operation), m.Count, m.Failures,
					templ.EscapeString(m.Mean), templ.EscapeString(m.Min), templ.EscapeString(m.Max))
			}
			b.WriteString(`</tbody></table>`)
		}

		b.WriteString(`</body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// ErrorAlert is the HTML fragment shown for a failed request.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="alert" role="alert"><strong>%s</strong><p>%s</p><small>Code: %s</small></div>`,
			templ.EscapeString(message), templ.EscapeString(action), templ.EscapeString(code))
		return err
	})
}
