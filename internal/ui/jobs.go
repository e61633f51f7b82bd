// Package ui renders the server's HTML status pages.
package ui

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/a-h/templ"
)

// JobListItem is one row of the job table.
type JobListItem struct {
	ID             string
	State          string
	Objective      string
	Dim            int
	Generations    int
	Iters          int
	BestFitness    float64
	InitialFitness float64
	StartTime      time.Time
	EndTime        *time.Time
	Error          string
}

// JobList renders the status page listing all jobs.
func JobList(items []JobListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHead); err != nil {
			return err
		}

		if len(items) == 0 {
			if _, err := io.WriteString(w, `<p class="empty">No jobs yet. POST a config to /api/v1/jobs to start one.</p>`); err != nil {
				return err
			}
		} else {
			if _, err := io.WriteString(w, tableHead); err != nil {
				return err
			}
			for _, item := range items {
				if err := jobRow(item).Render(ctx, w); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, "</tbody></table>"); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, pageFoot)
		return err
	})
}

func jobRow(item JobListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		status := item.State
		if item.Error != "" {
			status += ": " + item.Error
		}
		_, err := fmt.Fprintf(w,
			`<tr class="%s"><td><a href="/api/v1/jobs/%s/status">%s</a></td><td>%s</td><td>%s</td><td>%d</td><td>%d/%d</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
			templ.EscapeString(item.State),
			templ.EscapeString(item.ID),
			templ.EscapeString(shortID(item.ID)),
			templ.EscapeString(status),
			templ.EscapeString(item.Objective),
			item.Dim,
			item.Generations, item.Iters,
			formatFitness(item.InitialFitness),
			formatFitness(item.BestFitness),
			templ.EscapeString(elapsed(item.StartTime, item.EndTime)),
		)
		return err
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatFitness(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "–"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func elapsed(start time.Time, end *time.Time) string {
	stop := time.Now()
	if end != nil {
		stop = *end
	}
	return stop.Sub(start).Round(time.Millisecond).String()
}

const pageHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>batopt jobs</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { padding: 4px 10px; border-bottom: 1px solid #ddd; text-align: left; }
tr.failed td { color: #a00; }
tr.running td { color: #06c; }
</style>
</head>
<body>
<h1>Bat optimizer jobs</h1>
`

const tableHead = `<table><thead><tr><th>ID</th><th>State</th><th>Objective</th><th>Dim</th><th>Generation</th><th>Initial</th><th>Best</th><th>Elapsed</th></tr></thead><tbody>`

const pageFoot = `<p><a href="/metrics">metrics</a></p>
</body>
</html>
`
