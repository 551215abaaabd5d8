package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// diagnosticThreshold is the per-category count at which the summary adds a
// suggested cause.
const diagnosticThreshold = 2

// tallyOrder fixes the rendering order of the category tallies.
var tallyOrder = []Category{
	CategoryNetworkAuth,
	CategoryContentUnavailable,
	CategoryLocalFailure,
	CategoryOther,
}

// renderSummary builds the plain-text summary body.
func renderSummary(runID uuid.UUID, started, ended time.Time, t Totals, records []ErrorRecord) string {
	var b strings.Builder

	dur := ended.Sub(started)
	if dur < 0 {
		dur = 0
	}
	b.WriteString("cratesync run summary\n")
	b.WriteString("=====================\n")
	fmt.Fprintf(&b, "run       : %s\n", runID)
	fmt.Fprintf(&b, "started   : %s\n", started.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "finished  : %s\n", ended.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "duration  : %s\n", dur.Round(time.Second))
	fmt.Fprintf(&b, "releases  : %d total, %d synced, %d failed, %d not attempted\n",
		t.Total, t.Completed, t.Errors, t.NotAttempted())
	b.WriteString("\n")

	if len(records) == 0 {
		b.WriteString("no errors recorded\n")
		return b.String()
	}

	fmt.Fprintf(&b, "errors (%d)\n", len(records))
	b.WriteString("----------\n")
	for i, rec := range records {
		fmt.Fprintf(&b, "%2d. [%s] %s (%s)\n", i+1, rec.Time.Format("15:04:05"), rec.Category, rec.Scope)
		if rec.Release != nil {
			fmt.Fprintf(&b, "    release : #%d %s\n", rec.Release.ID, rec.Release.Title)
			if rec.Release.Track != "" {
				fmt.Fprintf(&b, "    track   : %s\n", rec.Release.Track)
			}
			if rec.Release.URL != "" {
				fmt.Fprintf(&b, "    url     : %s\n", rec.Release.URL)
			}
		}
		fmt.Fprintf(&b, "    error   : %s\n", rec.Message)
	}
	b.WriteString("\n")

	counts := make(map[Category]int, len(tallyOrder))
	for _, rec := range records {
		counts[rec.Category]++
	}
	b.WriteString("category tallies\n")
	b.WriteString("----------------\n")
	for _, cat := range tallyOrder {
		if counts[cat] == 0 {
			continue
		}
		fmt.Fprintf(&b, "%-19s : %d\n", cat, counts[cat])
	}

	if diags := diagnostics(counts); len(diags) > 0 {
		b.WriteString("\ndiagnostics\n")
		b.WriteString("-----------\n")
		for _, d := range diags {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	return b.String()
}

// diagnostics suggests a likely cause when a category count is elevated.
func diagnostics(counts map[Category]int) []string {
	var out []string
	if counts[CategoryNetworkAuth] >= diagnosticThreshold {
		out = append(out, "repeated network/auth failures: the upstream is throttling or the credentials are stale; retry later or lower the worker count")
	}
	if counts[CategoryContentUnavailable] >= diagnosticThreshold {
		out = append(out, "several releases have no usable upstream source; retrying is unlikely to find one")
	}
	if counts[CategoryLocalFailure] >= diagnosticThreshold {
		out = append(out, "repeated local failures: check that yt-dlp, ffmpeg and ffprobe are installed and the library disk is writable")
	}
	return out
}
