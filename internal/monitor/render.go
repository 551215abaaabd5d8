package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crateloft/cratesync/internal/progress"
)

const (
	clearScreen = "\x1b[2J\x1b[H"

	barWidth   = 10
	titleWidth = 32
	stepWidth  = 16
)

// renderFrame formats one complete dashboard frame from a snapshot. It is a
// pure function so tests can assert on layout without a terminal.
func renderFrame(snap progress.Snapshot, now time.Time) string {
	var b strings.Builder
	b.WriteString(clearScreen)

	writeHeader(&b, snap, now)
	b.WriteString("\n")
	for _, slot := range snap.Slots {
		writeSlot(&b, slot, snap.Total)
	}
	writeLog(&b, snap.Log)
	writeFooter(&b, snap)
	return b.String()
}

func writeHeader(b *strings.Builder, snap progress.Snapshot, now time.Time) {
	finished := snap.Completed + snap.Errors
	fmt.Fprintf(b, "cratesync  run %s  elapsed %s\n",
		shortRunID(snap.RunID), formatElapsed(now.Sub(snap.StartedAt)))
	fmt.Fprintf(b, "releases %d/%d synced  %d failed  %d active  %s %3d%%\n",
		snap.Completed, snap.Total, snap.Errors, snap.Active,
		bar(percentOf(finished, snap.Total)), percentOf(finished, snap.Total))
}

func writeSlot(b *strings.Builder, slot progress.SlotView, total int) {
	switch slot.Status {
	case progress.SlotIdle:
		fmt.Fprintf(b, "⚪ [%d] idle\n", slot.Index+1)
	case progress.SlotWorking:
		fmt.Fprintf(b, "🟢 [%d] #%02d/%d %-*s %-*s %s %3d%%\n",
			slot.Index+1, slot.Seq, total,
			titleWidth, truncate(slot.Title, titleWidth),
			stepWidth, truncate(slot.Step, stepWidth),
			bar(slot.Percent), slot.Percent)
		for _, artifact := range slot.Artifacts {
			fmt.Fprintf(b, "       ↳ %s\n", artifact)
		}
	case progress.SlotCompleted:
		fmt.Fprintf(b, "✅ [%d] #%02d/%d %-*s %-*s %s 100%%\n",
			slot.Index+1, slot.Seq, total,
			titleWidth, truncate(slot.Title, titleWidth),
			stepWidth, "done",
			bar(100))
	case progress.SlotError:
		fmt.Fprintf(b, "🔴 [%d] #%02d/%d %-*s failed: %s\n",
			slot.Index+1, slot.Seq, total,
			titleWidth, truncate(slot.Title, titleWidth),
			truncate(slot.Error, 48))
	}
}

func writeLog(b *strings.Builder, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString("\n── log ──────────────────────────────\n")
	for _, line := range lines {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func writeFooter(b *strings.Builder, snap progress.Snapshot) {
	b.WriteString("\n")
	if snap.Shutdown {
		fmt.Fprintf(b, "✔ %d  ✖ %d  interrupt received, stopping\n",
			snap.Completed, snap.Errors)
		return
	}
	fmt.Fprintf(b, "✔ %d  ✖ %d  Ctrl+C to stop\n", snap.Completed, snap.Errors)
}

func shortRunID(id [16]byte) string {
	s := uuid.UUID(id).String()
	return s[:8]
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func percentOf(part, total int) int {
	if total <= 0 {
		return 0
	}
	p := part * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}

func bar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * barWidth / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + "]"
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
