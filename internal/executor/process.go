package executor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/library"
	"github.com/crateloft/cratesync/internal/progress"
)

// stderrTailSize bounds how much child stderr is kept for the error record.
const stderrTailSize = 4096

// processRunner executes one release in a child process. The child writes
// progress events as JSON lines on stdout; step and artifact events are
// replayed through the parent's slot tracker, and a final item-error event
// carries the pipeline failure text. Anything on stderr is kept as a bounded
// tail for crash reports.
type processRunner struct {
	argv   ArgvFunc
	logger *zap.Logger
}

func (r *processRunner) run(ctx context.Context, item library.Item, tr *progress.Tracker) error {
	name, args := r.argv(item, tr.Slot())
	cmd := exec.CommandContext(ctx, name, args...)

	tail := &tailBuffer{limit: stderrTailSize}
	cmd.Stderr = tail
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	note := r.fold(stdout, tr)
	waitErr := cmd.Wait()
	if waitErr == nil {
		return nil
	}
	// Prefer the pipeline's own error text; exit status plus stderr is the
	// crash fallback.
	if note != "" {
		return errors.New(note)
	}
	if t := tail.Tail(); t != "" {
		return fmt.Errorf("worker crashed (%v): %s", waitErr, t)
	}
	return fmt.Errorf("worker crashed: %w", waitErr)
}

// fold replays the child's event lines through the slot tracker and returns
// the failure note, if the child reported one. Non-JSON lines are skipped:
// a misbehaving native tool may share the child's stdout.
func (r *processRunner) fold(stdout io.Reader, tr *progress.Tracker) string {
	var note string
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var evt progress.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			r.logger.Debug("unparseable worker line", zap.ByteString("line", line))
			continue
		}
		switch evt.Kind {
		case progress.KindStep:
			tr.UpdateStep(evt.Step, evt.Percent)
		case progress.KindArtifact:
			tr.AddArtifact(evt.Artifact)
		case progress.KindItemError:
			note = evt.Note
		}
	}
	if err := sc.Err(); err != nil {
		r.logger.Warn("worker stdout read failed", zap.Error(err))
	}
	return note
}

// LineApplier encodes events as JSON lines, one per event. It is the child
// side of the worker protocol: a Tracker writing through it turns progress
// calls into lines the parent folds back into its aggregate.
type LineApplier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewLineApplier wraps a writer, usually the child's stdout.
func NewLineApplier(out io.Writer) *LineApplier {
	return &LineApplier{out: out}
}

// Apply writes one event line. Encoding failures are dropped; the parent
// treats missing lines as missing progress, never as item failure.
func (a *LineApplier) Apply(evt progress.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	data = append(data, '\n')
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.out.Write(data)
}

// tailBuffer keeps the last limit bytes written.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

// Tail returns the retained bytes as trimmed text.
func (b *tailBuffer) Tail() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(bytes.TrimSpace(b.buf))
}
