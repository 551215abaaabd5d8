package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/library"
)

// FFmpegAnalyzer renders the per-track analysis artifacts with ffprobe and
// ffmpeg: stream statistics JSON, a log-frequency spectrogram, a constant-Q
// chroma image and the waveform. Each artifact is produced only when the
// file is missing, which is what lets the checker scope rework to a single
// image.
type FFmpegAnalyzer struct {
	// Ffmpeg and Ffprobe name the executables, default "ffmpeg"/"ffprobe".
	Ffmpeg  string
	Ffprobe string
	Logger  *zap.Logger
}

// Analyze writes the stream-stats JSON and both spectrogram images.
func (a *FFmpegAnalyzer) Analyze(ctx context.Context, dir, position, audio string) error {
	if err := a.ensureStats(ctx, dir, position, audio); err != nil {
		return err
	}
	if err := a.ensureImage(ctx, library.MelSpectrogramPath(dir, position), audio,
		"showspectrumpic=s=1024x512:scale=log:legend=0"); err != nil {
		return fmt.Errorf("render spectrogram: %w", err)
	}
	if err := a.ensureImage(ctx, library.ChromagramPath(dir, position), audio,
		"aformat=channel_layouts=mono,showcqt=s=1024x512"); err != nil {
		return fmt.Errorf("render chromagram: %w", err)
	}
	return nil
}

// Waveform renders the waveform image unless present.
func (a *FFmpegAnalyzer) Waveform(ctx context.Context, dir, position, audio string) error {
	if err := a.ensureImage(ctx, library.WaveformPath(dir, position), audio,
		"showwavespic=s=1200x400"); err != nil {
		return fmt.Errorf("render waveform: %w", err)
	}
	return nil
}

func (a *FFmpegAnalyzer) ensureStats(ctx context.Context, dir, position, audio string) error {
	path := library.AnalysisPath(dir, position)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	bin := a.Ffprobe
	if bin == "" {
		bin = "ffprobe"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", bin, err)
	}

	out, err := a.runTool(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		audio,
	)
	if err != nil {
		return fmt.Errorf("probe audio: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write analysis: %w", err)
	}
	return nil
}

// ensureImage renders one lavfi filter graph to a single image file.
func (a *FFmpegAnalyzer) ensureImage(ctx context.Context, path, audio, filter string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	bin := a.Ffmpeg
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", bin, err)
	}

	args := []string{"-y", "-v", "error", "-i", audio, "-lavfi", filter}
	if strings.Contains(filter, "showcqt") {
		// showcqt streams frames; one is enough for a still.
		args = append(args, "-frames:v", "1")
	}
	args = append(args, path)

	if _, err := a.runTool(ctx, bin, args...); err != nil {
		// Never leave a truncated image behind: a partial file would
		// read as "done" on the next assessment.
		_ = os.Remove(path)
		return err
	}
	return nil
}

func (a *FFmpegAnalyzer) runTool(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var out bytes.Buffer
	tail := newTail(4096)
	cmd.Stdout = &out
	cmd.Stderr = tail
	if err := cmd.Run(); err != nil {
		if t := tail.String(); t != "" {
			return nil, fmt.Errorf("%s: %s", bin, t)
		}
		return nil, fmt.Errorf("%s: %w", bin, err)
	}
	return out.Bytes(), nil
}

// tail keeps the last limit bytes written, for quoting tool stderr.
type tail struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTail(limit int) *tail {
	return &tail{limit: limit}
}

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(p), nil
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf))
}
