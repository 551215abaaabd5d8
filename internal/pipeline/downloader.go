package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/library"
)

// reDownloadPercent matches yt-dlp's --newline progress lines.
var reDownloadPercent = regexp.MustCompile(`\[download\]\s+([0-9.]+)%`)

// YtdlpDownloader shells out to yt-dlp for track audio. The output template
// pins the filename to the track position so the checker can find the file
// whatever container format the extractor picked.
type YtdlpDownloader struct {
	// Bin is the yt-dlp executable, default "yt-dlp".
	Bin    string
	Logger *zap.Logger
}

// Download fetches the best audio stream for one track. Progress lines on
// stdout are forwarded through onPercent; stderr is kept as a bounded tail
// for the error text.
func (d *YtdlpDownloader) Download(
	ctx context.Context,
	url, dir, position string,
	onPercent func(float64),
) (string, error) {
	bin := d.Bin
	if bin == "" {
		bin = "yt-dlp"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", bin, err)
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	template := library.TrackBase(dir, position) + ".%(ext)s"
	cmd := exec.CommandContext(ctx, bin,
		"--newline",
		"--no-playlist",
		"--no-overwrites",
		"-f", "bestaudio",
		"-o", template,
		url,
	)
	tail := newTail(4096)
	cmd.Stderr = tail
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("yt-dlp stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start yt-dlp: %w", err)
	}

	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		m := reDownloadPercent.FindStringSubmatch(sc.Text())
		if m == nil || onPercent == nil {
			continue
		}
		if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
			onPercent(pct)
		}
	}

	if err := cmd.Wait(); err != nil {
		if t := tail.String(); t != "" {
			return "", fmt.Errorf("yt-dlp failed: %s", t)
		}
		return "", fmt.Errorf("yt-dlp failed: %w", err)
	}

	audio, ok := library.FindAudio(dir, position)
	if !ok {
		return "", fmt.Errorf("yt-dlp reported success but no audio file for track %s", position)
	}
	logger.Debug("track downloaded",
		zap.String("position", position),
		zap.String("path", audio),
	)
	return audio, nil
}
