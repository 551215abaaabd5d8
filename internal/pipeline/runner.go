// Package pipeline drives one release through the sync steps: metadata,
// cover art, track matching, audio download, analysis and the printable
// label. Every step re-checks the artifacts it is about to produce, so a
// pipeline interrupted at any point picks up where it stopped on the next
// run.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/checker"
	"github.com/crateloft/cratesync/internal/fetch"
	"github.com/crateloft/cratesync/internal/library"
	"github.com/crateloft/cratesync/internal/progress"
	"github.com/crateloft/cratesync/internal/report"
)

// Step descriptions shown on the dashboard.
const (
	stepMetadata   = "Fetching metadata"
	stepCover      = "Downloading cover art"
	stepMatch      = "Matching tracks"
	stepAudio      = "Processing audio"
	stepWaveform   = "Generating waveform"
	stepQRCode     = "Generating QR code"
	stepQRCodeDone = "QR code complete"
	stepLabel      = "Creating label"
)

// Percent milestones per step.
const (
	pctMetadata   = 20
	pctCover      = 40
	pctMatch      = 50
	pctAudioStart = 60
	pctAudioEnd   = 80
	pctQRCode     = 86
	pctQRCodeDone = 90
	pctLabel      = 100
)

// MetadataSource fetches full release metadata by id.
type MetadataSource interface {
	Release(ctx context.Context, id int64) (library.Release, error)
}

// VideoProber resolves a release's linked video URLs into candidates.
type VideoProber interface {
	Probe(ctx context.Context, urls []string) []library.Video
}

// AudioDownloader fetches one matched track into the release directory and
// returns the audio file path. onPercent receives download progress 0..100.
type AudioDownloader interface {
	Download(ctx context.Context, url, dir, position string, onPercent func(float64)) (string, error)
}

// AudioAnalyzer produces the per-track analysis artifacts.
type AudioAnalyzer interface {
	// Analyze writes the stream-stats JSON and both spectrograms for a
	// track, skipping artifacts that already exist.
	Analyze(ctx context.Context, dir, position, audio string) error
	// Waveform renders the track waveform image unless present.
	Waveform(ctx context.Context, dir, position, audio string) error
}

// Config assembles a Runner.
type Config struct {
	Source     MetadataSource
	Fetcher    *fetch.Fetcher
	Prober     VideoProber
	Downloader AudioDownloader
	Analyzer   AudioAnalyzer
	Checker    *checker.Checker
	Match      MatchConfig
	// MetadataOnly stops after metadata and cover art.
	MetadataOnly bool
	Logger       *zap.Logger
}

// Runner executes the pipeline for single releases.
type Runner struct {
	cfg Config
	log *zap.Logger
}

// NewRunner validates the wiring.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("pipeline: metadata source is required")
	}
	if cfg.Checker == nil {
		return nil, fmt.Errorf("pipeline: checker is required")
	}
	if !cfg.MetadataOnly {
		if cfg.Prober == nil {
			return nil, fmt.Errorf("pipeline: video prober is required")
		}
		if cfg.Downloader == nil {
			return nil, fmt.Errorf("pipeline: audio downloader is required")
		}
		if cfg.Analyzer == nil {
			return nil, fmt.Errorf("pipeline: audio analyzer is required")
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, log: cfg.Logger}, nil
}

// Run syncs one release, reporting through the slot tracker. The assessment
// taken up front scopes the work: steps whose artifacts already exist are
// skipped, and a missing artifact on one track never redoes its siblings.
func (r *Runner) Run(ctx context.Context, item library.Item, tr *progress.Tracker) error {
	if err := os.MkdirAll(item.Dir, 0o750); err != nil {
		return fmt.Errorf("create release dir: %w", err)
	}
	assess := r.cfg.Checker.Assess(item.Dir)

	rel, err := r.ensureMetadata(ctx, item, assess, tr)
	if err != nil {
		return err
	}
	if err := r.ensureCover(ctx, item, rel, assess, tr); err != nil {
		return err
	}
	if r.cfg.MetadataOnly {
		return nil
	}

	rows, err := r.ensureMatches(ctx, item, rel, assess, tr)
	if err != nil {
		return err
	}
	if err := r.processAudio(ctx, item, rows, tr); err != nil {
		return err
	}
	return r.renderLabel(item, rel, assess, tr)
}

func (r *Runner) ensureMetadata(
	ctx context.Context,
	item library.Item,
	assess checker.Assessment,
	tr *progress.Tracker,
) (library.Release, error) {
	if !assess.Needs(checker.StepMetadata) {
		rel, err := library.ReadMetadata(item.Dir)
		if err != nil {
			return library.Release{}, fmt.Errorf("read metadata: %w", err)
		}
		return rel, nil
	}

	tr.UpdateStep(stepMetadata, pctMetadata)
	rel, err := r.cfg.Source.Release(ctx, item.ID)
	if err != nil {
		return library.Release{}, fmt.Errorf("fetch metadata: %w", err)
	}
	if rel.AddedAt == "" {
		rel.AddedAt = item.AddedAt
	}
	if err := library.WriteMetadata(item.Dir, rel); err != nil {
		return library.Release{}, err
	}
	tr.AddArtifact(library.MetadataPath(item.Dir))
	return rel, nil
}

func (r *Runner) ensureCover(
	ctx context.Context,
	item library.Item,
	rel library.Release,
	assess checker.Assessment,
	tr *progress.Tracker,
) error {
	if !assess.Needs(checker.StepCover) {
		return nil
	}
	if rel.CoverURL == "" {
		// Some releases carry no images; nothing to fetch, and the
		// checker reads the same metadata to mark the step satisfied.
		r.log.Debug("release has no cover image", zap.Int64("release_id", rel.ID))
		return nil
	}
	if r.cfg.Fetcher == nil {
		return nil
	}

	tr.UpdateStep(stepCover, pctCover)
	page, err := r.cfg.Fetcher.Fetch(ctx, rel.CoverURL)
	if err != nil {
		return fmt.Errorf("download cover art: %w", err)
	}
	if page.StatusCode != http.StatusOK {
		return fmt.Errorf("download cover art: status %d for %s", page.StatusCode, rel.CoverURL)
	}
	path := library.CoverPath(item.Dir)
	if err := os.WriteFile(path, page.Body, 0o644); err != nil {
		return fmt.Errorf("write cover art: %w", err)
	}
	tr.AddArtifact(path)
	return nil
}

func (r *Runner) ensureMatches(
	ctx context.Context,
	item library.Item,
	rel library.Release,
	assess checker.Assessment,
	tr *progress.Tracker,
) ([]library.TrackMatch, error) {
	if !assess.Needs(checker.StepMatch) {
		rows, err := library.ReadMatches(item.Dir)
		if err != nil {
			return nil, fmt.Errorf("read matches: %w", err)
		}
		return rows, nil
	}

	tr.UpdateStep(stepMatch, pctMatch)
	videos := r.cfg.Prober.Probe(ctx, rel.VideoURLs)
	rows := Match(rel, videos, r.cfg.Match)
	if err := library.WriteMatches(item.Dir, rows); err != nil {
		// ErrNoMatches passes through unwrapped so it classifies as
		// content-unavailable and leaves no file behind: the next run
		// retries the whole match step.
		return nil, err
	}
	tr.AddArtifact(library.MatchesPath(item.Dir))

	if n, err := library.BackfillTrackDurations(item.Dir, rows); err != nil {
		r.log.Warn("duration backfill failed", zap.Int64("release_id", rel.ID), zap.Error(err))
	} else if n > 0 {
		r.log.Debug("backfilled track durations", zap.Int64("release_id", rel.ID), zap.Int("tracks", n))
	}
	return rows, nil
}

func (r *Runner) processAudio(
	ctx context.Context,
	item library.Item,
	rows []library.TrackMatch,
	tr *progress.Tracker,
) error {
	matched := make([]library.TrackMatch, 0, len(rows))
	for _, row := range rows {
		if row.Matched() {
			matched = append(matched, row)
		}
	}

	span := float64(pctAudioEnd - pctAudioStart)
	for i, row := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tr.Cancelled() {
			return context.Canceled
		}

		pos := row.TrackPosition
		base := pctAudioStart + int(span*float64(i)/float64(len(matched)))
		next := pctAudioStart + int(span*float64(i+1)/float64(len(matched)))
		tr.UpdateStep(fmt.Sprintf("%s (%s)", stepAudio, pos), base)

		audio, ok := library.FindAudio(item.Dir, pos)
		if !ok {
			var err error
			audio, err = r.cfg.Downloader.Download(ctx, row.YouTubeMatch.URL, item.Dir, pos,
				func(pct float64) {
					// Map the download's own percent into this
					// track's slice of the audio window.
					p := base + int(float64(next-base)*pct/100)
					tr.UpdateStep(fmt.Sprintf("%s (%s)", stepAudio, pos), p)
				})
			if err != nil {
				return &report.TrackError{Track: pos, URL: row.YouTubeMatch.URL, Err: err}
			}
			tr.AddArtifact(audio)
		}

		if err := r.cfg.Analyzer.Analyze(ctx, item.Dir, pos, audio); err != nil {
			return &report.TrackError{Track: pos, URL: row.YouTubeMatch.URL, Err: err}
		}
	}

	tr.UpdateStep(stepWaveform, pctAudioEnd)
	for _, row := range matched {
		pos := row.TrackPosition
		audio, ok := library.FindAudio(item.Dir, pos)
		if !ok {
			continue
		}
		if err := r.cfg.Analyzer.Waveform(ctx, item.Dir, pos, audio); err != nil {
			return &report.TrackError{Track: pos, URL: row.YouTubeMatch.URL, Err: err}
		}
		tr.AddArtifact(library.WaveformPath(item.Dir, pos))
	}
	return nil
}

func (r *Runner) renderLabel(
	item library.Item,
	rel library.Release,
	assess checker.Assessment,
	tr *progress.Tracker,
) error {
	if assess.Needs(checker.StepQRCode) {
		tr.UpdateStep(stepQRCode, pctQRCode)
		if err := WriteQRCode(item.Dir, rel.ID); err != nil {
			return err
		}
		tr.AddArtifact(library.QRCodePath(item.Dir))
		tr.UpdateStep(stepQRCodeDone, pctQRCodeDone)
	}
	if assess.Needs(checker.StepLabel) {
		tr.UpdateStep(stepLabel, pctLabel)
		if err := WriteLabel(item.Dir, rel); err != nil {
			return err
		}
		tr.AddArtifact(library.LabelPath(item.Dir))
	}
	return nil
}
