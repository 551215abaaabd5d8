// Package checker decides what work a release still needs by inspecting the
// artifacts in its work directory. It never mutates anything, so interrupted
// runs are reconciled simply by assessing again.
package checker

import (
	"errors"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/library"
)

// Step tags name the pipeline stages a release may still need.
const (
	StepMetadata     = "metadata"
	StepCover        = "cover"
	StepMatch        = "match"
	StepAudio        = "audio"
	StepAnalysis     = "analysis"
	StepSpectrograms = "spectrograms"
	StepWaveform     = "waveform"
	StepQRCode       = "qrcode"
	StepLabel        = "label"
)

// TrackNeeds lists the artifacts one matched track still lacks.
type TrackNeeds struct {
	Position string
	Steps    []string
}

// Assessment is the checker's verdict for one release directory.
type Assessment struct {
	ReleaseSteps []string
	Tracks       []TrackNeeds
}

// Complete reports whether nothing is pending.
func (a Assessment) Complete() bool {
	return len(a.ReleaseSteps) == 0 && len(a.Tracks) == 0
}

// Needs reports whether the given release-level step is pending.
func (a Assessment) Needs(step string) bool {
	for _, s := range a.ReleaseSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Checker assesses release directories.
type Checker struct {
	log *zap.Logger
}

// New creates a Checker.
func New(log *zap.Logger) *Checker {
	return &Checker{log: log}
}

// Assess inspects one release work directory.
//
// The match table is the pivot: when yt_matches.json is absent the whole
// match step is pending, and nothing is known about per-track work. The file
// only ever exists with at least one matched row, so absence cleanly means
// "not attempted" rather than "attempted, found nothing". When it is present
// each matched row is checked for its audio file, analysis JSON, both
// spectrograms and the waveform; a gap scopes work to that track alone.
// Unmatched rows need no artifacts.
func (c *Checker) Assess(dir string) Assessment {
	var a Assessment

	if !fileExists(library.MetadataPath(dir)) {
		a.ReleaseSteps = append(a.ReleaseSteps, StepMetadata)
	}
	if !fileExists(library.CoverPath(dir)) && coverExpected(dir) {
		a.ReleaseSteps = append(a.ReleaseSteps, StepCover)
	}

	rows, err := library.ReadMatches(dir)
	switch {
	case err == nil:
		for _, row := range rows {
			if !row.Matched() {
				continue
			}
			if needs := trackNeeds(dir, row.TrackPosition); len(needs.Steps) > 0 {
				a.Tracks = append(a.Tracks, needs)
			}
		}
	case errors.Is(err, fs.ErrNotExist):
		a.ReleaseSteps = append(a.ReleaseSteps, StepMatch)
	default:
		// Unreadable table: redo matching instead of guessing.
		c.log.Warn("match table unreadable, rematching", zap.String("dir", dir), zap.Error(err))
		a.ReleaseSteps = append(a.ReleaseSteps, StepMatch)
	}

	if !fileExists(library.QRCodePath(dir)) {
		a.ReleaseSteps = append(a.ReleaseSteps, StepQRCode)
	}
	if !fileExists(library.LabelPath(dir)) {
		a.ReleaseSteps = append(a.ReleaseSteps, StepLabel)
	}
	return a
}

func trackNeeds(dir, position string) TrackNeeds {
	needs := TrackNeeds{Position: position}

	if _, ok := library.FindAudio(dir, position); !ok {
		// No audio means everything downstream is pending too.
		needs.Steps = []string{StepAudio, StepAnalysis, StepSpectrograms, StepWaveform}
		return needs
	}
	if !fileExists(library.AnalysisPath(dir, position)) {
		needs.Steps = append(needs.Steps, StepAnalysis)
	}
	if !fileExists(library.MelSpectrogramPath(dir, position)) || !fileExists(library.ChromagramPath(dir, position)) {
		needs.Steps = append(needs.Steps, StepSpectrograms)
	}
	if !fileExists(library.WaveformPath(dir, position)) {
		needs.Steps = append(needs.Steps, StepWaveform)
	}
	return needs
}

// coverExpected reads the persisted metadata to see whether the release has
// a cover image at all. Releases without one would otherwise stay pending on
// every run. Missing or unreadable metadata keeps the step pending.
func coverExpected(dir string) bool {
	rel, err := library.ReadMetadata(dir)
	if err != nil {
		return true
	}
	return rel.CoverURL != ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
