package library

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// AudioExtensions are the container formats a finished track download may
// carry, in probe order.
var AudioExtensions = []string{".ogg", ".m4a", ".mp3", ".webm", ".opus"}

var (
	unsafeChars    = regexp.MustCompile(`[\\/:*?"<>|']`)
	underscoreRuns = regexp.MustCompile(`_+`)
)

// SanitizeFilename replaces filesystem-unsafe characters with underscores,
// collapses runs and trims the result. Apostrophes are replaced too because
// they break gnuplot command files.
func SanitizeFilename(name string) string {
	if name == "" {
		return "unnamed"
	}
	s := unsafeChars.ReplaceAllString(name, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, " .")
	if s == "" {
		return "unnamed"
	}
	return s
}

// Layout resolves release directories under a library root.
type Layout struct {
	Root string
}

// ReleaseDir returns the work directory for a release, named
// "{id}_{sanitized title}".
func (l Layout) ReleaseDir(id int64, title string) string {
	return filepath.Join(l.Root, fmt.Sprintf("%d_%s", id, SanitizeFilename(title)))
}

// ParseReleaseDir recovers the release id and title part from a directory
// name produced by ReleaseDir.
func ParseReleaseDir(name string) (int64, string, bool) {
	idPart, titlePart, found := strings.Cut(name, "_")
	if !found || idPart == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, titlePart, true
}

// Per-release artifact paths.

// MetadataPath is the release metadata JSON.
func MetadataPath(dir string) string { return filepath.Join(dir, "metadata.json") }

// CoverPath is the downloaded cover image.
func CoverPath(dir string) string { return filepath.Join(dir, "cover.jpg") }

// MatchesPath is the persisted track-to-video match table.
func MatchesPath(dir string) string { return filepath.Join(dir, "yt_matches.json") }

// LabelPath is the printable label source.
func LabelPath(dir string) string { return filepath.Join(dir, "label.tex") }

// QRCodePath is the label QR code image.
func QRCodePath(dir string) string { return filepath.Join(dir, "qrcode.png") }

// TrackBase is the per-track filename stem all track artifacts derive from.
func TrackBase(dir, position string) string {
	return filepath.Join(dir, SanitizeFilename(position))
}

// AnalysisPath is the per-track stream statistics JSON.
func AnalysisPath(dir, position string) string { return TrackBase(dir, position) + ".json" }

// MelSpectrogramPath keeps the historical spelling so existing archives stay
// recognized.
func MelSpectrogramPath(dir, position string) string {
	return TrackBase(dir, position) + "_Mel-spectogram.png"
}

// ChromagramPath is the per-track HPCP chroma image.
func ChromagramPath(dir, position string) string {
	return TrackBase(dir, position) + "_HPCP_chromatogram.png"
}

// WaveformPath is the per-track waveform image.
func WaveformPath(dir, position string) string {
	return TrackBase(dir, position) + "_waveform.png"
}

// AudioPath returns the track audio file for a given extension.
func AudioPath(dir, position, ext string) string {
	return TrackBase(dir, position) + ext
}

// FindAudio locates a finished download for the track in any accepted
// container format.
func FindAudio(dir, position string) (string, bool) {
	base := TrackBase(dir, position)
	for _, ext := range AudioExtensions {
		path := base + ext
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}
