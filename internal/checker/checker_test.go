package checker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/library"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func writeRows(t *testing.T, dir string, rows []library.TrackMatch) {
	t.Helper()
	require.NoError(t, library.WriteMatches(dir, rows))
}

func matchedRow(pos string) library.TrackMatch {
	return library.TrackMatch{
		DiscogsTrack:  "Track " + pos,
		TrackPosition: pos,
		YouTubeMatch:  &library.Video{URL: "https://youtu.be/" + pos, Title: "Track " + pos, Length: 200},
		MatchScore:    250,
	}
}

func TestAssessEmptyDirNeedsEverything(t *testing.T) {
	t.Parallel()

	a := New(zap.NewNop()).Assess(t.TempDir())
	require.False(t, a.Complete())
	for _, step := range []string{StepMetadata, StepCover, StepMatch, StepQRCode, StepLabel} {
		require.True(t, a.Needs(step), "expected %s pending", step)
	}
	require.Empty(t, a.Tracks)
}

func TestAssessAbsentMatchTableMeansFullMatchStep(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, library.MetadataPath(dir))
	touch(t, library.CoverPath(dir))
	touch(t, library.QRCodePath(dir))
	touch(t, library.LabelPath(dir))

	a := New(zap.NewNop()).Assess(dir)
	require.Equal(t, []string{StepMatch}, a.ReleaseSteps)
	require.Empty(t, a.Tracks)
}

func TestAssessCoverlessRelease(t *testing.T) {
	t.Parallel()

	chk := New(zap.NewNop())

	t.Run("NoCoverImageUpstream", func(t *testing.T) {
		t.Parallel()
		// A release whose metadata carries no cover URL has nothing to
		// fetch; the step must not stay pending run after run.
		dir := t.TempDir()
		require.NoError(t, library.WriteMetadata(dir, library.Release{ID: 11, Title: "No Art"}))

		a := chk.Assess(dir)
		require.False(t, a.Needs(StepCover))
	})

	t.Run("CoverStillMissing", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, library.WriteMetadata(dir, library.Release{
			ID:       12,
			Title:    "With Art",
			CoverURL: "https://img.discogs.com/12.jpg",
		}))

		a := chk.Assess(dir)
		require.True(t, a.Needs(StepCover))
	})

	t.Run("UnreadableMetadataKeepsPending", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		touch(t, library.MetadataPath(dir))

		a := chk.Assess(dir)
		require.True(t, a.Needs(StepCover))
	})
}

func TestAssessScopesGapToSingleTrack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, library.MetadataPath(dir))
	touch(t, library.CoverPath(dir))
	touch(t, library.QRCodePath(dir))
	touch(t, library.LabelPath(dir))
	writeRows(t, dir, []library.TrackMatch{
		matchedRow("A1"),
		matchedRow("A2"),
		{DiscogsTrack: "Unmatched", TrackPosition: "B1"},
	})

	for _, pos := range []string{"A1", "A2"} {
		touch(t, library.AudioPath(dir, pos, ".opus"))
		touch(t, library.AnalysisPath(dir, pos))
		touch(t, library.MelSpectrogramPath(dir, pos))
		touch(t, library.ChromagramPath(dir, pos))
	}
	// A1 gets its waveform, A2 does not.
	touch(t, library.WaveformPath(dir, "A1"))

	a := New(zap.NewNop()).Assess(dir)
	require.Empty(t, a.ReleaseSteps, "match step must not be redone")
	require.Len(t, a.Tracks, 1)
	require.Equal(t, "A2", a.Tracks[0].Position)
	require.Equal(t, []string{StepWaveform}, a.Tracks[0].Steps)
}

func TestAssessMissingAudioPullsDownstreamSteps(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, library.MetadataPath(dir))
	touch(t, library.CoverPath(dir))
	touch(t, library.QRCodePath(dir))
	touch(t, library.LabelPath(dir))
	writeRows(t, dir, []library.TrackMatch{matchedRow("A1")})

	a := New(zap.NewNop()).Assess(dir)
	require.Len(t, a.Tracks, 1)
	require.Equal(t, []string{StepAudio, StepAnalysis, StepSpectrograms, StepWaveform}, a.Tracks[0].Steps)
}

func TestAssessUnmatchedTracksNeedNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, library.MetadataPath(dir))
	touch(t, library.CoverPath(dir))
	touch(t, library.QRCodePath(dir))
	touch(t, library.LabelPath(dir))
	writeRows(t, dir, []library.TrackMatch{
		matchedRow("A1"),
		{DiscogsTrack: "No Match", TrackPosition: "B1"},
	})
	touch(t, library.AudioPath(dir, "A1", ".ogg"))
	touch(t, library.AnalysisPath(dir, "A1"))
	touch(t, library.MelSpectrogramPath(dir, "A1"))
	touch(t, library.ChromagramPath(dir, "A1"))
	touch(t, library.WaveformPath(dir, "A1"))

	a := New(zap.NewNop()).Assess(dir)
	require.True(t, a.Complete(), "unmatched rows must not demand artifacts: %+v", a)
}

func TestAssessCorruptMatchTableRedoesMatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, library.MetadataPath(dir))
	touch(t, library.CoverPath(dir))
	touch(t, library.QRCodePath(dir))
	touch(t, library.LabelPath(dir))
	require.NoError(t, os.WriteFile(library.MatchesPath(dir), []byte("{not json"), 0o644))

	a := New(zap.NewNop()).Assess(dir)
	require.Equal(t, []string{StepMatch}, a.ReleaseSteps)
}

func TestAssessCompleteRelease(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "4711_Album")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	touch(t, library.MetadataPath(dir))
	touch(t, library.CoverPath(dir))
	touch(t, library.QRCodePath(dir))
	touch(t, library.LabelPath(dir))
	writeRows(t, dir, []library.TrackMatch{matchedRow("A1")})
	touch(t, library.AudioPath(dir, "A1", ".m4a"))
	touch(t, library.AnalysisPath(dir, "A1"))
	touch(t, library.MelSpectrogramPath(dir, "A1"))
	touch(t, library.ChromagramPath(dir, "A1"))
	touch(t, library.WaveformPath(dir, "A1"))

	a := New(zap.NewNop()).Assess(dir)
	require.True(t, a.Complete(), "assessment: %+v", a)
}
