package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crateloft/cratesync/internal/library"
)

func testRelease() library.Release {
	return library.Release{
		ID:      1,
		Title:   "Test Release",
		Artists: []string{"Aphex Twin"},
		Tracks: []library.Track{
			{Position: "A1", Title: "Xtal", Duration: "4:51"},
			{Position: "A2", Title: "Tha", Duration: "9:01"},
		},
	}
}

func TestMatchPicksBestCandidatePerTrack(t *testing.T) {
	t.Parallel()

	videos := []library.Video{
		{URL: "v1", Title: "Aphex Twin - Xtal", Length: 291},
		{URL: "v2", Title: "Aphex Twin - Tha", Length: 541},
	}
	rows := Match(testRelease(), videos, MatchConfig{})
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].YouTubeMatch)
	require.Equal(t, "v1", rows[0].YouTubeMatch.URL)
	require.NotNil(t, rows[1].YouTubeMatch)
	require.Equal(t, "v2", rows[1].YouTubeMatch.URL)
	require.Greater(t, rows[0].MatchScore, 1.0)
}

func TestMatchDurationRatioExcludes(t *testing.T) {
	t.Parallel()

	// Same title, but a full-album upload more than twice the track
	// length must not pair.
	videos := []library.Video{
		{URL: "album", Title: "Aphex Twin - Xtal", Length: 291 * 3},
	}
	rows := Match(testRelease(), videos, MatchConfig{})
	require.Nil(t, rows[0].YouTubeMatch)
}

func TestMatchUnknownDurationsPassFilter(t *testing.T) {
	t.Parallel()

	videos := []library.Video{
		{URL: "v1", Title: "Xtal", Length: 0},
	}
	rows := Match(testRelease(), videos, MatchConfig{})
	require.NotNil(t, rows[0].YouTubeMatch)
}

func TestMatchVideoAssignedToOneTrackOnly(t *testing.T) {
	t.Parallel()

	rel := library.Release{
		Artists: []string{"Artist"},
		Tracks: []library.Track{
			{Position: "A1", Title: "Song", Duration: "3:00"},
			{Position: "A2", Title: "Song (Remix)", Duration: "3:00"},
		},
	}
	videos := []library.Video{
		{URL: "only", Title: "Artist - Song", Length: 180},
	}
	rows := Match(rel, videos, MatchConfig{})

	matched := 0
	for _, row := range rows {
		if row.Matched() {
			matched++
			require.Equal(t, "only", row.YouTubeMatch.URL)
		}
	}
	require.Equal(t, 1, matched)
	// The plain title outranks the remix for the single candidate.
	require.NotNil(t, rows[0].YouTubeMatch)
}

func TestMatchNothingMatchesYieldsNullRows(t *testing.T) {
	t.Parallel()

	videos := []library.Video{
		{URL: "v1", Title: "completely unrelated lecture recording", Length: 3600},
	}
	rows := Match(testRelease(), videos, MatchConfig{MinScore: 0.2})
	for _, row := range rows {
		require.False(t, row.Matched())
	}

	// And the codec refuses to persist that outcome.
	err := library.WriteMatches(t.TempDir(), rows)
	require.ErrorIs(t, err, library.ErrNoMatches)
}

func TestTokenSimilarity(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, tokenSimilarity("Xtal", "xtal"))
	require.Equal(t, 0.0, tokenSimilarity("", "anything"))
	require.InDelta(t, 0.5, tokenSimilarity("alpha beta", "alpha"), 1e-9)
	require.InDelta(t, 1.0/3.0, tokenSimilarity("one two", "one three"), 1e-9)
}
