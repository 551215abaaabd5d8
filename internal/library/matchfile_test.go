package library

import (
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteMatchesRefusesAllNull(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rows := []TrackMatch{
		{DiscogsTrack: "Intro", TrackPosition: "A1", YouTubeMatch: nil},
		{DiscogsTrack: "Outro", TrackPosition: "B2", YouTubeMatch: nil},
	}

	err := WriteMatches(dir, rows)
	require.ErrorIs(t, err, ErrNoMatches)

	_, statErr := os.Stat(MatchesPath(dir))
	require.ErrorIs(t, statErr, fs.ErrNotExist, "an all-null result must never be persisted")
}

func TestWriteMatchesRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rows := []TrackMatch{
		{
			DiscogsTrack:    "Voyage",
			DiscogsDuration: 260,
			TrackPosition:   "A1",
			YouTubeMatch: &Video{
				URL:    "https://www.youtube.com/watch?v=abc123",
				Title:  "Voyage (Official)",
				Author: "Some Label",
				Length: 262,
			},
			MatchScore: 271.5,
		},
		{DiscogsTrack: "Hidden Cut", TrackPosition: "B2", YouTubeMatch: nil},
	}

	require.NoError(t, WriteMatches(dir, rows))

	got, err := ReadMatches(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].Matched())
	require.Equal(t, "Voyage", got[0].DiscogsTrack)
	require.Equal(t, 262, got[0].YouTubeMatch.Length)
	require.False(t, got[1].Matched(), "null youtube_match must survive the round trip")
}

func TestReadMatchesAbsentWrapsNotExist(t *testing.T) {
	t.Parallel()

	_, err := ReadMatches(t.TempDir())
	require.Error(t, err)
	require.ErrorIs(t, err, fs.ErrNotExist)
}
