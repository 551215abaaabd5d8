package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNoMatches reports that matching produced no usable video for any track,
// so no match file was persisted.
var ErrNoMatches = errors.New("no tracks matched")

// TrackMatch is one persisted row of yt_matches.json.
type TrackMatch struct {
	DiscogsTrack    string  `json:"discogs_track"`
	DiscogsDuration int     `json:"discogs_duration"`
	TrackPosition   string  `json:"track_position"`
	YouTubeMatch    *Video  `json:"youtube_match"`
	MatchScore      float64 `json:"match_score"`
}

// Matched reports whether the row carries a usable video.
func (m TrackMatch) Matched() bool { return m.YouTubeMatch != nil }

// WriteMatches persists rows to the release's yt_matches.json. It refuses to
// persist a result where no row is matched: an absent file means "matching
// not yet attempted", and an all-null file would make every later run skip
// the match step even though nothing was found. Returns ErrNoMatches in that
// case and writes nothing.
func WriteMatches(dir string, rows []TrackMatch) error {
	any := false
	for _, row := range rows {
		if row.Matched() {
			any = true
			break
		}
	}
	if !any {
		return ErrNoMatches
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("encode matches: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(MatchesPath(dir), data, 0o644); err != nil {
		return fmt.Errorf("write matches: %w", err)
	}
	return nil
}

// ReadMatches loads the persisted match rows. The returned error wraps
// fs.ErrNotExist when matching has not run for this release yet.
func ReadMatches(dir string) ([]TrackMatch, error) {
	data, err := os.ReadFile(MatchesPath(dir))
	if err != nil {
		return nil, fmt.Errorf("read matches: %w", err)
	}
	var rows []TrackMatch
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode matches: %w", err)
	}
	return rows, nil
}
