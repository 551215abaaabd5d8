package pipeline

import (
	"sort"
	"strings"
	"unicode"

	"github.com/crateloft/cratesync/internal/library"
)

// MatchConfig tunes track-to-video matching.
type MatchConfig struct {
	// MinScore rejects candidate pairs below this combined score.
	MinScore float64
	// DurationRatioMax rejects videos longer than this multiple of the
	// track duration. Default 2.0.
	DurationRatioMax float64
	// DurationRatioMin rejects videos shorter than this fraction.
	// Default 0.5.
	DurationRatioMin float64
}

func (c MatchConfig) withDefaults() MatchConfig {
	if c.DurationRatioMax <= 0 {
		c.DurationRatioMax = 2.0
	}
	if c.DurationRatioMin <= 0 {
		c.DurationRatioMin = 0.5
	}
	return c
}

type candidate struct {
	track int
	video int
	score float64
}

// Match pairs each track of the release with its best video candidate. A
// video counts for at most one track: candidate pairs are ranked by score
// and assigned greedily, so the strongest pairing always wins its track and
// video. Tracks with no surviving candidate get a row with a nil match.
func Match(rel library.Release, videos []library.Video, cfg MatchConfig) []library.TrackMatch {
	cfg = cfg.withDefaults()

	var candidates []candidate
	for ti, track := range rel.Tracks {
		for vi, video := range videos {
			if !durationPlausible(track.Seconds(), video.Length, cfg) {
				continue
			}
			score := scoreCandidate(rel, track, video)
			if score < cfg.MinScore {
				continue
			}
			candidates = append(candidates, candidate{track: ti, video: vi, score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	assignedTrack := make(map[int]candidate, len(rel.Tracks))
	takenVideo := make(map[int]bool, len(videos))
	for _, c := range candidates {
		if _, done := assignedTrack[c.track]; done || takenVideo[c.video] {
			continue
		}
		assignedTrack[c.track] = c
		takenVideo[c.video] = true
	}

	rows := make([]library.TrackMatch, 0, len(rel.Tracks))
	for ti, track := range rel.Tracks {
		row := library.TrackMatch{
			DiscogsTrack:    track.Title,
			DiscogsDuration: track.Seconds(),
			TrackPosition:   track.Position,
		}
		if c, ok := assignedTrack[ti]; ok {
			v := videos[c.video]
			row.YouTubeMatch = &v
			row.MatchScore = c.score
		}
		rows = append(rows, row)
	}
	return rows
}

// durationPlausible applies the ratio filter. Unknown durations on either
// side pass: a missing number is no evidence against the pairing.
func durationPlausible(trackSecs, videoSecs int, cfg MatchConfig) bool {
	if trackSecs <= 0 || videoSecs <= 0 {
		return true
	}
	ratio := float64(videoSecs) / float64(trackSecs)
	return ratio >= cfg.DurationRatioMin && ratio <= cfg.DurationRatioMax
}

// scoreCandidate combines three signals: how much of the track title the
// video title shares, how much of artist-plus-title it shares, and how close
// the durations sit. Each signal lands in [0,1], so the sum tops out at 3.
func scoreCandidate(rel library.Release, track library.Track, video library.Video) float64 {
	artist := track.Artist
	if artist == "" && len(rel.Artists) > 0 {
		artist = rel.Artists[0]
	}

	title := tokenSimilarity(track.Title, video.Title)
	artistTitle := tokenSimilarity(artist+" "+track.Title, video.Title)

	duration := 0.0
	if t, v := track.Seconds(), video.Length; t > 0 && v > 0 {
		diff := float64(v-t) / float64(t)
		if diff < 0 {
			diff = -diff
		}
		if diff < 1 {
			duration = 1 - diff
		}
	}
	return title + artistTitle + duration
}

// tokenSimilarity is the Jaccard index over lowercased word tokens. It is
// deliberately word-order blind: video titles shuffle "Artist - Title",
// "Title (Artist)" and worse.
func tokenSimilarity(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	union := make(map[string]bool, len(ta)+len(tb))
	for t := range ta {
		union[t] = true
	}
	shared := 0
	for t := range tb {
		if ta[t] {
			shared++
		}
		union[t] = true
	}
	return float64(shared) / float64(len(union))
}

func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokens[f] = true
	}
	return tokens
}
