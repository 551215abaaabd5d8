// Package library defines the on-disk release archive: domain types, the
// directory layout and the persisted artifact codecs shared by the checker
// and the pipeline.
package library

import (
	"context"
	"strconv"
	"strings"
)

// Release is the full metadata of one collection release.
type Release struct {
	ID             int64
	Title          string
	Artists        []string
	Labels         []string
	CatalogNumbers []string
	Genres         []string
	Format         Format
	Year           int
	AddedAt        string
	VideoURLs      []string
	CoverURL       string
	Tracks         []Track
}

// Format describes the physical release format.
type Format struct {
	Name         string   `json:"name"`
	Qty          string   `json:"qty,omitempty"`
	Descriptions []string `json:"descriptions,omitempty"`
}

// Track is one tracklist entry. Duration keeps the Discogs "M:SS" notation,
// empty when unknown.
type Track struct {
	Position string
	Title    string
	Artist   string
	Duration string
}

// Seconds parses the duration notation into seconds. Zero means unknown.
func (t Track) Seconds() int {
	return DurationSeconds(t.Duration)
}

// DurationSeconds converts "M:SS" or "H:MM:SS" into seconds, 0 when the
// notation is empty or malformed.
func DurationSeconds(s string) int {
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}

// Video is one probed candidate from a release's linked videos.
type Video struct {
	URL    string   `json:"url"`
	Title  string   `json:"title"`
	Tags   []string `json:"tags,omitempty"`
	Author string   `json:"author"`
	Length int      `json:"length"` // seconds, 0 when unknown
}

// Item is the unit of work handed to the pool: enough to name a release and
// its work directory without fetching full metadata.
type Item struct {
	ID      int64
	Title   string
	Dir     string
	AddedAt string
}

// Lister enumerates the releases a run should consider.
type Lister interface {
	List(ctx context.Context) ([]Item, error)
}
