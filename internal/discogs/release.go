package discogs

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/library"
)

// Wire shapes for GET /releases/{id}. Only the fields the archive keeps.

type artistRef struct {
	Name string `json:"name"`
}

type labelRef struct {
	Name  string `json:"name"`
	CatNo string `json:"catno"`
}

type videoRef struct {
	URI      string `json:"uri"`
	Title    string `json:"title"`
	Duration int    `json:"duration"`
}

type imageRef struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

type trackRef struct {
	Position string      `json:"position"`
	Type     string      `json:"type_"`
	Title    string      `json:"title"`
	Duration string      `json:"duration"`
	Artists  []artistRef `json:"artists"`
}

type releaseResponse struct {
	ID        int64            `json:"id"`
	Title     string           `json:"title"`
	Year      int              `json:"year"`
	Artists   []artistRef      `json:"artists"`
	Labels    []labelRef       `json:"labels"`
	Genres    []string         `json:"genres"`
	Formats   []library.Format `json:"formats"`
	Videos    []videoRef       `json:"videos"`
	Images    []imageRef       `json:"images"`
	Tracklist []trackRef       `json:"tracklist"`
}

// Release fetches one release's full metadata.
func (c *Client) Release(ctx context.Context, id int64) (library.Release, error) {
	var resp releaseResponse
	if err := c.get(ctx, fmt.Sprintf("/releases/%d", id), nil, &resp); err != nil {
		return library.Release{}, err
	}

	r := library.Release{
		ID:     resp.ID,
		Title:  resp.Title,
		Genres: resp.Genres,
		Year:   resp.Year,
	}
	for _, a := range resp.Artists {
		r.Artists = append(r.Artists, a.Name)
	}
	for _, l := range resp.Labels {
		r.Labels = append(r.Labels, l.Name)
		r.CatalogNumbers = append(r.CatalogNumbers, l.CatNo)
	}
	if len(resp.Formats) > 0 {
		r.Format = resp.Formats[0]
	}
	for _, v := range resp.Videos {
		if v.URI != "" {
			r.VideoURLs = append(r.VideoURLs, v.URI)
		}
	}
	r.CoverURL = pickCover(resp.Images)
	for _, t := range resp.Tracklist {
		// Headings and index rows carry no position and hold no audio.
		if t.Position == "" {
			continue
		}
		r.Tracks = append(r.Tracks, library.Track{
			Position: t.Position,
			Title:    t.Title,
			Artist:   joinArtists(t.Artists),
			Duration: t.Duration,
		})
	}

	c.logger.Debug("fetched release",
		zap.Int64("release_id", resp.ID),
		zap.String("title", resp.Title),
		zap.Int("tracks", len(r.Tracks)),
		zap.Int("videos", len(r.VideoURLs)))
	return r, nil
}

// pickCover prefers the primary image and falls back to whatever comes
// first. Releases without images yield an empty URL.
func pickCover(images []imageRef) string {
	for _, img := range images {
		if img.Type == "primary" && img.URI != "" {
			return img.URI
		}
	}
	for _, img := range images {
		if img.URI != "" {
			return img.URI
		}
	}
	return ""
}

func joinArtists(artists []artistRef) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}
