package discogs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/library"
)

// collectionPageSize matches the largest page Discogs serves.
const collectionPageSize = 50

type pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
}

type collectionRelease struct {
	DateAdded        string `json:"date_added"`
	BasicInformation struct {
		ID      int64       `json:"id"`
		Title   string      `json:"title"`
		Artists []artistRef `json:"artists"`
	} `json:"basic_information"`
}

type collectionPage struct {
	Pagination pagination          `json:"pagination"`
	Releases   []collectionRelease `json:"releases"`
}

// CollectionEntry is one release in the user's collection, in API order.
type CollectionEntry struct {
	ID      int64
	Title   string
	Artist  string
	AddedAt string
}

// Collection walks every page of the configured user's main folder (folder 0
// holds the whole collection) and returns the entries in API order.
func (c *Client) Collection(ctx context.Context) ([]CollectionEntry, error) {
	if c.username == "" {
		return nil, errors.New("discogs: username is required")
	}
	path := fmt.Sprintf("/users/%s/collection/folders/0/releases", url.PathEscape(c.username))

	var out []CollectionEntry
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(collectionPageSize))

		var resp collectionPage
		if err := c.get(ctx, path, query, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Releases {
			out = append(out, CollectionEntry{
				ID:      r.BasicInformation.ID,
				Title:   r.BasicInformation.Title,
				Artist:  joinArtists(r.BasicInformation.Artists),
				AddedAt: r.DateAdded,
			})
		}
		c.logger.Debug("fetched collection page",
			zap.Int("page", page),
			zap.Int("pages", resp.Pagination.Pages),
			zap.Int("releases", len(resp.Releases)))

		if len(resp.Releases) == 0 || page >= resp.Pagination.Pages {
			break
		}
	}
	return out, nil
}

// CollectionLister turns the Discogs collection into run items. Work
// directories are resolved against the archive layout so the completeness
// checker and the pipeline agree on paths.
type CollectionLister struct {
	Client *Client
	Layout library.Layout
}

// List implements library.Lister.
func (l CollectionLister) List(ctx context.Context) ([]library.Item, error) {
	entries, err := l.Client.Collection(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]library.Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, library.Item{
			ID:      e.ID,
			Title:   displayTitle(e),
			Dir:     l.Layout.ReleaseDir(e.ID, e.Title),
			AddedAt: e.AddedAt,
		})
	}
	return items, nil
}

// displayTitle is what the dashboard shows for a slot. Directory names keep
// using the bare release title.
func displayTitle(e CollectionEntry) string {
	if e.Artist == "" {
		return e.Title
	}
	return e.Artist + " - " + e.Title
}
