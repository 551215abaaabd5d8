package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Scan lists releases already present under the library root by parsing
// their directory names. It is the offline counterpart of the collection
// lister: no credentials, no network.
type Scan struct {
	layout Layout
}

// NewScan returns a Scan over the layout root.
func NewScan(layout Layout) *Scan {
	return &Scan{layout: layout}
}

// List implements Lister. Directories that do not follow the
// "{id}_{title}" naming are skipped. Titles are upgraded from metadata.json
// when the release has one.
func (s *Scan) List(ctx context.Context) ([]Item, error) {
	entries, err := os.ReadDir(s.layout.Root)
	if err != nil {
		return nil, fmt.Errorf("scan library root: %w", err)
	}

	var items []Item
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		id, title, ok := ParseReleaseDir(e.Name())
		if !ok {
			continue
		}
		item := Item{
			ID:    id,
			Title: title,
			Dir:   filepath.Join(s.layout.Root, e.Name()),
		}
		if r, err := ReadMetadata(item.Dir); err == nil {
			item.Title = r.Title
			item.AddedAt = r.AddedAt
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}
