package library

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// metadataFile mirrors the on-disk metadata.json shape.
type metadataFile struct {
	Title          string     `json:"title"`
	Artist         []string   `json:"artist"`
	Label          []string   `json:"label"`
	CatalogNumbers []string   `json:"catalog_numbers"`
	Genres         []string   `json:"genres"`
	Formats        Format     `json:"formats"`
	Year           int        `json:"year"`
	ID             int64      `json:"id"`
	Timestamp      string     `json:"timestamp"`
	Videos         []string   `json:"videos"`
	Tracklist      []trackRow `json:"tracklist"`
}

type trackRow struct {
	Position string `json:"position"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Duration string `json:"duration"`
}

// WriteMetadata persists the release metadata JSON in its work directory.
func WriteMetadata(dir string, r Release) error {
	file := metadataFile{
		Title:          r.Title,
		Artist:         r.Artists,
		Label:          r.Labels,
		CatalogNumbers: r.CatalogNumbers,
		Genres:         r.Genres,
		Formats:        r.Format,
		Year:           r.Year,
		ID:             r.ID,
		Timestamp:      r.AddedAt,
		Videos:         r.VideoURLs,
	}
	for _, t := range r.Tracks {
		file.Tracklist = append(file.Tracklist, trackRow(t))
	}
	data, err := json.MarshalIndent(file, "", "    ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(MetadataPath(dir), data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads a release from its persisted metadata. The returned
// error wraps fs.ErrNotExist when the release has never been fetched.
func ReadMetadata(dir string) (Release, error) {
	data, err := os.ReadFile(MetadataPath(dir))
	if err != nil {
		return Release{}, fmt.Errorf("read metadata: %w", err)
	}
	var file metadataFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Release{}, fmt.Errorf("decode metadata: %w", err)
	}
	r := Release{
		ID:             file.ID,
		Title:          file.Title,
		Artists:        file.Artist,
		Labels:         file.Label,
		CatalogNumbers: file.CatalogNumbers,
		Genres:         file.Genres,
		Format:         file.Formats,
		Year:           file.Year,
		AddedAt:        file.Timestamp,
		VideoURLs:      file.Videos,
	}
	for _, t := range file.Tracklist {
		r.Tracks = append(r.Tracks, Track(t))
	}
	return r, nil
}

// BackfillTrackDurations fills empty tracklist durations from matched video
// lengths ("M:SS" notation) and rewrites the metadata file when anything
// changed. Returns the number of updated tracks.
func BackfillTrackDurations(dir string, rows []TrackMatch) (int, error) {
	r, err := ReadMetadata(dir)
	if err != nil {
		return 0, err
	}

	fromVideo := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.TrackPosition == "" || row.YouTubeMatch == nil || row.YouTubeMatch.Length <= 0 {
			continue
		}
		secs := row.YouTubeMatch.Length
		fromVideo[row.TrackPosition] = fmt.Sprintf("%d:%02d", secs/60, secs%60)
	}

	updated := 0
	for i, t := range r.Tracks {
		if t.Position == "" || strings.TrimSpace(t.Duration) != "" {
			continue
		}
		if d, ok := fromVideo[t.Position]; ok {
			r.Tracks[i].Duration = d
			updated++
		}
	}
	if updated == 0 {
		return 0, nil
	}
	if err := WriteMetadata(dir, r); err != nil {
		return 0, err
	}
	return updated, nil
}
