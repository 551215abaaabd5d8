package discogs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crateloft/cratesync/internal/library"
	"github.com/crateloft/cratesync/internal/report"
)

const releaseBody = `{
  "id": 4711,
  "title": "Crush",
  "year": 2019,
  "artists": [{"name": "Floating Points"}],
  "labels": [
    {"name": "Ninja Tune", "catno": "ZEN250"},
    {"name": "Pluto", "catno": "none"}
  ],
  "genres": ["Electronic"],
  "formats": [
    {"name": "Vinyl", "qty": "2", "descriptions": ["LP", "Album"]},
    {"name": "CD"}
  ],
  "videos": [
    {"uri": "https://www.youtube.com/watch?v=zzZ1", "title": "Falaise", "duration": 219},
    {"uri": "", "title": "broken entry"}
  ],
  "images": [
    {"type": "secondary", "uri": "https://img.discogs.test/back.jpg"},
    {"type": "primary", "uri": "https://img.discogs.test/front.jpg"}
  ],
  "tracklist": [
    {"position": "", "type_": "heading", "title": "Side A"},
    {"position": "A1", "type_": "track", "title": "Falaise", "duration": "3:39",
     "artists": [{"name": "Floating Points"}]},
    {"position": "A2", "type_": "track", "title": "Last Bloom", "duration": "4:41"}
  ]
}`

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{
		Token:    "tok123",
		Username: "ana",
		BaseURL:  baseURL,
		RPS:      1000,
	})
	require.NoError(t, err)
	return c
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Username: "ana"})
	require.EqualError(t, err, "discogs: token is required")
}

func TestReleaseMapsMetadata(t *testing.T) {
	t.Parallel()

	var gotAuth, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/releases/4711", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(releaseBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	rel, err := c.Release(context.Background(), 4711)
	require.NoError(t, err)

	require.Equal(t, "Discogs token=tok123", gotAuth)
	require.Contains(t, gotAgent, "cratesync")

	require.Equal(t, int64(4711), rel.ID)
	require.Equal(t, "Crush", rel.Title)
	require.Equal(t, 2019, rel.Year)
	require.Equal(t, []string{"Floating Points"}, rel.Artists)
	require.Equal(t, []string{"Ninja Tune", "Pluto"}, rel.Labels)
	require.Equal(t, []string{"ZEN250", "none"}, rel.CatalogNumbers)
	require.Equal(t, []string{"Electronic"}, rel.Genres)
	require.Equal(t, library.Format{
		Name:         "Vinyl",
		Qty:          "2",
		Descriptions: []string{"LP", "Album"},
	}, rel.Format)

	// Blank video URIs are dropped, the primary image wins over the first.
	require.Equal(t, []string{"https://www.youtube.com/watch?v=zzZ1"}, rel.VideoURLs)
	require.Equal(t, "https://img.discogs.test/front.jpg", rel.CoverURL)

	// The heading row has no position and is not a track.
	require.Equal(t, []library.Track{
		{Position: "A1", Title: "Falaise", Artist: "Floating Points", Duration: "3:39"},
		{Position: "A2", Title: "Last Bloom", Artist: "", Duration: "4:41"},
	}, rel.Tracks)
}

func TestReleaseFallsBackToFirstImage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 9, "title": "X", "images": [
			{"type": "secondary", "uri": "https://img.discogs.test/only.jpg"}
		]}`))
	}))
	defer srv.Close()

	rel, err := newTestClient(t, srv.URL).Release(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, "https://img.discogs.test/only.jpg", rel.CoverURL)
}

func TestStatusErrorsClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		want   report.Category
	}{
		{"throttled", http.StatusTooManyRequests, report.CategoryNetworkAuth},
		{"bad token", http.StatusUnauthorized, report.CategoryNetworkAuth},
		{"gone", http.StatusNotFound, report.CategoryContentUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, http.StatusText(tc.status), tc.status)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).Release(context.Background(), 4711)
			require.Error(t, err)
			require.Contains(t, err.Error(), "discogs: status")
			require.Contains(t, err.Error(), "/releases/4711")
			require.Equal(t, tc.want, report.Classify(err.Error()))
		})
	}
}

func TestReleaseDecodeError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Release(context.Background(), 4711)
	require.ErrorContains(t, err, "decode /releases/4711")
}

func TestCollectionWalksAllPages(t *testing.T) {
	t.Parallel()

	var perPages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/ana/collection/folders/0/releases", r.URL.Path)
		perPages = append(perPages, r.URL.Query().Get("per_page"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(`{
				"pagination": {"page": 1, "pages": 2, "per_page": 50, "items": 3},
				"releases": [
					{"date_added": "2023-05-14T09:02:28-07:00",
					 "basic_information": {"id": 4711, "title": "Crush",
					  "artists": [{"name": "Floating Points"}]}},
					{"date_added": "2023-06-01T12:00:00-07:00",
					 "basic_information": {"id": 90125, "title": "90125",
					  "artists": [{"name": "Yes"}]}}
				]
			}`))
		case "2":
			_, _ = w.Write([]byte(`{
				"pagination": {"page": 2, "pages": 2, "per_page": 50, "items": 3},
				"releases": [
					{"date_added": "2024-01-09T18:30:00-08:00",
					 "basic_information": {"id": 314, "title": "Endtroducing.....",
					  "artists": [{"name": "DJ Shadow"}]}}
				]
			}`))
		default:
			http.Error(w, "no such page", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	lister := CollectionLister{
		Client: newTestClient(t, srv.URL),
		Layout: library.Layout{Root: "/lib"},
	}
	items, err := lister.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"50", "50"}, perPages)

	require.Equal(t, []library.Item{
		{
			ID:      4711,
			Title:   "Floating Points - Crush",
			Dir:     filepath.Join("/lib", "4711_Crush"),
			AddedAt: "2023-05-14T09:02:28-07:00",
		},
		{
			ID:      90125,
			Title:   "Yes - 90125",
			Dir:     filepath.Join("/lib", "90125_90125"),
			AddedAt: "2023-06-01T12:00:00-07:00",
		},
		{
			ID:      314,
			Title:   "DJ Shadow - Endtroducing.....",
			Dir:     filepath.Join("/lib", "314_Endtroducing"),
			AddedAt: "2024-01-09T18:30:00-08:00",
		},
	}, items)
}

func TestCollectionEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pagination": {"page": 1, "pages": 0, "items": 0}, "releases": []}`))
	}))
	defer srv.Close()

	entries, err := newTestClient(t, srv.URL).Collection(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCollectionRequiresUsername(t *testing.T) {
	t.Parallel()

	c, err := New(Config{Token: "tok123"})
	require.NoError(t, err)
	_, err = c.Collection(context.Background())
	require.EqualError(t, err, "discogs: username is required")
}

func TestRateLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 1, "title": "A"}`))
	}))
	defer srv.Close()

	c, err := New(Config{Token: "tok123", BaseURL: srv.URL, RPS: 0.01})
	require.NoError(t, err)

	// The burst token covers the first call; the second would wait ~100s.
	_, err = c.Release(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Release(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
