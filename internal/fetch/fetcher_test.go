package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	f, err := NewFetcher(FetcherConfig{UserAgent: "cratesync-test", Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	return f
}

func TestFetcherReturnsBodyAndStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "cratesync-test", r.UserAgent())
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><title>watch page</title></html>"))
	}))
	defer srv.Close()

	page, err := newTestFetcher(t).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "watch page")
	require.False(t, page.Rendered)
}

func TestFetcherSurfacesNonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	// A served 404 is a page, not a transport failure: the prober needs
	// the status to tell "video removed" apart from "network down".
	page, err := newTestFetcher(t).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, page.StatusCode)
}

func TestFetcherRejectsUnreachableHost(t *testing.T) {
	t.Parallel()

	_, err := newTestFetcher(t).Fetch(context.Background(), "http://127.0.0.1:1/nothing")
	require.Error(t, err)
}
