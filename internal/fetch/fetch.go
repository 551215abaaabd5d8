// Package fetch retrieves remote pages for the matching pipeline: a static
// colly fetcher for watch pages and cover art, a chromedp renderer for pages
// that only materialize under JavaScript, and a heuristic detector deciding
// when the fallback is worth a browser.
package fetch

import "net/http"

// Page is one fetched document plus its transport metadata.
type Page struct {
	// URL is the address as requested.
	URL string
	// FinalURL is where the request landed after redirects.
	FinalURL string
	// StatusCode is the HTTP status of the document response.
	StatusCode int
	// Headers are the response headers.
	Headers http.Header
	// Body is the raw document.
	Body []byte
	// Rendered marks pages produced by the headless browser.
	Rendered bool
}
