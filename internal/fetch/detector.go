package fetch

import (
	"bytes"
	"strings"
)

// Detector decides whether a statically fetched page is a JS shell that
// needs the headless fallback before it is worth parsing.
type Detector struct {
	minHTMLBytes int
	keywords     [][]byte
}

// NewDetector builds a detector from a size floor and shell keywords.
// Keywords are matched case-insensitively anywhere in the body.
func NewDetector(minBytes int, keywords []string) *Detector {
	lowered := make([][]byte, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(kw)))
	}
	return &Detector{minHTMLBytes: minBytes, keywords: lowered}
}

// NeedsJS reports whether the page shows shell signals: a body below the
// size floor or one of the configured keywords.
func (d *Detector) NeedsJS(page Page) bool {
	if d == nil || page.Rendered {
		return false
	}
	if d.minHTMLBytes > 0 && len(page.Body) < d.minHTMLBytes {
		return true
	}
	if len(page.Body) == 0 || len(d.keywords) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(page.Body)
	for _, kw := range d.keywords {
		if bytes.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}
