package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/fetch"
	"github.com/crateloft/cratesync/internal/library"
)

// PageFetcher is the static fetch seam the prober needs.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (fetch.Page, error)
}

// PageRenderer is the headless fallback seam. May be nil.
type PageRenderer interface {
	Render(ctx context.Context, rawURL string) (fetch.Page, error)
}

// Prober resolves watch-page URLs into video candidates. Each URL is fetched
// statically first; when the page looks like a JS shell and a renderer is
// wired, the fetch is retried through the browser. URLs that cannot be
// probed are dropped, not fatal: matching works with whatever survived.
type Prober struct {
	fetcher  PageFetcher
	renderer PageRenderer
	detector *fetch.Detector
	log      *zap.Logger
}

// NewProber wires the probe path. renderer may be nil to disable the
// fallback.
func NewProber(fetcher PageFetcher, renderer PageRenderer, detector *fetch.Detector, log *zap.Logger) (*Prober, error) {
	if fetcher == nil {
		return nil, errors.New("prober: fetcher is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Prober{fetcher: fetcher, renderer: renderer, detector: detector, log: log}, nil
}

// Probe fetches and parses every URL, in order. The result keeps only
// usable candidates.
func (p *Prober) Probe(ctx context.Context, urls []string) []library.Video {
	videos := make([]library.Video, 0, len(urls))
	for _, u := range urls {
		if ctx.Err() != nil {
			return videos
		}
		v, ok := p.probeOne(ctx, u)
		if !ok {
			continue
		}
		videos = append(videos, v)
	}
	return videos
}

func (p *Prober) probeOne(ctx context.Context, rawURL string) (library.Video, bool) {
	page, err := p.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		p.log.Debug("video probe failed", zap.String("url", rawURL), zap.Error(err))
		return library.Video{}, false
	}
	if p.detector.NeedsJS(page) && p.renderer != nil {
		rendered, err := p.renderer.Render(ctx, rawURL)
		if err != nil {
			p.log.Debug("video render fallback failed", zap.String("url", rawURL), zap.Error(err))
		} else {
			page = rendered
		}
	}
	if page.StatusCode != 0 && page.StatusCode != http.StatusOK {
		p.log.Debug("video page status not ok",
			zap.String("url", rawURL),
			zap.Int("status", page.StatusCode),
		)
		return library.Video{}, false
	}

	v := parseWatchPage(page.Body)
	if v.Title == "" {
		p.log.Debug("video page carried no details", zap.String("url", rawURL))
		return library.Video{}, false
	}
	v.URL = rawURL
	return v, true
}

// Watch pages embed the player response as inline JSON; these pick the
// details out of the videoDetails object without parsing the whole blob.
var (
	reLength    = regexp.MustCompile(`"lengthSeconds"\s*:\s*"(\d+)"`)
	reTitle     = regexp.MustCompile(`"title"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	reAuthor    = regexp.MustCompile(`"author"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	reKeywords  = regexp.MustCompile(`"keywords"\s*:\s*\[((?:"(?:[^"\\]|\\.)*"\s*,?\s*)*)\]`)
	reHTMLTitle = regexp.MustCompile(`<title>(.*?)(?: - YouTube)?</title>`)
)

func parseWatchPage(body []byte) library.Video {
	var v library.Video

	text := string(body)
	// Scope the field regexes to the videoDetails object; "title" appears
	// dozens of times elsewhere in a watch page.
	details := text
	if idx := strings.Index(text, `"videoDetails"`); idx >= 0 {
		end := idx + 8192
		if end > len(text) {
			end = len(text)
		}
		details = text[idx:end]
	}

	if m := reTitle.FindStringSubmatch(details); m != nil {
		v.Title = unescapeJSON(m[1])
	}
	if v.Title == "" {
		if m := reHTMLTitle.FindStringSubmatch(text); m != nil {
			v.Title = strings.TrimSpace(m[1])
		}
	}
	if m := reAuthor.FindStringSubmatch(details); m != nil {
		v.Author = unescapeJSON(m[1])
	}
	if m := reLength.FindStringSubmatch(details); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			v.Length = n
		}
	}
	if m := reKeywords.FindStringSubmatch(details); m != nil {
		var tags []string
		if err := json.Unmarshal([]byte("["+m[1]+"]"), &tags); err == nil {
			v.Tags = tags
		}
	}
	return v
}

func unescapeJSON(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
