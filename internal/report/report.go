// Package report collects categorized failure records during a sync run and
// renders them into the end-of-run summary file. Failures arrive on two
// channels: release-scoped records carrying the release, track and URL in
// play when the error hit, and run-scoped records for everything else.
package report

import (
	"strings"
	"time"
)

// Category buckets a failure by its likely cause.
type Category string

// The four failure categories.
const (
	CategoryNetworkAuth        Category = "network/auth"
	CategoryContentUnavailable Category = "content-unavailable"
	CategoryLocalFailure       Category = "local-failure"
	CategoryOther              Category = "other"
)

// Scope names the channel a record arrived on.
type Scope string

const (
	// ScopeRelease marks a failure bound to one release.
	ScopeRelease Scope = "release"
	// ScopeRun marks a run-level failure with no release context.
	ScopeRun Scope = "run"
)

// ReleaseContext carries what was being worked on when a failure hit.
type ReleaseContext struct {
	ID    int64
	Title string
	Track string
	URL   string
}

// ErrorRecord is one captured failure. Release is nil on run-scoped records.
type ErrorRecord struct {
	Time     time.Time
	Scope    Scope
	Category Category
	Message  string
	Release  *ReleaseContext
}

// Hint tables for Classify, all lowercase. Order matters: tool and disk
// failures first so "executable file not found" never reads as a 404, then
// network words so "service unavailable" is not taken for missing content,
// then the content hints.
var (
	localHints = []string{
		"executable file not found",
		"yt-dlp not found",
		"ffmpeg not found",
		"ffprobe not found",
		"no such file or directory",
		"no space left on device",
		"permission denied",
		"read-only file system",
		"disk quota exceeded",
	}
	networkHints = []string{
		"429",
		"too many requests",
		"rate limit",
		"401",
		"unauthorized",
		"403",
		"forbidden",
		"sign in",
		"login required",
		"invalid token",
		"authentication",
		"timed out",
		"timeout",
		"connection reset",
		"connection refused",
		"network is unreachable",
		"no route to host",
		"temporarily unavailable",
		"service unavailable",
		"http error 5",
		"502",
		"503",
	}
	contentHints = []string{
		"no match",
		"404",
		"not found",
		"unavailable",
		"has been removed",
		"private video",
		"does not exist",
	}
)

// Classify buckets an error message by substring hints. The hints are
// heuristic: they cover the messages yt-dlp, ffmpeg and the Discogs API
// actually produce, and everything unrecognized lands in CategoryOther.
func Classify(msg string) Category {
	text := strings.ToLower(msg)
	switch {
	case matchesAny(text, localHints):
		return CategoryLocalFailure
	case matchesAny(text, networkHints):
		return CategoryNetworkAuth
	case matchesAny(text, contentHints):
		return CategoryContentUnavailable
	default:
		return CategoryOther
	}
}

func matchesAny(text string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}
