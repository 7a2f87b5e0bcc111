package content

import (
	"fmt"
	"strings"
	"time"
)

const (
	mainName        = "default"
	versionsDir     = "versions"
	contentExt      = ".md"
	contentType     = "text/markdown"
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// FormatTimestamp renders t as a version key. Keys sort lexicographically in
// time order.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func validateSlug(slug string) error {
	if slug == "" || slug == "." || slug == ".." || strings.ContainsAny(slug, "/\\") {
		return fmt.Errorf("%q: %w", slug, ErrInvalidSlug)
	}
	return nil
}

func validateTimestamp(ts string) error {
	if ts == "" || ts == "." || ts == ".." || strings.ContainsAny(ts, "/\\") {
		return fmt.Errorf("invalid version %q: %w", ts, ErrNotFound)
	}
	return nil
}

func mainPath(slug string) string {
	return slug + "/" + mainName + contentExt
}

func versionsPath(slug string) string {
	return slug + "/" + versionsDir
}

func versionPath(slug, ts string) string {
	return versionsPath(slug) + "/" + ts + contentExt
}
