package content

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/kilupskalvis/avc/internal/blobstore"
)

// MainContent is the current canonical content of an item.
type MainContent struct {
	Content string
	Length  int
}

// Resolver reads main content for the upload decision.
type Resolver struct {
	store  blobstore.Store
	logger *slog.Logger
}

// NewResolver creates a resolver over store.
func NewResolver(store blobstore.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// TryReadMain returns main content and true, or false if it cannot be read.
// A missing main is an expected state, so every failure reads as absent.
func (r *Resolver) TryReadMain(ctx context.Context, slug string) (*MainContent, bool) {
	data, err := r.store.Download(ctx, mainPath(slug))
	if err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			r.logger.Debug("main content unreadable, treating as absent", "slug", slug, "error", err)
		}
		return nil, false
	}
	s := string(data)
	return &MainContent{Content: s, Length: ContentLength(s)}, true
}

// ContentLength is the length measure used for promotion: Unicode code points.
func ContentLength(s string) int {
	return utf8.RuneCountInString(s)
}
