package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilupskalvis/avc/internal/blobstore"
	"github.com/kilupskalvis/avc/internal/models"
)

// GetMainContent returns the main content of slug.
// Returns ErrNotFound if the item has no main content.
func (e *Engine) GetMainContent(ctx context.Context, slug string) (string, error) {
	if err := validateSlug(slug); err != nil {
		return "", err
	}
	p := mainPath(slug)
	data, err := e.store.Download(ctx, p)
	if err != nil {
		return "", classify("read main", p, err)
	}
	return string(data), nil
}

// GetVersionContent returns the content of one version.
// Returns ErrNotFound if the version does not exist.
func (e *Engine) GetVersionContent(ctx context.Context, slug, ts string) (string, error) {
	if err := validateSlug(slug); err != nil {
		return "", err
	}
	if err := validateTimestamp(ts); err != nil {
		return "", err
	}
	p := versionPath(slug, ts)
	data, err := e.store.Download(ctx, p)
	if err != nil {
		return "", classify("read version", p, err)
	}
	return string(data), nil
}

// GetVersionMetadata returns the metadata of version ts. An empty ts means
// the caller is not tracking a version, and the most recent one is returned.
// Returns ErrNotFound if there is no such version.
func (e *Engine) GetVersionMetadata(ctx context.Context, slug, ts string) (*models.VersionMetadata, error) {
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	if ts != "" {
		return e.catalog.Get(ctx, slug, ts)
	}

	versions, err := e.catalog.List(ctx, slug)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%s: %w", versionsPath(slug), ErrNotFound)
	}
	return versions[0], nil
}

// GetMainMetadata returns the metadata stored with main content, filling
// fields that older entries lack.
func (e *Engine) GetMainMetadata(ctx context.Context, slug string) (*models.VersionMetadata, error) {
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	p := mainPath(slug)
	obj, err := e.store.Stat(ctx, p)
	if err != nil {
		return nil, classify("stat main", p, err)
	}
	m, err := DecodeMetadata(obj.Metadata)
	if err != nil {
		e.logger.Warn("main metadata unreadable", "slug", slug, "error", err)
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if m.TextDirection == "" {
		m.TextDirection = models.TextDirectionLTR
	}
	return m, nil
}

// classify maps a blob store error to ErrNotFound or a StorageError.
func classify(op, p string, err error) error {
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return &StorageError{Op: op, Path: p, Err: err}
}
