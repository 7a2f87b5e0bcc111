package content

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kilupskalvis/avc/internal/blobstore"
	"github.com/kilupskalvis/avc/internal/models"
)

// Catalog reads the stored versions of an item.
type Catalog struct {
	store  blobstore.Store
	logger *slog.Logger
}

// NewCatalog creates a catalog over store.
func NewCatalog(store blobstore.Store, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{store: store, logger: logger}
}

// entries lists and decodes every version of slug in storage order.
// Entries whose metadata cannot be decoded are logged and left out.
func (c *Catalog) entries(ctx context.Context, slug string) ([]*models.VersionMetadata, error) {
	dir := versionsPath(slug)
	objects, err := c.store.List(ctx, dir)
	if err != nil {
		return nil, &StorageError{Op: "list versions", Path: dir, Err: err}
	}

	versions := make([]*models.VersionMetadata, 0, len(objects))
	for _, obj := range objects {
		key, ok := strings.CutSuffix(obj.Name, contentExt)
		if !ok || key == "" {
			continue
		}
		m, err := DecodeMetadata(obj.Metadata)
		if err != nil {
			c.logger.Warn("skipping version with unreadable metadata",
				"slug", slug,
				"version", obj.Name,
				"error", err,
			)
			continue
		}
		// the object name is the storage key and wins over the stored field
		m.Timestamp = key
		versions = append(versions, m)
	}
	return versions, nil
}

// FindByHash returns the first version of slug whose hash matches, or nil.
func (c *Catalog) FindByHash(ctx context.Context, slug, hash string) (*models.VersionMetadata, error) {
	versions, err := c.entries(ctx, slug)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Hash == hash {
			return v, nil
		}
	}
	return nil, nil
}

// List returns every readable version of slug, newest first.
func (c *Catalog) List(ctx context.Context, slug string) ([]*models.VersionMetadata, error) {
	versions, err := c.entries(ctx, slug)
	if err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Timestamp > versions[j].Timestamp
	})
	return versions, nil
}

// Get returns the metadata of one version. Returns ErrNotFound if the version
// does not exist or its metadata is unreadable.
func (c *Catalog) Get(ctx context.Context, slug, ts string) (*models.VersionMetadata, error) {
	if err := validateTimestamp(ts); err != nil {
		return nil, err
	}
	p := versionPath(slug, ts)
	obj, err := c.store.Stat(ctx, p)
	if err != nil {
		return nil, classify("stat version", p, err)
	}
	m, err := DecodeMetadata(obj.Metadata)
	if err != nil {
		c.logger.Warn("version metadata unreadable", "slug", slug, "version", ts, "error", err)
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	m.Timestamp = ts
	return m, nil
}
