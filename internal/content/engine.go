// Package content stores extracted article content with version history.
//
// Every non-duplicate upload is kept as an immutable version under
// <slug>/versions/<timestamp>.md. One mutable main copy, <slug>/default.md,
// holds the best known extraction, where "best" means longest: a longer
// upload replaces main, a shorter or equal one is only kept as a version,
// and content whose hash matches any stored version is skipped.
//
// Uploads to the same slug are not serialized by default. The duplicate check
// and the length comparison are both read-then-act, so two concurrent longer
// uploads may both promote and the last write to main wins. Enable
// WithSerializedUploads to take a per-slug lock in this process.
package content

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kilupskalvis/avc/internal/blobstore"
	"github.com/kilupskalvis/avc/internal/models"
)

// maxKeyAttempts bounds how many later millisecond keys are tried when a
// version key is already taken.
const maxKeyAttempts = 8

// Engine decides, for newly extracted content, whether to skip it, keep it
// as a version, or promote it to main.
type Engine struct {
	store    blobstore.Store
	hasher   Hasher
	catalog  *Catalog
	resolver *Resolver
	logger   *slog.Logger
	now      func() time.Time
	dedup    bool
	locks    *keyedMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithHasher sets the content hasher. Defaults to SHA-256.
func WithHasher(h Hasher) Option {
	return func(e *Engine) { e.hasher = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the time source for version timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDedup turns the hash lookup on or off. With dedup off every upload is
// stored as a new version and SKIPPED is never returned.
func WithDedup(enabled bool) Option {
	return func(e *Engine) { e.dedup = enabled }
}

// WithSerializedUploads serializes uploads per slug within this process.
func WithSerializedUploads() Option {
	return func(e *Engine) { e.locks = newKeyedMutex() }
}

// NewEngine creates an engine over store.
func NewEngine(store blobstore.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		hasher: SHA256Hasher{},
		logger: slog.Default(),
		now:    time.Now,
		dedup:  true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.catalog = NewCatalog(store, e.logger)
	e.resolver = NewResolver(store, e.logger)
	return e
}

// Catalog returns the engine's version catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Upload stores newly extracted content for slug.
//
// On error the result has status ERROR. If the version was written but main
// could not be, VersionStored is true and VersionTimestamp is set; nothing is
// rolled back and the caller should treat it like STORED_VERSION.
func (e *Engine) Upload(ctx context.Context, slug, content string, meta models.ExtractedMetadata) (*models.UploadResult, error) {
	if err := validateSlug(slug); err != nil {
		return &models.UploadResult{Status: models.UploadStatusError}, err
	}
	if e.locks != nil {
		unlock := e.locks.Lock(slug)
		defer unlock()
	}

	hash := e.hasher.Hash(content)

	if e.dedup {
		existing, err := e.catalog.FindByHash(ctx, slug, hash)
		if err != nil {
			return &models.UploadResult{Status: models.UploadStatusError}, err
		}
		if existing != nil {
			e.logger.Info("content already exists, skipping upload",
				"slug", slug,
				"hash", hash,
				"version", existing.Timestamp,
			)
			return &models.UploadResult{
				Status:           models.UploadStatusSkipped,
				VersionTimestamp: existing.Timestamp,
			}, nil
		}
	}

	main, hasMain := e.resolver.TryReadMain(ctx, slug)

	vm := &models.VersionMetadata{
		Length:            ContentLength(content),
		Hash:              hash,
		ExtractedMetadata: meta,
	}
	encoded, err := e.writeVersion(ctx, slug, []byte(content), vm)
	if err != nil {
		return &models.UploadResult{Status: models.UploadStatusError}, err
	}

	if hasMain && main.Length >= vm.Length {
		e.logger.Debug("stored version, main kept",
			"slug", slug,
			"version", vm.Timestamp,
			"length", vm.Length,
			"main_length", main.Length,
		)
		return &models.UploadResult{
			Status:           models.UploadStatusStoredVersion,
			VersionTimestamp: vm.Timestamp,
			VersionStored:    true,
		}, nil
	}

	p := mainPath(slug)
	if err := e.store.Upload(ctx, p, []byte(content), blobstore.UploadOptions{
		Metadata:    encoded,
		ContentType: contentType,
		Upsert:      true,
	}); err != nil {
		e.logger.Error("failed to update main content", "slug", slug, "version", vm.Timestamp, "error", err)
		return &models.UploadResult{
			Status:           models.UploadStatusError,
			VersionTimestamp: vm.Timestamp,
			VersionStored:    true,
		}, &StorageError{Op: "write main", Path: p, Err: err}
	}

	e.logger.Debug("promoted version to main", "slug", slug, "version", vm.Timestamp, "length", vm.Length)
	return &models.UploadResult{
		Status:           models.UploadStatusUpdatedMain,
		VersionTimestamp: vm.Timestamp,
		VersionStored:    true,
	}, nil
}

// writeVersion writes content as a new version and returns the encoded
// metadata. vm.Timestamp is set to the key actually used.
func (e *Engine) writeVersion(ctx context.Context, slug string, content []byte, vm *models.VersionMetadata) (string, error) {
	t := e.now()
	var lastErr error
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		vm.Timestamp = FormatTimestamp(t)
		encoded, err := EncodeMetadata(vm)
		if err != nil {
			return "", err
		}

		p := versionPath(slug, vm.Timestamp)
		err = e.store.Upload(ctx, p, content, blobstore.UploadOptions{
			Metadata:    encoded,
			ContentType: contentType,
			Upsert:      false,
		})
		if err == nil {
			return encoded, nil
		}
		if !errors.Is(err, blobstore.ErrAlreadyExists) {
			e.logger.Error("failed to upload version", "slug", slug, "version", vm.Timestamp, "error", err)
			return "", &StorageError{Op: "write version", Path: p, Err: err}
		}
		lastErr = &StorageError{Op: "write version", Path: p, Err: err}
		t = t.Add(time.Millisecond)
	}
	return "", lastErr
}
