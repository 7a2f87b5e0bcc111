// Package service runs the save flow around the content engine: it resolves
// the item for a URL, extracts content, uploads it, and moves the profile's
// version pointer when main changes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kilupskalvis/avc/internal/content"
	"github.com/kilupskalvis/avc/internal/extract"
	"github.com/kilupskalvis/avc/internal/models"
	"github.com/kilupskalvis/avc/internal/search"
	"github.com/kilupskalvis/avc/internal/slug"
)

// Sentinel errors returned by the service.
var (
	// ErrInvalidRequest is returned when a save request lacks a URL or HTML.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound is returned when an item or its content is unavailable.
	ErrNotFound = errors.New("content unavailable")
)

// ItemStore is the relational layer the saver keeps item pointers in.
type ItemStore interface {
	UpsertItem(ctx context.Context, url, slug string) (*models.Item, bool, error)
	GetItemBySlug(ctx context.Context, slug string) (*models.Item, error)
	GetProfileItem(ctx context.Context, profileID string, itemID int64) (*models.ProfileItem, error)
	UpsertProfileItem(ctx context.Context, pi *models.ProfileItem) error
	SetVersionName(ctx context.Context, profileID string, itemID int64, versionName string) error
}

// Service is the full read and write surface used by the HTTP server and CLI.
type Service interface {
	SaveContent(ctx context.Context, req *SaveRequest) (*SaveResult, error)
	GetContent(ctx context.Context, profileID, slug, version string) (*ContentView, error)
	ListVersions(ctx context.Context, slug string) ([]*models.VersionMetadata, error)
	GetMetadata(ctx context.Context, slug, version string) (*models.VersionMetadata, error)
}

// SaveRequest is one save of a page's HTML for a profile.
type SaveRequest struct {
	ProfileID string `json:"profileId,omitempty"`
	URL       string `json:"url"`
	HTML      string `json:"htmlContent"`
	// SkipMetadataExtraction keeps the metadata already stored for the
	// profile instead of taking it from this extraction.
	SkipMetadataExtraction bool `json:"skipMetadataExtraction,omitempty"`
}

// SaveResult reports the outcome of a save.
type SaveResult struct {
	Status      models.UploadStatus `json:"status"`
	Slug        string              `json:"slug"`
	Message     string              `json:"message"`
	VersionName string              `json:"versionName,omitempty"`
}

// ContentView is the content a profile reads for an item.
type ContentView struct {
	Slug        string                  `json:"slug"`
	URL         string                  `json:"url"`
	Content     string                  `json:"content"`
	VersionName string                  `json:"versionName"`
	Metadata    *models.VersionMetadata `json:"metadata"`
}

// Saver implements Service on top of the content engine.
type Saver struct {
	items     ItemStore
	engine    *content.Engine
	extractor extract.Extractor
	indexer   search.Indexer
	webhooks  *WebhookNotifier
	metrics   *Metrics
	logger    *slog.Logger
}

// SaverOption configures a Saver.
type SaverOption func(*Saver)

// WithIndexer sets the search indexer. Defaults to search.NopIndexer.
func WithIndexer(ix search.Indexer) SaverOption {
	return func(s *Saver) { s.indexer = ix }
}

// WithWebhooks sets the notifier for main content changes. A nil notifier
// sends nothing.
func WithWebhooks(wn *WebhookNotifier) SaverOption {
	return func(s *Saver) { s.webhooks = wn }
}

// WithMetrics sets the metrics the saver records into.
func WithMetrics(m *Metrics) SaverOption {
	return func(s *Saver) { s.metrics = m }
}

// WithSaverLogger sets the logger.
func WithSaverLogger(l *slog.Logger) SaverOption {
	return func(s *Saver) { s.logger = l }
}

// NewSaver creates a Saver.
func NewSaver(items ItemStore, engine *content.Engine, extractor extract.Extractor, opts ...SaverOption) *Saver {
	s := &Saver{
		items:     items,
		engine:    engine,
		extractor: extractor,
		indexer:   search.NopIndexer{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// SaveContent extracts the page, stores the content and updates the
// profile's pointer. Only UPDATED_MAIN moves the pointer; other outcomes
// refresh the profile's metadata from main.
func (s *Saver) SaveContent(ctx context.Context, req *SaveRequest) (*SaveResult, error) {
	if req == nil || req.URL == "" || req.HTML == "" {
		return nil, fmt.Errorf("url and htmlContent are required: %w", ErrInvalidRequest)
	}
	start := time.Now()

	cleaned := slug.CleanURL(req.URL)
	item, created, err := s.items.UpsertItem(ctx, cleaned, slug.Generate(req.URL))
	if err != nil {
		return nil, fmt.Errorf("resolve item: %w", err)
	}

	var existing *models.ProfileItem
	if req.ProfileID != "" {
		existing, err = s.items.GetProfileItem(ctx, req.ProfileID, item.ID)
		if err != nil {
			return nil, fmt.Errorf("get profile item: %w", err)
		}
	}

	extracted, err := s.extractor.Extract(ctx, cleaned, req.HTML)
	if err != nil {
		s.metrics.observeUpload(models.UploadStatusError, start)
		return nil, err
	}
	meta := extracted.Metadata
	if req.SkipMetadataExtraction && existing != nil {
		meta = existing.Metadata.Merge(meta)
	}
	if meta.Title == "" {
		meta.Title = item.URL
	}

	res, err := s.engine.Upload(ctx, item.Slug, extracted.Content, meta)
	if err != nil {
		if res == nil || !res.VersionStored {
			s.metrics.observeUpload(models.UploadStatusError, start)
			return nil, err
		}
		s.logger.Warn("main content not updated, version kept",
			"slug", item.Slug,
			"version", res.VersionTimestamp,
			"error", err,
		)
		res = &models.UploadResult{
			Status:           models.UploadStatusStoredVersion,
			VersionTimestamp: res.VersionTimestamp,
			VersionStored:    true,
		}
	}
	s.metrics.observeUpload(res.Status, start)

	result := &SaveResult{
		Status:  res.Status,
		Slug:    item.Slug,
		Message: res.Status.Message(),
	}

	if res.Status == models.UploadStatusUpdatedMain {
		result.VersionName = res.VersionTimestamp
		if req.ProfileID != "" {
			if err := s.items.UpsertProfileItem(ctx, &models.ProfileItem{
				ProfileID:   req.ProfileID,
				ItemID:      item.ID,
				VersionName: res.VersionTimestamp,
				Metadata:    meta,
			}); err != nil {
				return nil, fmt.Errorf("update profile item: %w", err)
			}
		}
		s.index(ctx, item, meta, extracted.Content, res.VersionTimestamp)
		s.webhooks.NotifyContentUpdated(item.Slug, item.URL, res.VersionTimestamp, res.Status)
		return result, nil
	}

	mainMeta, err := s.engine.GetMainMetadata(ctx, item.Slug)
	if err != nil {
		s.logger.Warn("main metadata unavailable", "slug", item.Slug, "error", err)
		mainMeta = &models.VersionMetadata{ExtractedMetadata: meta}
	}
	result.VersionName = mainMeta.Timestamp

	if req.ProfileID != "" {
		// VersionName stays empty so the stored pointer is kept; an unset
		// pointer is backfilled by the next read.
		pi := &models.ProfileItem{
			ProfileID: req.ProfileID,
			ItemID:    item.ID,
			Metadata:  mainMeta.ExtractedMetadata.Merge(meta),
		}
		if err := s.items.UpsertProfileItem(ctx, pi); err != nil {
			return nil, fmt.Errorf("update profile item: %w", err)
		}
	}

	if created {
		if main, err := s.engine.GetMainContent(ctx, item.Slug); err == nil {
			s.index(ctx, item, mainMeta.ExtractedMetadata, main, mainMeta.Timestamp)
		}
	}
	return result, nil
}

// index pushes the item to search. Failures are logged and counted; the save
// has already succeeded.
func (s *Saver) index(ctx context.Context, item *models.Item, meta models.ExtractedMetadata, body, version string) {
	err := s.indexer.Index(ctx, []search.Document{{
		Slug:               item.Slug,
		URL:                item.URL,
		Title:              meta.Title,
		Description:        meta.Description,
		Author:             meta.Author,
		Content:            body,
		ContentVersionName: version,
	}})
	if err != nil {
		s.metrics.indexFailed()
		s.logger.Error("failed to index item", "slug", item.Slug, "error", err)
	}
}

// GetContent returns the content a profile should read for slug. An explicit
// version wins; otherwise the profile's pointer is used. A missing version
// falls back to main. The profile's pointer is backfilled with main's version
// only when it was unset or itself named the missing version.
func (s *Saver) GetContent(ctx context.Context, profileID, itemSlug, version string) (*ContentView, error) {
	item, err := s.items.GetItemBySlug(ctx, itemSlug)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("item %s: %w", itemSlug, ErrNotFound)
	}

	var pi *models.ProfileItem
	if profileID != "" {
		pi, err = s.items.GetProfileItem(ctx, profileID, item.ID)
		if err != nil {
			return nil, fmt.Errorf("get profile item: %w", err)
		}
	}
	// fromPointer marks a version taken from the profile rather than the caller.
	fromPointer := false
	if version == "" && pi != nil && pi.VersionName != "" {
		version = pi.VersionName
		fromPointer = true
	}

	view := &ContentView{Slug: item.Slug, URL: item.URL}
	if version != "" {
		body, err := s.engine.GetVersionContent(ctx, item.Slug, version)
		switch {
		case err == nil:
			meta, err := s.engine.GetVersionMetadata(ctx, item.Slug, version)
			if err != nil {
				return nil, notFound(err)
			}
			view.Content = body
			view.VersionName = version
			view.Metadata = meta
			return view, nil
		case errors.Is(err, content.ErrNotFound):
			s.logger.Debug("version missing, using main", "slug", item.Slug, "version", version)
		default:
			return nil, err
		}
	}

	body, err := s.engine.GetMainContent(ctx, item.Slug)
	if err != nil {
		return nil, notFound(err)
	}
	meta, err := s.engine.GetMainMetadata(ctx, item.Slug)
	if err != nil {
		return nil, notFound(err)
	}
	view.Content = body
	view.VersionName = meta.Timestamp
	view.Metadata = meta

	// The pointer moves only when it was never set or named the missing
	// version. A bad explicit version leaves it alone.
	if pi != nil && meta.Timestamp != "" && pi.VersionName != meta.Timestamp &&
		(pi.VersionName == "" || fromPointer) {
		if err := s.items.SetVersionName(ctx, profileID, item.ID, meta.Timestamp); err != nil {
			s.logger.Warn("failed to backfill version name", "slug", item.Slug, "profile", profileID, "error", err)
		}
	}
	return view, nil
}

// ListVersions returns every version of slug, newest first.
func (s *Saver) ListVersions(ctx context.Context, itemSlug string) ([]*models.VersionMetadata, error) {
	item, err := s.items.GetItemBySlug(ctx, itemSlug)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("item %s: %w", itemSlug, ErrNotFound)
	}
	return s.engine.Catalog().List(ctx, item.Slug)
}

// GetMetadata returns the metadata of one version, or of main when version
// is empty.
func (s *Saver) GetMetadata(ctx context.Context, itemSlug, version string) (*models.VersionMetadata, error) {
	var (
		meta *models.VersionMetadata
		err  error
	)
	if version == "" {
		meta, err = s.engine.GetMainMetadata(ctx, itemSlug)
	} else {
		meta, err = s.engine.GetVersionMetadata(ctx, itemSlug, version)
	}
	if err != nil {
		return nil, notFound(err)
	}
	return meta, nil
}

// notFound adds ErrNotFound to content-level misses and leaves storage
// faults alone.
func notFound(err error) error {
	if errors.Is(err, content.ErrNotFound) || errors.Is(err, content.ErrInvalidSlug) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
