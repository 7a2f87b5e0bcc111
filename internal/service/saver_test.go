package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/avc/internal/blobstore"
	"github.com/kilupskalvis/avc/internal/content"
	"github.com/kilupskalvis/avc/internal/extract"
	"github.com/kilupskalvis/avc/internal/models"
	"github.com/kilupskalvis/avc/internal/search"
	"github.com/kilupskalvis/avc/internal/slug"
	"github.com/kilupskalvis/avc/internal/store"
)

const (
	testURL     = "https://example.com/article/"
	testProfile = "profile-1"
)

// fakeExtractor returns the HTML unchanged as content.
type fakeExtractor struct {
	meta models.ExtractedMetadata
	err  error
}

func (f *fakeExtractor) Extract(_ context.Context, pageURL, html string) (*extract.Result, error) {
	if f.err != nil {
		return nil, &extract.Error{URL: pageURL, Err: f.err}
	}
	return &extract.Result{Content: html, Metadata: f.meta}, nil
}

func (f *fakeExtractor) ExtractMetadata(_ context.Context, _, _ string) (models.ExtractedMetadata, error) {
	return f.meta, f.err
}

// recordingIndexer keeps every indexed document.
type recordingIndexer struct {
	mu   sync.Mutex
	docs []search.Document
	err  error
}

func (r *recordingIndexer) Index(_ context.Context, docs []search.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, docs...)
	return r.err
}

func (r *recordingIndexer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

type testEnv struct {
	saver     *Saver
	items     *store.Store
	engine    *content.Engine
	blobs     *blobstore.MemoryStore
	extractor *fakeExtractor
	indexer   *recordingIndexer
	metrics   *Metrics
}

func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 10, 20, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestEnv(t *testing.T, opts ...SaverOption) *testEnv {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "avc.db"))
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })

	blobs := blobstore.NewMemoryStore()
	engine := content.NewEngine(blobs, content.WithClock(stepClock()))
	env := &testEnv{
		items:     st,
		engine:    engine,
		blobs:     blobs,
		extractor: &fakeExtractor{meta: models.ExtractedMetadata{Title: "An Article", Author: "Jane"}},
		indexer:   &recordingIndexer{},
		metrics:   NewMetrics(prometheus.NewRegistry()),
	}
	opts = append([]SaverOption{WithIndexer(env.indexer), WithMetrics(env.metrics)}, opts...)
	env.saver = NewSaver(st, engine, env.extractor, opts...)
	return env
}

func (env *testEnv) save(t *testing.T, html string) *SaveResult {
	t.Helper()
	res, err := env.saver.SaveContent(context.Background(), &SaveRequest{
		ProfileID: testProfile,
		URL:       testURL,
		HTML:      html,
	})
	require.NoError(t, err)
	return res
}

func (env *testEnv) profileItem(t *testing.T, itemSlug string) *models.ProfileItem {
	t.Helper()
	ctx := context.Background()
	item, err := env.items.GetItemBySlug(ctx, itemSlug)
	require.NoError(t, err)
	require.NotNil(t, item)
	pi, err := env.items.GetProfileItem(ctx, testProfile, item.ID)
	require.NoError(t, err)
	require.NotNil(t, pi)
	return pi
}

func TestSaver_SaveContent_FirstSavePromotes(t *testing.T) {
	env := newTestEnv(t)

	res := env.save(t, "first body")
	assert.Equal(t, models.UploadStatusUpdatedMain, res.Status)
	assert.Equal(t, slug.Generate(testURL), res.Slug)
	assert.Equal(t, "Content updated and set as main version", res.Message)
	assert.NotEmpty(t, res.VersionName)

	pi := env.profileItem(t, res.Slug)
	assert.Equal(t, res.VersionName, pi.VersionName)
	assert.Equal(t, "An Article", pi.Metadata.Title)

	item, err := env.items.GetItemBySlug(context.Background(), res.Slug)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/article", item.URL)

	require.Equal(t, 1, env.indexer.count())
	doc := env.indexer.docs[0]
	assert.Equal(t, res.Slug, doc.Slug)
	assert.Equal(t, "first body", doc.Content)
	assert.Equal(t, res.VersionName, doc.ContentVersionName)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Uploads.WithLabelValues("UPDATED_MAIN")))
}

func TestSaver_SaveContent_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	first := env.save(t, "a long first extraction")

	shorter := env.save(t, "short")
	assert.Equal(t, models.UploadStatusStoredVersion, shorter.Status)
	assert.Equal(t, "Content updated", shorter.Message)
	assert.Equal(t, first.VersionName, shorter.VersionName)
	assert.Equal(t, first.VersionName, env.profileItem(t, first.Slug).VersionName)

	dup := env.save(t, "a long first extraction")
	assert.Equal(t, models.UploadStatusSkipped, dup.Status)
	assert.Equal(t, first.VersionName, env.profileItem(t, first.Slug).VersionName)

	longer := env.save(t, "a much longer second extraction of the article")
	assert.Equal(t, models.UploadStatusUpdatedMain, longer.Status)
	assert.NotEqual(t, first.VersionName, longer.VersionName)
	assert.Equal(t, longer.VersionName, env.profileItem(t, first.Slug).VersionName)

	// Only new items and promotions are indexed.
	assert.Equal(t, 2, env.indexer.count())

	versions, err := env.saver.ListVersions(context.Background(), first.Slug)
	require.NoError(t, err)
	assert.Len(t, versions, 3)
}

func TestSaver_SaveContent_InvalidRequest(t *testing.T) {
	env := newTestEnv(t)

	for _, req := range []*SaveRequest{
		nil,
		{URL: testURL},
		{HTML: "<p>x</p>"},
	} {
		_, err := env.saver.SaveContent(context.Background(), req)
		assert.True(t, errors.Is(err, ErrInvalidRequest))
	}
}

func TestSaver_SaveContent_ExtractionFailureStoresNothing(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.err = extract.ErrNoContent

	_, err := env.saver.SaveContent(context.Background(), &SaveRequest{ProfileID: testProfile, URL: testURL, HTML: "<html></html>"})
	require.Error(t, err)
	assert.True(t, extract.IsExtractError(err))
	assert.Equal(t, 0, env.blobs.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Uploads.WithLabelValues("ERROR")))
}

func TestSaver_SaveContent_MainWriteFailureKeepsVersion(t *testing.T) {
	env := newTestEnv(t)
	env.blobs.SetUploadFailure(func(p string) error {
		if strings.HasSuffix(p, "/default.md") {
			return errors.New("disk full")
		}
		return nil
	})

	res := env.save(t, "body")
	assert.Equal(t, models.UploadStatusStoredVersion, res.Status)
	assert.Equal(t, 0, env.indexer.count())

	versions, err := env.engine.Catalog().List(context.Background(), res.Slug)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestSaver_SaveContent_VersionWriteFailure(t *testing.T) {
	env := newTestEnv(t)
	env.blobs.SetUploadFailure(func(string) error { return errors.New("unreachable") })

	_, err := env.saver.SaveContent(context.Background(), &SaveRequest{ProfileID: testProfile, URL: testURL, HTML: "body"})
	require.Error(t, err)
	assert.True(t, content.IsStorageError(err))
}

func TestSaver_SaveContent_SkipMetadataKeepsProfileMetadata(t *testing.T) {
	env := newTestEnv(t)
	first := env.save(t, "body")

	env.extractor.meta = models.ExtractedMetadata{Title: "Changed", Description: "new description"}
	res, err := env.saver.SaveContent(context.Background(), &SaveRequest{
		ProfileID:              testProfile,
		URL:                    testURL,
		HTML:                   "a longer body",
		SkipMetadataExtraction: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusUpdatedMain, res.Status)

	pi := env.profileItem(t, first.Slug)
	assert.Equal(t, "An Article", pi.Metadata.Title)
	assert.Equal(t, "Jane", pi.Metadata.Author)
	assert.Equal(t, "new description", pi.Metadata.Description)
}

func TestSaver_SaveContent_TitleFallsBackToURL(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.meta = models.ExtractedMetadata{}

	res := env.save(t, "body")
	assert.Equal(t, "https://example.com/article", env.profileItem(t, res.Slug).Metadata.Title)
}

func TestSaver_SaveContent_SecondProfilePointerBackfilledOnRead(t *testing.T) {
	env := newTestEnv(t)
	first := env.save(t, "the main body")

	res, err := env.saver.SaveContent(context.Background(), &SaveRequest{
		ProfileID: "profile-2",
		URL:       testURL,
		HTML:      "the main body",
	})
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusSkipped, res.Status)

	item, err := env.items.GetItemBySlug(context.Background(), first.Slug)
	require.NoError(t, err)
	pi, err := env.items.GetProfileItem(context.Background(), "profile-2", item.ID)
	require.NoError(t, err)
	require.NotNil(t, pi)
	assert.Empty(t, pi.VersionName, "a non-promoting save leaves the pointer unset")

	view, err := env.saver.GetContent(context.Background(), "profile-2", first.Slug, "")
	require.NoError(t, err)
	assert.Equal(t, first.VersionName, view.VersionName)

	pi, err = env.items.GetProfileItem(context.Background(), "profile-2", item.ID)
	require.NoError(t, err)
	assert.Equal(t, first.VersionName, pi.VersionName)
}

func TestSaver_SaveContent_IndexFailureDoesNotFailSave(t *testing.T) {
	env := newTestEnv(t)
	env.indexer.err = &search.IndexError{Backend: "test", Failed: map[string]string{"x": "rejected"}}

	res := env.save(t, "body")
	assert.Equal(t, models.UploadStatusUpdatedMain, res.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.IndexFailures))
}

func TestSaver_GetContent_FollowsPointer(t *testing.T) {
	env := newTestEnv(t)
	first := env.save(t, "long original text")
	env.save(t, "short")

	view, err := env.saver.GetContent(context.Background(), testProfile, first.Slug, "")
	require.NoError(t, err)
	assert.Equal(t, "long original text", view.Content)
	assert.Equal(t, first.VersionName, view.VersionName)
	assert.Equal(t, first.VersionName, view.Metadata.Timestamp)
	assert.Equal(t, "https://example.com/article", view.URL)
}

func TestSaver_GetContent_ExplicitVersion(t *testing.T) {
	env := newTestEnv(t)
	first := env.save(t, "long original text")
	env.save(t, "short")

	versions, err := env.saver.ListVersions(context.Background(), first.Slug)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	shortTS := versions[0].Timestamp

	view, err := env.saver.GetContent(context.Background(), testProfile, first.Slug, shortTS)
	require.NoError(t, err)
	assert.Equal(t, "short", view.Content)
	assert.Equal(t, shortTS, view.VersionName)
}

func TestSaver_GetContent_MissingVersionFallsBackToMain(t *testing.T) {
	env := newTestEnv(t)
	first := env.save(t, "body")

	item, err := env.items.GetItemBySlug(context.Background(), first.Slug)
	require.NoError(t, err)
	require.NoError(t, env.items.SetVersionName(context.Background(), testProfile, item.ID, "2000-01-01T00:00:00.000Z"))

	view, err := env.saver.GetContent(context.Background(), testProfile, first.Slug, "")
	require.NoError(t, err)
	assert.Equal(t, "body", view.Content)
	assert.Equal(t, first.VersionName, view.VersionName)
	assert.Equal(t, first.VersionName, env.profileItem(t, first.Slug).VersionName)
}

func TestSaver_GetContent_MissingExplicitVersionKeepsPointer(t *testing.T) {
	env := newTestEnv(t)
	first := env.save(t, "long original text")
	second := env.save(t, "a much longer second extraction of the article")
	require.Equal(t, models.UploadStatusUpdatedMain, second.Status)

	item, err := env.items.GetItemBySlug(context.Background(), first.Slug)
	require.NoError(t, err)
	require.NoError(t, env.items.SetVersionName(context.Background(), testProfile, item.ID, first.VersionName))

	view, err := env.saver.GetContent(context.Background(), testProfile, first.Slug, "1999-01-01T00:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, second.VersionName, view.VersionName)
	assert.Equal(t, "a much longer second extraction of the article", view.Content)

	assert.Equal(t, first.VersionName, env.profileItem(t, first.Slug).VersionName)
}

func TestSaver_GetContent_BackfillsVersionName(t *testing.T) {
	env := newTestEnv(t)
	first := env.save(t, "body")

	item, err := env.items.GetItemBySlug(context.Background(), first.Slug)
	require.NoError(t, err)
	require.NoError(t, env.items.UpsertProfileItem(context.Background(), &models.ProfileItem{
		ProfileID: "profile-3",
		ItemID:    item.ID,
	}))

	view, err := env.saver.GetContent(context.Background(), "profile-3", first.Slug, "")
	require.NoError(t, err)
	assert.Equal(t, first.VersionName, view.VersionName)

	pi, err := env.items.GetProfileItem(context.Background(), "profile-3", item.ID)
	require.NoError(t, err)
	assert.Equal(t, first.VersionName, pi.VersionName)
}

func TestSaver_GetContent_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.saver.GetContent(context.Background(), testProfile, "no-such-item", "")
	assert.True(t, errors.Is(err, ErrNotFound))

	// An item without any stored content.
	_, _, err = env.items.UpsertItem(context.Background(), "https://example.com/empty", "example-com-empty")
	require.NoError(t, err)
	_, err = env.saver.GetContent(context.Background(), testProfile, "example-com-empty", "")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSaver_GetContent_StorageFaultIsNotNotFound(t *testing.T) {
	env := newTestEnv(t)
	first := env.save(t, "body")
	env.blobs.SetErr(errors.New("connection refused"))

	_, err := env.saver.GetContent(context.Background(), testProfile, first.Slug, "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.True(t, content.IsStorageError(err))
}

func TestSaver_GetMetadata(t *testing.T) {
	env := newTestEnv(t)
	first := env.save(t, "long original text")
	env.save(t, "short")

	main, err := env.saver.GetMetadata(context.Background(), first.Slug, "")
	require.NoError(t, err)
	assert.Equal(t, first.VersionName, main.Timestamp)
	assert.Equal(t, "An Article", main.Title)
	assert.Equal(t, models.TextDirectionLTR, main.TextDirection)

	v, err := env.saver.GetMetadata(context.Background(), first.Slug, first.VersionName)
	require.NoError(t, err)
	assert.Equal(t, len("long original text"), v.Length)

	_, err = env.saver.GetMetadata(context.Background(), first.Slug, "2000-01-01T00:00:00.000Z")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSaver_ListVersions_UnknownItem(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.saver.ListVersions(context.Background(), "nothing-here")
	assert.True(t, errors.Is(err, ErrNotFound))
}
