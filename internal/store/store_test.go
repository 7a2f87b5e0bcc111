package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilupskalvis/avc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a new sqlite store in a temp directory for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })
	return st
}

// ==================== Item Tests ====================

func TestStore_UpsertItem_CreatesOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	item, created, err := st.UpsertItem(ctx, "https://example.com/a", "example-com-a-123456")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, item.ID)
	assert.Equal(t, "example-com-a-123456", item.Slug)

	again, created, err := st.UpsertItem(ctx, "https://example.com/a", "example-com-a-123456")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, item.ID, again.ID)
	assert.Equal(t, item.CreatedAt, again.CreatedAt)
	assert.False(t, again.UpdatedAt.Before(item.UpdatedAt))
}

func TestStore_UpsertItem_SlugTaken(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, _, err := st.UpsertItem(ctx, "https://example.com/a", "same-slug")
	require.NoError(t, err)

	_, _, err = st.UpsertItem(ctx, "https://example.com/b", "same-slug")
	assert.True(t, errors.Is(err, ErrSlugTaken))
}

func TestStore_GetItem(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, _, err := st.UpsertItem(ctx, "https://example.com/a", "slug-a")
	require.NoError(t, err)

	bySlug, err := st.GetItemBySlug(ctx, "slug-a")
	require.NoError(t, err)
	require.NotNil(t, bySlug)
	assert.Equal(t, created.ID, bySlug.ID)

	byURL, err := st.GetItemByURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.NotNil(t, byURL)
	assert.Equal(t, "slug-a", byURL.Slug)

	missing, err := st.GetItemBySlug(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// ==================== Profile Item Tests ====================

func TestStore_ProfileItem_Lifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	item, _, err := st.UpsertItem(ctx, "https://example.com/a", "slug-a")
	require.NoError(t, err)

	pi, err := st.GetProfileItem(ctx, "p1", item.ID)
	require.NoError(t, err)
	assert.Nil(t, pi)

	require.NoError(t, st.UpsertProfileItem(ctx, &models.ProfileItem{
		ProfileID:   "p1",
		ItemID:      item.ID,
		VersionName: "2024-10-20T12:00:00.000Z",
		Metadata: models.ExtractedMetadata{
			Title:         "Title",
			Author:        "Author",
			TextLanguage:  "en",
			TextDirection: models.TextDirectionRTL,
		},
	}))

	pi, err = st.GetProfileItem(ctx, "p1", item.ID)
	require.NoError(t, err)
	require.NotNil(t, pi)
	assert.Equal(t, "2024-10-20T12:00:00.000Z", pi.VersionName)
	assert.Equal(t, "Title", pi.Metadata.Title)
	assert.Equal(t, models.TextDirectionRTL, pi.Metadata.TextDirection)
	assert.False(t, pi.SavedAt.IsZero())

	// an empty version name keeps the pointer
	require.NoError(t, st.UpsertProfileItem(ctx, &models.ProfileItem{
		ProfileID: "p1",
		ItemID:    item.ID,
		Metadata:  models.ExtractedMetadata{Title: "New Title"},
	}))
	pi, err = st.GetProfileItem(ctx, "p1", item.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-10-20T12:00:00.000Z", pi.VersionName)
	assert.Equal(t, "New Title", pi.Metadata.Title)
	assert.Empty(t, pi.Metadata.Author)
	assert.Equal(t, models.TextDirectionLTR, pi.Metadata.TextDirection)

	require.NoError(t, st.SetVersionName(ctx, "p1", item.ID, "2024-10-21T00:00:00.000Z"))
	pi, err = st.GetProfileItem(ctx, "p1", item.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-10-21T00:00:00.000Z", pi.VersionName)
}

func TestStore_ProfileItem_NoVersionName(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	item, _, err := st.UpsertItem(ctx, "https://example.com/a", "slug-a")
	require.NoError(t, err)
	require.NoError(t, st.UpsertProfileItem(ctx, &models.ProfileItem{ProfileID: "p1", ItemID: item.ID}))

	pi, err := st.GetProfileItem(ctx, "p1", item.ID)
	require.NoError(t, err)
	assert.Empty(t, pi.VersionName)
}

func TestStore_SetVersionName_Missing(t *testing.T) {
	st := newTestStore(t)
	err := st.SetVersionName(context.Background(), "p1", 42, "v")
	assert.Error(t, err)
}

func TestStore_ProfilesAreIndependent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	item, _, err := st.UpsertItem(ctx, "https://example.com/a", "slug-a")
	require.NoError(t, err)
	require.NoError(t, st.UpsertProfileItem(ctx, &models.ProfileItem{ProfileID: "p1", ItemID: item.ID, VersionName: "v1"}))
	require.NoError(t, st.UpsertProfileItem(ctx, &models.ProfileItem{ProfileID: "p2", ItemID: item.ID, VersionName: "v2"}))

	p1, err := st.GetProfileItem(ctx, "p1", item.ID)
	require.NoError(t, err)
	p2, err := st.GetProfileItem(ctx, "p2", item.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", p1.VersionName)
	assert.Equal(t, "v2", p2.VersionName)
}

// ==================== Migration Tests ====================

func TestStore_RunMigrations_AddsColumns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	// v1 layout: no language or direction, no version table
	_, err = st.DB().Exec(`
		CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, url TEXT NOT NULL UNIQUE,
			slug TEXT NOT NULL UNIQUE, created_at TEXT NOT NULL, updated_at TEXT NOT NULL);
		CREATE TABLE profile_items (profile_id TEXT NOT NULL, item_id INTEGER NOT NULL,
			version_name TEXT, title TEXT, description TEXT, author TEXT, thumbnail TEXT,
			favicon TEXT, published_at TEXT, saved_at TEXT NOT NULL, updated_at TEXT NOT NULL,
			PRIMARY KEY (profile_id, item_id));
	`)
	require.NoError(t, err)

	version, err := st.getSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	require.NoError(t, st.RunMigrations())
	require.NoError(t, st.RunMigrations())

	version, err = st.getSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	ctx := context.Background()
	item, _, err := st.UpsertItem(ctx, "https://example.com/a", "slug-a")
	require.NoError(t, err)
	require.NoError(t, st.UpsertProfileItem(ctx, &models.ProfileItem{
		ProfileID: "p1",
		ItemID:    item.ID,
		Metadata:  models.ExtractedMetadata{TextLanguage: "fr"},
	}))
	pi, err := st.GetProfileItem(ctx, "p1", item.ID)
	require.NoError(t, err)
	assert.Equal(t, "fr", pi.Metadata.TextLanguage)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 10, 20, 12, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(parseTimestamp("2024-10-20T12:00:00Z")))
	assert.True(t, want.Equal(parseTimestamp("2024-10-20 12:00:00")))
	assert.True(t, parseTimestamp("garbage").IsZero())
}

func TestStore_RunMigrations_FreshDatabase(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.RunMigrations())
	require.NoError(t, st.Initialize())

	version, err := st.getSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
}
