package content

import (
	"context"
	"errors"
	"testing"

	"github.com/kilupskalvis/avc/internal/blobstore"
	"github.com/kilupskalvis/avc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_GetVersionContent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	r1 := upload(t, e, "g", "first")
	upload(t, e, "g", "second longer")

	got, err := e.GetVersionContent(ctx, "g", r1.VersionTimestamp)
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	_, err = e.GetVersionContent(ctx, "g", "2001-01-01T00:00:00.000Z")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = e.GetVersionContent(ctx, "g", "")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEngine_GetVersionMetadata_EmptyMeansLatest(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	upload(t, e, "l", "long first upload")
	r2 := upload(t, e, "l", "short")

	m, err := e.GetVersionMetadata(ctx, "l", "")
	require.NoError(t, err)
	assert.Equal(t, r2.VersionTimestamp, m.Timestamp)
	assert.Equal(t, 5, m.Length)

	_, err = e.GetVersionMetadata(ctx, "none", "")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEngine_GetMainMetadata_DefaultsDirection(t *testing.T) {
	store := blobstore.NewMemoryStore()
	e := NewEngine(store)
	store.Put(mainPath("old"), []byte("legacy"), `{"timestamp":"2023-01-01T00:00:00.000Z","length":6,"hash":"h"}`)

	m, err := e.GetMainMetadata(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, models.TextDirectionLTR, m.TextDirection)
	assert.Equal(t, 6, m.Length)
}

func TestEngine_GetMainMetadata_Errors(t *testing.T) {
	store := blobstore.NewMemoryStore()
	e := NewEngine(store)
	ctx := context.Background()

	_, err := e.GetMainMetadata(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	store.Put(mainPath("broken"), []byte("x"), "???")
	_, err = e.GetMainMetadata(ctx, "broken")
	assert.True(t, errors.Is(err, ErrNotFound))

	store.SetErr(errors.New("down"))
	_, err = e.GetMainMetadata(ctx, "missing")
	assert.True(t, IsStorageError(err))
}

func TestResolver_TryReadMain(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := NewResolver(store, nil)
	ctx := context.Background()

	_, ok := r.TryReadMain(ctx, "x")
	assert.False(t, ok)

	store.Put(mainPath("x"), []byte("héllo"), "")
	m, ok := r.TryReadMain(ctx, "x")
	require.True(t, ok)
	assert.Equal(t, 5, m.Length)

	store.SetErr(errors.New("down"))
	_, ok = r.TryReadMain(ctx, "x")
	assert.False(t, ok)
}
