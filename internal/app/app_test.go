package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/avc/internal/blobstore"
	"github.com/kilupskalvis/avc/internal/config"
	"github.com/kilupskalvis/avc/internal/models"
	"github.com/kilupskalvis/avc/internal/server"
	"github.com/kilupskalvis/avc/internal/service"
)

const articleHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <title>Tide Pools at Dawn</title>
  <meta property="og:title" content="Tide Pools at Dawn">
  <meta name="author" content="Mara Quill">
</head>
<body>
  <nav><a href="/">Home</a> <a href="/about">About</a></nav>
  <article>
    <h1>Tide Pools at Dawn</h1>
    <p>The tide pools along the northern shore fill with life in the hour before sunrise, when the water is still and the light is low enough to see straight to the rocks beneath.</p>
    <p>Anemones open first, their tentacles spreading in the cold water while hermit crabs begin their slow circuits between the stones. Small fish dart through the shallows, hiding beneath fronds of kelp whenever a shadow passes overhead.</p>
    <p>Visitors who arrive early are rewarded with a quiet that disappears once the beach fills up. Walk carefully, keep to the bare rock, and leave every shell where you found it so the next morning looks the same as this one.</p>
  </article>
  <footer>Copyright 2024</footer>
</body>
</html>`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Backend = config.BackendMemory
	cfg.Retry.InitialBackoff = "1ms"
	cfg.Retry.MaxBackoff = "2ms"
	return cfg
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)

	buf.Reset()
	NewLogger(&buf, "debug", "text").Debug("dbg")
	assert.Contains(t, buf.String(), "msg=dbg")
}

func TestOpenBlobStore_Backends(t *testing.T) {
	cfg := testConfig(t)

	cfg.Storage.Backend = config.BackendFS
	s, err := openBlobStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.FSStore{}, s)

	cfg.Storage.Backend = config.BackendBbolt
	s, err = openBlobStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.BboltStore{}, s)
	require.NoError(t, s.(*blobstore.BboltStore).Close())

	mr := miniredis.RunT(t)
	cfg.Storage.Backend = config.BackendRedis
	cfg.Storage.RedisAddr = mr.Addr()
	s, err = openBlobStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.RedisStore{}, s)
	require.NoError(t, s.(*blobstore.RedisStore).Close())

	cfg.Storage.Backend = "tape"
	_, err = openBlobStore(cfg)
	assert.Error(t, err)
}

func TestOpen_SaveAndReadThroughHTTP(t *testing.T) {
	a, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	cfg := server.DefaultServerConfig()
	cfg.Gatherer = a.Registry
	h, cleanup := server.Handler(a.Service, a.Store, cfg, a.Logger)
	t.Cleanup(cleanup)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	body, err := json.Marshal(map[string]string{
		"url":         "https://tides.example.org/notes/tide-pools-at-dawn?utm_source=feed",
		"htmlContent": articleHTML,
	})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/items/content", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Profile-ID", "p1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var saved service.SaveResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	assert.Equal(t, models.UploadStatusUpdatedMain, saved.Status)
	assert.True(t, strings.HasPrefix(saved.Slug, "tides-example-org-tide-pools-at-dawn-"))

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/api/v1/items/"+saved.Slug+"/content", nil)
	require.NoError(t, err)
	req.Header.Set("X-Profile-ID", "p1")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var view service.ContentView
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&view))
	assert.Contains(t, view.Content, "hermit crabs")
	assert.Equal(t, "https://tides.example.org/notes/tide-pools-at-dawn", view.URL)
	assert.Equal(t, "Tide Pools at Dawn", view.Metadata.Title)

	resp3, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp3.Body.Close()
	var metrics bytes.Buffer
	_, err = metrics.ReadFrom(resp3.Body)
	require.NoError(t, err)
	assert.Contains(t, metrics.String(), `avc_uploads_total{status="UPDATED_MAIN"} 1`)
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	a, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
