package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/avc/internal/models"
)

func TestNewWebhookNotifier_NilWithoutURLs(t *testing.T) {
	assert.Nil(t, NewWebhookNotifier(nil, nil))
	assert.Nil(t, NewWebhookNotifier(&WebhookConfig{}, nil))
}

func TestWebhookNotifier_NilIsSafe(t *testing.T) {
	var wn *WebhookNotifier
	assert.NotPanics(t, func() {
		wn.NotifyContentUpdated("s", "u", "v", models.UploadStatusUpdatedMain)
	})
}

func TestWebhookNotifier_DeliversContentUpdated(t *testing.T) {
	received := make(chan WebhookEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var ev WebhookEvent
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		received <- ev
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{srv.URL}}, nil)
	require.NotNil(t, wn)
	wn.NotifyContentUpdated("example-com-a-123456", "https://example.com/a", "2024-10-20T12:00:01.000Z", models.UploadStatusUpdatedMain)

	select {
	case ev := <-received:
		assert.Equal(t, EventContentUpdated, ev.Event)
		assert.Equal(t, "example-com-a-123456", ev.Slug)
		assert.Equal(t, "https://example.com/a", ev.URL)
		assert.Equal(t, "2024-10-20T12:00:01.000Z", ev.VersionName)
		assert.Equal(t, "UPDATED_MAIN", ev.Status)
		assert.NotEmpty(t, ev.Timestamp)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestWebhookNotifier_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{srv.URL}, RetryDelay: time.Millisecond}, nil)
	err := wn.post(srv.URL, []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestWebhookNotifier_ServerErrorRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{srv.URL}, RetryDelay: time.Millisecond}, nil)
	err := wn.post(srv.URL, []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, "HTTP 502", err.Error())
	assert.Equal(t, int32(3), hits.Load())
}

func TestSaver_SaveContent_NotifiesOnPromotion(t *testing.T) {
	received := make(chan WebhookEvent, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev WebhookEvent
		if json.NewDecoder(r.Body).Decode(&ev) == nil {
			received <- ev
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, WithWebhooks(NewWebhookNotifier(&WebhookConfig{URLs: []string{srv.URL}}, nil)))
	res := env.save(t, "body")

	select {
	case ev := <-received:
		assert.Equal(t, res.Slug, ev.Slug)
		assert.Equal(t, res.VersionName, ev.VersionName)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}

	env.save(t, "b")
	select {
	case ev := <-received:
		t.Fatalf("unexpected event for stored version: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
