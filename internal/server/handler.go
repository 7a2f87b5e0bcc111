package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilupskalvis/avc/internal/content"
	"github.com/kilupskalvis/avc/internal/extract"
	"github.com/kilupskalvis/avc/internal/models"
	"github.com/kilupskalvis/avc/internal/service"
	"github.com/kilupskalvis/avc/internal/store"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping() error
}

// ServerConfig holds configurable limits for the server.
type ServerConfig struct {
	MaxRequestBody    int64 // bytes, for JSON endpoints
	RequestsPerMinute int   // per-profile rate limit
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// DefaultServerConfig returns reasonable defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxRequestBody:    16 * 1024 * 1024, // 16MB of HTML
		RequestsPerMinute: 300,
	}
}

// saveRequest is the body of POST /api/v1/items/content.
type saveRequest struct {
	URL                    string `json:"url"`
	HTMLContent            string `json:"htmlContent"`
	SkipMetadataExtraction bool   `json:"skipMetadataExtraction"`
}

type saveResponse struct {
	Status  models.UploadStatus `json:"status"`
	Slug    string              `json:"slug"`
	Message string              `json:"message"`
}

type versionsResponse struct {
	Slug     string                    `json:"slug"`
	Versions []*models.VersionMetadata `json:"versions"`
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(svc service.Service, ready Pinger, cfg *ServerConfig, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	rl := newProfileLimiter(cfg.RequestsPerMinute)
	h := &handlers{svc: svc, cfg: cfg, logger: logger}

	// The first middleware passed to applyMiddleware runs outermost.
	limited := func(fn http.HandlerFunc) http.Handler {
		return applyMiddleware(fn, rl.middleware)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("not ready: database unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.Handle("POST /api/v1/items/content", limited(h.saveContent))
	mux.Handle("GET /api/v1/items/{slug}/content", limited(h.getContent))
	mux.Handle("GET /api/v1/items/{slug}/versions", limited(h.listVersions))
	mux.Handle("GET /api/v1/items/{slug}/metadata", limited(h.getMetadata))

	// Apply global middleware
	handler := applyMiddleware(mux,
		requestIDMiddleware,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		profileMiddleware,
	)

	cleanup := func() {
		rl.Stop()
	}

	return handler, cleanup
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type handlers struct {
	svc    service.Service
	cfg    *ServerConfig
	logger *slog.Logger
}

// --- Item Handlers ---

func (h *handlers) saveContent(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("bad_request", err.Error()))
		return
	}

	res, err := h.svc.SaveContent(r.Context(), &service.SaveRequest{
		ProfileID:              profileID(r),
		URL:                    req.URL,
		HTML:                   req.HTMLContent,
		SkipMetadataExtraction: req.SkipMetadataExtraction,
	})
	if err != nil {
		h.writeError(w, r, err, "failed to store content")
		return
	}

	writeJSON(w, http.StatusOK, saveResponse{
		Status:  res.Status,
		Slug:    res.Slug,
		Message: res.Message,
	})
}

func (h *handlers) getContent(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetContent(r.Context(), profileID(r), r.PathValue("slug"), r.URL.Query().Get("version"))
	if err != nil {
		h.writeError(w, r, err, "failed to read content")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) listVersions(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	versions, err := h.svc.ListVersions(r.Context(), slug)
	if err != nil {
		h.writeError(w, r, err, "failed to list versions")
		return
	}
	if versions == nil {
		versions = []*models.VersionMetadata{}
	}
	writeJSON(w, http.StatusOK, versionsResponse{Slug: slug, Versions: versions})
}

func (h *handlers) getMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.svc.GetMetadata(r.Context(), r.PathValue("slug"), r.URL.Query().Get("version"))
	if err != nil {
		h.writeError(w, r, err, "failed to read metadata")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// writeError maps service errors to status codes. Storage faults are
// reported with a generic message; the cause is only logged.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error, storageMessage string) {
	reqID := requestID(r)
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorBody("bad_request", err.Error()))
	case errors.Is(err, service.ErrNotFound), errors.Is(err, content.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not_found", "content unavailable"))
	case extract.IsExtractError(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("extraction_failed", err.Error()))
	case errors.Is(err, store.ErrSlugTaken):
		writeJSON(w, http.StatusConflict, errorBody("conflict", "slug already belongs to another url"))
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err, "request_id", reqID)
		writeJSON(w, http.StatusInternalServerError, errorBody("storage_error", storageMessage))
	}
}

// --- Health Handlers ---

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// --- Helpers ---

func errorBody(code, message string) map[string]string {
	return map[string]string{"error": code, "message": message}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
