package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/kilupskalvis/avc/internal/content"
	"github.com/kilupskalvis/avc/internal/models"
)

// RetryConfig configures retry behavior for storage faults.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetrySaver wraps a Service and retries whole saves that failed on the blob
// store. Repeating a save is safe: content already stored as a version is
// found by its hash and skipped.
type RetrySaver struct {
	inner  Service
	config *RetryConfig
	logger *slog.Logger
}

// NewRetrySaver creates a RetrySaver around inner.
func NewRetrySaver(inner Service, cfg *RetryConfig, logger *slog.Logger) *RetrySaver {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrySaver{inner: inner, config: cfg, logger: logger}
}

// isTransient reports whether err is a storage fault worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return content.IsStorageError(err)
}

// backoff computes the delay for the given attempt with jitter.
func (rs *RetrySaver) backoff(attempt int) time.Duration {
	base := float64(rs.config.InitialBackoff) * math.Pow(2, float64(attempt))
	if base > float64(rs.config.MaxBackoff) {
		base = float64(rs.config.MaxBackoff)
	}
	jitter := base * rs.config.JitterFraction * (rand.Float64()*2 - 1) // +/- jitter
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SaveContent runs the save, retrying storage faults.
func (rs *RetrySaver) SaveContent(ctx context.Context, req *SaveRequest) (*SaveResult, error) {
	var lastErr error
	for attempt := 0; attempt <= rs.config.MaxRetries; attempt++ {
		res, err := rs.inner.SaveContent(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
		if attempt < rs.config.MaxRetries {
			d := rs.backoff(attempt)
			rs.logger.Warn("save failed, retrying", "url", req.URL, "attempt", attempt+1, "delay", d, "error", err)
			if err := sleep(ctx, d); err != nil {
				return nil, fmt.Errorf("save content: %w (retry cancelled)", lastErr)
			}
		}
	}
	return nil, fmt.Errorf("save content: %w (after %d retries)", lastErr, rs.config.MaxRetries)
}

// Reads are not retried.

func (rs *RetrySaver) GetContent(ctx context.Context, profileID, slug, version string) (*ContentView, error) {
	return rs.inner.GetContent(ctx, profileID, slug, version)
}

func (rs *RetrySaver) ListVersions(ctx context.Context, slug string) ([]*models.VersionMetadata, error) {
	return rs.inner.ListVersions(ctx, slug)
}

func (rs *RetrySaver) GetMetadata(ctx context.Context, slug, version string) (*models.VersionMetadata, error) {
	return rs.inner.GetMetadata(ctx, slug, version)
}
