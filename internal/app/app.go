// Package app builds the avc object graph from configuration. Both the CLI
// and avc-server open one App per process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kilupskalvis/avc/internal/blobstore"
	"github.com/kilupskalvis/avc/internal/config"
	"github.com/kilupskalvis/avc/internal/content"
	"github.com/kilupskalvis/avc/internal/extract"
	"github.com/kilupskalvis/avc/internal/search"
	"github.com/kilupskalvis/avc/internal/server"
	"github.com/kilupskalvis/avc/internal/service"
	"github.com/kilupskalvis/avc/internal/store"
)

// App holds the resources shared by commands.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *store.Store
	Blobs    blobstore.Store
	Engine   *content.Engine
	Saver    *service.Saver
	Service  service.Service // Saver behind the retry wrapper
	Registry *prometheus.Registry

	closers []io.Closer
}

// NewLogger creates a slog logger from level and format names.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// Open connects every configured backend. Close releases them.
func Open(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.Store = st
	a.closers = append(a.closers, st)
	// Migrations run first so an older layout is upgraded before Initialize
	// records the current version.
	if err := st.RunMigrations(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := st.Initialize(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	blobs, err := openBlobStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Blobs = blobs
	if c, ok := blobs.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	hasher, err := content.NewHasher(cfg.Content.Hash)
	if err != nil {
		a.Close()
		return nil, err
	}
	opts := []content.Option{
		content.WithHasher(hasher),
		content.WithLogger(logger),
		content.WithDedup(cfg.Content.Dedup),
	}
	if cfg.Content.SerializeUploads {
		opts = append(opts, content.WithSerializedUploads())
	}
	a.Engine = content.NewEngine(blobs, opts...)

	indexer, err := openIndexer(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	webhooks := service.NewWebhookNotifier(&service.WebhookConfig{URLs: cfg.Webhooks.URLs}, logger)
	if webhooks != nil {
		logger.Info("webhooks configured", "count", len(cfg.Webhooks.URLs))
	}

	a.Saver = service.NewSaver(st, a.Engine, extract.NewReadabilityExtractor(logger),
		service.WithIndexer(indexer),
		service.WithWebhooks(webhooks),
		service.WithMetrics(service.NewMetrics(a.Registry)),
		service.WithSaverLogger(logger),
	)

	initial, maxBackoff, err := cfg.Backoff()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = service.NewRetrySaver(a.Saver, &service.RetryConfig{
		MaxRetries:     cfg.Retry.MaxRetries,
		InitialBackoff: initial,
		MaxBackoff:     maxBackoff,
		JitterFraction: 0.25,
	}, logger)

	return a, nil
}

func openBlobStore(cfg *config.Config) (blobstore.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return blobstore.NewMemoryStore(), nil
	case config.BackendBbolt:
		return blobstore.NewBboltStore(cfg.BlobsPath())
	case config.BackendRedis:
		client, err := blobstore.NewRedisClient(blobstore.RedisConfig{
			Address:  cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return blobstore.NewRedisStore(client, cfg.Storage.RedisPrefix), nil
	case config.BackendFS, "":
		return blobstore.NewFSStore(cfg.BlobsPath())
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func openIndexer(cfg *config.Config, logger *slog.Logger) (search.Indexer, error) {
	switch cfg.Search.Backend {
	case config.SearchWeaviate:
		client, err := search.NewWeaviateClient(cfg.Search.WeaviateURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			logger.Warn("weaviate not reachable, documents will not be indexed until it is",
				"url", cfg.Search.WeaviateURL, "error", err)
		}
		return search.NewWeaviateIndexer(client, logger), nil
	case config.SearchElasticsearch:
		client, err := search.NewElasticsearchClient(cfg.Search.ElasticsearchURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
		}
		return search.NewElasticsearchIndexer(client, cfg.Search.Index, logger), nil
	default:
		return search.NopIndexer{}, nil
	}
}

// Close releases every opened backend in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
func (a *App) Serve(ctx context.Context, listen string) error {
	cfg := server.DefaultServerConfig()
	cfg.RequestsPerMinute = a.Config.Server.RequestsPerMinute
	if a.Config.Server.MaxRequestBody > 0 {
		cfg.MaxRequestBody = a.Config.Server.MaxRequestBody
	}
	cfg.Gatherer = a.Registry

	h, handlerCleanup := server.Handler(a.Service, a.Store, cfg, a.Logger)
	defer handlerCleanup()

	srv := &http.Server{
		Addr:         listen,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return context.Background() },
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("starting avc-server",
			"listen", listen,
			"storage", a.Config.Storage.Backend,
			"search", a.Config.Search.Backend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.Logger.Info("server stopped")
	return nil
}
