// Command avc-server runs the avc HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kilupskalvis/avc/internal/app"
	"github.com/kilupskalvis/avc/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("AVC_CONFIG"), "Config file")
	listen := flag.String("listen", "", "Listen address (overrides config and AVC_LISTEN)")
	dataDir := flag.String("data-dir", "", "Data directory (overrides config and AVC_DATA_DIR)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (json, text)")
	webhookURLs := flag.String("webhook-urls", "", "Comma-separated webhook URLs to notify when main changes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.Server.LogFormat = *logFormat
	}
	if *webhookURLs != "" {
		for _, u := range strings.Split(*webhookURLs, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.Webhooks.URLs = append(cfg.Webhooks.URLs, u)
			}
		}
	}

	logger := app.NewLogger(os.Stdout, cfg.Server.LogLevel, cfg.Server.LogFormat)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "error", err, "path", cfg.Storage.DataDir)
		os.Exit(1)
	}

	a, err := app.Open(cfg, logger)
	if err != nil {
		logger.Error("failed to open backends", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Serve(ctx, cfg.Server.Listen); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
