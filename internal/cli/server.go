package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/avc/internal/app"
)

var (
	serverListen    string
	serverLogFormat string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the avc HTTP server",
	Long:  "Commands for running the avc HTTP server.",
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the avc HTTP server",
	Long: `Start the avc HTTP server.

The acting profile is read from the X-Profile-ID request header.

Examples:
  avc server start
  avc server start --listen 0.0.0.0:8730 --log-format text`,
	Args: cobra.NoArgs,
	Run:  runServerStart,
}

func init() {
	serverCmd.AddCommand(serverStartCmd)

	f := serverStartCmd.Flags()
	f.StringVar(&serverListen, "listen", "", "Listen address (host:port, default from config)")
	f.StringVar(&serverLogFormat, "log-format", "", "Log format (json|text, default from config)")
}

func runServerStart(cmd *cobra.Command, _ []string) {
	cfg := loadConfig()
	if serverListen != "" {
		cfg.Server.Listen = serverListen
	}
	if serverLogFormat != "" {
		cfg.Server.LogFormat = serverLogFormat
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	logger := app.NewLogger(os.Stdout, cfg.Server.LogLevel, cfg.Server.LogFormat)
	a, err := app.Open(cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
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
