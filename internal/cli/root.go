// Package cli implements the command-line interface for avc.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/avc/internal/app"
	"github.com/kilupskalvis/avc/internal/config"
)

var (
	configPath string
	logLevel   string
	ephemeral  bool
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	*app.App
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.App != nil {
		c.App.Close()
	}
}

// loadConfig loads the configuration and applies global flags.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitError("%v", err)
	}
	if ephemeral {
		cfg.Storage.Backend = config.BackendMemory
	}
	return cfg
}

// initContext loads config and opens every backend
func initContext(cmd *cobra.Command) *cmdContext {
	return initContextWith(loadConfig(), cmd.ErrOrStderr())
}

func initContextWith(cfg *config.Config, logOut io.Writer) *cmdContext {
	level := logLevel
	if level == "" {
		level = "warn"
	}
	a, err := app.Open(cfg, app.NewLogger(logOut, level, "text"))
	if err != nil {
		exitError("%v", err)
	}
	return &cmdContext{App: a}
}

var rootCmd = &cobra.Command{
	Use:   "avc",
	Short: "Article version control",
	Long: `avc saves web articles as readable Markdown and keeps every extraction.

Each save of a page is stored as a version. The longest extraction becomes
the main copy that readers see; identical content is detected by hash and
skipped.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default: nearest .avc/config.toml, env: AVC_CONFIG)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	pf.BoolVar(&ephemeral, "ephemeral", false, "Keep content in memory only")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(slugCmd)
	rootCmd.AddCommand(serverCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortHash returns first 8 characters of a hash
func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
