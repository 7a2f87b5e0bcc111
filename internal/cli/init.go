package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/avc/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an avc configuration in the current directory",
	Long: `Create .avc/config.toml in the current directory with default settings.
Content and the item database are kept under the data directory.`,
	Args: cobra.NoArgs,
	Run:  runInit,
}

var (
	initBackend string
	initDataDir string
)

func init() {
	initCmd.Flags().StringVar(&initBackend, "backend", config.BackendFS, "Storage backend (fs|bbolt|redis|memory)")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "", "Data directory (default: .avc in the current directory)")
}

func runInit(cmd *cobra.Command, args []string) {
	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}
	path := filepath.Join(cwd, config.AVCDir, config.ConfigFile)
	if _, err := os.Stat(path); err == nil {
		exitError("avc configuration already exists: %s", path)
	}

	cfg := config.Default()
	cfg.Storage.Backend = initBackend
	cfg.Storage.DataDir = initDataDir
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = filepath.Join(cwd, config.AVCDir)
	}
	if cfg.Storage.Backend == config.BackendRedis {
		cfg.Storage.RedisAddr = "localhost:6379"
	}
	if err := cfg.Validate(); err != nil {
		exitError("%v", err)
	}
	if err := cfg.Save(path); err != nil {
		exitError("%v", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized avc in %s\n", filepath.Dir(path))
	fmt.Fprintf(cmd.OutOrStdout(), "Storage: %s (%s)\n", cfg.Storage.Backend, cfg.Storage.DataDir)
}
