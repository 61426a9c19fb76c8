package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ocellus/internal/config"
	"ocellus/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ocellus",
	Short: "ocellus - companion profile client",
	Long: `ocellus signs in to the game companion service, downloads the commander
profile, and turns it into a queryable Mangle fact base.

Typical first run:
  ocellus login
  ocellus verify 12345
  ocellus profile`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read .env: %w", err)
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		opts := logging.Options{
			Level:    cfg.Logging.Level,
			JSON:     cfg.Logging.Format == "json",
			Disabled: cfg.Logging.Disabled,
		}
		if verbose {
			opts.Level = "debug"
		}
		logger, err = logging.Build(opts)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Initialize(logger, opts)
		logging.Boot("config %s, data root %s", configPath, cfg.Paths.Root)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "Config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	profileCmd.Flags().BoolVar(&useFixture, "fixture", false, "Read the profile from paths.fixture instead of the service")
	profileCmd.Flags().BoolVar(&asJSON, "json", false, "Print facts as JSON")
	watchCmd.Flags().BoolVar(&useFixture, "fixture", false, "Read the profile from paths.fixture instead of the service")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Poll interval (default: just over the companion cooldown)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
