package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jwaldner/wheelhouse/internal/config"
	"github.com/jwaldner/wheelhouse/internal/logger"
)

var (
	cfgFile  string
	envFile  string
	logLevel string
	asJSON   bool

	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wheelhouse",
		Short: "Options income decision engine",
		Long: `Scans option chains for cash-secured put, covered call and wheel entries,
sizes them against free capital, and reviews open short option positions.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.log_level")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of tables")

	rootCmd.AddCommand(
		newScanCmd(),
		newReviewCmd(),
		newCapitalCmd(),
		newMarketCmd(),
		newServeCmd(),
		newPositionsCmd(),
		newJournalCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads .env, then config, then starts logging
func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	var err error
	if cfg, err = config.Load(cfgFile); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.LogLevel = logLevel
	}

	if err := logger.InitWithConfig(cfg.Logging.LogLevel, cfg.Logging.LogFile, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.Always("🚀 wheelhouse %s starting (provider %s)", cmd.Name(), cfg.Provider.Kind)
	if cfg.Logging.LogLevel == "verbose" {
		fmt.Fprintf(os.Stderr, "⚠️  VERBOSE LOGGING ENABLED - provider calls and calculations will be logged to %s\n", cfg.Logging.LogFile)
	}
	return nil
}
