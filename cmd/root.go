package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/KaramelBytes/cropctx/internal/config"
	"github.com/KaramelBytes/cropctx/internal/logging"
)

var (
	// Global flags (override config if set)
	cfgFile      string
	debug        bool
	flagDataPath string
	flagLogLevel string
	flagLogFile  string

	// Loaded configuration
	cfg *cfgpkg.Global
	// logger is replaced once configuration is loaded.
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "cropctx",
	Short: "cropctx: crop yield context-stability dashboard",
	Long: `cropctx reads a crop yield dataset, measures how far the latest yield drifts
from its history and how jumpy the series is, and pairs the result with a
soil-climate context snapshot and a context-repair advisory.

It does NOT predict yield: yield values are used only as a temporal signal of
context degradation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.cropctx/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagDataPath, "data", "", "dataset path (overrides data_path)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (overrides log_level)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write logs to this file instead of stderr")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands that need config report it via settings()
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		cfg = nil
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("data") && flagDataPath != "" {
		cfg.DataPath = flagDataPath
	}
	if f.Changed("log-level") && flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if f.Changed("log-file") {
		cfg.LogFile = flagLogFile
	}

	l, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Debug: debug})
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
		l = zap.NewNop()
	}
	logger = l
	logger.Debug("config loaded",
		zap.String("config_file", cfgFile),
		zap.String("data_path", cfg.DataPath),
		zap.String("advisory_mode", cfg.AdvisoryMode),
	)
}

// settings returns the loaded configuration.
func settings() (*cfgpkg.Global, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded (see warning above)")
	}
	return cfg, nil
}
