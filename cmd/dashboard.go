package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/cropctx/internal/analysis"
	cfgpkg "github.com/KaramelBytes/cropctx/internal/config"
	"github.com/KaramelBytes/cropctx/internal/logging"
	"github.com/KaramelBytes/cropctx/internal/tui"
)

var (
	dashInterval time.Duration
	dashLoad     loadFlags
	dashAnalysis analysisFlags
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard [file]",
	Short: "Show the context-stability dashboard in the terminal",
	Long: `Show indicators, the context snapshot, the advisory and a yield plot in the
terminal. Press r to reload and q to quit. Logs go to log_file, or to
~/.cropctx/dashboard.log when none is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		path, err := datasetPath(args, nil, c)
		if err != nil {
			return err
		}
		dopt, err := dashLoad.options(cmd, c)
		if err != nil {
			return err
		}
		aopt, err := dashAnalysis.options(cmd, c)
		if err != nil {
			return err
		}

		// the terminal belongs to the dashboard; keep logs off stderr
		logFile := c.LogFile
		if logFile == "" {
			dir, err := cfgpkg.Dir()
			if err != nil {
				return err
			}
			logFile = filepath.Join(dir, "dashboard.log")
		}
		log, err := logging.New(logging.Options{Level: c.LogLevel, File: logFile, Debug: debug})
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		load := func(_ context.Context) (*analysis.Report, []float64, error) {
			ds, rep, err := analyzeFile(log, path, dopt, aopt)
			if err != nil {
				return nil, nil, err
			}
			return rep, ds.YieldSeries(), nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log.Info("dashboard started", zap.String("dataset", path), zap.Duration("interval", dashInterval))
		return tui.New(load, dashInterval, log).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().DurationVar(&dashInterval, "interval", 30*time.Second, "reload interval (0 disables automatic reload)")
	dashLoad.register(dashboardCmd)
	dashAnalysis.register(dashboardCmd)
}
