package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/cropctx/internal/field"
	"github.com/KaramelBytes/cropctx/internal/watch"
)

var (
	wField    string
	wFormat   string
	wDebounce time.Duration
	wRecord   bool
	wLoad     loadFlags
	wAnalysis analysisFlags
)

var watchCmd = &cobra.Command{
	Use:   "watch [file]",
	Short: "Re-analyze a dataset whenever the file changes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		if err := checkFormat(wFormat); err != nil {
			return err
		}
		var f *field.Field
		if wField != "" {
			if f, err = loadFieldByName(c, wField); err != nil {
				return err
			}
		}
		path, err := datasetPath(args, f, c)
		if err != nil {
			return err
		}
		dopt, err := wLoad.options(cmd, c)
		if err != nil {
			return err
		}
		aopt, err := wAnalysis.options(cmd, c)
		if err != nil {
			return err
		}

		run := func(ctx context.Context) error {
			_, rep, err := analyzeFile(logger, path, dopt, aopt)
			if err != nil {
				fmt.Printf("✗ %s: %v\n", time.Now().Format("15:04:05"), err)
				return err
			}
			body, ext, err := renderReport(rep, wFormat)
			if err != nil {
				return err
			}
			if f != nil {
				ref, err := f.AttachReport(rep, body, ext)
				if err != nil {
					return err
				}
				if err := f.Save(); err != nil {
					return err
				}
				fmt.Printf("✓ %s %s (%s)\n", time.Now().Format("15:04:05"), rep.Headline(), ref.File)
			} else {
				fmt.Println(string(body))
			}
			if wRecord {
				if err := recordRuns(ctx, c, rep); err != nil {
					logger.Warn("history record failed", zap.Error(err))
				}
			}
			return nil
		}

		w, err := watch.New(path, wDebounce, run, logger)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// initial pass; a broken file at start is reported and watched anyway
		_ = run(ctx)
		fmt.Printf("✓ Watching %s (Ctrl-C to stop)\n", w.Path())
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&wField, "field", "f", "", "field workspace to read the dataset from and attach reports to")
	watchCmd.Flags().StringVar(&wFormat, "format", "md", "report format: md|json")
	watchCmd.Flags().DurationVar(&wDebounce, "debounce", watch.DefaultDebounce, "quiet period before re-analyzing")
	watchCmd.Flags().BoolVar(&wRecord, "record", false, "record every run in the history database")
	wLoad.register(watchCmd)
	wAnalysis.register(watchCmd)
}
