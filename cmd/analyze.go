package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/cropctx/internal/field"
	"github.com/KaramelBytes/cropctx/internal/utils"
)

var (
	anaField      string
	anaOutputPath string
	anaFormat     string
	anaChartPath  string
	anaRecord     bool
	anaLoad       loadFlags
	anaAnalysis   analysisFlags
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Compute context-stability indicators and the repair advisory for a dataset",
	Long: `Analyze a CSV/TSV/XLSX crop yield dataset.

The dataset is taken from the argument, else from the field given with --field,
else from data_path in the configuration.

Without a file argument or --field, running inside a field workspace (any
directory under one holding field.json) uses that field.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		var f *field.Field
		switch {
		case anaField != "":
			if f, err = loadFieldByName(c, anaField); err != nil {
				return err
			}
		case len(args) == 0 && !rootCmd.PersistentFlags().Changed("data"):
			if f, err = workingField(); err != nil {
				return err
			}
			if f != nil {
				logger.Debug("using field from working directory", zap.String("field", f.Name), zap.String("dir", f.RootDir()))
			}
		}
		path, err := datasetPath(args, f, c)
		if err != nil {
			return err
		}
		dopt, err := anaLoad.options(cmd, c)
		if err != nil {
			return err
		}
		aopt, err := anaAnalysis.options(cmd, c)
		if err != nil {
			return err
		}
		ds, rep, err := analyzeFile(logger, path, dopt, aopt)
		if err != nil {
			return err
		}
		body, ext, err := renderReport(rep, anaFormat)
		if err != nil {
			return err
		}

		// Decide where to write: --output path, or attach to field, or stdout
		written := false
		if anaOutputPath != "" {
			if err := utils.SafeWriteFile(anaOutputPath, body); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote analysis to %s\n", anaOutputPath)
			written = true
		}
		if f != nil {
			ref, err := f.AttachReport(rep, body, ext)
			if err != nil {
				return err
			}
			if err := f.Save(); err != nil {
				return err
			}
			fmt.Printf("✓ Added report to field '%s' as %s\n", f.Name, ref.File)
			written = true
		}
		if anaChartPath != "" {
			if err := writeChart(anaChartPath, ds, rep); err != nil {
				return err
			}
			fmt.Printf("✓ Wrote chart to %s\n", anaChartPath)
		}
		if anaRecord {
			if err := recordRuns(cmd.Context(), c, rep); err != nil {
				// the report itself succeeded; history is best effort
				logger.Warn("history record failed", zap.Error(err))
				fmt.Printf("⚠ Warning: history not recorded: %v\n", err)
			}
		}
		if !written {
			fmt.Println(string(body))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaField, "field", "f", "", "field workspace to read the dataset from and attach the report to")
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the report")
	analyzeCmd.Flags().StringVar(&anaFormat, "format", "md", "report format: md|json")
	analyzeCmd.Flags().StringVar(&anaChartPath, "chart", "", "optional path to write the yield chart (PNG)")
	analyzeCmd.Flags().BoolVar(&anaRecord, "record", false, "record the run in the history database")
	anaLoad.register(analyzeCmd)
	anaAnalysis.register(analyzeCmd)
}
