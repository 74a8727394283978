package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/cropctx/internal/analysis"
	"github.com/KaramelBytes/cropctx/internal/chart"
	cfgpkg "github.com/KaramelBytes/cropctx/internal/config"
	"github.com/KaramelBytes/cropctx/internal/dataset"
	"github.com/KaramelBytes/cropctx/internal/field"
	"github.com/KaramelBytes/cropctx/internal/history"
	"github.com/KaramelBytes/cropctx/internal/utils"
)

// loadFlags are the dataset parsing flags shared by the analysis commands.
type loadFlags struct {
	delimiter  string
	decimal    string
	thousands  string
	maxRows    int
	sheetName  string
	sheetIndex int
}

func (l *loadFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&l.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (sniffed if omitted)")
	f.StringVar(&l.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	f.StringVar(&l.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	f.IntVar(&l.maxRows, "max-rows", 0, "keep only the latest N rows (0 = unlimited)")
	f.StringVar(&l.sheetName, "sheet-name", "", "XLSX: sheet name to analyze")
	f.IntVar(&l.sheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
}

// options applies the changed flags on top of the configuration.
func (l *loadFlags) options(cmd *cobra.Command, c *cfgpkg.Global) (dataset.Options, error) {
	eff := *c
	f := cmd.Flags()
	if f.Changed("delimiter") {
		eff.Delimiter = l.delimiter
	}
	if f.Changed("decimal") {
		eff.DecimalSeparator = l.decimal
	}
	if f.Changed("thousands") {
		eff.ThousandsSeparator = l.thousands
	}
	if f.Changed("max-rows") {
		if l.maxRows < 0 {
			return dataset.Options{}, fmt.Errorf("--max-rows must be >= 0")
		}
		eff.MaxRows = l.maxRows
	}
	opt, err := eff.DatasetOptions()
	if err != nil {
		return opt, err
	}
	opt.SheetName = strings.TrimSpace(l.sheetName)
	if l.sheetIndex > 0 {
		opt.SheetIndex = l.sheetIndex
	}
	return opt, nil
}

// analysisFlags select the advisory and report sections.
type analysisFlags struct {
	mode      string
	rules     string
	sigma     float64
	noProfile bool
	noDrivers bool
}

func (a *analysisFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&a.mode, "mode", "", "advisory mode: derived|static (overrides advisory_mode)")
	f.StringVar(&a.rules, "rules", "", "YAML advisory rules file (overrides advisory_rules_file)")
	f.Float64Var(&a.sigma, "failure-sigma", 0, "failure band width in standard deviations (overrides failure_sigma)")
	f.BoolVar(&a.noProfile, "no-profile", false, "omit the column profile section")
	f.BoolVar(&a.noDrivers, "no-drivers", false, "omit the context drivers section")
}

func (a *analysisFlags) options(cmd *cobra.Command, c *cfgpkg.Global) (analysis.Options, error) {
	eff := *c
	f := cmd.Flags()
	if f.Changed("mode") {
		eff.AdvisoryMode = a.mode
	}
	if f.Changed("rules") {
		eff.AdvisoryRulesFile = a.rules
	}
	if f.Changed("failure-sigma") {
		if a.sigma <= 0 {
			return analysis.Options{}, fmt.Errorf("--failure-sigma must be > 0")
		}
		eff.FailureSigma = a.sigma
	}
	opt, err := eff.AnalysisOptions()
	if err != nil {
		return opt, err
	}
	opt.Profile = !a.noProfile
	opt.Drivers = !a.noDrivers
	return opt, nil
}

func checkFormat(format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "md", "markdown", "json":
		return nil
	}
	return fmt.Errorf("unsupported --format: %s (use md|json)", format)
}

// renderReport encodes rep and returns the matching file extension.
func renderReport(rep *analysis.Report, format string) ([]byte, string, error) {
	if err := checkFormat(format); err != nil {
		return nil, "", err
	}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		b, err := rep.JSON()
		if err != nil {
			return nil, "", fmt.Errorf("encode report: %w", err)
		}
		return b, "json", nil
	}
	return []byte(rep.Markdown()), "md", nil
}

// analyzeFile loads path and runs the analysis on it.
func analyzeFile(log *zap.Logger, path string, dopt dataset.Options, aopt analysis.Options) (*dataset.Dataset, *analysis.Report, error) {
	ds, err := dataset.Load(path, dopt)
	if err != nil {
		return nil, nil, err
	}
	rep, err := analysis.Run(ds, aopt)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range rep.Warnings {
		log.Debug("dataset warning", zap.String("dataset", rep.Dataset), zap.String("warning", w))
	}
	log.Info("analysis complete",
		zap.String("report", rep.ID),
		zap.String("dataset", rep.Dataset),
		zap.Int("rows", rep.Rows),
		zap.Float64("stability_index", rep.Stats.StabilityIndex),
		zap.Bool("context_failure", rep.Stats.ContextFailure),
	)
	return ds, rep, nil
}

// writeChart renders the yield chart of ds to path.
func writeChart(path string, ds *dataset.Dataset, rep *analysis.Report) error {
	var buf bytes.Buffer
	if err := chart.RenderYield(ds.YieldSeries(), rep.Stats, &buf); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	if err := utils.SafeWriteFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	return nil
}

// recordRuns stores reps in the history database from configuration.
func recordRuns(ctx context.Context, c *cfgpkg.Global, reps ...*analysis.Report) error {
	store, err := history.Open(ctx, c.HistoryDriver, c.HistoryDSN)
	if err != nil {
		return err
	}
	defer store.Close()
	for _, rep := range reps {
		if err := store.Record(ctx, history.FromReport(rep)); err != nil {
			return err
		}
	}
	logger.Debug("history recorded", zap.String("driver", store.Driver()), zap.Int("runs", len(reps)))
	return nil
}

// fieldsRoot returns the fields directory from configuration, expanding ~.
func fieldsRoot(c *cfgpkg.Global) (string, error) {
	dir := c.FieldsDir
	if dir == "" {
		base, err := cfgpkg.Dir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "fields")
	}
	if strings.HasPrefix(dir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = strings.TrimPrefix(dir, "~")
		dir = strings.TrimPrefix(dir, string(os.PathSeparator))
		dir = strings.TrimPrefix(dir, "/")
		dir = filepath.Join(home, dir)
	}
	dir = filepath.Clean(dir)
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

func resolveFieldDirByName(c *cfgpkg.Global, name string) (string, error) {
	if name == "" {
		return "", errors.New("field name is required")
	}
	root, err := fieldsRoot(c)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, name), nil
}

func loadFieldByName(c *cfgpkg.Global, name string) (*field.Field, error) {
	dir, err := resolveFieldDirByName(c, name)
	if err != nil {
		return nil, err
	}
	return field.Load(dir)
}

// workingField returns the field workspace enclosing the working directory,
// or nil when there is none.
func workingField() (*field.Field, error) {
	f, err := field.Find("")
	if errors.Is(err, utils.ErrRootNotFound) {
		return nil, nil
	}
	return f, err
}

// datasetPath picks the dataset: explicit argument, then the field's
// dataset, then data_path.
func datasetPath(args []string, f *field.Field, c *cfgpkg.Global) (string, error) {
	switch {
	case len(args) > 0 && args[0] != "":
		return args[0], nil
	case f != nil && f.Dataset != "":
		return f.Dataset, nil
	case c.DataPath != "":
		return c.DataPath, nil
	}
	return "", errors.New("no dataset: pass a file, use --field, or set data_path")
}
