package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/cropctx/internal/analysis"
	"github.com/KaramelBytes/cropctx/internal/field"
	"github.com/KaramelBytes/cropctx/internal/utils"
)

var (
	abField    string
	abOutDir   string
	abFormat   string
	abJobs     int
	abRecord   bool
	abQuiet    bool
	abLoad     loadFlags
	abAnalysis analysisFlags
)

// batchResult is the outcome for one input file.
type batchResult struct {
	path string
	rep  *analysis.Report
	body []byte
	ext  string
	err  error
}

var analyzeBatchCmd = &cobra.Command{
	Use:   "analyze-batch <files...>",
	Short: "Analyze multiple CSV/TSV/XLSX datasets in parallel",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		files := expandInputs(args)
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		dopt, err := abLoad.options(cmd, c)
		if err != nil {
			return err
		}
		aopt, err := abAnalysis.options(cmd, c)
		if err != nil {
			return err
		}
		if err := checkFormat(abFormat); err != nil {
			return err
		}
		var f *field.Field
		if abField != "" {
			if f, err = loadFieldByName(c, abField); err != nil {
				return err
			}
		}

		results := make([]batchResult, len(files))
		g, _ := errgroup.WithContext(cmd.Context())
		jobs := abJobs
		if jobs <= 0 {
			jobs = 1
		}
		g.SetLimit(jobs)
		for i, path := range files {
			i, path := i, path
			g.Go(func() error {
				res := batchResult{path: path}
				_, rep, err := analyzeFile(logger, path, dopt, aopt)
				if err == nil {
					res.rep = rep
					res.body, res.ext, err = renderReport(rep, abFormat)
				}
				res.err = err
				results[i] = res
				// per-file failures are reported after all files ran
				return nil
			})
		}
		_ = g.Wait()

		total := len(files)
		failed := 0
		var done []*analysis.Report
		usedNames := map[string]struct{}{}
		for i, res := range results {
			if !abQuiet {
				fmt.Printf("[%d/%d] %s\n", i+1, total, res.path)
			}
			if res.err != nil {
				failed++
				logger.Warn("batch file failed", zap.String("file", res.path), zap.Error(res.err))
				fmt.Printf("✗ %s: %v\n", filepath.Base(res.path), res.err)
				continue
			}
			done = append(done, res.rep)

			written := false
			if abOutDir != "" {
				out, err := batchOutputPath(abOutDir, res.path, abLoad.sheetName, res.ext, usedNames)
				if err != nil {
					return err
				}
				if err := utils.SafeWriteFile(out, res.body); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				if !abQuiet {
					fmt.Printf("✓ Wrote %s\n", out)
				}
				written = true
			}
			if f != nil {
				ref, err := f.AttachReport(res.rep, res.body, res.ext)
				if err != nil {
					return err
				}
				if !abQuiet {
					fmt.Printf("✓ Added report to field '%s' as %s\n", f.Name, ref.File)
				}
				written = true
			}
			if !written {
				fmt.Println(string(res.body))
			} else if !abQuiet {
				fmt.Printf("  %s\n", res.rep.Headline())
			}
		}
		if f != nil && len(done) > 0 {
			if err := f.Save(); err != nil {
				return err
			}
		}
		if abRecord && len(done) > 0 {
			if err := recordRuns(cmd.Context(), c, done...); err != nil {
				logger.Warn("history record failed", zap.Error(err))
				fmt.Printf("⚠ Warning: history not recorded: %v\n", err)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, total)
		}
		return nil
	},
}

// expandInputs resolves globs, keeps literal paths that exist, drops
// duplicates and sorts the result.
func expandInputs(args []string) []string {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files
}

// batchOutputPath names the report for path inside dir. Names already used in
// this run or present on disk get a __N suffix.
func batchOutputPath(dir, path, sheet, ext string, used map[string]struct{}) (string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if sheet != "" {
		stem += "__sheet-" + slug(sheet)
	}
	cand := filepath.Join(dir, stem+".context."+ext)
	for idx := 2; ; idx++ {
		_, taken := used[cand]
		if !taken {
			if _, err := os.Stat(cand); os.IsNotExist(err) {
				used[cand] = struct{}{}
				return cand, nil
			}
		}
		cand = filepath.Join(dir, fmt.Sprintf("%s__%d.context.%s", stem, idx, ext))
	}
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else if r == ' ' || r == '-' || r == '_' {
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "sheet"
	}
	return out
}

func init() {
	rootCmd.AddCommand(analyzeBatchCmd)
	analyzeBatchCmd.Flags().StringVarP(&abField, "field", "f", "", "field workspace to attach reports to")
	analyzeBatchCmd.Flags().StringVar(&abOutDir, "out-dir", "", "directory to write one report per input")
	analyzeBatchCmd.Flags().StringVar(&abFormat, "format", "md", "report format: md|json")
	analyzeBatchCmd.Flags().IntVarP(&abJobs, "jobs", "j", 4, "number of files analyzed in parallel")
	analyzeBatchCmd.Flags().BoolVar(&abRecord, "record", false, "record successful runs in the history database")
	analyzeBatchCmd.Flags().BoolVar(&abQuiet, "quiet", false, "suppress progress and non-essential output")
	abLoad.register(analyzeBatchCmd)
	abAnalysis.register(analyzeBatchCmd)
}
