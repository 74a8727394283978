package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/cropctx/internal/advisory"
	"github.com/KaramelBytes/cropctx/internal/analysis"
	"github.com/KaramelBytes/cropctx/internal/contextstats"
	"github.com/KaramelBytes/cropctx/internal/dataset"
)

// DirName is the per-user configuration directory under $HOME.
const DirName = ".cropctx"

// Global configuration structure.
type Global struct {
	DataPath           string `mapstructure:"data_path" yaml:"data_path"`
	Delimiter          string `mapstructure:"delimiter" yaml:"delimiter"`
	DecimalSeparator   string `mapstructure:"decimal_separator" yaml:"decimal_separator"`
	ThousandsSeparator string `mapstructure:"thousands_separator" yaml:"thousands_separator"`
	MaxRows            int    `mapstructure:"max_rows" yaml:"max_rows"`

	// Statistics
	FailureSigma       float64 `mapstructure:"failure_sigma" yaml:"failure_sigma"`
	StabilityPrecision int     `mapstructure:"stability_precision" yaml:"stability_precision"`
	StableThreshold    float64 `mapstructure:"stable_threshold" yaml:"stable_threshold"`
	ModerateThreshold  float64 `mapstructure:"moderate_threshold" yaml:"moderate_threshold"`
	OutlierThreshold   float64 `mapstructure:"outlier_threshold" yaml:"outlier_threshold"`

	// Advisory
	AdvisoryMode      string `mapstructure:"advisory_mode" yaml:"advisory_mode"`
	AdvisoryRulesFile string `mapstructure:"advisory_rules_file" yaml:"advisory_rules_file"`

	ServerAddr string `mapstructure:"server_addr" yaml:"server_addr"`

	// History database
	HistoryDriver string `mapstructure:"history_driver" yaml:"history_driver"`
	HistoryDSN    string `mapstructure:"history_dsn" yaml:"history_dsn"`

	FieldsDir string `mapstructure:"fields_dir" yaml:"fields_dir"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`
}

// Dir returns ~/.cropctx.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.cropctx/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(unresolved(c))
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (applied by the caller) > env > config file > defaults.
// A .env file in the working directory is loaded into the environment first;
// variables already set are left alone.
func Load(cfgFile string) (*Global, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CROPCTX")
	v.AutomaticEnv()

	v.SetDefault("data_path", filepath.Join("data", "crop_yield_dataset.csv"))
	v.SetDefault("delimiter", "")
	v.SetDefault("decimal_separator", "")
	v.SetDefault("thousands_separator", "")
	v.SetDefault("max_rows", 0)
	v.SetDefault("failure_sigma", contextstats.DefaultFailureSigma)
	v.SetDefault("stability_precision", contextstats.DefaultPrecision)
	v.SetDefault("stable_threshold", contextstats.DefaultThresholds().Stable)
	v.SetDefault("moderate_threshold", contextstats.DefaultThresholds().Moderate)
	v.SetDefault("outlier_threshold", analysis.DefaultOutlierThreshold)
	v.SetDefault("advisory_mode", string(advisory.ModeDerived))
	v.SetDefault("advisory_rules_file", "")
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("history_driver", "sqlite")
	v.SetDefault("history_dsn", "")
	v.SetDefault("fields_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.FieldsDir == "" || c.HistoryDSN == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		if c.FieldsDir == "" {
			c.FieldsDir = defaultFieldsDir(dir)
		}
		if c.HistoryDSN == "" && c.HistoryDriver == "sqlite" {
			c.HistoryDSN = defaultHistoryDSN(dir)
		}
	}
	return &c, nil
}

func defaultFieldsDir(dir string) string  { return filepath.Join(dir, "fields") }
func defaultHistoryDSN(dir string) string { return filepath.Join(dir, "history.db") }

// unresolved returns a copy of c without the paths Load derives from the
// config dir, so a saved file keeps following the driver and home dir.
func unresolved(c *Global) Global {
	out := *c
	dir, err := Dir()
	if err != nil {
		return out
	}
	if out.FieldsDir == defaultFieldsDir(dir) {
		out.FieldsDir = ""
	}
	if out.HistoryDSN == defaultHistoryDSN(dir) {
		out.HistoryDSN = ""
	}
	return out
}

// DatasetOptions converts the loader settings.
func (c *Global) DatasetOptions() (dataset.Options, error) {
	opt := dataset.DefaultOptions()
	opt.MaxRows = c.MaxRows
	var err error
	if opt.Delimiter, err = parseRune("delimiter", c.Delimiter); err != nil {
		return opt, err
	}
	if opt.DecimalSeparator, err = parseRune("decimal_separator", c.DecimalSeparator); err != nil {
		return opt, err
	}
	if opt.ThousandsSeparator, err = parseRune("thousands_separator", c.ThousandsSeparator); err != nil {
		return opt, err
	}
	return opt, nil
}

// Thresholds returns the stability bucket thresholds.
func (c *Global) Thresholds() contextstats.Thresholds {
	return contextstats.Thresholds{Stable: c.StableThreshold, Moderate: c.ModerateThreshold}
}

// Advisor builds the advisory engine from advisory_mode and advisory_rules_file.
func (c *Global) Advisor() (*advisory.Advisor, error) {
	mode, err := advisory.ParseMode(c.AdvisoryMode)
	if err != nil {
		return nil, err
	}
	var rules map[advisory.Key]advisory.Recommendation
	if c.AdvisoryRulesFile != "" {
		if rules, err = advisory.LoadRules(c.AdvisoryRulesFile); err != nil {
			return nil, err
		}
	}
	return advisory.New(mode, c.Thresholds(), rules), nil
}

// AnalysisOptions assembles the options for analysis.Run.
func (c *Global) AnalysisOptions() (analysis.Options, error) {
	if err := c.Thresholds().Validate(); err != nil {
		return analysis.Options{}, err
	}
	adv, err := c.Advisor()
	if err != nil {
		return analysis.Options{}, err
	}
	opt := analysis.DefaultOptions()
	opt.Stats = contextstats.Options{FailureSigma: c.FailureSigma, Precision: c.StabilityPrecision}
	opt.Thresholds = c.Thresholds()
	opt.Advisor = adv
	opt.OutlierThreshold = c.OutlierThreshold
	return opt, nil
}

// parseRune accepts a single character or one of the names tab, comma,
// semicolon, space, dot. Empty means auto-detect.
func parseRune(key, s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "space":
		return ' ', nil
	case "dot", "period":
		return '.', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("invalid %s %q: want a single character", key, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
