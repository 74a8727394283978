package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/cropctx/internal/advisory"
	cfgpkg "github.com/KaramelBytes/cropctx/internal/config"
	"github.com/KaramelBytes/cropctx/internal/history"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set cropctx configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		fmt.Printf("data_path: %s\n", cfg.DataPath)
		if cfg.Delimiter != "" {
			fmt.Printf("delimiter: %q\n", cfg.Delimiter)
		}
		if cfg.DecimalSeparator != "" {
			fmt.Printf("decimal_separator: %q\n", cfg.DecimalSeparator)
		}
		if cfg.ThousandsSeparator != "" {
			fmt.Printf("thousands_separator: %q\n", cfg.ThousandsSeparator)
		}
		fmt.Printf("max_rows: %d\n", cfg.MaxRows)
		fmt.Printf("failure_sigma: %.3f\n", cfg.FailureSigma)
		fmt.Printf("stability_precision: %d\n", cfg.StabilityPrecision)
		fmt.Printf("stable_threshold: %.3f\n", cfg.StableThreshold)
		fmt.Printf("moderate_threshold: %.3f\n", cfg.ModerateThreshold)
		fmt.Printf("outlier_threshold: %.3f\n", cfg.OutlierThreshold)
		fmt.Printf("advisory_mode: %s\n", cfg.AdvisoryMode)
		if cfg.AdvisoryRulesFile != "" {
			fmt.Printf("advisory_rules_file: %s\n", cfg.AdvisoryRulesFile)
		}
		fmt.Printf("server_addr: %s\n", cfg.ServerAddr)
		fmt.Printf("history_driver: %s\n", cfg.HistoryDriver)
		fmt.Printf("history_dsn: %s\n", maskDSN(cfg.HistoryDSN))
		fmt.Printf("fields_dir: %s\n", cfg.FieldsDir)
		fmt.Printf("log_level: %s\n", cfg.LogLevel)
		if cfg.LogFile != "" {
			fmt.Printf("log_file: %s\n", cfg.LogFile)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setConfigKey(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Println("Saved config")
		return nil
	},
}

var configRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the advisory rule table as YAML (a starting point for advisory_rules_file)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rules := advisory.DefaultRules()
		if cfg != nil && cfg.AdvisoryRulesFile != "" {
			custom, err := advisory.LoadRules(cfg.AdvisoryRulesFile)
			if err != nil {
				return err
			}
			for k, v := range custom {
				rules[k] = v
			}
		}
		return advisory.WriteRules(os.Stdout, rules)
	},
}

// setConfigKey validates val and assigns it to key.
func setConfigKey(c *cfgpkg.Global, key, val string) error {
	switch key {
	case "data_path":
		c.DataPath = val
	case "delimiter":
		c.Delimiter = val
	case "decimal_separator":
		c.DecimalSeparator = val
	case "thousands_separator":
		c.ThousandsSeparator = val
	case "max_rows":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for max_rows: %v", val)
		}
		c.MaxRows = i
	case "failure_sigma":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid float for failure_sigma: %v", val)
		}
		c.FailureSigma = f
	case "stability_precision":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for stability_precision: %v", val)
		}
		c.StabilityPrecision = i
	case "stable_threshold", "moderate_threshold":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid float for %s: %w", key, err)
		}
		next := *c
		if key == "stable_threshold" {
			next.StableThreshold = f
		} else {
			next.ModerateThreshold = f
		}
		if err := next.Thresholds().Validate(); err != nil {
			return err
		}
		c.StableThreshold, c.ModerateThreshold = next.StableThreshold, next.ModerateThreshold
	case "outlier_threshold":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid float for outlier_threshold: %v", val)
		}
		c.OutlierThreshold = f
	case "advisory_mode":
		m, err := advisory.ParseMode(val)
		if err != nil {
			return err
		}
		c.AdvisoryMode = string(m)
	case "advisory_rules_file":
		if val != "" {
			if _, err := advisory.LoadRules(val); err != nil {
				return err
			}
		}
		c.AdvisoryRulesFile = val
	case "server_addr":
		c.ServerAddr = val
	case "history_driver":
		switch strings.ToLower(val) {
		case "sqlite", "sqlite3":
			c.HistoryDriver = history.DriverSQLite
		case "postgres", "postgresql", "pg":
			c.HistoryDriver = history.DriverPostgres
		default:
			return fmt.Errorf("invalid history_driver: %s (use sqlite or postgres)", val)
		}
	case "history_dsn":
		c.HistoryDSN = val
	case "fields_dir":
		c.FieldsDir = val
	case "log_level":
		switch strings.ToLower(val) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_level: %s (use debug|info|warn|error)", val)
		}
	case "log_file":
		c.LogFile = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// maskDSN hides the password of a URL-style DSN.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	colon := strings.Index(creds, ":")
	if colon < 0 {
		return dsn
	}
	return dsn[:scheme+3] + creds[:colon] + ":******" + dsn[at:]
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configRulesCmd)
}
