package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/cropctx/internal/history"
)

var (
	histDataset string
	histLimit   int
	histJSON    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded analysis runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		store, err := history.Open(cmd.Context(), c.HistoryDriver, c.HistoryDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		runs, err := store.List(cmd.Context(), histDataset, histLimit)
		if err != nil {
			return err
		}
		if histJSON {
			b, err := json.MarshalIndent(runs, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal runs: %w", err)
			}
			fmt.Println(string(b))
			return nil
		}
		if len(runs) == 0 {
			fmt.Println("(no runs)")
			return nil
		}
		for _, r := range runs {
			failure := "NO"
			if r.ContextFailure {
				failure = "YES"
			}
			fmt.Printf("- %s  %s  %s  stability %.3f (%s)  deviation %.2f  failure %s  [%s]\n",
				r.CreatedAt.Local().Format("2006-01-02 15:04:05"), shortID(r.ID), r.Dataset,
				r.StabilityIndex, r.Bucket, r.ContextDeviation, failure, r.AdvisoryMode)
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&histDataset, "dataset", "", "only runs for this dataset name")
	historyCmd.Flags().IntVarP(&histLimit, "limit", "n", 20, "maximum runs to list (0 = all)")
	historyCmd.Flags().BoolVar(&histJSON, "json", false, "print runs as JSON")
}
