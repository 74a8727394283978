package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/cropctx/internal/analysis"
	"github.com/KaramelBytes/cropctx/internal/history"
	"github.com/KaramelBytes/cropctx/internal/server"
)

var (
	srvAddr     string
	srvRecord   bool
	srvLoad     loadFlags
	srvAnalysis analysisFlags
)

var serveCmd = &cobra.Command{
	Use:   "serve [file]",
	Short: "Serve the context-stability dashboard over HTTP",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		path, err := datasetPath(args, nil, c)
		if err != nil {
			return err
		}
		dopt, err := srvLoad.options(cmd, c)
		if err != nil {
			return err
		}
		aopt, err := srvAnalysis.options(cmd, c)
		if err != nil {
			return err
		}
		addr := c.ServerAddr
		if cmd.Flags().Changed("addr") {
			addr = srvAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		scfg := server.Config{Addr: addr, DataPath: path, Dataset: dopt, Analysis: aopt}
		if srvRecord {
			store, err := history.Open(ctx, c.HistoryDriver, c.HistoryDSN)
			if err != nil {
				return err
			}
			defer store.Close()
			scfg.OnReport = func(ctx context.Context, rep *analysis.Report) {
				if err := store.Record(ctx, history.FromReport(rep)); err != nil {
					logger.Warn("history record failed", zap.String("report", rep.ID), zap.Error(err))
				}
			}
		}

		srv, err := server.New(scfg, logger)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Dashboard on http://%s (dataset %s, Ctrl-C to stop)\n", displayAddr(addr), path)
		return srv.ListenAndServe(ctx)
	},
}

// displayAddr turns ":8080" into "localhost:8080".
func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&srvAddr, "addr", ":8080", "listen address (overrides server_addr)")
	serveCmd.Flags().BoolVar(&srvRecord, "record", false, "record every served report in the history database")
	srvLoad.register(serveCmd)
	srvAnalysis.register(serveCmd)
}
