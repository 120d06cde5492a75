package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/convtree/internal/server"
	"github.com/BaSui01/convtree/transcript"
	"github.com/BaSui01/convtree/treegen"
)

func newBatchCommand() *cobra.Command {
	var (
		seedsPath string
		workers   int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Grow one tree per seed on a bounded worker pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			seeds, err := loadSeeds(seedsPath)
			if err != nil {
				return err
			}

			logger := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			rt, err := newRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Metrics.Enabled {
				srv, err := serveMetrics(cfg.Metrics.Addr, rt.metrics.Handler(), logger)
				if err != nil {
					return err
				}
				defer srv.Shutdown(context.Background())
			}

			logger.Info("batch started", zap.Int("seeds", len(seeds)), zap.Int("workers", workers))
			results, err := rt.dispatcher(workers).Run(ctx, seeds)
			if err != nil {
				return err
			}

			failed := printResults(cmd.OutOrStdout(), results, pricing(cfg.Pricing))
			logger.Info("batch finished", zap.Int("trees", len(results)), zap.Int("failed", failed))
			if failed > 0 {
				return fmt.Errorf("%d of %d trees failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&seedsPath, "seeds", "", "Seeds file (YAML or JSON)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent trees, defaults to generation.workers")
	_ = cmd.MarkFlagRequired("seeds")
	return cmd
}

// serveMetrics 在后台暴露 /metrics
func serveMetrics(addr string, handler http.Handler, logger *zap.Logger) (*server.Manager, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	cfg := server.DefaultConfig()
	cfg.Addr = addr
	srv := server.NewManager(mux, cfg, logger)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("metrics endpoint: %w", err)
	}
	return srv, nil
}

// printResults 逐棵树打印结果，返回失败数
func printResults(w io.Writer, results []treegen.TreeResult, prices transcript.Pricing) int {
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "FAIL %s %q/%q: %v\n", r.Seed.DocID, r.Seed.Intent, r.Seed.Domain, r.Err)
			continue
		}
		fmt.Fprint(w, "OK   ")
		printLedger(w, r.Seed.DocID, r.Ledger, prices, r.Duration)
	}
	return treegen.Failed(results)
}
