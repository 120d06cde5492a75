package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/convtree/transcript"
	"github.com/BaSui01/convtree/types"
)

func newGenerateCommand() *cobra.Command {
	var (
		intent string
		domain string
		docID  string
		turns  int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Grow one conversation tree from a seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if turns <= 0 {
				turns = cfg.Generation.MaxTurns
			}
			if docID == "" {
				docID = uuid.NewString()
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

			logger.Info("generating tree",
				zap.String("doc_id", docID),
				zap.String("intent", intent),
				zap.String("domain", domain),
				zap.Int("max_turns", turns))

			start := time.Now()
			ledger, err := rt.orchestrator.RunTree(ctx, turns, intent, domain, docID)
			if err != nil {
				return fmt.Errorf("tree %s: %w", docID, err)
			}
			printLedger(cmd.OutOrStdout(), docID, ledger, pricing(cfg.Pricing), time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVar(&intent, "intent", "", "Seed intent")
	cmd.Flags().StringVar(&domain, "domain", "", "Seed domain")
	cmd.Flags().StringVar(&docID, "doc-id", "", "Document id, random UUID when empty")
	cmd.Flags().IntVar(&turns, "turns", 0, "Maximum turns per branch, defaults to generation.max_turns")
	_ = cmd.MarkFlagRequired("intent")
	_ = cmd.MarkFlagRequired("domain")
	return cmd
}

// printLedger 打印单棵树的 token 汇总
func printLedger(w io.Writer, docID string, ledger types.TokenLedger, prices transcript.Pricing, elapsed time.Duration) {
	rec := transcript.NewLedgerRecord(docID, ledger, prices)
	fmt.Fprintf(w, "%s (%s)\n", docID, elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  User LLM:      %8d tokens  %s\n", rec.User.TokenCount, rec.User.TokenCost)
	fmt.Fprintf(w, "  Assistant LLM: %8d tokens  %s\n", rec.Assistant.TokenCount, rec.Assistant.TokenCost)
	fmt.Fprintf(w, "  Moderator LLM: %8d tokens  %s\n", rec.Moderator.TokenCount, rec.Moderator.TokenCost)
}
