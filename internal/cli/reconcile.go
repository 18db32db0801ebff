package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigfin/bigfind/internal/core/recon"
	"github.com/bigfin/bigfind/internal/di"
)

var (
	// Reconcile flags
	reconTenant string
	reconWindow time.Duration
	reconDryRun bool
)

// reconcileCmd runs one reconciliation pass out-of-band.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run reconciliation for one tenant",
	Long: `Run all reconciliation checks for a tenant over the lookback window:
transfer matching against the payment provider, the ledger trial balance
and the prefund custody fold. Exceptions are persisted with the run; with
--dry-run nothing is auto-corrected.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&reconTenant, "tenant", "", "tenant to reconcile (required)")
	reconcileCmd.Flags().DurationVar(&reconWindow, "window", 0, "lookback window (default from config)")
	reconcileCmd.Flags().BoolVar(&reconDryRun, "dry-run", false, "report exceptions without corrections")
	reconcileCmd.MarkFlagRequired("tenant")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	container := di.New()
	services := di.NewProvider(container, cfg)
	if err := services.RegisterAll(); err != nil {
		return err
	}

	ctx := context.Background()
	repos, err := services.GetRepositories()
	if err != nil {
		return err
	}
	if err := repos.Open(ctx); err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer repos.Close(ctx)

	eng, err := services.GetReconEngine()
	if err != nil {
		return err
	}

	opts := recon.RunOptions{DryRun: reconDryRun}
	if reconWindow > 0 {
		start := time.Now().Add(-reconWindow)
		opts.PeriodStart = &start
	}
	report, err := eng.Run(ctx, reconTenant, opts)
	if err != nil {
		return fmt.Errorf("reconciliation run failed: %w", err)
	}

	run := report.Run
	fmt.Printf("run %s finished: %s\n", run.ID, run.Status)
	fmt.Printf("  window:        %s .. %s\n", run.WindowStart.Format(time.RFC3339), run.WindowEnd.Format(time.RFC3339))
	fmt.Printf("  exceptions:    %d (auto-resolved %d)\n", run.ExceptionCount, run.AutoResolvedCount)
	if run.DryRun {
		fmt.Println("  dry run: no corrections were applied")
	}
	for _, ex := range report.Exceptions {
		fmt.Printf("  [%s] %s %s: %s\n", ex.Severity, ex.Type, ex.RecordID, ex.Detail)
	}
	return nil
}
