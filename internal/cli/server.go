package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bigfin/bigfind/internal/core/accounts"
	"github.com/bigfin/bigfind/internal/di"
	"github.com/bigfin/bigfind/internal/storage/relationaldb"
)

// serverCmd represents the server command (default action)
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the bigfind daemon",
	Long: `Start the bigfind daemon: opens storage, seeds the system chart of
accounts and keeps the engines resident until interrupted. Transport
front ends attach to the wired engines in-process.

This is the default command when no subcommand is specified.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Set server as the default command
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return serverCmd.RunE(cmd, args)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	container := di.New()
	services := di.NewProvider(container, cfg)
	if err := services.RegisterAll(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := services.GetRepositories()
	if err != nil {
		return err
	}
	if cfg.Standalone {
		if err := repos.Open(ctx); err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer func() {
			if err := repos.Close(context.Background()); err != nil {
				log.Printf("server: storage close failed: %v", err)
			}
		}()
	} else {
		// The manager keeps a background health check running against the
		// database for the life of the daemon.
		mgr := relationaldb.NewManager(repos, cfg.Database.ToStorage())
		if err := mgr.Open(ctx); err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer func() {
			if err := mgr.Close(context.Background()); err != nil {
				log.Printf("server: storage close failed: %v", err)
			}
		}()
	}

	eng, err := services.GetLedgerEngine()
	if err != nil {
		return err
	}
	if err := eng.SeedChart(ctx, accounts.DefaultChart()); err != nil {
		return fmt.Errorf("seed chart of accounts: %w", err)
	}

	// Resolve the rest of the graph up front so wiring errors surface at
	// startup, not on first use.
	if _, err := services.GetOrchestrator(); err != nil {
		return err
	}
	if _, err := services.GetReconEngine(); err != nil {
		return err
	}

	if !quiet {
		mode := "database"
		if cfg.Standalone {
			mode = "standalone (in-memory)"
		}
		fmt.Println("bigfind daemon started")
		fmt.Printf("  - storage:        %s\n", mode)
		fmt.Printf("  - routing tz:     %s\n", cfg.Routing.Timezone)
		fmt.Printf("  - recon window:   %s\n", cfg.Reconciliation.Window)
		if path := cfg.GetConfigPath(); path != "" {
			fmt.Printf("  - config file:    %s\n", path)
		}
	}

	<-ctx.Done()
	if !quiet {
		fmt.Println("shutting down")
	}
	return nil
}
