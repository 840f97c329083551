package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/apply-engine/internal/apply"
	"github.com/jonathan/apply-engine/internal/notify"
	"github.com/jonathan/apply-engine/internal/observability"
	"github.com/jonathan/apply-engine/internal/ratelimit"
	"github.com/jonathan/apply-engine/internal/retry"
	"github.com/jonathan/apply-engine/internal/session"
	"github.com/jonathan/apply-engine/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the queue worker until interrupted",
	Long:  "Run the queue worker loop: claim items from the persistent queue, execute each application with rate limiting and human-like pacing, and resolve the outcomes. Stops cleanly on SIGINT/SIGTERM.",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.Aggressive = cfg.AggressiveRateLimits
	if cfg.GlobalDailyCap > 0 {
		limiterCfg.GlobalDailyCap = cfg.GlobalDailyCap
	}
	limiter := ratelimit.NewLimiter(limiterCfg)

	pool := session.NewPool(session.DefaultConfig(), session.NewChromeFactory(cfg.Verbose))
	defer pool.Cleanup(ctx)

	workerCfg := worker.DefaultConfig()
	if cfg.WorkerID != "" {
		workerCfg.WorkerID = cfg.WorkerID
	}
	workerCfg.PollInterval = cfg.PollIntervalOr(workerCfg.PollInterval)
	workerCfg.LockLease = cfg.LockLeaseOr(workerCfg.LockLease)

	w := worker.New(workerCfg, database, limiter, pool,
		retry.DefaultPolicy(), apply.NewBrowserFunc(pool), notify.LogSink{})

	w.Start(ctx)
	fmt.Printf("Worker %s running. Press Ctrl+C to stop.\n", workerCfg.WorkerID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down, waiting for the in-flight item...")
	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Minute):
		fmt.Println("Shutdown timed out; the item's lock will expire and be reclaimed.")
	}

	if cfg.Verbose {
		printer := observability.NewPrinter(os.Stdout)
		printer.PrintWorkerStats(w.Stats())
		printer.PrintLimiterStats(limiter.Stats())
		printer.PrintPoolStats(pool.Stats())
	}
	return nil
}
