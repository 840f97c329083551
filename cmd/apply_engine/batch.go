package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/apply-engine/internal/apply"
	"github.com/jonathan/apply-engine/internal/batch"
	"github.com/jonathan/apply-engine/internal/observability"
	"github.com/jonathan/apply-engine/internal/ratelimit"
	"github.com/jonathan/apply-engine/internal/retry"
	"github.com/jonathan/apply-engine/internal/session"
	"github.com/jonathan/apply-engine/internal/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run a one-shot batch of applications from a JSON file",
	Long:  "Run every job in the input file through the engine: sorted by priority, chunked, grouped by platform, and executed with rate limiting and checkpointing. The queue is not involved; results live in the checkpoint files and the final summary.",
	RunE:  runBatch,
}

var batchInput string

func init() {
	batchCmd.Flags().StringVarP(&batchInput, "input", "i", "", "Path to batch input JSON file (required)")

	batchCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(batchInput)
	if err != nil {
		return fmt.Errorf("failed to read batch input: %w", err)
	}
	var request types.BatchRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return fmt.Errorf("failed to parse batch input: %w", err)
	}
	if err := request.Validate(); err != nil {
		return fmt.Errorf("invalid batch input: %w", err)
	}
	userID, err := uuid.Parse(request.UserID)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	opts := apply.DefaultOptions()
	opts.AutoSubmit = cfg.AutoSubmit
	jobs := make([]batch.Job, len(request.Jobs))
	for i, j := range request.Jobs {
		jobs[i] = batch.Job{
			UserID:   userID,
			JobURL:   j.JobURL,
			Priority: j.Priority,
			Payload:  j.Payload,
			Options:  opts,
		}
	}

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.Aggressive = cfg.AggressiveRateLimits
	if cfg.GlobalDailyCap > 0 {
		limiterCfg.GlobalDailyCap = cfg.GlobalDailyCap
	}
	limiter := ratelimit.NewLimiter(limiterCfg)

	ctx := context.Background()
	pool := session.NewPool(session.DefaultConfig(), session.NewChromeFactory(cfg.Verbose))
	defer pool.Cleanup(ctx)

	batchCfg := batch.DefaultConfig()
	if cfg.ChunkSize > 0 {
		batchCfg.ChunkSize = cfg.ChunkSize
	}
	if cfg.MaxConcurrency > 0 {
		batchCfg.MaxConcurrency = cfg.MaxConcurrency
	}
	if cfg.MaxAttempts > 0 {
		batchCfg.MaxAttempts = cfg.MaxAttempts
	}
	batchCfg.CheckpointDir = cfg.CheckpointDir

	processor := batch.NewProcessor(batchCfg, limiter, pool,
		retry.DefaultPolicy(), apply.NewBrowserFunc(pool))

	fmt.Printf("Processing %d jobs in chunks of %d...\n", len(jobs), batchCfg.ChunkSize)
	summary, runErr := processor.Process(ctx, jobs)

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintBatchSummary(summary)
	if cfg.Verbose {
		printer.PrintLimiterStats(limiter.Stats())
		printer.PrintPoolStats(pool.Stats())
	}

	if runErr != nil {
		return fmt.Errorf("batch aborted: %w", runErr)
	}
	return nil
}
