package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/apply-engine/internal/db"
	"github.com/jonathan/apply-engine/internal/platform"
	"github.com/jonathan/apply-engine/internal/types"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Add job URLs to the work queue",
	Long:  "Add job URLs to the persistent work queue, either inline or from a file with one URL per line. URLs already queued for the user are skipped.",
	RunE:  runEnqueue,
}

var (
	enqueueUser     string
	enqueueCampaign string
	enqueueURLsFile string
	enqueueURLs     []string
	enqueuePriority int
	enqueueAttempts int
)

func init() {
	enqueueCmd.Flags().StringVarP(&enqueueUser, "user", "u", "", "User UUID (required)")
	enqueueCmd.Flags().StringVar(&enqueueCampaign, "campaign", "", "Campaign UUID to attach the items to")
	enqueueCmd.Flags().StringVarP(&enqueueURLsFile, "urls-file", "f", "", "File with one job URL per line")
	enqueueCmd.Flags().StringSliceVar(&enqueueURLs, "url", nil, "Job URL (repeatable)")
	enqueueCmd.Flags().IntVarP(&enqueuePriority, "priority", "p", 50, "Priority 0-100, lower runs first")
	enqueueCmd.Flags().IntVar(&enqueueAttempts, "max-attempts", 3, "Attempt budget per item")

	enqueueCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}

	urls := append([]string{}, enqueueURLs...)
	if enqueueURLsFile != "" {
		fromFile, err := readURLsFile(enqueueURLsFile)
		if err != nil {
			return err
		}
		urls = append(urls, fromFile...)
	}

	request := types.EnqueueRequest{
		UserID:      enqueueUser,
		CampaignID:  enqueueCampaign,
		JobURLs:     urls,
		Priority:    enqueuePriority,
		MaxAttempts: enqueueAttempts,
	}
	if err := request.Validate(); err != nil {
		return fmt.Errorf("invalid enqueue request: %w", err)
	}

	userID, err := uuid.Parse(request.UserID)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	campaignID, err := parseOptionalUUID(request.CampaignID)
	if err != nil {
		return err
	}

	ctx := context.Background()
	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if campaignID != nil {
		campaign, err := database.GetCampaign(ctx, *campaignID)
		if err != nil {
			return err
		}
		if campaign == nil {
			return fmt.Errorf("campaign not found: %s", *campaignID)
		}
	}

	items := make([]db.EnqueueItem, len(request.JobURLs))
	for i, url := range request.JobURLs {
		item := db.EnqueueItem{JobURL: url}
		if p := platform.Detect(url); p != platform.PlatformUnknown {
			item.Platform = string(p)
		}
		items[i] = item
	}

	inserted, err := database.Enqueue(ctx, userID, campaignID, items, request.Priority, request.MaxAttempts)
	if err != nil {
		return err
	}

	fmt.Printf("Enqueued %d of %d URLs (%d duplicates skipped)\n",
		inserted, len(items), len(items)-inserted)
	return nil
}

// readURLsFile reads one URL per line, skipping blanks and # comments.
func readURLsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URLs file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URLs file: %w", err)
	}
	return urls, nil
}
