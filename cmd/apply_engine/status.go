package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/apply-engine/internal/observability"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue status, optionally for one campaign",
	RunE:  runStatus,
}

var (
	statusCampaign string
	statusLimit    int
)

func init() {
	statusCmd.Flags().StringVar(&statusCampaign, "campaign", "", "Campaign UUID to scope the status to")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "Number of recent items to list")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}

	campaignID, err := parseOptionalUUID(statusCampaign)
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
		fmt.Printf("Campaign: %s (%s)\n", campaign.Name, campaign.Status)
		if campaign.LastError != nil {
			fmt.Printf("Last error: %s\n", *campaign.LastError)
		}
	}

	counts, err := database.GetQueueCounts(ctx, campaignID)
	if err != nil {
		return err
	}
	observability.NewPrinter(os.Stdout).PrintQueueCounts(counts)

	if statusLimit > 0 {
		items, err := database.ListQueueItems(ctx, campaignID, statusLimit)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			fmt.Println("\nRecent items:")
			for _, item := range items {
				line := fmt.Sprintf("  %-16s %s", item.Status, item.JobURL)
				if item.LastError != nil {
					line += fmt.Sprintf("  (%s)", *item.LastError)
				}
				fmt.Println(line)
			}
		}
	}
	return nil
}
