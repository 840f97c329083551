package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/apply-engine/internal/db"
	"github.com/jonathan/apply-engine/internal/schemas"
	"github.com/jonathan/apply-engine/internal/types"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Manage application campaigns",
}

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a campaign",
	RunE:  runCampaignCreate,
}

var campaignPauseCmd = &cobra.Command{
	Use:   "pause <campaign-id>",
	Short: "Pause a running campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setCampaignStatus(args[0], db.CampaignPaused, "paused by operator")
	},
}

var campaignResumeCmd = &cobra.Command{
	Use:   "resume <campaign-id>",
	Short: "Resume a paused campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setCampaignStatus(args[0], db.CampaignRunning, "")
	},
}

var campaignCancelCmd = &cobra.Command{
	Use:   "cancel <campaign-id>",
	Short: "Cancel a campaign and its pending queue items",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignCancel,
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's campaigns",
	RunE:  runCampaignList,
}

var (
	campaignUser       string
	campaignName       string
	campaignConfigFile string
)

func init() {
	campaignCreateCmd.Flags().StringVarP(&campaignUser, "user", "u", "", "User UUID (required)")
	campaignCreateCmd.Flags().StringVarP(&campaignName, "name", "n", "", "Campaign name (required)")
	campaignCreateCmd.Flags().StringVar(&campaignConfigFile, "config-file", "", "JSON file with campaign config")
	campaignCreateCmd.MarkFlagRequired("user")
	campaignCreateCmd.MarkFlagRequired("name")

	campaignListCmd.Flags().StringVarP(&campaignUser, "user", "u", "", "User UUID (required)")
	campaignListCmd.MarkFlagRequired("user")

	campaignCmd.AddCommand(campaignCreateCmd, campaignPauseCmd, campaignResumeCmd,
		campaignCancelCmd, campaignListCmd)
	rootCmd.AddCommand(campaignCmd)
}

func runCampaignCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}

	var campaignConfig json.RawMessage
	if campaignConfigFile != "" {
		data, err := os.ReadFile(campaignConfigFile)
		if err != nil {
			return fmt.Errorf("failed to read campaign config: %w", err)
		}
		if err := schemas.ValidateCampaignConfig(data); err != nil {
			return fmt.Errorf("invalid campaign config: %w", err)
		}
		campaignConfig = data
	}

	request := types.CreateCampaignRequest{
		UserID: campaignUser,
		Name:   campaignName,
		Config: campaignConfig,
	}
	if err := request.Validate(); err != nil {
		return fmt.Errorf("invalid campaign request: %w", err)
	}
	userID, err := uuid.Parse(request.UserID)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	ctx := context.Background()
	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	campaign, err := database.CreateCampaign(ctx, userID, request.Name, request.Config)
	if err != nil {
		return err
	}

	fmt.Printf("Created campaign %s (%s)\n", campaign.ID, campaign.Name)
	return nil
}

func runCampaignCancel(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}
	campaignID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid campaign id: %w", err)
	}

	ctx := context.Background()
	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.SetCampaignStatus(ctx, campaignID, db.CampaignCancelled, "cancelled by operator"); err != nil {
		return err
	}
	cancelled, err := database.CancelCampaignQueue(ctx, campaignID)
	if err != nil {
		return err
	}

	fmt.Printf("Campaign cancelled; %d pending items withdrawn\n", cancelled)
	if cancelled > 0 {
		fmt.Println("Items currently in progress will finish and resolve normally.")
	}
	return nil
}

func runCampaignList(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(campaignUser)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	ctx := context.Background()
	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	campaigns, err := database.ListCampaigns(ctx, userID, 50)
	if err != nil {
		return err
	}
	if len(campaigns) == 0 {
		fmt.Println("No campaigns found")
		return nil
	}
	for _, c := range campaigns {
		fmt.Printf("%s  %-10s %s\n", c.ID, c.Status, c.Name)
	}
	return nil
}

func setCampaignStatus(idArg string, status db.CampaignStatus, reason string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}
	campaignID, err := uuid.Parse(idArg)
	if err != nil {
		return fmt.Errorf("invalid campaign id: %w", err)
	}

	ctx := context.Background()
	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.SetCampaignStatus(ctx, campaignID, status, reason); err != nil {
		return err
	}
	fmt.Printf("Campaign %s is now %s\n", campaignID, status)
	return nil
}
