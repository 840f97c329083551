package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const campaignColumns = `id, user_id, name, status, config, last_error, created_at, updated_at`

func scanCampaign(row pgx.Row) (*Campaign, error) {
	var c Campaign
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Status, &c.Config,
		&c.LastError, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCampaign creates a running campaign with an opaque JSON config.
func (db *DB) CreateCampaign(ctx context.Context, userID uuid.UUID, name string,
	config json.RawMessage) (*Campaign, error) {

	campaign, err := scanCampaign(db.pool.QueryRow(ctx,
		`INSERT INTO campaigns (user_id, name, config)
		 VALUES ($1, $2, $3)
		 RETURNING `+campaignColumns,
		userID, name, config,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	return campaign, nil
}

// GetCampaign retrieves a campaign by id. Returns nil when not found.
func (db *DB) GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	campaign, err := scanCampaign(db.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

// SetCampaignStatus transitions a campaign and records why. An empty lastError
// clears the previous one.
func (db *DB) SetCampaignStatus(ctx context.Context, id uuid.UUID,
	status CampaignStatus, lastError string) error {

	tag, err := db.pool.Exec(ctx,
		`UPDATE campaigns
		 SET status = $2, last_error = NULLIF($3, ''), updated_at = NOW()
		 WHERE id = $1`,
		id, status, lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to set campaign status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign not found: %s", id)
	}
	return nil
}

// ListCampaigns returns a user's campaigns, newest first.
func (db *DB) ListCampaigns(ctx context.Context, userID uuid.UUID, limit int) ([]Campaign, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}
