package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	// CampaignRunning means the worker may claim the campaign's items.
	CampaignRunning CampaignStatus = "running"
	// CampaignPaused means automation stopped; resumable by the operator.
	CampaignPaused CampaignStatus = "paused"
	// CampaignCancelled means the campaign was stopped for good.
	CampaignCancelled CampaignStatus = "cancelled"
)

// Campaign is a named unit of bulk application work. Campaigns are never
// physically deleted, only status-transitioned.
type Campaign struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Name      string          `json:"name"`
	Status    CampaignStatus  `json:"status"`
	Config    json.RawMessage `json:"config,omitempty"`
	LastError *string         `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ItemStatus is the lifecycle state of a queue item.
type ItemStatus string

const (
	// ItemQueued means the item is waiting to be claimed.
	ItemQueued ItemStatus = "queued"
	// ItemInProgress means a worker holds the item's lock.
	ItemInProgress ItemStatus = "in_progress"
	// ItemRetryScheduled means the item failed and waits for next_run_at.
	ItemRetryScheduled ItemStatus = "retry_scheduled"
	// ItemCompleted means the application was submitted.
	ItemCompleted ItemStatus = "completed"
	// ItemFailed means the item exhausted its attempts or hit a permanent error.
	ItemFailed ItemStatus = "failed"
	// ItemCancelled means the item was withdrawn before completion.
	ItemCancelled ItemStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal items are never
// re-claimed and never carry a lock.
func (s ItemStatus) Terminal() bool {
	switch s {
	case ItemCompleted, ItemFailed, ItemCancelled:
		return true
	}
	return false
}

// Runnable reports whether the status makes the item eligible for claiming.
func (s ItemStatus) Runnable() bool {
	return s == ItemQueued || s == ItemRetryScheduled
}

// QueueItem is one scheduled application attempt. Retained indefinitely for
// audit after reaching a terminal status.
type QueueItem struct {
	ID            uuid.UUID       `json:"id"`
	CampaignID    *uuid.UUID      `json:"campaign_id,omitempty"`
	UserID        uuid.UUID       `json:"user_id"`
	JobURL        string          `json:"job_url"`
	Platform      *string         `json:"platform,omitempty"`
	Status        ItemStatus      `json:"status"`
	Priority      int             `json:"priority"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"max_attempts"`
	NextRunAt     time.Time       `json:"next_run_at"`
	LockedAt      *time.Time      `json:"locked_at,omitempty"`
	LockedBy      *string         `json:"locked_by,omitempty"`
	LastError     *string         `json:"last_error,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ApplicationID *uuid.UUID      `json:"application_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AttemptsRemaining reports whether the item has retry budget left after the
// current attempt.
func (q *QueueItem) AttemptsRemaining() bool {
	return q.Attempts+1 < q.MaxAttempts
}

// EnqueueItem is the caller-supplied input for one queue entry.
type EnqueueItem struct {
	JobURL   string          `json:"job_url"`
	Platform string          `json:"platform,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// QueueCounts summarizes a queue segment by status.
type QueueCounts struct {
	Queued         int `json:"queued"`
	InProgress     int `json:"in_progress"`
	RetryScheduled int `json:"retry_scheduled"`
	Completed      int `json:"completed"`
	Failed         int `json:"failed"`
	Cancelled      int `json:"cancelled"`
}

// Total returns the number of items across all statuses.
func (c QueueCounts) Total() int {
	return c.Queued + c.InProgress + c.RetryScheduled + c.Completed + c.Failed + c.Cancelled
}
