// Package types provides validated request types shared by the CLI commands.
package types

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

// EnqueueRequest represents a request to add job URLs to the work queue.
type EnqueueRequest struct {
	UserID      string   `json:"user_id" validate:"required,uuid4"`
	CampaignID  string   `json:"campaign_id,omitempty" validate:"omitempty,uuid4"`
	JobURLs     []string `json:"job_urls" validate:"required,min=1,max=500,dive,required,url"`
	Priority    int      `json:"priority,omitempty" validate:"gte=0,lte=100"`
	MaxAttempts int      `json:"max_attempts,omitempty" validate:"gte=0,lte=10"`
}

// CreateCampaignRequest represents a request to create a campaign.
type CreateCampaignRequest struct {
	UserID string          `json:"user_id" validate:"required,uuid4"`
	Name   string          `json:"name" validate:"required,min=1,max=200"`
	Config json.RawMessage `json:"config,omitempty"`
}

// BatchJob is one entry in a batch input file.
type BatchJob struct {
	JobURL   string          `json:"job_url" validate:"required,url"`
	Priority int             `json:"priority,omitempty" validate:"gte=0,lte=100"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// BatchRequest represents a batch input file: a user plus the jobs to run.
type BatchRequest struct {
	UserID string     `json:"user_id" validate:"required,uuid4"`
	Jobs   []BatchJob `json:"jobs" validate:"required,min=1,dive"`
}

// Validate validates the EnqueueRequest using the validator.
func (r *EnqueueRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the CreateCampaignRequest using the validator.
func (r *CreateCampaignRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the BatchRequest using the validator.
func (r *BatchRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
