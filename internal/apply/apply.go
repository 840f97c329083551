// Package apply defines the contract between the execution engine and the
// externally supplied application-submission function.
package apply

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jonathan/apply-engine/internal/platform"
)

// Result statuses reported by an apply function. Anything outside this set is
// treated as an ordinary success or failure by the engine.
const (
	StatusSubmitted     = "submitted"
	StatusPendingReview = "pending_review"
	StatusExternal      = "external"
	StatusError         = "error"
)

// Request carries everything the external apply step needs for one item.
// Payload is opaque to the engine: it is stored as raw JSON on the queue item
// and handed through unmodified.
type Request struct {
	UserID   uuid.UUID
	JobURL   string
	Platform platform.Platform
	Payload  json.RawMessage
	Options  Options
}

// Options are campaign-level settings that shape a single submission.
// Unknown fields in the stored campaign config are ignored so the schema can
// evolve without breaking queued work.
type Options struct {
	AutoSubmit          bool   `json:"auto_submit"`
	GenerateCoverLetter bool   `json:"generate_cover_letter"`
	CoverLetterTone     string `json:"cover_letter_tone"`
	CampaignID          string `json:"campaign_id,omitempty"`
	QueueItemID         string `json:"queue_item_id,omitempty"`
}

// DefaultOptions returns the options used when a campaign has no config.
func DefaultOptions() Options {
	return Options{
		AutoSubmit:          false,
		GenerateCoverLetter: true,
		CoverLetterTone:     "professional",
	}
}

// ParseOptions decodes a campaign config blob into Options, applying defaults
// for missing fields and tolerating unknown ones.
func ParseOptions(config json.RawMessage) Options {
	opts := DefaultOptions()
	if len(config) == 0 {
		return opts
	}
	// Best effort: a malformed config falls back to defaults rather than
	// blocking the item.
	_ = json.Unmarshal(config, &opts)
	return opts
}

// Result is the outcome of one submission attempt.
type Result struct {
	ApplicationID uuid.UUID `json:"application_id"`
	Status        string    `json:"status"`
	Message       string    `json:"message,omitempty"`
}

// Func is the externally supplied "attempt one application" operation. It must
// be cancellable via ctx and should return a typed error (RateLimitError,
// PermanentError) when the failure class is known.
type Func func(ctx context.Context, req Request) (*Result, error)
