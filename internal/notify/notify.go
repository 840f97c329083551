// Package notify delivers best-effort progress events for queue and campaign
// activity. Delivery failures never affect queue state.
package notify

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// EventType classifies what happened.
type EventType string

const (
	EventApplicationSubmitted EventType = "application_submitted"
	EventApplicationFailed    EventType = "application_failed"
	EventCampaignPaused       EventType = "campaign_paused"
	EventCampaignCompleted    EventType = "campaign_completed"
	EventRateLimited          EventType = "rate_limited"
)

// Event is one notification about queue or campaign progress.
type Event struct {
	Type       EventType  `json:"type"`
	UserID     uuid.UUID  `json:"user_id"`
	CampaignID *uuid.UUID `json:"campaign_id,omitempty"`
	ItemID     *uuid.UUID `json:"item_id,omitempty"`
	Platform   string     `json:"platform,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// Sink receives events. Implementations must tolerate concurrent calls.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}

// LogSink writes events to the process log.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, event Event) error {
	log.Printf("[Notify] %s user=%s platform=%s: %s",
		event.Type, event.UserID, event.Platform, event.Message)
	return nil
}

// Dispatch sends an event to the sink, swallowing errors and panics. A nil
// sink is a no-op. Notification is an observer of the pipeline, never a
// participant in it.
func Dispatch(ctx context.Context, sink Sink, event Event) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Notify] sink panicked on %s: %v", event.Type, r)
		}
	}()
	if err := sink.Notify(ctx, event); err != nil {
		log.Printf("[Notify] failed to deliver %s: %v", event.Type, err)
	}
}
