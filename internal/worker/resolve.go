package worker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/apply-engine/internal/apply"
	"github.com/jonathan/apply-engine/internal/db"
	"github.com/jonathan/apply-engine/internal/notify"
	"github.com/jonathan/apply-engine/internal/platform"
)

// resolveSuccess completes the item and, when it was the campaign's last
// runnable item, announces the campaign as finished.
func (w *Worker) resolveSuccess(ctx context.Context, item *db.QueueItem, p platform.Platform, result *apply.Result) {
	w.limiter.RecordSuccess(p)
	w.releaseSession(ctx, p, true)

	var appID *uuid.UUID
	message := ""
	if result != nil {
		message = result.Message
		if result.ApplicationID != uuid.Nil {
			id := result.ApplicationID
			appID = &id
		}
	}

	if err := w.store.CompleteItem(ctx, item.ID, appID, db.ItemCompleted, item.Attempts+1, ""); err != nil {
		log.Printf("[Worker] failed to complete item %s: %v", item.ID, err)
		return
	}
	w.mu.Lock()
	w.stats.Completed++
	w.mu.Unlock()
	log.Printf("[Worker] item %s completed on %s", item.ID, p)

	notify.Dispatch(ctx, w.sink, notify.Event{
		Type:       notify.EventApplicationSubmitted,
		UserID:     item.UserID,
		CampaignID: item.CampaignID,
		ItemID:     &item.ID,
		Platform:   string(p),
		Message:    message,
	})

	w.checkCampaignDone(ctx, item)
}

// resolveFailure classifies the error and routes the item: cooldown and
// backoff for rate limits, terminal failure for permanent errors, bounded
// retries for everything else.
func (w *Worker) resolveFailure(ctx context.Context, item *db.QueueItem, p platform.Platform, applyErr error) {
	w.releaseSession(ctx, p, false)
	attempts := item.Attempts + 1

	switch {
	case apply.IsRateLimited(applyErr):
		w.limiter.RecordFailure(p, applyErr.Error())
		until := w.setCooldown(item.UserID, p)
		log.Printf("[Worker] %s rate limited on %s, cooling down until %s", item.UserID, p, until.Format(time.RFC3339))

		notify.Dispatch(ctx, w.sink, notify.Event{
			Type:       notify.EventRateLimited,
			UserID:     item.UserID,
			CampaignID: item.CampaignID,
			ItemID:     &item.ID,
			Platform:   string(p),
			Message:    applyErr.Error(),
		})

		if apply.IsDailyLimit(applyErr) {
			w.pauseCampaign(ctx, item, "daily application limit reached: "+applyErr.Error())
		}

		if attempts < item.MaxAttempts {
			nextRun := w.now().Add(w.policy.NextDelay(attempts, true))
			if nextRun.Before(until) {
				nextRun = until
			}
			w.scheduleRetry(ctx, item, attempts, nextRun, applyErr.Error())
			return
		}
		w.failItem(ctx, item, p, applyErr.Error())
		w.pauseCampaign(ctx, item, "item failed after repeated rate limiting: "+applyErr.Error())

	case apply.IsPermanent(applyErr):
		log.Printf("[Worker] item %s failed permanently: %v", item.ID, applyErr)
		w.failItem(ctx, item, p, applyErr.Error())
		w.pauseCampaign(ctx, item, "permanent error: "+applyErr.Error())

	default:
		if attempts < item.MaxAttempts {
			nextRun := w.now().Add(w.policy.NextDelay(attempts, false))
			w.scheduleRetry(ctx, item, attempts, nextRun, applyErr.Error())
			return
		}
		log.Printf("[Worker] item %s exhausted %d attempts: %v", item.ID, item.MaxAttempts, applyErr)
		w.failItem(ctx, item, p, applyErr.Error())
		w.pauseCampaign(ctx, item, "attempts exhausted: "+applyErr.Error())
	}
}

func (w *Worker) releaseSession(ctx context.Context, p platform.Platform, success bool) {
	if w.pool != nil {
		w.pool.Release(ctx, p, success)
	}
}

func (w *Worker) scheduleRetry(ctx context.Context, item *db.QueueItem, attempts int, nextRun time.Time, reason string) {
	if err := w.store.ScheduleRetry(ctx, item.ID, attempts, nextRun, reason); err != nil {
		log.Printf("[Worker] failed to schedule retry for %s: %v", item.ID, err)
		return
	}
	w.mu.Lock()
	w.stats.Retried++
	w.mu.Unlock()
	log.Printf("[Worker] item %s retry %d/%d at %s", item.ID, attempts, item.MaxAttempts, nextRun.Format(time.RFC3339))
}

func (w *Worker) failItem(ctx context.Context, item *db.QueueItem, p platform.Platform, reason string) {
	if err := w.store.CompleteItem(ctx, item.ID, nil, db.ItemFailed, item.Attempts+1, reason); err != nil {
		log.Printf("[Worker] failed to fail item %s: %v", item.ID, err)
		return
	}
	w.mu.Lock()
	w.stats.Failed++
	w.mu.Unlock()

	notify.Dispatch(ctx, w.sink, notify.Event{
		Type:       notify.EventApplicationFailed,
		UserID:     item.UserID,
		CampaignID: item.CampaignID,
		ItemID:     &item.ID,
		Platform:   string(p),
		Message:    reason,
	})
}

// pauseCampaign stops the item's campaign so the operator can intervene.
// No-op for ad-hoc items.
func (w *Worker) pauseCampaign(ctx context.Context, item *db.QueueItem, reason string) {
	if item.CampaignID == nil {
		return
	}
	if err := w.store.SetCampaignStatus(ctx, *item.CampaignID, db.CampaignPaused, reason); err != nil {
		log.Printf("[Worker] failed to pause campaign %s: %v", *item.CampaignID, err)
		return
	}
	log.Printf("[Worker] campaign %s paused: %s", *item.CampaignID, reason)

	notify.Dispatch(ctx, w.sink, notify.Event{
		Type:       notify.EventCampaignPaused,
		UserID:     item.UserID,
		CampaignID: item.CampaignID,
		Message:    reason,
	})
}

// checkCampaignDone announces campaign completion after its last item
// resolves.
func (w *Worker) checkCampaignDone(ctx context.Context, item *db.QueueItem) {
	if item.CampaignID == nil {
		return
	}
	counts, err := w.store.GetQueueCounts(ctx, item.CampaignID)
	if err != nil {
		log.Printf("[Worker] failed to get queue counts for campaign %s: %v", *item.CampaignID, err)
		return
	}
	if counts.Queued+counts.InProgress+counts.RetryScheduled > 0 {
		return
	}
	log.Printf("[Worker] campaign %s has no runnable items left (%d completed, %d failed)",
		*item.CampaignID, counts.Completed, counts.Failed)

	notify.Dispatch(ctx, w.sink, notify.Event{
		Type:       notify.EventCampaignCompleted,
		UserID:     item.UserID,
		CampaignID: item.CampaignID,
		Message:    "all queue items resolved",
	})
}
