package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrAlreadyResolved is returned when completeItem/scheduleRetry targets an
// item that already reached a terminal status. Resolution happens exactly
// once; late calls are rejected rather than silently rewriting history.
var ErrAlreadyResolved = errors.New("queue item already resolved")

// itemColumns is the scan list shared by every query returning queue items.
const itemColumns = `id, campaign_id, user_id, job_url, platform, status, priority,
	attempts, max_attempts, next_run_at, locked_at, locked_by, last_error,
	payload, application_id, created_at, updated_at`

func scanItem(row pgx.Row) (*QueueItem, error) {
	var item QueueItem
	err := row.Scan(&item.ID, &item.CampaignID, &item.UserID, &item.JobURL,
		&item.Platform, &item.Status, &item.Priority, &item.Attempts,
		&item.MaxAttempts, &item.NextRunAt, &item.LockedAt, &item.LockedBy,
		&item.LastError, &item.Payload, &item.ApplicationID,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Enqueue inserts items for a user, skipping any whose (user, URL) already has
// a non-terminal entry. The partial unique index enforces the dedup, so two
// concurrent enqueues of the same URL cannot both insert; the loser's row is
// simply skipped. Returns the number actually inserted. campaignID may be nil
// for ad-hoc items.
func (db *DB) Enqueue(ctx context.Context, userID uuid.UUID, campaignID *uuid.UUID,
	items []EnqueueItem, priority, maxAttempts int) (int, error) {

	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin enqueue transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for _, item := range items {
		var plat *string
		if item.Platform != "" {
			plat = &item.Platform
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO job_queue (campaign_id, user_id, job_url, platform, priority, max_attempts, payload)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (user_id, job_url)
			 WHERE status NOT IN ('completed', 'failed', 'cancelled')
			 DO NOTHING`,
			campaignID, userID, item.JobURL, plat, priority, maxAttempts, item.Payload,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to enqueue %s: %w", item.JobURL, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit enqueue: %w", err)
	}
	return inserted, nil
}

// ClaimNext atomically claims the single most eligible item: highest priority
// (lowest number), earliest next_run_at, oldest first, with a running (or
// absent) campaign. FOR UPDATE SKIP LOCKED inside the subselect makes the
// claim linearizable: two concurrent claimers can never receive the same row.
// Returns nil when nothing is runnable.
func (db *DB) ClaimNext(ctx context.Context, workerID string) (*QueueItem, error) {
	item, err := scanItem(db.pool.QueryRow(ctx,
		`UPDATE job_queue
		 SET status = 'in_progress', locked_at = NOW(), locked_by = $1, updated_at = NOW()
		 WHERE id = (
		     SELECT q.id FROM job_queue q
		     LEFT JOIN campaigns c ON c.id = q.campaign_id
		     WHERE q.status IN ('queued', 'retry_scheduled')
		       AND q.next_run_at <= NOW()
		       AND q.locked_by IS NULL
		       AND (q.campaign_id IS NULL OR c.status = 'running')
		     ORDER BY q.priority ASC, q.next_run_at ASC, q.created_at ASC
		     LIMIT 1
		     FOR UPDATE OF q SKIP LOCKED
		 )
		 RETURNING `+itemColumns,
		workerID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim next queue item: %w", err)
	}
	return item, nil
}

// CompleteItem resolves an item to a terminal status, clearing the lock,
// recording the final attempt count, and stamping the application id when one
// was created. The caller passes attempts because the row's counter only
// advances on ScheduleRetry; the attempt that just resolved the item has not
// been written yet. Calling CompleteItem on an already terminal item returns
// ErrAlreadyResolved.
func (db *DB) CompleteItem(ctx context.Context, id uuid.UUID, applicationID *uuid.UUID,
	status ItemStatus, attempts int, lastError string) error {

	if !status.Terminal() {
		return fmt.Errorf("complete requires a terminal status, got %q", status)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE job_queue
		 SET status = $2,
		     application_id = COALESCE($3, application_id),
		     attempts = $4,
		     last_error = NULLIF($5, ''),
		     locked_at = NULL, locked_by = NULL, updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`,
		id, status, applicationID, attempts, lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to complete queue item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// ScheduleRetry releases the item back to the queue with an updated attempt
// count and a backoff target. Terminal items are rejected.
func (db *DB) ScheduleRetry(ctx context.Context, id uuid.UUID, attempts int,
	nextRunAt time.Time, lastError string) error {

	tag, err := db.pool.Exec(ctx,
		`UPDATE job_queue
		 SET status = 'retry_scheduled', attempts = $2, next_run_at = $3,
		     last_error = NULLIF($4, ''),
		     locked_at = NULL, locked_by = NULL, updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`,
		id, attempts, nextRunAt, lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// ReleaseLock drops a worker's claim without resolving the item, returning an
// in-progress item to queued so another worker can pick it up. Used on
// shutdown. Only the lock holder may release.
func (db *DB) ReleaseLock(ctx context.Context, id uuid.UUID, workerID string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE job_queue
		 SET status = CASE WHEN status = 'in_progress' THEN 'queued' ELSE status END,
		     locked_at = NULL, locked_by = NULL, updated_at = NOW()
		 WHERE id = $1 AND locked_by = $2`,
		id, workerID,
	)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// ReclaimExpiredLocks returns items whose worker died mid-claim to the queue.
// An in_progress item whose lock is older than the lease is assumed orphaned.
// Attempts are not incremented: the crashed attempt's outcome is unknown, so
// the re-run counts as the same attempt.
func (db *DB) ReclaimExpiredLocks(ctx context.Context, lease time.Duration) (int, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE job_queue
		 SET status = 'queued', locked_at = NULL, locked_by = NULL, updated_at = NOW()
		 WHERE status = 'in_progress'
		   AND locked_at < NOW() - make_interval(secs => $1)`,
		lease.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim expired locks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CancelCampaignQueue transitions all non-terminal, unlocked items of a
// campaign to cancelled. Locked items are left to finish and self-resolve.
// Returns the number of items cancelled.
func (db *DB) CancelCampaignQueue(ctx context.Context, campaignID uuid.UUID) (int, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE job_queue
		 SET status = 'cancelled', locked_at = NULL, locked_by = NULL, updated_at = NOW()
		 WHERE campaign_id = $1
		   AND status NOT IN ('completed', 'failed', 'cancelled')
		   AND locked_by IS NULL`,
		campaignID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel campaign queue: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetItem retrieves one queue item by id.
func (db *DB) GetItem(ctx context.Context, id uuid.UUID) (*QueueItem, error) {
	item, err := scanItem(db.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM job_queue WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return item, nil
}

// GetQueueCounts returns per-status counts, optionally scoped to a campaign.
func (db *DB) GetQueueCounts(ctx context.Context, campaignID *uuid.UUID) (QueueCounts, error) {
	query := `SELECT status, COUNT(*) FROM job_queue`
	args := []any{}
	if campaignID != nil {
		query += ` WHERE campaign_id = $1`
		args = append(args, *campaignID)
	}
	query += ` GROUP BY status`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return QueueCounts{}, fmt.Errorf("failed to get queue counts: %w", err)
	}
	defer rows.Close()

	var counts QueueCounts
	for rows.Next() {
		var status ItemStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return QueueCounts{}, fmt.Errorf("failed to scan queue counts: %w", err)
		}
		switch status {
		case ItemQueued:
			counts.Queued = n
		case ItemInProgress:
			counts.InProgress = n
		case ItemRetryScheduled:
			counts.RetryScheduled = n
		case ItemCompleted:
			counts.Completed = n
		case ItemFailed:
			counts.Failed = n
		case ItemCancelled:
			counts.Cancelled = n
		}
	}
	return counts, rows.Err()
}

// ListQueueItems returns recent items, optionally scoped to a campaign.
func (db *DB) ListQueueItems(ctx context.Context, campaignID *uuid.UUID, limit int) ([]QueueItem, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + itemColumns + ` FROM job_queue`
	args := []any{}
	argNum := 1
	if campaignID != nil {
		query += fmt.Sprintf(` WHERE campaign_id = $%d`, argNum)
		args = append(args, *campaignID)
		argNum++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argNum)
	args = append(args, limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
