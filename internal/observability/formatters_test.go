package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/apply-engine/internal/batch"
	"github.com/jonathan/apply-engine/internal/db"
	"github.com/jonathan/apply-engine/internal/platform"
	"github.com/jonathan/apply-engine/internal/ratelimit"
	"github.com/jonathan/apply-engine/internal/session"
	"github.com/jonathan/apply-engine/internal/worker"
)

func TestPrintQueueCounts(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintQueueCounts(db.QueueCounts{Queued: 3, Completed: 7, Failed: 1})

	out := buf.String()
	assert.Contains(t, out, "QUEUE STATUS")
	assert.Contains(t, out, "Queued:           3")
	assert.Contains(t, out, "Total:            11")
}

func TestPrintBatchSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	start := time.Now()
	summary := &batch.Summary{
		Total:      3,
		Succeeded:  2,
		Failed:     1,
		Chunks:     1,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Results: []batch.ItemResult{
			{JobURL: "https://boards.greenhouse.io/acme/jobs/1", Status: "submitted"},
			{JobURL: "https://boards.greenhouse.io/acme/jobs/2", Status: "submitted"},
			{JobURL: "https://boards.greenhouse.io/acme/jobs/3", Status: "error", Error: "selector timeout"},
		},
	}

	p.PrintBatchSummary(summary)

	out := buf.String()
	assert.Contains(t, out, "BATCH SUMMARY")
	assert.Contains(t, out, "Succeeded:    2")
	assert.Contains(t, out, "Failures:")
	assert.Contains(t, out, "selector timeout")
}

func TestPrintBatchSummary_NilIsNoop(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintBatchSummary(nil)
	assert.Empty(t, buf.String())
}

func TestPrintLimiterStats_SortedByPlatform(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintLimiterStats(map[platform.Platform]ratelimit.Stats{
		platform.PlatformLever:      {Allowed: 2, CircuitState: ratelimit.CircuitClosed},
		platform.PlatformGreenhouse: {Allowed: 5, CircuitState: ratelimit.CircuitClosed},
	})

	out := buf.String()
	assert.Contains(t, out, "RATE LIMITER")
	assert.Less(t, strings.Index(out, "greenhouse"), strings.Index(out, "lever"))
}

func TestPrintLimiterStats_EmptyIsNoop(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintLimiterStats(nil)
	assert.Empty(t, buf.String())
}

func TestPrintPoolStats(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintPoolStats(session.Stats{Created: 2, Reused: 10, ActiveSessions: 1})

	out := buf.String()
	assert.Contains(t, out, "SESSION POOL")
	assert.Contains(t, out, "Reused:        10")
}

func TestPrintWorkerStats(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintWorkerStats(worker.Stats{Claimed: 4, Completed: 3, Retried: 1})

	out := buf.String()
	assert.Contains(t, out, "WORKER")
	assert.Contains(t, out, "Claimed:    4")
}
