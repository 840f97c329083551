// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/apply-engine/internal/batch"
	"github.com/jonathan/apply-engine/internal/db"
	"github.com/jonathan/apply-engine/internal/platform"
	"github.com/jonathan/apply-engine/internal/ratelimit"
	"github.com/jonathan/apply-engine/internal/session"
	"github.com/jonathan/apply-engine/internal/worker"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintQueueCounts outputs a per-status summary of the queue segment.
func (p *Printer) PrintQueueCounts(counts db.QueueCounts) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Queued:           %d\n", counts.Queued))
	sb.WriteString(fmt.Sprintf("In progress:      %d\n", counts.InProgress))
	sb.WriteString(fmt.Sprintf("Retry scheduled:  %d\n", counts.RetryScheduled))
	sb.WriteString(fmt.Sprintf("Completed:        %d\n", counts.Completed))
	sb.WriteString(fmt.Sprintf("Failed:           %d\n", counts.Failed))
	sb.WriteString(fmt.Sprintf("Cancelled:        %d\n", counts.Cancelled))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Total:            %d", counts.Total()))

	p.printBox("QUEUE STATUS", sb.String())
}

// PrintBatchSummary outputs the aggregate outcome of a batch run, listing the
// first few failures for quick triage.
func (p *Printer) PrintBatchSummary(summary *batch.Summary) {
	if summary == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Jobs:         %d in %d chunks\n", summary.Total, summary.Chunks))
	sb.WriteString(fmt.Sprintf("Succeeded:    %d\n", summary.Succeeded))
	sb.WriteString(fmt.Sprintf("Failed:       %d\n", summary.Failed))
	sb.WriteString(fmt.Sprintf("Rate limited: %d\n", summary.RateLimited))
	if !summary.FinishedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Duration:     %s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second)))
	}

	var failures []batch.ItemResult
	for _, r := range summary.Results {
		if r.Error != "" {
			failures = append(failures, r)
		}
	}
	if len(failures) > 0 {
		sb.WriteString("\nFailures:\n")
		count := min(len(failures), maxItemsToShow)
		for i := 0; i < count; i++ {
			f := failures[i]
			url := f.JobURL
			if len(url) > 40 {
				url = url[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf("  ⚠ %s\n", url))
			msg := f.Error
			if len(msg) > 45 {
				msg = msg[:42] + "..."
			}
			sb.WriteString(fmt.Sprintf("    %s\n", msg))
		}
		if len(failures) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(failures)-maxItemsToShow))
		}
	}

	p.printBox("BATCH SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintLimiterStats outputs per-platform rate limiter activity, sorted by
// platform name for stable output.
func (p *Printer) PrintLimiterStats(stats map[platform.Platform]ratelimit.Stats) {
	if len(stats) == 0 {
		return
	}

	platforms := make([]string, 0, len(stats))
	for plat := range stats {
		platforms = append(platforms, string(plat))
	}
	sort.Strings(platforms)

	var sb strings.Builder
	for i, name := range platforms {
		s := stats[platform.Platform(name)]
		sb.WriteString(fmt.Sprintf("%s\n", name))
		sb.WriteString(fmt.Sprintf("  allowed %d  denied %d  delayed %d\n", s.Allowed, s.Denied, s.Delayed))
		sb.WriteString(fmt.Sprintf("  hour %d  today %d  circuit %s", s.HourlyCount, s.DailyCount, s.CircuitState))
		if i < len(platforms)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("RATE LIMITER", sb.String())
}

// PrintPoolStats outputs browser session pool activity.
func (p *Printer) PrintPoolStats(stats session.Stats) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Active:        %d\n", stats.ActiveSessions))
	sb.WriteString(fmt.Sprintf("Created:       %d\n", stats.Created))
	sb.WriteString(fmt.Sprintf("Reused:        %d\n", stats.Reused))
	sb.WriteString(fmt.Sprintf("Recycled:      %d\n", stats.Recycled))
	sb.WriteString(fmt.Sprintf("Probes:        %d (%d failed)", stats.Probes, stats.FailedProbes))

	p.printBox("SESSION POOL", sb.String())
}

// PrintWorkerStats outputs the worker's counters since start.
func (p *Printer) PrintWorkerStats(stats worker.Stats) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Claimed:    %d\n", stats.Claimed))
	sb.WriteString(fmt.Sprintf("Completed:  %d\n", stats.Completed))
	sb.WriteString(fmt.Sprintf("Failed:     %d\n", stats.Failed))
	sb.WriteString(fmt.Sprintf("Retried:    %d\n", stats.Retried))
	sb.WriteString(fmt.Sprintf("Cooldowns:  %d", stats.Cooldowns))

	p.printBox("WORKER", sb.String())
}
