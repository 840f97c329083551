package db

import "testing"

func TestItemStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   ItemStatus
		expected bool
	}{
		{ItemQueued, false},
		{ItemInProgress, false},
		{ItemRetryScheduled, false},
		{ItemCompleted, true},
		{ItemFailed, true},
		{ItemCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.expected {
				t.Errorf("Terminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestItemStatus_Runnable(t *testing.T) {
	tests := []struct {
		status   ItemStatus
		expected bool
	}{
		{ItemQueued, true},
		{ItemRetryScheduled, true},
		{ItemInProgress, false},
		{ItemCompleted, false},
		{ItemFailed, false},
		{ItemCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Runnable(); got != tt.expected {
				t.Errorf("Runnable() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestQueueItem_AttemptsRemaining(t *testing.T) {
	tests := []struct {
		name        string
		attempts    int
		maxAttempts int
		expected    bool
	}{
		{"fresh item", 0, 3, true},
		{"one left", 1, 3, true},
		{"final attempt", 2, 3, false},
		{"exhausted", 3, 3, false},
		{"single attempt budget", 0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &QueueItem{Attempts: tt.attempts, MaxAttempts: tt.maxAttempts}
			if got := item.AttemptsRemaining(); got != tt.expected {
				t.Errorf("AttemptsRemaining() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestQueueCounts_Total(t *testing.T) {
	counts := QueueCounts{Queued: 3, InProgress: 1, RetryScheduled: 2, Completed: 10, Failed: 1, Cancelled: 4}
	if got := counts.Total(); got != 21 {
		t.Errorf("Total() = %d, want 21", got)
	}
}
