package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// writeCheckpoint persists the summary so far. Called after every chunk so a
// crash mid-run loses at most one chunk of results. Disabled when no
// checkpoint directory is configured.
func (b *Processor) writeCheckpoint(summary *Summary) error {
	if b.cfg.CheckpointDir == "" {
		return nil
	}

	if err := os.MkdirAll(b.cfg.CheckpointDir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	name := fmt.Sprintf("checkpoint_%d.json", b.now().Unix())
	path := filepath.Join(b.cfg.CheckpointDir, name)

	// Write-then-rename keeps a partially written file from being mistaken
	// for a checkpoint.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize checkpoint: %w", err)
	}
	return nil
}

// LoadLatestCheckpoint reads the most recent checkpoint in dir, or nil when
// none exist.
func LoadLatestCheckpoint(dir string) (*Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "checkpoint_") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)

	data, err := os.ReadFile(filepath.Join(dir, names[len(names)-1]))
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return &summary, nil
}
