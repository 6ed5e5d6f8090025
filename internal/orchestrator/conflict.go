package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ConflictTracker accumulates which tasks touched which files during a
// batch. Overlaps are informational: the serial merge phase resolves
// them via rebase, so conflicts are logged rather than blocking.
type ConflictTracker struct {
	mu    sync.Mutex
	files map[string][]string // file -> task IDs that modified it
	path  string
}

// NewConflictTracker creates a tracker persisting to path ("" disables
// persistence).
func NewConflictTracker(path string) *ConflictTracker {
	return &ConflictTracker{
		files: make(map[string][]string),
		path:  path,
	}
}

// Record registers the files one task modified.
func (c *ConflictTracker) Record(taskID string, files []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range files {
		c.files[f] = append(c.files[f], taskID)
	}
}

// Conflicts returns every file touched by more than one task, mapped
// to the task IDs involved.
func (c *ConflictTracker) Conflicts() map[string][]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	conflicts := make(map[string][]string)
	for f, ids := range c.files {
		if len(ids) > 1 {
			conflicts[f] = append([]string{}, ids...)
		}
	}
	return conflicts
}

// ConflictedFiles returns the conflicting file names, sorted.
func (c *ConflictTracker) ConflictedFiles() []string {
	conflicts := c.Conflicts()
	files := make([]string, 0, len(conflicts))
	for f := range conflicts {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Save persists the file map as JSON. No-op without a path.
func (c *ConflictTracker) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("create conflict state directory: %w", err)
	}

	data, err := json.MarshalIndent(c.files, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conflict state: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write conflict state: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename conflict state: %w", err)
	}
	return nil
}
