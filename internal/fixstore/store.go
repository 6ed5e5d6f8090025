package fixstore

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Bounds on the store's queues. Oldest entries are dropped first.
const (
	maxPending         = 10
	maxFixesPerPattern = 5
	maxFailures        = 10
	maxDetailedErrors  = 10

	maxMessageLen     = 500
	maxSummaryLen     = 200
	maxDetailedErrLen = 300
	maxPatchBytes     = 10 * 1024
)

// storeVersion is the persisted schema version.
const storeVersion = 1

// Fix records one edit that resolved an error pattern.
type Fix struct {
	// FilesChanged are the files the fix touched.
	FilesChanged []string `json:"files_changed"`
	// EditSummary is a short description of the edit.
	EditSummary string `json:"edit_summary"`
	// TaskID is the task that produced the fix.
	TaskID string `json:"task_id"`
	// RecordedAt is when the fix was recorded.
	RecordedAt time.Time `json:"recorded_at"`
	// PatchData is an optional unified diff captured at recording
	// time, replayable via git apply. Diffs over 10KB are not stored.
	PatchData string `json:"patch_data,omitempty"`
	// AutoApplyCount is how many times the patch has been auto-applied.
	AutoApplyCount int `json:"auto_apply_count,omitempty"`
	// AutoApplySuccessRate is the EMA of auto-apply outcomes.
	AutoApplySuccessRate float64 `json:"auto_apply_success_rate,omitempty"`
}

// Pattern aggregates everything known about one error signature.
type Pattern struct {
	Signature     string `json:"signature"`
	Category      string `json:"category"`
	SampleMessage string `json:"sample_message"`
	// Fixes holds the last 5 recorded fixes, oldest first.
	Fixes []Fix `json:"fixes"`
	// Occurrences counts how many times the error has been seen.
	Occurrences int `json:"occurrences"`
	// FixSuccesses counts confirmed successful fix applications. It is
	// incremented independently of Occurrences and may exceed it, so
	// the displayed rate can run past 100%.
	FixSuccesses int       `json:"fix_successes"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// PendingError is an error awaiting resolution, keyed by task ID.
// A task has at most one pending error at a time.
type PendingError struct {
	TaskID         string    `json:"task_id"`
	Signature      string    `json:"signature"`
	Category       string    `json:"category"`
	Message        string    `json:"message"`
	FilesBeforeFix []string  `json:"files_before_fix,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// PermanentFailure is the terminal record for an error whose retries
// were exhausted.
type PermanentFailure struct {
	TaskID         string    `json:"task_id"`
	Signature      string    `json:"signature"`
	Category       string    `json:"category"`
	Objective      string    `json:"objective,omitempty"`
	DetailedErrors []string  `json:"detailed_errors,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// storeFile is the persisted JSON schema.
type storeFile struct {
	Patterns map[string]*Pattern `json:"patterns"`
	Pending  []PendingError      `json:"pending"`
	// Failures may be absent in stores written before the field
	// existed; loading defaults it to empty.
	Failures    []PermanentFailure `json:"failures"`
	Version     int                `json:"version"`
	LastUpdated time.Time          `json:"last_updated"`
}

// Store is the durable error-fix pattern store. Every mutating call
// updates the in-memory state and persists it before returning.
type Store struct {
	path string
	mu   sync.Mutex
	data storeFile
}

// Open loads (or initializes) the store at the given path. A corrupt
// or non-object file resets to an empty store rather than failing.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	s.data = loadStoreFile(path)
	return s, nil
}

// loadStoreFile reads the persisted store, tolerating missing files,
// corrupt JSON, and legacy schemas.
func loadStoreFile(path string) storeFile {
	empty := storeFile{
		Patterns: make(map[string]*Pattern),
		Version:  storeVersion,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return empty
	}

	var loaded storeFile
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Printf("[fixstore] resetting corrupt store %s: %v", path, err)
		return empty
	}
	if loaded.Patterns == nil {
		loaded.Patterns = make(map[string]*Pattern)
	}
	if loaded.Failures == nil {
		loaded.Failures = []PermanentFailure{}
	}
	loaded.Version = storeVersion
	return loaded
}

// persist writes the store atomically (write-temp-then-rename).
// Must be called with the lock held.
func (s *Store) persist() error {
	s.data.LastUpdated = time.Now()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".fixstore-*")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename store: %w", err)
	}
	return nil
}

// truncate limits s to max bytes.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// ensurePattern returns the pattern for the signature, creating it on
// first sight. Must be called with the lock held.
func (s *Store) ensurePattern(sig, category, message string) *Pattern {
	now := time.Now()
	p, ok := s.data.Patterns[sig]
	if !ok {
		p = &Pattern{
			Signature:     sig,
			Category:      category,
			SampleMessage: truncate(message, maxMessageLen),
			FirstSeen:     now,
		}
		s.data.Patterns[sig] = p
	}
	p.LastSeen = now
	return p
}

// RecordPendingError registers a verification failure awaiting a fix.
// It bumps the pattern's occurrence count and queues a pending entry
// for the task, replacing any previous one (a task has at most one
// pending error). The pending queue is capped globally at 10; the
// oldest entries are dropped first. Returns the error signature.
func (s *Store) RecordPendingError(taskID, category, message string, filesBeforeFix []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig := Signature(category, message)
	p := s.ensurePattern(sig, category, message)
	p.Occurrences++

	s.removePendingLocked(taskID)
	s.data.Pending = append(s.data.Pending, PendingError{
		TaskID:         taskID,
		Signature:      sig,
		Category:       category,
		Message:        truncate(message, maxMessageLen),
		FilesBeforeFix: append([]string{}, filesBeforeFix...),
		RecordedAt:     time.Now(),
	})
	if len(s.data.Pending) > maxPending {
		s.data.Pending = s.data.Pending[len(s.data.Pending)-maxPending:]
	}

	return sig, s.persist()
}

// removePendingLocked drops the pending entry for a task, if any.
func (s *Store) removePendingLocked(taskID string) *PendingError {
	for i, pe := range s.data.Pending {
		if pe.TaskID == taskID {
			removed := pe
			s.data.Pending = append(s.data.Pending[:i], s.data.Pending[i+1:]...)
			return &removed
		}
	}
	return nil
}

// RecordSuccessfulFix correlates a task's resolved failure with the
// edit that fixed it. The fix's file set is the difference between the
// files changed now and the files changed before the failure; when the
// difference is empty the first 5 changed files are used instead.
// Calling without a prior pending error is a no-op.
func (s *Store) RecordSuccessfulFix(taskID string, filesChangedNow []string, editSummary string) error {
	return s.RecordSuccessfulFixWithPatch(taskID, filesChangedNow, editSummary, "")
}

// RecordSuccessfulFixWithPatch is RecordSuccessfulFix with a captured
// unified diff for later auto-remediation. Patches over 10KB are
// dropped rather than stored.
func (s *Store) RecordSuccessfulFixWithPatch(taskID string, filesChangedNow []string, editSummary, patchData string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.removePendingLocked(taskID)
	if pending == nil {
		return nil
	}

	p, ok := s.data.Patterns[pending.Signature]
	if !ok {
		p = s.ensurePattern(pending.Signature, pending.Category, pending.Message)
	}

	fixFiles := fileDifference(filesChangedNow, pending.FilesBeforeFix)
	if len(fixFiles) == 0 {
		fixFiles = filesChangedNow
		if len(fixFiles) > 5 {
			fixFiles = fixFiles[:5]
		}
	}

	if len(patchData) > maxPatchBytes {
		patchData = ""
	}

	p.Fixes = append(p.Fixes, Fix{
		FilesChanged: append([]string{}, fixFiles...),
		EditSummary:  truncate(editSummary, maxSummaryLen),
		TaskID:       taskID,
		RecordedAt:   time.Now(),
		PatchData:    patchData,
	})
	if len(p.Fixes) > maxFixesPerPattern {
		p.Fixes = p.Fixes[len(p.Fixes)-maxFixesPerPattern:]
	}
	p.LastSeen = time.Now()

	return s.persist()
}

// fileDifference returns the entries of after that are not in before.
func fileDifference(after, before []string) []string {
	seen := make(map[string]bool, len(before))
	for _, f := range before {
		seen[f] = true
	}
	var diff []string
	for _, f := range after {
		if !seen[f] {
			diff = append(diff, f)
		}
	}
	return diff
}

// ClearPendingError drops a task's pending entry unconditionally.
// Used when a task is aborted.
func (s *Store) ClearPendingError(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removePendingLocked(taskID) == nil {
		return nil
	}
	return s.persist()
}

// RecordPermanentFailure records the terminal outcome of an error
// whose retries were exhausted. It bumps the pattern's occurrence
// count, appends a failure record (capped at 10 globally, with at most
// 10 detailed errors of 300 chars each), and clears the task's pending
// entry: a permanent failure replaces a successful fix, it does not
// accompany one.
func (s *Store) RecordPermanentFailure(taskID, category, message, objective string, detailedErrors []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig := Signature(category, message)
	p := s.ensurePattern(sig, category, message)
	p.Occurrences++

	if len(detailedErrors) > maxDetailedErrors {
		detailedErrors = detailedErrors[:maxDetailedErrors]
	}
	trimmed := make([]string, 0, len(detailedErrors))
	for _, e := range detailedErrors {
		trimmed = append(trimmed, truncate(e, maxDetailedErrLen))
	}

	s.data.Failures = append(s.data.Failures, PermanentFailure{
		TaskID:         taskID,
		Signature:      sig,
		Category:       category,
		Objective:      objective,
		DetailedErrors: trimmed,
		RecordedAt:     time.Now(),
	})
	if len(s.data.Failures) > maxFailures {
		s.data.Failures = s.data.Failures[len(s.data.Failures)-maxFailures:]
	}

	s.removePendingLocked(taskID)

	return s.persist()
}

// MarkFixSuccessful confirms that a previously recorded fix for the
// error pattern worked. The counter is independent of Occurrences.
func (s *Store) MarkFixSuccessful(category, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig := Signature(category, message)
	p, ok := s.data.Patterns[sig]
	if !ok {
		return nil
	}
	p.FixSuccesses++
	return s.persist()
}

// FindFixSuggestions returns the pattern's fixes most recent first, or
// nil when the pattern is unknown or has no fixes.
func (s *Store) FindFixSuggestions(category, message string) []Fix {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.data.Patterns[Signature(category, message)]
	if !ok || len(p.Fixes) == 0 {
		return nil
	}

	fixes := make([]Fix, len(p.Fixes))
	for i, f := range p.Fixes {
		fixes[len(p.Fixes)-1-i] = f
	}
	return fixes
}

// Pattern returns a copy of the pattern for an error, or nil.
func (s *Store) Pattern(category, message string) *Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.data.Patterns[Signature(category, message)]
	if !ok {
		return nil
	}
	cp := *p
	cp.Fixes = append([]Fix{}, p.Fixes...)
	return &cp
}

// Pending returns a copy of the pending queue, oldest first.
func (s *Store) Pending() []PendingError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PendingError{}, s.data.Pending...)
}

// Failures returns a copy of the permanent failure queue, oldest first.
func (s *Store) Failures() []PermanentFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PermanentFailure{}, s.data.Failures...)
}

// PatternCount returns the number of known patterns.
func (s *Store) PatternCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.Patterns)
}

// Patterns returns copies of every known pattern, most recently seen
// first.
func (s *Store) Patterns() []Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Pattern, 0, len(s.data.Patterns))
	for _, p := range s.data.Patterns {
		cp := *p
		cp.Fixes = append([]Fix{}, p.Fixes...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// PruneOldPatterns deletes stale patterns: those with no fixes, no
// activity within maxAge, and fewer than 5 occurrences. Patterns with
// any fix, recent activity, or a high occurrence count are retained
// regardless of age. Returns the number deleted.
func (s *Store) PruneOldPatterns(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	deleted := 0
	for sig, p := range s.data.Patterns {
		if len(p.Fixes) == 0 && p.LastSeen.Before(cutoff) && p.Occurrences < 5 {
			delete(s.data.Patterns, sig)
			deleted++
		}
	}

	if deleted == 0 {
		return 0, nil
	}
	return deleted, s.persist()
}
