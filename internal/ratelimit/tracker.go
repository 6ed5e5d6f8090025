package ratelimit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/davenport-labs/flotilla/pkg/models"
)

// Pause tuning. Repeated hits back off exponentially up to the cap.
const (
	basePause = 60 * time.Second
	maxPause  = 15 * time.Minute

	// maxUsageRecords bounds the persisted usage log.
	maxUsageRecords = 500
)

// retryAfterRe extracts a server-suggested wait from a rate-limit
// message, e.g. "rate limited, retry after 30 seconds".
var retryAfterRe = regexp.MustCompile(`(?i)retry[- ]after[:\s]+(\d+)`)

// UsageRecord is one attempt's token consumption.
type UsageRecord struct {
	TaskID       string            `json:"task_id"`
	Model        models.Model      `json:"model"`
	InputTokens  int64             `json:"input_tokens"`
	OutputTokens int64             `json:"output_tokens"`
	Meta         map[string]string `json:"meta,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// RateLimitHit records one provider throttle event.
type RateLimitHit struct {
	Model     models.Model `json:"model"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}

// State is the tracker's persisted form.
type State struct {
	Usage []UsageRecord  `json:"usage"`
	Hits  []RateLimitHit `json:"hits,omitempty"`
	// PausedUntil is set while the provider is throttling; zero when
	// not paused.
	PausedUntil time.Time `json:"paused_until"`
	// ConsecutiveHits counts throttle events since the last clean
	// resume, driving the backoff.
	ConsecutiveHits int       `json:"consecutive_hits"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Tracker accumulates token usage per task and gates new work while
// the provider is rate limiting. All methods are safe for concurrent
// use; mutations persist before returning.
type Tracker struct {
	path string
	mu   sync.Mutex
	st   State
	now  func() time.Time
}

// NewTracker loads (or initializes) the tracker persisted at path.
// Corrupt state resets rather than failing.
func NewTracker(path string) *Tracker {
	t := &Tracker{path: path, now: time.Now}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &t.st); err != nil {
			log.Printf("[ratelimit] resetting corrupt state %s: %v", path, err)
			t.st = State{}
		}
	}
	return t
}

// RecordUsage appends one attempt's token counts.
func (t *Tracker) RecordUsage(taskID string, model models.Model, inputTokens, outputTokens int64, meta map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.st.Usage = append(t.st.Usage, UsageRecord{
		TaskID:       taskID,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Meta:         meta,
		Timestamp:    t.now(),
	})
	if len(t.st.Usage) > maxUsageRecords {
		t.st.Usage = t.st.Usage[len(t.st.Usage)-maxUsageRecords:]
	}
	return t.persist()
}

// RecordRateLimitHit pauses the tracker in response to a provider
// throttle. The pause honors a "retry after N" hint in the message
// when present; otherwise it backs off exponentially from one minute,
// capped at fifteen.
func (t *Tracker) RecordRateLimitHit(model models.Model, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.st.ConsecutiveHits++
	t.st.Hits = append(t.st.Hits, RateLimitHit{Model: model, Message: message, Timestamp: t.now()})
	if len(t.st.Hits) > maxUsageRecords {
		t.st.Hits = t.st.Hits[len(t.st.Hits)-maxUsageRecords:]
	}

	pause := basePause << (t.st.ConsecutiveHits - 1)
	if pause > maxPause || pause <= 0 {
		pause = maxPause
	}
	if m := retryAfterRe.FindStringSubmatch(message); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil && secs > 0 {
			pause = time.Duration(secs) * time.Second
		}
	}

	t.st.PausedUntil = t.now().Add(pause)
	log.Printf("[ratelimit] %s throttled, pausing new work for %s", model, pause)
	return t.persist()
}

// IsPaused reports whether new work should be held back.
func (t *Tracker) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.st.PausedUntil.IsZero() && t.now().Before(t.st.PausedUntil)
}

// CheckAutoResume clears an expired pause. Returns true when the
// tracker resumed (or was never paused).
func (t *Tracker) CheckAutoResume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.st.PausedUntil.IsZero() {
		return true
	}
	if t.now().Before(t.st.PausedUntil) {
		return false
	}

	t.st.PausedUntil = time.Time{}
	t.st.ConsecutiveHits = 0
	if err := t.persist(); err != nil {
		log.Printf("[ratelimit] persist after resume: %v", err)
	}
	return true
}

// State returns a copy of the tracker's persisted state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.st
	st.Usage = append([]UsageRecord{}, t.st.Usage...)
	st.Hits = append([]RateLimitHit{}, t.st.Hits...)
	return st
}

// TotalUsage sums recorded tokens, optionally filtered to one task
// (empty taskID sums everything).
func (t *Tracker) TotalUsage(taskID string) (inputTokens, outputTokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, u := range t.st.Usage {
		if taskID != "" && u.TaskID != taskID {
			continue
		}
		inputTokens += u.InputTokens
		outputTokens += u.OutputTokens
	}
	return inputTokens, outputTokens
}

// TotalCost estimates the dollar cost of all recorded usage.
func (t *Tracker) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total float64
	for _, u := range t.st.Usage {
		total += Cost(u.Model, u.InputTokens, u.OutputTokens)
	}
	return total
}

// persist writes the state atomically. Must be called with the lock
// held.
func (t *Tracker) persist() error {
	t.st.LastUpdated = t.now()

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(t.st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rate-limit state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ratelimit-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write rate-limit state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close rate-limit state: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename rate-limit state: %w", err)
	}
	return nil
}
