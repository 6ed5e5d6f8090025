package fixstore

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"
)

// Auto-apply gating. A patch that keeps failing gets benched rather
// than reapplied as the codebase drifts away from it.
const (
	breakerMinAttempts = 2
	breakerMinRate     = 0.3
	defaultApplyRate   = 0.5

	emaKeep = 0.7
	emaGain = 0.3
)

// Applier replays a stored patch against a working tree.
type Applier interface {
	// ApplyCheck reports whether the patch would apply cleanly.
	ApplyCheck(ctx context.Context, patch string) error
	// Apply applies the patch to the working tree.
	Apply(ctx context.Context, patch string) error
	// ApplyNumstatFiles returns the files the patch touches.
	ApplyNumstatFiles(ctx context.Context, patch string) ([]string, error)
}

// RemediationResult describes one auto-remediation attempt.
type RemediationResult struct {
	// Attempted is true when a stored patch was tried at all. False
	// means no pattern, no stored patch, or a tripped circuit breaker.
	Attempted bool
	// Applied is true when the patch applied cleanly.
	Applied bool
	// Signature is the error signature that was resolved.
	Signature string
	// PatchedFiles are the files the applied patch touched.
	PatchedFiles []string
	// Error holds the apply failure, if any.
	Error error
}

// TryAutoRemediate attempts to fix a recurring error by replaying a
// stored patch. Among the pattern's fixes that carry a patch, the one
// with the highest learned success rate (untried patches score 0.5)
// wins, recency breaking ties. If that best candidate has been tried
// more than twice with a success rate below 0.3, nothing is attempted.
// Otherwise the patch is dry-run checked and applied, and the success
// rate is folded into an exponential moving average either way.
func (s *Store) TryAutoRemediate(ctx context.Context, category, message string, applier Applier) RemediationResult {
	sig := Signature(category, message)
	res := RemediationResult{Signature: sig}

	idx, patch, rate, count, ok := s.bestPatch(sig)
	if !ok {
		return res
	}
	if count > breakerMinAttempts && rate < breakerMinRate {
		log.Printf("[fixstore] circuit breaker open for %s (count=%d rate=%.2f)", sig, count, rate)
		return res
	}

	res.Attempted = true

	if err := applier.ApplyCheck(ctx, patch); err != nil {
		res.Error = fmt.Errorf("patch dry run: %w", err)
		s.recordApplyOutcome(sig, idx, false)
		return res
	}
	if err := applier.Apply(ctx, patch); err != nil {
		res.Error = fmt.Errorf("apply patch: %w", err)
		s.recordApplyOutcome(sig, idx, false)
		return res
	}

	files, err := applier.ApplyNumstatFiles(ctx, patch)
	if err != nil {
		log.Printf("[fixstore] patch applied but file listing failed: %v", err)
	}

	res.Applied = true
	res.PatchedFiles = files
	s.recordApplyOutcome(sig, idx, true)
	return res
}

// bestPatch picks the pattern's most promising stored patch: highest
// success rate first, most recent breaking ties. Returns its fix
// index, patch text, effective rate, and attempt count.
func (s *Store) bestPatch(sig string) (idx int, patch string, rate float64, count int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, found := s.data.Patterns[sig]
	if !found {
		return 0, "", 0, 0, false
	}

	type candidate struct {
		idx  int
		rate float64
		at   time.Time
	}
	var cands []candidate
	for i, f := range p.Fixes {
		if f.PatchData == "" {
			continue
		}
		r := defaultApplyRate
		if f.AutoApplyCount > 0 {
			r = f.AutoApplySuccessRate
		}
		cands = append(cands, candidate{idx: i, rate: r, at: f.RecordedAt})
	}
	if len(cands) == 0 {
		return 0, "", 0, 0, false
	}

	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].rate != cands[b].rate {
			return cands[a].rate > cands[b].rate
		}
		return cands[a].at.After(cands[b].at)
	})

	best := cands[0]
	f := p.Fixes[best.idx]
	return best.idx, f.PatchData, best.rate, f.AutoApplyCount, true
}

// recordApplyOutcome folds one auto-apply outcome into the fix's
// moving average. Untried fixes start from the 0.5 default.
func (s *Store) recordApplyOutcome(sig string, idx int, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.data.Patterns[sig]
	if !ok || idx >= len(p.Fixes) {
		return
	}
	f := &p.Fixes[idx]

	rate := defaultApplyRate
	if f.AutoApplyCount > 0 {
		rate = f.AutoApplySuccessRate
	}
	rate *= emaKeep
	if success {
		rate += emaGain
	}
	f.AutoApplySuccessRate = rate
	f.AutoApplyCount++

	if err := s.persist(); err != nil {
		log.Printf("[fixstore] persist after apply outcome: %v", err)
	}
}
