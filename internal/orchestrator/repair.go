package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/davenport-labs/flotilla/internal/executor"
	"github.com/davenport-labs/flotilla/internal/fixstore"
)

// repairVerifyFailure drives the error-fix learning loop for one
// failed verification: record the error as pending, replay a learned
// patch when one applies cleanly, otherwise give the executor a single
// repair attempt primed with the store's suggestions, and re-verify.
// A failure that survives repair is recorded as permanent. Without a
// fix store the verification error is returned as-is.
func (r *Runner) repairVerifyFailure(ctx context.Context, g MergeGit, res *TaskResult, verr error) error {
	if r.fixes == nil {
		return fmt.Errorf("verify: %w", verr)
	}

	category := classifyVerifyError(verr.Error())
	message := verr.Error()
	if _, err := r.fixes.RecordPendingError(res.TaskID, category, message, res.ModifiedFiles); err != nil {
		log.Printf("[orchestrator] record pending error for %s: %v", res.TaskID, err)
	}

	// A learned patch that still applies is cheaper than a model call.
	rem := r.fixes.TryAutoRemediate(ctx, category, message, fixstore.NewGitApplier(g))
	if rem.Applied {
		if err := g.CommitAll("apply learned fix for " + category + " failure"); err != nil {
			log.Printf("[orchestrator] commit replayed patch for %s: %v", res.TaskID, err)
		} else if rverr := r.verifier.Verify(ctx, res.WorktreePath); rverr == nil {
			if err := r.fixes.MarkFixSuccessful(category, message); err != nil {
				log.Printf("[orchestrator] mark fix successful: %v", err)
			}
			if err := r.fixes.ClearPendingError(res.TaskID); err != nil {
				log.Printf("[orchestrator] clear pending error for %s: %v", res.TaskID, err)
			}
			log.Printf("[orchestrator] replayed learned fix %s for %s", rem.Signature, res.TaskID)
			return nil
		}
	}

	headBefore, headErr := g.Head()
	if headErr != nil {
		log.Printf("[orchestrator] head before repair of %s: %v", res.TaskID, headErr)
	}

	prompt := fmt.Sprintf(
		"The verification suite failed in this worktree:\n\n%s\n\nDiagnose the failure, fix it, and commit the fix.",
		message)
	if suggestions := r.fixes.FormatFixSuggestionsForPrompt(category, message); suggestions != "" {
		prompt += "\n\n" + suggestions
	}

	invokeRes, ierr := r.exec.Invoke(ctx, executor.InvokeRequest{
		TaskID:        res.TaskID,
		Prompt:        prompt,
		Model:         r.model,
		WorkingDir:    res.WorktreePath,
		DisallowedOps: []string{"git push"},
	})
	if invokeRes != nil {
		res.Attempts = append(res.Attempts, invokeRes.Attempts...)
		r.noteRateLimit(invokeRes)
	}
	if ierr != nil || invokeRes == nil || invokeRes.Status != executor.StatusSuccess {
		r.recordPermanentVerifyFailure(res, category, message, verr.Error())
		return fmt.Errorf("verify: %w", verr)
	}

	if rverr := r.verifier.Verify(ctx, res.WorktreePath); rverr != nil {
		r.recordPermanentVerifyFailure(res, category, message, verr.Error(), rverr.Error())
		return fmt.Errorf("verify after repair: %w", rverr)
	}

	// The repair held; learn it, patch included, for future replay.
	files, derr := g.ChangedFilesRelative("HEAD", r.mainBranch)
	if derr != nil {
		log.Printf("[orchestrator] diff after repair of %s: %v", res.TaskID, derr)
	} else {
		res.ModifiedFiles = files
	}
	var patch string
	if headErr == nil {
		if p, perr := g.DiffPatch(headBefore, "HEAD"); perr == nil {
			patch = p
		} else {
			log.Printf("[orchestrator] capture repair patch for %s: %v", res.TaskID, perr)
		}
	}
	summary := "repaired " + category + " failure: " + firstLine(message)
	if err := r.fixes.RecordSuccessfulFixWithPatch(res.TaskID, files, summary, patch); err != nil {
		log.Printf("[orchestrator] record fix for %s: %v", res.TaskID, err)
	}
	return nil
}

// recordPermanentVerifyFailure files the exhausted repair as a
// permanent failure so future similar tasks get warned up front.
func (r *Runner) recordPermanentVerifyFailure(res *TaskResult, category, message string, detailedErrors ...string) {
	if err := r.fixes.RecordPermanentFailure(res.TaskID, category, message, res.Task, detailedErrors); err != nil {
		log.Printf("[orchestrator] record permanent failure for %s: %v", res.TaskID, err)
	}
}

// classifyVerifyError buckets a verification failure so recurrences of
// the same kind of error share a pattern signature.
func classifyVerifyError(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "undefined") ||
		strings.Contains(lower, "cannot use") ||
		strings.Contains(lower, "missing return") ||
		strings.Contains(lower, "type"):
		return "typecheck"
	case strings.Contains(lower, "--- fail") || strings.Contains(lower, "test"):
		return "test"
	case strings.Contains(lower, "syntax") ||
		strings.Contains(lower, "build") ||
		strings.Contains(lower, "compile"):
		return "build"
	case strings.Contains(lower, "lint"):
		return "lint"
	default:
		return "verify"
	}
}

// firstLine truncates a multi-line error to its first line.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
