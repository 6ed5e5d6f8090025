package complexity

import "github.com/davenport-labs/flotilla/pkg/models"

// AttemptOutcome summarizes a completed solo attempt for the
// escalation check.
type AttemptOutcome struct {
	// TypeErrors indicates the verification pass reported type errors.
	TypeErrors bool
	// BuildErrors indicates the build failed after the attempt.
	BuildErrors bool
	// FilesChanged is the number of files the attempt actually touched.
	FilesChanged int
	// LinesChanged is the total lines added plus removed.
	LinesChanged int
	// TestsAdded indicates the attempt added or modified test files.
	TestsAdded bool
}

// Scope-overrun margins: an attempt that touches this many more files
// than its scope estimate predicted is treated as having escaped its
// plan.
const (
	singleFileOverrun = 3
	fewFilesOverrun   = 10
)

// noTestLineFloor is the changed-line count above which an attempt
// with no test changes is escalated.
const noTestLineFloor = 200

// ShouldEscalateToFullChain reports whether a solo attempt should be
// re-run through the full planner/worker/validator chain. Complex and
// critical tasks always escalate regardless of outcome.
func ShouldEscalateToFullChain(level models.ComplexityLevel, estimatedScope string, outcome AttemptOutcome) bool {
	if level.AtLeast(models.LevelComplex) {
		return true
	}

	if outcome.TypeErrors || outcome.BuildErrors {
		return true
	}

	switch estimatedScope {
	case ScopeSingleFile:
		if outcome.FilesChanged > singleFileOverrun {
			return true
		}
	case ScopeFewFiles:
		if outcome.FilesChanged > fewFilesOverrun {
			return true
		}
	}

	if outcome.LinesChanged > noTestLineFloor && !outcome.TestsAdded {
		return true
	}

	return false
}
