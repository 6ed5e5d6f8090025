package orchestrator

import (
	"context"
	"fmt"

	flotexec "github.com/davenport-labs/flotilla/internal/exec"
)

// Verifier runs the verification suite inside a rebased worktree
// before its branch is allowed onto main.
type Verifier interface {
	Verify(ctx context.Context, dir string) error
}

// CommandVerifier runs a configured list of shell commands, failing
// on the first non-zero exit.
type CommandVerifier struct {
	runner   flotexec.CommandRunner
	commands []string
}

var _ Verifier = (*CommandVerifier)(nil)

// NewCommandVerifier creates a verifier for the given shell commands.
// An empty command list verifies nothing and always passes.
func NewCommandVerifier(runner flotexec.CommandRunner, commands []string) *CommandVerifier {
	return &CommandVerifier{runner: runner, commands: commands}
}

// Verify runs each command in order inside dir.
func (v *CommandVerifier) Verify(ctx context.Context, dir string) error {
	for _, cmd := range v.commands {
		out, err := v.runner.RunShell(ctx, dir, cmd)
		if err != nil {
			return fmt.Errorf("verification %q: %w: %s", cmd, err, truncateOutput(out))
		}
	}
	return nil
}

// truncateOutput bounds command output included in error messages.
func truncateOutput(out []byte) string {
	const max = 2000
	if len(out) > max {
		return string(out[:max]) + "..."
	}
	return string(out)
}
