package fixstore

import (
	"context"
	"fmt"
	"os"

	"github.com/davenport-labs/flotilla/internal/git"
)

// GitApplier adapts the git patch plumbing, which operates on patch
// files, to the Applier interface, which carries patch text.
type GitApplier struct {
	git git.PatchOperations
}

// Verify GitApplier implements Applier at compile time.
var _ Applier = (*GitApplier)(nil)

// NewGitApplier wraps a directory-scoped git runner.
func NewGitApplier(g git.PatchOperations) *GitApplier {
	return &GitApplier{git: g}
}

// ApplyCheck dry-runs the patch against the working tree.
func (a *GitApplier) ApplyCheck(_ context.Context, patch string) error {
	return a.withPatchFile(patch, func(path string) error {
		return a.git.ApplyCheck(path)
	})
}

// Apply applies the patch to the working tree.
func (a *GitApplier) Apply(_ context.Context, patch string) error {
	return a.withPatchFile(patch, func(path string) error {
		return a.git.Apply(path)
	})
}

// ApplyNumstatFiles returns the files the patch touches.
func (a *GitApplier) ApplyNumstatFiles(_ context.Context, patch string) ([]string, error) {
	var files []string
	err := a.withPatchFile(patch, func(path string) error {
		var ferr error
		files, ferr = a.git.ApplyNumstatFiles(path)
		return ferr
	})
	return files, err
}

// withPatchFile writes the patch text to a temp file for the duration
// of fn.
func (a *GitApplier) withPatchFile(patch string, fn func(path string) error) error {
	f, err := os.CreateTemp("", "flotilla-patch-*.diff")
	if err != nil {
		return fmt.Errorf("create patch file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.WriteString(patch); err != nil {
		f.Close()
		return fmt.Errorf("write patch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close patch file: %w", err)
	}

	return fn(f.Name())
}
