package fixstore

import (
	"context"
	"errors"
	"os"
	"testing"
)

// fakePatchGit records the content of each patch file it is handed.
type fakePatchGit struct {
	checkErr error
	applyErr error
	files    []string
	contents []string
}

func (f *fakePatchGit) record(patchFile string) {
	data, err := os.ReadFile(patchFile)
	if err == nil {
		f.contents = append(f.contents, string(data))
	}
}

func (f *fakePatchGit) ApplyCheck(patchFile string) error {
	f.record(patchFile)
	return f.checkErr
}

func (f *fakePatchGit) Apply(patchFile string) error {
	f.record(patchFile)
	return f.applyErr
}

func (f *fakePatchGit) ApplyNumstatFiles(patchFile string) ([]string, error) {
	f.record(patchFile)
	return f.files, nil
}

func TestGitApplierRoundTrip(t *testing.T) {
	fake := &fakePatchGit{files: []string{"a.go", "b.go"}}
	applier := NewGitApplier(fake)
	ctx := context.Background()

	patch := "--- a/a.go\n+++ b/a.go\n@@ -1 +1 @@\n-old\n+new\n"

	if err := applier.ApplyCheck(ctx, patch); err != nil {
		t.Fatalf("ApplyCheck() error = %v", err)
	}
	if err := applier.Apply(ctx, patch); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	files, err := applier.ApplyNumstatFiles(ctx, patch)
	if err != nil {
		t.Fatalf("ApplyNumstatFiles() error = %v", err)
	}
	if len(files) != 2 {
		t.Errorf("files = %v, want 2 entries", files)
	}

	if len(fake.contents) != 3 {
		t.Fatalf("git saw %d patch files, want 3", len(fake.contents))
	}
	for i, c := range fake.contents {
		if c != patch {
			t.Errorf("patch file %d content = %q, want the original patch text", i, c)
		}
	}
}

func TestGitApplierPropagatesErrors(t *testing.T) {
	wantErr := errors.New("does not apply")
	applier := NewGitApplier(&fakePatchGit{checkErr: wantErr})

	if err := applier.ApplyCheck(context.Background(), "patch"); !errors.Is(err, wantErr) {
		t.Errorf("ApplyCheck() error = %v, want wrapped %v", err, wantErr)
	}
}
