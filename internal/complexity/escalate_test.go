package complexity

import (
	"testing"

	"github.com/davenport-labs/flotilla/pkg/models"
)

func TestShouldEscalateToFullChain(t *testing.T) {
	tests := []struct {
		name    string
		level   models.ComplexityLevel
		scope   string
		outcome AttemptOutcome
		want    bool
	}{
		{
			name:    "clean simple attempt stays solo",
			level:   models.LevelSimple,
			scope:   ScopeSingleFile,
			outcome: AttemptOutcome{FilesChanged: 1, LinesChanged: 30, TestsAdded: true},
			want:    false,
		},
		{
			name:    "type errors escalate",
			level:   models.LevelSimple,
			scope:   ScopeSingleFile,
			outcome: AttemptOutcome{TypeErrors: true, FilesChanged: 1},
			want:    true,
		},
		{
			name:    "build errors escalate",
			level:   models.LevelTrivial,
			scope:   ScopeSingleFile,
			outcome: AttemptOutcome{BuildErrors: true},
			want:    true,
		},
		{
			name:    "single-file estimate overrun",
			level:   models.LevelSimple,
			scope:   ScopeSingleFile,
			outcome: AttemptOutcome{FilesChanged: 4, TestsAdded: true},
			want:    true,
		},
		{
			name:    "single-file estimate within margin",
			level:   models.LevelSimple,
			scope:   ScopeSingleFile,
			outcome: AttemptOutcome{FilesChanged: 3, TestsAdded: true},
			want:    false,
		},
		{
			name:    "few-files estimate overrun",
			level:   models.LevelStandard,
			scope:   ScopeFewFiles,
			outcome: AttemptOutcome{FilesChanged: 11, TestsAdded: true},
			want:    true,
		},
		{
			name:    "few-files estimate within margin",
			level:   models.LevelStandard,
			scope:   ScopeFewFiles,
			outcome: AttemptOutcome{FilesChanged: 10, TestsAdded: true},
			want:    false,
		},
		{
			name:    "big change without tests escalates",
			level:   models.LevelStandard,
			scope:   ScopeManyFiles,
			outcome: AttemptOutcome{FilesChanged: 5, LinesChanged: 250, TestsAdded: false},
			want:    true,
		},
		{
			name:    "big change with tests stays solo",
			level:   models.LevelStandard,
			scope:   ScopeManyFiles,
			outcome: AttemptOutcome{FilesChanged: 5, LinesChanged: 250, TestsAdded: true},
			want:    false,
		},
		{
			name:    "complex always escalates",
			level:   models.LevelComplex,
			scope:   ScopeSingleFile,
			outcome: AttemptOutcome{FilesChanged: 1, LinesChanged: 5, TestsAdded: true},
			want:    true,
		},
		{
			name:    "critical always escalates",
			level:   models.LevelCritical,
			scope:   ScopeSingleFile,
			outcome: AttemptOutcome{},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldEscalateToFullChain(tt.level, tt.scope, tt.outcome)
			if got != tt.want {
				t.Errorf("ShouldEscalateToFullChain(%s, %s, %+v) = %v, want %v",
					tt.level, tt.scope, tt.outcome, got, tt.want)
			}
		})
	}
}
