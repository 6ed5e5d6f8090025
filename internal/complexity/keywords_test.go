package complexity

import (
	"reflect"
	"testing"
)

func TestTaskKeywords(t *testing.T) {
	tests := []struct {
		name string
		task string
		want []string
	}{
		{
			name: "mixed tables",
			task: "refactor the auth handler",
			want: []string{"handler", "refactor", "auth"},
		},
		{
			name: "no keywords",
			task: "do the thing",
			want: nil,
		},
		{
			name: "word boundaries respected",
			task: "credit the author",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TaskKeywords(tt.task)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TaskKeywords(%q) = %v, want %v", tt.task, got, tt.want)
			}
		})
	}
}
