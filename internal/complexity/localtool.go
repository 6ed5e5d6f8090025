package complexity

import "regexp"

// LocalTool is a deterministic command that satisfies a task without
// any model invocation. When a task matches a local tool the scorer
// short-circuits to a trivial assessment at full confidence.
type LocalTool struct {
	// Command is the shell command to run.
	Command string `json:"command"`
	// Description explains what the command does.
	Description string `json:"description"`
}

// localToolPatterns maps task-text patterns to local tools. Matches
// are checked in order; the first hit wins.
var localToolPatterns = []struct {
	pattern *regexp.Regexp
	tool    LocalTool
}{
	{
		pattern: regexp.MustCompile(`(?i)^(please\s+)?(run\s+)?(the\s+)?(code\s+)?(format|fmt|gofmt)(\s+(the\s+)?(code|project|repo|everything))?\.?$`),
		tool:    LocalTool{Command: "go fmt ./...", Description: "Format all Go source files"},
	},
	{
		pattern: regexp.MustCompile(`(?i)^(please\s+)?(run\s+)?(the\s+)?lint(er)?(\s+(the\s+)?(code|project|repo))?\.?$`),
		tool:    LocalTool{Command: "golangci-lint run ./...", Description: "Run the linter"},
	},
	{
		pattern: regexp.MustCompile(`(?i)^(please\s+)?(run\s+)?(the\s+)?type[- ]?check(er|ing)?\.?$`),
		tool:    LocalTool{Command: "go vet ./...", Description: "Type-check the project"},
	},
	{
		pattern: regexp.MustCompile(`(?i)^(please\s+)?(run\s+)?(the\s+|all\s+)?tests?(\s+suite)?\.?$`),
		tool:    LocalTool{Command: "go test ./...", Description: "Run the test suite"},
	},
	{
		pattern: regexp.MustCompile(`(?i)^(please\s+)?(run\s+)?(the\s+)?build(\s+(the\s+)?(code|project|repo))?\.?$`),
		tool:    LocalTool{Command: "go build ./...", Description: "Build the project"},
	},
	{
		pattern: regexp.MustCompile(`(?i)^(please\s+)?(organize|organise|sort|fix)\s+(the\s+)?imports\.?$`),
		tool:    LocalTool{Command: "goimports -w .", Description: "Organize import statements"},
	},
	{
		pattern: regexp.MustCompile(`(?i)^(please\s+)?(run\s+)?(a\s+|the\s+)?spell[- ]?check(er)?\.?$`),
		tool:    LocalTool{Command: "codespell", Description: "Spell-check the repository"},
	},
}

// DetectLocalTool returns the local tool matching the task text, or
// nil if no deterministic command covers it.
func DetectLocalTool(task string) *LocalTool {
	for _, entry := range localToolPatterns {
		if entry.pattern.MatchString(task) {
			tool := entry.tool
			return &tool
		}
	}
	return nil
}
