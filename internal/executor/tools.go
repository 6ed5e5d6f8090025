package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// toolDefinitions returns the tool schemas offered to the model.
func toolDefinitions() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Read",
				Description: anthropic.String("Read a file from the filesystem. Returns file contents with line numbers."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"file_path": map[string]interface{}{
							"type":        "string",
							"description": "Path to the file to read",
						},
					},
					Required: []string{"file_path"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Write",
				Description: anthropic.String("Write content to a file. Creates parent directories if needed."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"file_path": map[string]interface{}{
							"type":        "string",
							"description": "Path to the file to write",
						},
						"content": map[string]interface{}{
							"type":        "string",
							"description": "Content to write to the file",
						},
					},
					Required: []string{"file_path", "content"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Edit",
				Description: anthropic.String("Edit a file by replacing text. The old_string must be unique unless replace_all is true."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"file_path": map[string]interface{}{
							"type":        "string",
							"description": "Path to the file to edit",
						},
						"old_string": map[string]interface{}{
							"type":        "string",
							"description": "The exact text to find and replace",
						},
						"new_string": map[string]interface{}{
							"type":        "string",
							"description": "The text to replace it with",
						},
						"replace_all": map[string]interface{}{
							"type":        "boolean",
							"description": "If true, replace all occurrences (default: false)",
						},
					},
					Required: []string{"file_path", "old_string", "new_string"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Bash",
				Description: anthropic.String("Execute a shell command in the working directory and return its output."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"command": map[string]interface{}{
							"type":        "string",
							"description": "The shell command to execute",
						},
					},
					Required: []string{"command"},
				},
			},
		},
	}
}

// toolResult is the outcome of one tool execution.
type toolResult struct {
	Content string
	IsError bool
}

// toolRunner executes tool calls inside one working directory with a
// set of forbidden shell operations.
type toolRunner struct {
	workDir       string
	disallowedOps []string
}

// Execute dispatches a tool call by name.
func (r *toolRunner) Execute(ctx context.Context, name string, input json.RawMessage) toolResult {
	switch name {
	case "Read":
		return r.execRead(input)
	case "Write":
		return r.execWrite(input)
	case "Edit":
		return r.execEdit(input)
	case "Bash":
		return r.execBash(ctx, input)
	default:
		return toolResult{Content: fmt.Sprintf("Unknown tool: %s", name), IsError: true}
	}
}

// resolvePath anchors relative paths at the working directory.
func (r *toolRunner) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.workDir, path)
}

func (r *toolRunner) execRead(input json.RawMessage) toolResult {
	var params struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolResult{Content: fmt.Sprintf("Invalid parameters: %v", err), IsError: true}
	}

	content, err := os.ReadFile(r.resolvePath(params.FilePath))
	if err != nil {
		return toolResult{Content: fmt.Sprintf("Failed to read file: %v", err), IsError: true}
	}

	var b strings.Builder
	for i, line := range strings.Split(string(content), "\n") {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, line)
	}
	return toolResult{Content: b.String()}
}

func (r *toolRunner) execWrite(input json.RawMessage) toolResult {
	var params struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolResult{Content: fmt.Sprintf("Invalid parameters: %v", err), IsError: true}
	}

	path := r.resolvePath(params.FilePath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return toolResult{Content: fmt.Sprintf("Failed to create directory: %v", err), IsError: true}
	}
	if err := os.WriteFile(path, []byte(params.Content), 0644); err != nil {
		return toolResult{Content: fmt.Sprintf("Failed to write file: %v", err), IsError: true}
	}
	return toolResult{Content: fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), params.FilePath)}
}

func (r *toolRunner) execEdit(input json.RawMessage) toolResult {
	var params struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolResult{Content: fmt.Sprintf("Invalid parameters: %v", err), IsError: true}
	}

	path := r.resolvePath(params.FilePath)
	content, err := os.ReadFile(path)
	if err != nil {
		return toolResult{Content: fmt.Sprintf("Failed to read file: %v", err), IsError: true}
	}

	text := string(content)
	count := strings.Count(text, params.OldString)
	if count == 0 {
		return toolResult{Content: "old_string not found in file", IsError: true}
	}
	if count > 1 && !params.ReplaceAll {
		return toolResult{Content: fmt.Sprintf("old_string appears %d times; use replace_all or a more specific string", count), IsError: true}
	}

	if params.ReplaceAll {
		text = strings.ReplaceAll(text, params.OldString, params.NewString)
	} else {
		text = strings.Replace(text, params.OldString, params.NewString, 1)
	}

	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return toolResult{Content: fmt.Sprintf("Failed to write file: %v", err), IsError: true}
	}
	return toolResult{Content: fmt.Sprintf("Replaced %d occurrence(s) in %s", count, params.FilePath)}
}

// bashTimeout bounds one shell tool call.
const bashTimeout = 5 * time.Minute

func (r *toolRunner) execBash(ctx context.Context, input json.RawMessage) toolResult {
	var params struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolResult{Content: fmt.Sprintf("Invalid parameters: %v", err), IsError: true}
	}

	if op := r.disallowedOp(params.Command); op != "" {
		return toolResult{Content: fmt.Sprintf("Command rejected: %q is not permitted in this session", op), IsError: true}
	}

	cctx, cancel := context.WithTimeout(ctx, bashTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", params.Command)
	cmd.Dir = r.workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return toolResult{Content: fmt.Sprintf("%s\ncommand failed: %v", string(out), err), IsError: true}
	}
	return toolResult{Content: string(out)}
}

// disallowedOp returns the first forbidden operation the command
// contains, or "".
func (r *toolRunner) disallowedOp(command string) string {
	normalized := strings.Join(strings.Fields(command), " ")
	for _, op := range r.disallowedOps {
		if strings.Contains(normalized, op) {
			return op
		}
	}
	return ""
}
