package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// maxLoopIterations bounds the tool-use conversation per invocation.
const maxLoopIterations = 50

const systemPrompt = `You are an autonomous coding agent working in an isolated git checkout.
Complete the task described by the user. Use the provided tools to read, write, and edit files and to run shell commands.
Commit your work locally with git when the task is complete. Never push to any remote.`

// ClaudeExecutor runs tasks through the Anthropic Messages API with a
// tool-use loop.
type ClaudeExecutor struct {
	client     anthropic.Client
	useBedrock bool
}

var _ Executor = (*ClaudeExecutor)(nil)

// NewClaudeExecutor builds an executor for the configured transport.
func NewClaudeExecutor(ctx context.Context, cfg ClientConfig) (*ClaudeExecutor, error) {
	client, err := newAPIClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &ClaudeExecutor{client: client, useBedrock: cfg.UseAWSBedrock}, nil
}

// Invoke runs one agent session. The session may commit locally but
// pushes are rejected at the tool layer regardless of the prompt.
func (e *ClaudeExecutor) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	start := time.Now()

	disallowed := req.DisallowedOps
	if !containsOp(disallowed, "git push") {
		disallowed = append(append([]string{}, disallowed...), "git push")
	}
	runner := &toolRunner{workDir: req.WorkingDir, disallowedOps: disallowed}

	apiModel := apiModelFor(req.Model, e.useBedrock)
	result := &InvokeResult{}
	attempt := AttemptUsage{Model: req.Model}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
	}

	for iter := 0; iter < maxLoopIterations; iter++ {
		resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     apiModel,
			MaxTokens: 8192,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: messages,
			Tools:    toolDefinitions(),
		})
		if err != nil {
			result.Attempts = append(result.Attempts, attempt)
			result.Duration = time.Since(start)
			result.Error = err.Error()
			if isRateLimited(err) {
				result.Status = StatusRateLimit
			} else {
				result.Status = StatusFailed
			}
			return result, fmt.Errorf("messages call: %w", err)
		}

		attempt.InputTokens += resp.Usage.InputTokens
		attempt.OutputTokens += resp.Usage.OutputTokens

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		var textOutput string

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				textOutput += variant.Text
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				tr := runner.Execute(ctx, variant.Name, variant.Input)
				if tr.IsError {
					log.Printf("[executor] task %s tool %s failed: %s", req.TaskID, variant.Name, firstLine(tr.Content))
				}
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, tr.Content, tr.IsError))
			}
		}

		if resp.StopReason == anthropic.StopReasonEndTurn {
			result.Status = StatusSuccess
			result.Output = textOutput
			result.Attempts = append(result.Attempts, attempt)
			result.Duration = time.Since(start)
			return result, nil
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		if len(toolResultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
		}
	}

	result.Status = StatusFailed
	result.Attempts = append(result.Attempts, attempt)
	result.Duration = time.Since(start)
	result.Error = fmt.Sprintf("max iterations (%d) reached", maxLoopIterations)
	return result, fmt.Errorf("%s", result.Error)
}

func containsOp(ops []string, op string) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
