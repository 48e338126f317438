package subagent

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/swarmer/internal/exec"
	"github.com/ShayCichocki/swarmer/internal/logging"
)

// APIExecutor runs the tool-use loop against the Anthropic Messages API.
// One model call is one iteration.
type APIExecutor struct {
	client *Client
	runner exec.CommandRunner
	debug  *logging.DebugLogger
}

// NewAPIExecutor creates an executor over client. runner backs the Bash tool.
func NewAPIExecutor(client *Client, runner exec.CommandRunner, debug *logging.DebugLogger) *APIExecutor {
	return &APIExecutor{client: client, runner: runner, debug: debug.With("[subagent]")}
}

// Execute implements Executor. Running out of iterations is an unsuccessful
// response, not an error.
func (a *APIExecutor) Execute(ctx context.Context, req Request) (*Response, error) {
	tools := NewToolExecutor(req.WorkDir, a.runner)
	limit := maxIterations(req)

	system := req.Context
	if system == "" {
		system = fmt.Sprintf("You are a %s agent working in %s.", req.Type, req.WorkDir)
	}
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.Task)),
	}

	var used int64
	var lastText string
	for iter := 1; iter <= limit; iter++ {
		resp, err := a.client.inner.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     a.client.Model(),
			MaxTokens: 8192,
			System: []anthropic.TextBlockParam{
				{Text: system},
			},
			Messages: messages,
			Tools:    ToolDefinitions(),
		})
		if err != nil {
			return nil, fmt.Errorf("API call failed: %w", err)
		}

		used += resp.Usage.InputTokens + resp.Usage.OutputTokens

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		var text string

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				text += variant.Text
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				result := tools.Execute(ctx, variant.Name, variant.Input)
				a.debug.Log("%s iteration %d: %s error=%v", req.Type, iter, variant.Name, result.IsError)
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, result.Content, result.IsError))
			}
		}
		if text != "" {
			lastText = text
		}

		if resp.StopReason == anthropic.StopReasonEndTurn {
			return &Response{Success: true, Result: lastText, Tokens: tokens(used)}, nil
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		if len(toolResultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
		}
	}

	return &Response{
		Success: false,
		Result:  fmt.Sprintf("max iterations (%d) reached: %s", limit, lastText),
		Tokens:  tokens(used),
	}, nil
}

var _ Executor = (*APIExecutor)(nil)
