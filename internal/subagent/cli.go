package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ShayCichocki/swarmer/internal/exec"
)

// CLIExecutor runs the Claude Code CLI in print mode. The prompt is fed on
// stdin and the single JSON result object is parsed from stdout.
type CLIExecutor struct {
	runner  exec.CommandRunner
	command string
	model   string
}

// NewCLIExecutor creates a CLI-backed executor. An empty command means "claude".
func NewCLIExecutor(runner exec.CommandRunner, command, model string) *CLIExecutor {
	if command == "" {
		command = "claude"
	}
	return &CLIExecutor{runner: runner, command: command, model: model}
}

type cliResult struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
	Usage   *struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (c *CLIExecutor) args(req Request) []string {
	args := []string{
		"--print",
		"--output-format", "json",
		"--max-turns", strconv.Itoa(maxIterations(req)),
		"--allowedTools", "Read,Write,Edit,Bash,Glob,Grep",
	}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	if req.Context != "" {
		args = append(args, "--append-system-prompt", req.Context)
	}
	return args
}

// Execute implements Executor.
func (c *CLIExecutor) Execute(ctx context.Context, req Request) (*Response, error) {
	if !c.runner.LookPath(c.command) {
		return nil, fmt.Errorf("%s not found on PATH", c.command)
	}
	out, err := c.runner.RunWithInput(ctx, req.WorkDir, req.Task, c.command, c.args(req)...)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", c.command, err)
	}
	return parseCLIResult(out)
}

// parseCLIResult reads the last JSON object printed by the CLI.
func parseCLIResult(out []byte) (*Response, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var res cliResult
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			continue
		}
		resp := &Response{
			Success: !res.IsError && (res.Subtype == "" || res.Subtype == "success"),
			Result:  res.Result,
		}
		if res.Usage != nil {
			resp.Tokens = tokens(res.Usage.InputTokens + res.Usage.OutputTokens)
		}
		return resp, nil
	}
	return nil, fmt.Errorf("no JSON result in CLI output")
}

var _ Executor = (*CLIExecutor)(nil)
