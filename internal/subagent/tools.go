package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/swarmer/internal/exec"
)

const maxToolOutput = 30000

type toolParam struct {
	name, kind, desc string
	required         bool
}

type toolSpec struct {
	name, desc string
	params     []toolParam
}

// toolSpecs are the tools an API-backed agent may call. Paths are relative
// to the agent's working directory.
var toolSpecs = []toolSpec{
	{"Read", "Read a file from the working directory. Returns contents with line numbers.", []toolParam{
		{"file_path", "string", "Path to the file, relative to the working directory", true},
		{"offset", "integer", "Line number to start reading from (1-indexed, optional)", false},
		{"limit", "integer", "Maximum number of lines to read (optional)", false},
	}},
	{"Write", "Write content to a file. Creates parent directories if needed.", []toolParam{
		{"file_path", "string", "Path to the file to write", true},
		{"content", "string", "Content to write to the file", true},
	}},
	{"Edit", "Replace text in a file. old_string must be unique unless replace_all is true.", []toolParam{
		{"file_path", "string", "Path to the file to edit", true},
		{"old_string", "string", "The exact text to find and replace", true},
		{"new_string", "string", "The text to replace it with", true},
		{"replace_all", "boolean", "Replace all occurrences (default: false)", false},
	}},
	{"Bash", "Run a shell command in the working directory and return its output.", []toolParam{
		{"command", "string", "The command to execute", true},
		{"timeout", "integer", "Timeout in milliseconds (optional, default 120000)", false},
	}},
	{"Glob", "Find files whose name matches a glob pattern.", []toolParam{
		{"pattern", "string", "Glob pattern matched against file names (e.g. '*.go')", true},
		{"path", "string", "Directory to search in (optional)", false},
	}},
	{"ListDir", "List the contents of a directory.", []toolParam{
		{"path", "string", "Directory path to list", true},
	}},
}

// ToolDefinitions returns the tool schemas offered to the model.
func ToolDefinitions() []anthropic.ToolUnionParam {
	defs := make([]anthropic.ToolUnionParam, 0, len(toolSpecs))
	for _, spec := range toolSpecs {
		props := make(map[string]any, len(spec.params))
		var required []string
		for _, p := range spec.params {
			props[p.name] = map[string]any{"type": p.kind, "description": p.desc}
			if p.required {
				required = append(required, p.name)
			}
		}
		defs = append(defs, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.name,
				Description: anthropic.String(spec.desc),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   required,
				},
			},
		})
	}
	return defs
}

// ToolResult is the outcome of one tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolExecutor runs tool calls confined to a working directory.
type ToolExecutor struct {
	workDir string
	runner  exec.CommandRunner
}

// NewToolExecutor creates a tool executor rooted at workDir.
func NewToolExecutor(workDir string, runner exec.CommandRunner) *ToolExecutor {
	if runner == nil {
		runner = exec.NewRunner()
	}
	return &ToolExecutor{workDir: workDir, runner: runner}
}

// Execute runs a tool by name with the given JSON input.
func (e *ToolExecutor) Execute(ctx context.Context, name string, input json.RawMessage) ToolResult {
	switch name {
	case "Read":
		return e.execRead(input)
	case "Write":
		return e.execWrite(input)
	case "Edit":
		return e.execEdit(input)
	case "Bash":
		return e.execBash(ctx, input)
	case "Glob":
		return e.execGlob(input)
	case "ListDir":
		return e.execListDir(input)
	default:
		return ToolResult{Content: fmt.Sprintf("Unknown tool: %s", name), IsError: true}
	}
}

func failure(format string, args ...interface{}) ToolResult {
	return ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

func (e *ToolExecutor) execRead(input json.RawMessage) ToolResult {
	var params struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return failure("Invalid parameters: %v", err)
	}
	path, err := e.resolvePath(params.FilePath)
	if err != nil {
		return failure("%v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return failure("Failed to read file: %v", err)
	}

	lines := strings.Split(string(content), "\n")
	start := 0
	if params.Offset > 0 {
		start = params.Offset - 1
		if start >= len(lines) {
			return failure("Offset beyond end of file")
		}
	}
	end := len(lines)
	if params.Limit > 0 {
		end = min(start+params.Limit, len(lines))
	}

	var result strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&result, "%6d\t%s\n", i+1, lines[i])
	}
	return ToolResult{Content: result.String()}
}

func (e *ToolExecutor) execWrite(input json.RawMessage) ToolResult {
	var params struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return failure("Invalid parameters: %v", err)
	}
	path, err := e.resolvePath(params.FilePath)
	if err != nil {
		return failure("%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return failure("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(params.Content), 0644); err != nil {
		return failure("Failed to write file: %v", err)
	}
	return ToolResult{Content: fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), params.FilePath)}
}

func (e *ToolExecutor) execEdit(input json.RawMessage) ToolResult {
	var params struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return failure("Invalid parameters: %v", err)
	}
	path, err := e.resolvePath(params.FilePath)
	if err != nil {
		return failure("%v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return failure("Failed to read file: %v", err)
	}

	text := string(content)
	count := strings.Count(text, params.OldString)
	if params.OldString == "" || count == 0 {
		return failure("old_string not found in file")
	}
	if !params.ReplaceAll && count > 1 {
		return failure("old_string found %d times; must be unique or use replace_all=true", count)
	}

	n := 1
	if params.ReplaceAll {
		n = -1
	}
	if err := os.WriteFile(path, []byte(strings.Replace(text, params.OldString, params.NewString, n)), 0644); err != nil {
		return failure("Failed to write file: %v", err)
	}
	if params.ReplaceAll {
		return ToolResult{Content: fmt.Sprintf("Replaced %d occurrences", count)}
	}
	return ToolResult{Content: "Edit successful"}
}

func (e *ToolExecutor) execBash(ctx context.Context, input json.RawMessage) ToolResult {
	var params struct {
		Command string `json:"command"`
		Timeout int    `json:"timeout"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return failure("Invalid parameters: %v", err)
	}

	timeout := 120 * time.Second
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := e.runner.RunShell(ctx, e.workDir, params.Command)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return failure("Command timed out after %v:\n%s", timeout, truncate(string(output)))
		}
		return failure("%s\nError: %v", truncate(string(output)), err)
	}
	return ToolResult{Content: truncate(string(output))}
}

func (e *ToolExecutor) execGlob(input json.RawMessage) ToolResult {
	var params struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return failure("Invalid parameters: %v", err)
	}
	root := e.workDir
	if params.Path != "" {
		p, err := e.resolvePath(params.Path)
		if err != nil {
			return failure("%v", err)
		}
		root = p
	}

	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(filepath.Base(params.Pattern), d.Name()); ok {
			rel, _ := filepath.Rel(root, path)
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return failure("Glob error: %v", err)
	}
	if len(matches) == 0 {
		return ToolResult{Content: "No files matched the pattern"}
	}
	return ToolResult{Content: strings.Join(matches, "\n")}
}

func (e *ToolExecutor) execListDir(input json.RawMessage) ToolResult {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return failure("Invalid parameters: %v", err)
	}
	path, err := e.resolvePath(params.Path)
	if err != nil {
		return failure("%v", err)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return failure("Failed to read directory: %v", err)
	}

	var result strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&result, "d %s/\n", entry.Name())
			continue
		}
		if info, err := entry.Info(); err == nil {
			fmt.Fprintf(&result, "- %s (%d bytes)\n", entry.Name(), info.Size())
		} else {
			fmt.Fprintf(&result, "? %s\n", entry.Name())
		}
	}
	return ToolResult{Content: result.String()}
}

// resolvePath maps path into the working directory and rejects escapes.
func (e *ToolExecutor) resolvePath(path string) (string, error) {
	root, err := filepath.Abs(e.workDir)
	if err != nil {
		return "", err
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	resolved = filepath.Clean(resolved)
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the working directory", path)
	}
	return resolved, nil
}

func truncate(s string) string {
	if len(s) > maxToolOutput {
		return s[:maxToolOutput] + "\n... (output truncated)"
	}
	return s
}
