// Package subagent delegates a single task to an AI coding agent.
//
// The swarm treats an Executor as slow and fallible. A returned error means
// the call itself failed; Response.Success reports whether the agent
// finished the task. Both outcomes count as task failure for the caller.
package subagent

import (
	"context"
	"fmt"
	"strings"
)

// Request is one delegated unit of work.
type Request struct {
	// Type names the kind of agent, normally its role.
	Type string
	// Task is the composed task prompt.
	Task string
	// Context carries role instructions and swarm context, sent as the system prompt.
	Context string
	// MaxIterations bounds agent turns. Zero uses the backend default.
	MaxIterations int
	// WorkDir is where file and shell tools operate.
	WorkDir string
}

// Response is the executor's report. Tokens is nil when the backend does
// not report usage.
type Response struct {
	Success bool
	Result  string
	Tokens  *int64
}

// Executor runs a Request to completion.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (*Response, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Backend selects an Executor implementation.
type Backend string

const (
	// BackendCLI shells out to the Claude Code CLI.
	BackendCLI Backend = "cli"
	// BackendAPI calls the Anthropic API directly.
	BackendAPI Backend = "api"
	// BackendBedrock calls Claude through AWS Bedrock.
	BackendBedrock Backend = "bedrock"
)

// ParseBackend validates a configured backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendCLI, BackendAPI, BackendBedrock:
		return b, nil
	case "":
		return BackendCLI, nil
	default:
		return "", fmt.Errorf("unknown executor backend %q (want cli, api or bedrock)", s)
	}
}

const defaultMaxIterations = 10

func maxIterations(req Request) int {
	if req.MaxIterations > 0 {
		return req.MaxIterations
	}
	return defaultMaxIterations
}

func tokens(n int64) *int64 {
	return &n
}
