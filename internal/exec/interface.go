// Package exec runs external tools (integration test commands, gh, the agent CLI).
package exec

import (
	"context"
)

// CommandRunner runs external commands. Tests substitute a fake.
type CommandRunner interface {
	// Run executes name with args in workDir and returns combined output.
	Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error)

	// RunShell executes command through "sh -c" in workDir.
	RunShell(ctx context.Context, workDir string, command string) ([]byte, error)

	// RunWithInput executes name with stdin fed from input and returns stdout only.
	RunWithInput(ctx context.Context, workDir string, input string, name string, args ...string) ([]byte, error)

	// LookPath reports whether name resolves on PATH.
	LookPath(name string) bool
}
