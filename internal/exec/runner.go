package exec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct {
	env []string
}

// NewRunner creates an ExecRunner. Extra env entries (KEY=VALUE) are appended
// to the inherited environment of every command.
func NewRunner(env ...string) *ExecRunner {
	return &ExecRunner{env: env}
}

func (r *ExecRunner) command(ctx context.Context, workDir, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	if len(r.env) > 0 {
		cmd.Env = append(cmd.Environ(), r.env...)
	}
	return cmd
}

// Run executes a command and returns combined stdout/stderr output.
func (r *ExecRunner) Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error) {
	return r.command(ctx, workDir, name, args...).CombinedOutput()
}

// RunShell executes a shell command through "sh -c".
func (r *ExecRunner) RunShell(ctx context.Context, workDir string, command string) ([]byte, error) {
	return r.Run(ctx, workDir, "sh", "-c", command)
}

// RunWithInput pipes input to the command's stdin. Stderr is folded into the
// returned error on failure.
func (r *ExecRunner) RunWithInput(ctx context.Context, workDir string, input string, name string, args ...string) ([]byte, error) {
	cmd := r.command(ctx, workDir, name, args...)
	cmd.Stdin = strings.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// LookPath reports whether name is on PATH.
func (r *ExecRunner) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

var _ CommandRunner = (*ExecRunner)(nil)
