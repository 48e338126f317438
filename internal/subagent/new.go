package subagent

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/swarmer/internal/exec"
	"github.com/ShayCichocki/swarmer/internal/logging"
)

// Options selects and configures a backend.
type Options struct {
	Backend    Backend
	Model      string
	Command    string
	APIKey     string
	AWSRegion  string
	AWSProfile string
}

// New builds the Executor for opts.Backend.
func New(ctx context.Context, opts Options, runner exec.CommandRunner, debug *logging.DebugLogger) (Executor, error) {
	switch opts.Backend {
	case BackendCLI, "":
		return NewCLIExecutor(runner, opts.Command, opts.Model), nil
	case BackendAPI, BackendBedrock:
		client, err := NewClient(ctx, ClientConfig{
			Model:         anthropic.Model(opts.Model),
			APIKey:        opts.APIKey,
			UseAWSBedrock: opts.Backend == BackendBedrock,
			AWSRegion:     opts.AWSRegion,
			AWSProfile:    opts.AWSProfile,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s client: %w", opts.Backend, err)
		}
		return NewAPIExecutor(client, runner, debug), nil
	default:
		return nil, fmt.Errorf("unknown executor backend %q", opts.Backend)
	}
}
