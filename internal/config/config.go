// Package config loads swarmer configuration. Values come from built-in
// defaults, the user config under XDG_CONFIG_HOME, a project .swarmer.yaml
// and SWARMER_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/swarmer/internal/isolation"
	"github.com/ShayCichocki/swarmer/internal/natsbus"
	"github.com/ShayCichocki/swarmer/internal/state"
	"github.com/ShayCichocki/swarmer/internal/subagent"
	"github.com/ShayCichocki/swarmer/internal/swarm"
)

// ProjectFile is the per-repository config file name.
const ProjectFile = ".swarmer.yaml"

// Config holds all configuration for swarmer.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Subagent  SubagentConfig  `mapstructure:"subagent"`
	Swarm     SwarmConfig     `mapstructure:"swarm"`
	Git       GitConfig       `mapstructure:"git"`
	State     StateConfig     `mapstructure:"state"`
	Events    EventsConfig    `mapstructure:"events"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// SubagentConfig selects the executor backend.
type SubagentConfig struct {
	// Backend is cli, api or bedrock.
	Backend string `mapstructure:"backend"`
	Model   string `mapstructure:"model"`
	// Command is the CLI binary for the cli backend.
	Command    string `mapstructure:"command"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// SwarmConfig holds the coordination knobs.
type SwarmConfig struct {
	MaxAgents             int           `mapstructure:"max_agents"`
	CoordinationInterval  time.Duration `mapstructure:"coordination_interval"`
	CheckpointAfter       time.Duration `mapstructure:"checkpoint_after"`
	DriftFailureThreshold int           `mapstructure:"drift_failure_threshold"`
	MaxLogEntries         int           `mapstructure:"max_log_entries"`
	RespectDependencies   bool          `mapstructure:"respect_dependencies"`
	IntegrateOnFinish     bool          `mapstructure:"integrate_on_finish"`
	WorkspaceRoot         string        `mapstructure:"workspace_root"`
	StopTimeout           time.Duration `mapstructure:"stop_timeout"`
}

// GitConfig controls branch isolation.
type GitConfig struct {
	// Enabled turns branch isolation on when the project is a git repository.
	Enabled                bool   `mapstructure:"enabled"`
	BaselineBranch         string `mapstructure:"baseline_branch"`
	BranchStrategy         string `mapstructure:"branch_strategy"`
	MergeStrategy          string `mapstructure:"merge_strategy"`
	Remote                 string `mapstructure:"remote"`
	PullRequests           bool   `mapstructure:"pull_requests"`
	IntegrationTestCommand string `mapstructure:"integration_test_command"`
}

// StateConfig selects the audit database driver.
type StateConfig struct {
	Driver string `mapstructure:"driver"`
	// Retention purges frames older than this on startup. Zero keeps everything.
	Retention time.Duration `mapstructure:"retention"`
}

// EventsConfig controls event publishing over NATS.
type EventsConfig struct {
	NatsURL string `mapstructure:"nats_url"`
	Prefix  string `mapstructure:"prefix"`
	// Embedded starts an in-process NATS server when NatsURL is empty.
	Embedded bool `mapstructure:"embedded"`
	// EmbeddedPort is the embedded server port; zero picks a free one.
	EmbeddedPort int `mapstructure:"embedded_port"`
}

// MetricsConfig controls the HTTP observation server.
type MetricsConfig struct {
	// Addr is the listen address; empty disables the server.
	Addr string `mapstructure:"addr"`
}

// DebugConfig controls the verbose trace log.
type DebugConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	LogPath string `mapstructure:"log_path"`
}

// SwarmOptions converts the swarm section for the coordinator.
func (c *Config) SwarmOptions(repoPath string) swarm.Config {
	return swarm.Config{
		RepoPath:              repoPath,
		WorkspaceRoot:         c.Swarm.WorkspaceRoot,
		MaxAgents:             c.Swarm.MaxAgents,
		CoordinationInterval:  c.Swarm.CoordinationInterval,
		CheckpointAfter:       c.Swarm.CheckpointAfter,
		DriftFailureThreshold: c.Swarm.DriftFailureThreshold,
		MaxLogEntries:         c.Swarm.MaxLogEntries,
		RespectDependencies:   c.Swarm.RespectDependencies,
		IntegrateOnFinish:     c.Swarm.IntegrateOnFinish,
	}
}

// IsolationOptions converts the git section for the isolation manager.
func (c *Config) IsolationOptions() isolation.Config {
	return isolation.Config{
		BaselineBranch: c.Git.BaselineBranch,
		BranchStrategy: isolation.BranchStrategy(c.Git.BranchStrategy),
		MergeStrategy:  isolation.MergeStrategy(c.Git.MergeStrategy),
		Remote:         c.Git.Remote,
		PullRequests:   c.Git.PullRequests,
	}
}

// SubagentOptions converts the subagent section, filling in the API key.
func (c *Config) SubagentOptions() (subagent.Options, error) {
	backend, err := subagent.ParseBackend(c.Subagent.Backend)
	if err != nil {
		return subagent.Options{}, err
	}
	opts := subagent.Options{
		Backend:    backend,
		Model:      c.Subagent.Model,
		Command:    c.Subagent.Command,
		AWSRegion:  c.Subagent.AWSRegion,
		AWSProfile: c.Subagent.AWSProfile,
	}
	if backend == subagent.BackendAPI {
		key, err := GetAPIKey(c)
		if err != nil {
			return subagent.Options{}, err
		}
		opts.APIKey = key
	}
	return opts, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := subagent.ParseBackend(c.Subagent.Backend); err != nil {
		errs = append(errs, err)
	}
	if c.Swarm.MaxAgents < 0 {
		errs = append(errs, fmt.Errorf("swarm.max_agents must not be negative"))
	}
	if c.Swarm.CoordinationInterval < 0 {
		errs = append(errs, fmt.Errorf("swarm.coordination_interval must not be negative"))
	}
	if s := c.Git.BranchStrategy; s != "" && !isolation.BranchStrategy(s).Valid() {
		errs = append(errs, fmt.Errorf("git.branch_strategy %q is not one of feature, agent, task", s))
	}
	if s := c.Git.MergeStrategy; s != "" && !isolation.MergeStrategy(s).Valid() {
		errs = append(errs, fmt.Errorf("git.merge_strategy %q is not one of squash, rebase, merge", s))
	}
	if d := c.State.Driver; d != state.DriverModernc && d != state.DriverMattn {
		errs = append(errs, fmt.Errorf("state.driver %q is not one of %s, %s", d, state.DriverModernc, state.DriverMattn))
	}
	return errors.Join(errs...)
}

// Load reads configuration for the current directory.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir reads configuration, searching for the project file from dir upward.
func LoadDir(dir string) (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if path := findProjectConfig(dir); path != "" {
		pv := viper.New()
		pv.SetConfigFile(path)
		if err := pv.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", path, err)
		}
		if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return decode(v)
}

// LoadFromPath loads configuration from one file on top of the defaults.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SWARMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("anthropic.api_key", "SWARMER_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// Save writes cfg to the user config file.
func Save(cfg *Config) error {
	return SaveTo(UserConfigPath(), cfg)
}

// SaveTo writes cfg as YAML to path, creating parent directories.
func SaveTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	for key, val := range settings(cfg) {
		v.Set(key, val)
	}
	return v.WriteConfigAs(path)
}

// settings flattens cfg into dotted keys. Durations are written as strings.
func settings(cfg *Config) map[string]any {
	return map[string]any{
		"anthropic.api_key":             cfg.Anthropic.APIKey,
		"subagent.backend":              cfg.Subagent.Backend,
		"subagent.model":                cfg.Subagent.Model,
		"subagent.command":              cfg.Subagent.Command,
		"subagent.aws_region":           cfg.Subagent.AWSRegion,
		"subagent.aws_profile":          cfg.Subagent.AWSProfile,
		"swarm.max_agents":              cfg.Swarm.MaxAgents,
		"swarm.coordination_interval":   cfg.Swarm.CoordinationInterval.String(),
		"swarm.checkpoint_after":        cfg.Swarm.CheckpointAfter.String(),
		"swarm.drift_failure_threshold": cfg.Swarm.DriftFailureThreshold,
		"swarm.max_log_entries":         cfg.Swarm.MaxLogEntries,
		"swarm.respect_dependencies":    cfg.Swarm.RespectDependencies,
		"swarm.integrate_on_finish":     cfg.Swarm.IntegrateOnFinish,
		"swarm.workspace_root":          cfg.Swarm.WorkspaceRoot,
		"swarm.stop_timeout":            cfg.Swarm.StopTimeout.String(),
		"git.enabled":                   cfg.Git.Enabled,
		"git.baseline_branch":           cfg.Git.BaselineBranch,
		"git.branch_strategy":           cfg.Git.BranchStrategy,
		"git.merge_strategy":            cfg.Git.MergeStrategy,
		"git.remote":                    cfg.Git.Remote,
		"git.pull_requests":             cfg.Git.PullRequests,
		"git.integration_test_command":  cfg.Git.IntegrationTestCommand,
		"state.driver":                  cfg.State.Driver,
		"state.retention":               cfg.State.Retention.String(),
		"events.nats_url":               cfg.Events.NatsURL,
		"events.prefix":                 cfg.Events.Prefix,
		"events.embedded":               cfg.Events.Embedded,
		"events.embedded_port":          cfg.Events.EmbeddedPort,
		"metrics.addr":                  cfg.Metrics.Addr,
		"debug.enabled":                 cfg.Debug.Enabled,
		"debug.log_path":                cfg.Debug.LogPath,
	}
}

// UserConfigPath returns the path to the user config file.
func UserConfigPath() string {
	return filepath.Join(userConfigDir(), "config.yaml")
}

// ProjectConfigPath returns the project config found from dir upward, or "".
func ProjectConfigPath(dir string) string {
	return findProjectConfig(dir)
}

func setDefaults(v *viper.Viper) {
	for key, val := range settings(Default()) {
		v.SetDefault(key, val)
	}
}

func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "swarmer")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "swarmer")
	}
	return filepath.Join(home, ".config", "swarmer")
}

func findProjectConfig(dir string) string {
	for {
		path := filepath.Join(dir, ProjectFile)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Subagent: SubagentConfig{
			Backend: string(subagent.BackendCLI),
			Command: "claude",
		},
		Swarm: SwarmConfig{
			MaxAgents:             swarm.DefaultMaxAgents,
			CoordinationInterval:  swarm.DefaultCoordinationInterval,
			CheckpointAfter:       swarm.DefaultCheckpointAfter,
			DriftFailureThreshold: swarm.DefaultDriftFailureThreshold,
			MaxLogEntries:         swarm.DefaultMaxLogEntries,
			WorkspaceRoot:         filepath.Join(".swarmer", "workspaces"),
			StopTimeout:           2 * time.Minute,
		},
		Git: GitConfig{
			Enabled:        true,
			BranchStrategy: string(isolation.BranchPerAgent),
			MergeStrategy:  string(isolation.MergeSquash),
		},
		State: StateConfig{
			Driver: state.DriverModernc,
		},
		Events: EventsConfig{
			Prefix: natsbus.DefaultPrefix,
		},
		Debug: DebugConfig{
			LogPath: filepath.Join(".swarmer", "logs", "swarm-debug.log"),
		},
	}
}
