// Package config handles configuration loading and validation for foreman.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/colonyops/foreman/internal/core/agent"
	"github.com/colonyops/foreman/internal/core/gate"
)

// Config holds the application configuration.
type Config struct {
	Agent         AgentConfig      `yaml:"agent"`
	Gates         GatesConfig      `yaml:"gates"`
	Guardrails    GuardrailsConfig `yaml:"guardrails"`
	MaxIterations int              `yaml:"max_iterations"`
	GitPath       string           `yaml:"git_path"`
	TasksFile     string           `yaml:"tasks_file"`
	DataDir       string           `yaml:"-"` // set by caller, not from config file
}

// AgentConfig configures the external agent command and per-phase prompts.
type AgentConfig struct {
	Command        string            `yaml:"command"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	MaxOutputBytes int64             `yaml:"max_output_bytes"`
	Prompts        map[string]string `yaml:"prompts"`
}

// GatesConfig holds the two gate tiers. Build gates run before full gates.
type GatesConfig struct {
	Build []gate.Config `yaml:"build"`
	Full  []gate.Config `yaml:"full"`
}

// GuardrailsConfig restricts what each phase may touch.
type GuardrailsConfig struct {
	// TestPaths are doublestar globs the test_writing phase is confined to.
	TestPaths []string `yaml:"test_paths"`
}

// signalProtocol is appended to every phase prompt that must end with a
// verified signal. The token comes from the child environment and the
// checksum from the checksum command, so the agent never has to compute
// either itself.
const signalProtocol = `
When you are completely done, emit exactly one signal line:

 1. Run ` + "`foreman checksum`" + ` to get the current working-tree checksum.
 2. Print on its own line:
    ##SIGNAL## {"type":"%s","token":"$FOREMAN_SESSION_TOKEN","checksum":"<output of step 1>","criteria_met":<true|false>}

Substitute the real token value from the FOREMAN_SESSION_TOKEN environment
variable. Do not modify any files between step 1 and exiting.`

// defaultPrompts ship with foreman and can be overridden per phase.
var defaultPrompts = map[string]string{
	string(agent.PhasePlanning): `Plan the work for this task before touching code.

Task: {{ .Task.Title }}
{{ .Task.Description }}

Acceptance criteria:
{{ bullets .Task.AcceptanceCriteria }}`,

	string(agent.PhaseImplementation): `Implement the following task.

Task: {{ .Task.Title }}
{{ .Task.Description }}

Acceptance criteria:
{{ bullets .Task.AcceptanceCriteria }}
` + fmt.Sprintf(signalProtocol, "implementation_done"),

	string(agent.PhaseTestWriting): `Write tests for the task below. Only create or modify test files.

Task: {{ .Task.Title }}

Acceptance criteria:
{{ bullets .Task.AcceptanceCriteria }}
` + fmt.Sprintf(signalProtocol, "tests_written"),

	string(agent.PhaseReview): `Review the implementation of this task against its acceptance criteria.
Set criteria_met to true only if every criterion is satisfied.

Task: {{ .Task.Title }}

Acceptance criteria:
{{ bullets .Task.AcceptanceCriteria }}
` + fmt.Sprintf(signalProtocol, "review_passed"),

	string(agent.PhaseFix): `Gates failed for this task. Fix the failures below; gates run again when you exit.

Task: {{ .Task.Title }}

Failures:
{{ range .GateFailures }}
gate {{ .Name }} (exit {{ .ExitCode }}):
{{ indent "  " .Output }}
{{ end }}
{{ if .UnmetCriteria }}Unmet criteria:
{{ bullets .UnmetCriteria }}{{ end }}`,
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Agent: AgentConfig{
			TimeoutSeconds: 600,
			Prompts:        map[string]string{},
		},
		MaxIterations: 3,
		GitPath:       "git",
		TasksFile:     "tasks.yaml",
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	// Merge user prompts into defaults (user config overrides defaults)
	cfg.Agent.Prompts = mergePrompts(defaultPrompts, cfg.Agent.Prompts)

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.MaxIterations == 0 {
		c.MaxIterations = defaults.MaxIterations
	}
	if c.Agent.TimeoutSeconds == 0 {
		c.Agent.TimeoutSeconds = defaults.Agent.TimeoutSeconds
	}
	if c.GitPath == "" {
		c.GitPath = defaults.GitPath
	}
	if c.TasksFile == "" {
		c.TasksFile = defaults.TasksFile
	}
}

// mergePrompts merges user prompts into defaults.
// User prompts override defaults for the same phase.
func mergePrompts(defaults, user map[string]string) map[string]string {
	result := make(map[string]string, len(defaults)+len(user))
	for k, v := range defaults {
		result[k] = v
	}
	for k, v := range user {
		result[k] = v
	}
	return result
}

// PromptsByPhase converts the string-keyed prompt map into the invoker's
// typed form. Call only after Validate has rejected unknown phase keys.
func (c *Config) PromptsByPhase() map[agent.Phase]string {
	out := make(map[agent.Phase]string, len(c.Agent.Prompts))
	for k, v := range c.Agent.Prompts {
		out[agent.Phase(k)] = v
	}
	return out
}

// SessionFile returns the path where the session record is persisted.
func (c *Config) SessionFile() string {
	return filepath.Join(c.DataDir, "session.json")
}
