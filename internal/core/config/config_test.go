package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/foreman/internal/core/agent"
	"github.com/colonyops/foreman/internal/core/gate"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "/tmp/foreman-data")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/foreman-data", cfg.DataDir)
	assert.Equal(t, "git", cfg.GitPath)
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.Equal(t, "tasks.yaml", cfg.TasksFile)

	// Every phase ships with a default prompt.
	for _, phase := range agent.Phases() {
		assert.NotEmpty(t, cfg.Agent.Prompts[string(phase)], "missing default prompt for %s", phase)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml", "/tmp/foreman-data")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxIterations)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foreman.yaml")
	content := `
agent:
  command: "agent-cli --headless"
  timeout_seconds: 300
  prompts:
    implementation: "do {{ .Task.Title }}"
gates:
  build:
    - name: vet
      cmd: go vet ./...
      fatal: true
  full:
    - name: test
      cmd: go test ./...
      timeout_seconds: 240
guardrails:
  test_paths:
    - "**/*_test.go"
max_iterations: 5
tasks_file: work/tasks.yaml
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, dir)
	require.NoError(t, err)

	assert.Equal(t, "agent-cli --headless", cfg.Agent.Command)
	assert.Equal(t, 300, cfg.Agent.TimeoutSeconds)
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, "work/tasks.yaml", cfg.TasksFile)
	assert.Equal(t, []string{"**/*_test.go"}, cfg.Guardrails.TestPaths)

	require.Len(t, cfg.Gates.Build, 1)
	assert.Equal(t, "vet", cfg.Gates.Build[0].Name)
	assert.True(t, cfg.Gates.Build[0].Fatal)
	require.Len(t, cfg.Gates.Full, 1)
	assert.Equal(t, 240, cfg.Gates.Full[0].TimeoutSeconds)

	// User override replaces the default for that phase only.
	assert.Equal(t, "do {{ .Task.Title }}", cfg.Agent.Prompts[string(agent.PhaseImplementation)])
	assert.NotEmpty(t, cfg.Agent.Prompts[string(agent.PhaseReview)])
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foreman.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gates: [not: a: map"), 0o644))

	_, err := Load(path, dir)
	assert.ErrorContains(t, err, "parse config file")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := DefaultConfig()
		cfg.DataDir = "/tmp/foreman-data"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "empty git path",
			mutate:  func(c *Config) { c.GitPath = "" },
			wantErr: "git_path",
		},
		{
			name:    "empty data dir",
			mutate:  func(c *Config) { c.DataDir = "" },
			wantErr: "data_dir",
		},
		{
			name:    "zero max iterations",
			mutate:  func(c *Config) { c.MaxIterations = 0 },
			wantErr: "max_iterations",
		},
		{
			name:    "unknown prompt phase",
			mutate:  func(c *Config) { c.Agent.Prompts = map[string]string{"deploying": "x"} },
			wantErr: `unknown phase "deploying"`,
		},
		{
			name: "gate without name",
			mutate: func(c *Config) {
				c.Gates.Build = []gate.Config{{Cmd: "go build ./..."}}
			},
			wantErr: "gates.build[0].name",
		},
		{
			name: "gate without cmd",
			mutate: func(c *Config) {
				c.Gates.Full = []gate.Config{{Name: "test"}}
			},
			wantErr: "gates.full[0].cmd",
		},
		{
			name: "duplicate gate names within tier",
			mutate: func(c *Config) {
				c.Gates.Build = []gate.Config{
					{Name: "vet", Cmd: "go vet ./..."},
					{Name: "vet", Cmd: "golangci-lint run"},
				}
			},
			wantErr: "duplicate gate name",
		},
		{
			name: "negative gate timeout",
			mutate: func(c *Config) {
				c.Gates.Build = []gate.Config{{Name: "vet", Cmd: "go vet", TimeoutSeconds: -1}}
			},
			wantErr: "timeout_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestPromptsByPhase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agent.Prompts = map[string]string{"fix": "fix it"}

	byPhase := cfg.PromptsByPhase()
	assert.Equal(t, "fix it", byPhase[agent.PhaseFix])
}

func TestSessionFile(t *testing.T) {
	cfg := Config{DataDir: "/data"}
	assert.Equal(t, filepath.Join("/data", "session.json"), cfg.SessionFile())
}
