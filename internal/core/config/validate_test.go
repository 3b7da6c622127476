package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/foreman/internal/core/gate"
)

func deepValidConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Agent.Command = "true"
	cfg.Agent.Prompts = mergePrompts(defaultPrompts, nil)
	return cfg
}

func TestValidateDeepPasses(t *testing.T) {
	cfg := deepValidConfig(t)
	assert.NoError(t, cfg.ValidateDeep(""))
}

func TestValidateDeepMissingAgentCommand(t *testing.T) {
	cfg := deepValidConfig(t)
	cfg.Agent.Command = ""
	assert.ErrorContains(t, cfg.ValidateDeep(""), "agent.command")
}

func TestValidateDeepBadPromptTemplate(t *testing.T) {
	cfg := deepValidConfig(t)
	cfg.Agent.Prompts["fix"] = "{{ .Broken"
	assert.ErrorContains(t, cfg.ValidateDeep(""), "agent.prompts[fix]")
}

func TestValidateDeepBadGuardrailGlob(t *testing.T) {
	cfg := deepValidConfig(t)
	cfg.Guardrails.TestPaths = []string{"[bad"}
	assert.ErrorContains(t, cfg.ValidateDeep(""), "guardrails.test_paths")
}

func TestValidateDeepMissingGitExecutable(t *testing.T) {
	cfg := deepValidConfig(t)
	cfg.GitPath = "definitely-not-a-real-binary-7f3a"
	assert.ErrorContains(t, cfg.ValidateDeep(""), "executable not found")
}

func TestValidateDeepConfigPathIsDirectory(t *testing.T) {
	cfg := deepValidConfig(t)
	assert.ErrorContains(t, cfg.ValidateDeep(cfg.DataDir), "directory, not a file")
}

func TestValidateDeepDataDirIsFile(t *testing.T) {
	cfg := deepValidConfig(t)
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	cfg.DataDir = path
	assert.ErrorContains(t, cfg.ValidateDeep(""), "not a directory")
}

func TestWarnings(t *testing.T) {
	cfg := deepValidConfig(t)

	warnings := cfg.Warnings()
	require.Len(t, warnings, 2)
	assert.Equal(t, "Gates", warnings[0].Category)
	assert.Equal(t, "Guardrails", warnings[1].Category)

	cfg.Gates.Build = append(cfg.Gates.Build, gate.Config{Name: "vet", Cmd: "go vet ./..."})
	cfg.Guardrails.TestPaths = []string{"**/*_test.go"}
	assert.Empty(t, cfg.Warnings())
}
