package config

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/hay-kot/criterio"

	"github.com/colonyops/foreman/internal/core/agent"
	"github.com/colonyops/foreman/internal/core/gate"
	"github.com/colonyops/foreman/pkg/tmpl"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// Validate checks that the configuration is structurally valid.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.GitPath == "" {
		errs = errs.Append("git_path", fmt.Errorf("cannot be empty"))
	}
	if c.DataDir == "" {
		errs = errs.Append("data_dir", fmt.Errorf("cannot be empty"))
	}
	if c.MaxIterations < 1 {
		errs = errs.Append("max_iterations", fmt.Errorf("must be at least 1"))
	}
	if c.Agent.TimeoutSeconds < 0 {
		errs = errs.Append("agent.timeout_seconds", fmt.Errorf("cannot be negative"))
	}

	for phase := range c.Agent.Prompts {
		if !agent.Phase(phase).Valid() {
			errs = errs.Append("agent.prompts", fmt.Errorf("unknown phase %q", phase))
		}
	}

	errs = appendGateErrors(errs, "gates.build", c.Gates.Build)
	errs = appendGateErrors(errs, "gates.full", c.Gates.Full)

	return errs.ToError()
}

func appendGateErrors(errs criterio.FieldErrorsBuilder, field string, gates []gate.Config) criterio.FieldErrorsBuilder {
	seen := map[string]bool{}
	for i, g := range gates {
		prefix := fmt.Sprintf("%s[%d]", field, i)
		if g.Name == "" {
			errs = errs.Append(prefix+".name", fmt.Errorf("cannot be empty"))
		} else if seen[g.Name] {
			errs = errs.Append(prefix+".name", fmt.Errorf("duplicate gate name %q", g.Name))
		}
		seen[g.Name] = true

		if g.Cmd == "" {
			errs = errs.Append(prefix+".cmd", fmt.Errorf("cannot be empty"))
		}
		if g.TimeoutSeconds < 0 {
			errs = errs.Append(prefix+".timeout_seconds", fmt.Errorf("cannot be negative"))
		}
	}
	return errs
}

// ValidateDeep performs comprehensive validation of the configuration
// including template syntax, guardrail globs, and file accessibility. The
// configPath argument specifies the config file location to validate (empty
// string skips the config file check). This calls Validate() first for basic
// structural validation, then adds I/O checks.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		c.validateFileAccess(configPath),
		c.validatePromptTemplates(),
		c.validateGuardrails(),
		c.validateAgentCommand(),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if len(c.Gates.Build) == 0 && len(c.Gates.Full) == 0 {
		warnings = append(warnings, ValidationWarning{
			Category: "Gates",
			Message:  "no gates configured; every implementation will pass unchecked",
		})
	}
	if len(c.Guardrails.TestPaths) == 0 {
		warnings = append(warnings, ValidationWarning{
			Category: "Guardrails",
			Message:  "no test_paths configured; the test_writing phase may modify any file",
		})
	}

	return warnings
}

// validateFileAccess checks config file, data directory, tasks file, and git executable.
func (c *Config) validateFileAccess(configPath string) error {
	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("git_path", c.GitPath, gitExecutableExists),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
	)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// gitExecutableExists validates that the git path is executable.
func gitExecutableExists(path string) error {
	if path == "" {
		return nil
	}
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("executable not found: %s", path)
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

// validatePromptTemplates checks template syntax for every configured phase
// prompt. Rendering happens with live task data at invocation time; only
// parse errors can be caught here.
func (c *Config) validatePromptTemplates() error {
	var errs criterio.FieldErrorsBuilder
	for phase, prompt := range c.Agent.Prompts {
		if err := tmpl.Validate(prompt); err != nil {
			errs = errs.Append(fmt.Sprintf("agent.prompts[%s]", phase), err)
		}
	}
	return errs.ToError()
}

func (c *Config) validateGuardrails() error {
	g := agent.Guardrail{TestPaths: c.Guardrails.TestPaths}
	if err := g.ValidateGlobs(); err != nil {
		return criterio.NewFieldErrors("guardrails.test_paths", err)
	}
	return nil
}

func (c *Config) validateAgentCommand() error {
	if c.Agent.Command == "" {
		return criterio.NewFieldErrors("agent.command", fmt.Errorf("cannot be empty"))
	}
	return nil
}
