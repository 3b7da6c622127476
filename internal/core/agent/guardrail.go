package agent

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GuardrailViolation is returned when a phase touched files outside its
// allowed paths.
type GuardrailViolation struct {
	Phase Phase
	Paths []string
}

func (e *GuardrailViolation) Error() string {
	return fmt.Sprintf("phase %s modified files outside allowed paths: %s",
		e.Phase, strings.Join(e.Paths, ", "))
}

// Guardrail restricts which files a phase may modify.
type Guardrail struct {
	// TestPaths are doublestar globs that the test_writing phase is
	// confined to, e.g. "**/*_test.go" or "tests/**".
	TestPaths []string
}

// CheckTestWriting validates the changed paths after a test_writing phase.
// Every changed file must match at least one configured glob. With no globs
// configured the guardrail is disabled.
func (g Guardrail) CheckTestWriting(changed []string) error {
	if len(g.TestPaths) == 0 {
		return nil
	}

	var violations []string
	for _, path := range changed {
		if !matchesAny(g.TestPaths, filepath.ToSlash(path)) {
			violations = append(violations, path)
		}
	}
	if len(violations) > 0 {
		return &GuardrailViolation{Phase: PhaseTestWriting, Paths: violations}
	}
	return nil
}

func matchesAny(globs []string, path string) bool {
	for _, g := range globs {
		ok, err := doublestar.Match(g, path)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// ValidateGlobs checks that every configured glob parses. Used by config
// validation so a bad pattern fails fast rather than silently never matching.
func (g Guardrail) ValidateGlobs() error {
	for _, pattern := range g.TestPaths {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid test path glob: %q", pattern)
		}
	}
	return nil
}
