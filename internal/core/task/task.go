// Package task defines task domain types and ordering rules.
package task

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hay-kot/criterio"
)

// Task is a single unit of work for the agent.
//
// Passes is the terminal success flag. It is set to true only by the
// orchestrator after every phase and gate has succeeded; an agent signal
// alone never flips it.
type Task struct {
	ID                 string   `yaml:"id" json:"id"`
	Title              string   `yaml:"title" json:"title"`
	Description        string   `yaml:"description" json:"description"`
	AcceptanceCriteria []string `yaml:"acceptance_criteria" json:"acceptance_criteria"`
	Priority           int      `yaml:"priority" json:"priority"`
	Passes             bool     `yaml:"passes" json:"passes"`
	Notes              string   `yaml:"notes,omitempty" json:"notes,omitempty"`
	RequiresTests      bool     `yaml:"requires_tests" json:"requires_tests"`
}

// SortByPriority orders tasks by ascending priority, preserving declaration
// order for equal priorities. The engine never reorders based on content.
func SortByPriority(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Priority < tasks[j].Priority
	})
}

// Pending returns the tasks that have not yet passed, in the given order.
func Pending(tasks []*Task) []*Task {
	var out []*Task
	for _, t := range tasks {
		if !t.Passes {
			out = append(out, t)
		}
	}
	return out
}

// ValidateList checks a loaded task list for errors using criterio.
func ValidateList(tasks []*Task) error {
	if len(tasks) == 0 {
		return criterio.NewFieldErrors("tasks", fmt.Errorf("list is empty"))
	}

	var errs criterio.FieldErrorsBuilder
	seenIDs := make(map[string]bool)

	for i, t := range tasks {
		field := fmt.Sprintf("tasks[%d]", i)

		if strings.TrimSpace(t.ID) == "" {
			errs = errs.Append(field+".id", fmt.Errorf("id is required"))
			continue
		}

		if seenIDs[t.ID] {
			errs = errs.Append(field+".id", fmt.Errorf("duplicate id %q", t.ID))
			continue
		}
		seenIDs[t.ID] = true

		if strings.TrimSpace(t.Title) == "" {
			errs = errs.Append(field+".title", fmt.Errorf("title is required"))
		}

		if t.Priority < 0 {
			errs = errs.Append(field+".priority", fmt.Errorf("priority must be >= 0, got %d", t.Priority))
		}
	}

	return errs.ToError()
}
