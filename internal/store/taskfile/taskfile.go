// Package taskfile persists the task queue as a YAML file. The file is the
// user's source of truth: foreman reads it at run start and writes task
// status back after each transition.
package taskfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/colonyops/foreman/internal/core/task"
	"github.com/colonyops/foreman/pkg/randid"
)

// ErrTaskNotFound is returned when an update targets an unknown task id.
var ErrTaskNotFound = errors.New("task not found")

// File is the root YAML structure stored on disk.
type File struct {
	Tasks []*task.Task `yaml:"tasks"`
}

// Store reads and writes a task YAML file.
type Store struct {
	path string
	mu   sync.RWMutex
}

// NewStore creates a task store for the given path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads and validates all tasks from the file.
func (s *Store) Load() ([]*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.load()
	if err != nil {
		return nil, err
	}

	if err := task.ValidateList(file.Tasks); err != nil {
		return nil, err
	}

	return file.Tasks, nil
}

// Save writes the full task list back to disk atomically.
func (s *Store) Save(tasks []*task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(File{Tasks: tasks})
}

// Update applies fn to the task with the given id and writes the file back.
// Returns ErrTaskNotFound if no task matches.
func (s *Store) Update(id string, fn func(*task.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return err
	}

	var found bool
	for _, t := range file.Tasks {
		if t.ID == id {
			fn(t)
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	return s.save(file)
}

// load reads the task file from disk.
func (s *Store) load() (File, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return File{}, fmt.Errorf("read tasks file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("parse tasks file: %w", err)
	}

	return file, nil
}

// save writes the task file to disk atomically.
func (s *Store) save(file File) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(file)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp-" + randid.Generate(8)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, s.path)
}
