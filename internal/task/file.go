package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File is the on-disk task definition document.
type File struct {
	Tasks []*Task `json:"tasks"`
}

// fileTask shadows the numeric fields with pointers so an absent key can be
// told apart from an explicit value. "max_retries": 0 is a valid task that
// allows no retries; a missing key gets the default.
type fileTask struct {
	Task
	MaxRetries *int `json:"max_retries"`
	Timeout    *int `json:"timeout"`
}

// Load reads a task definition file, applies defaults, and validates every
// task. Any schema violation aborts the load with a DefinitionError naming
// the offending task.
func Load(path string) ([]*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}

	var f struct {
		Tasks []*fileTask `json:"tasks"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing task file %s: %w", path, err)
	}
	if len(f.Tasks) == 0 {
		return nil, fmt.Errorf("task file %s defines no tasks", path)
	}

	seen := make(map[string]bool, len(f.Tasks))
	tasks := make([]*Task, 0, len(f.Tasks))
	for _, ft := range f.Tasks {
		t := &ft.Task
		t.MaxRetries = DefaultMaxRetries
		if ft.MaxRetries != nil {
			t.MaxRetries = *ft.MaxRetries
		}
		t.Timeout = DefaultTimeout
		if ft.Timeout != nil && *ft.Timeout != 0 {
			t.Timeout = *ft.Timeout
		}
		// Saved natural tasks keep their origin even once a command has
		// been generated for them.
		t.NaturalOrigin = t.NaturalOrigin || t.Natural()
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if seen[t.ID] {
			return nil, &DefinitionError{TaskID: t.ID, Msg: "duplicate task id"}
		}
		seen[t.ID] = true
		tasks = append(tasks, t)
	}

	return tasks, nil
}

// Save writes tasks back to a definition file. Used to persist commands and
// conditions generated for natural-language tasks.
func Save(path string, tasks []*Task) error {
	data, err := json.MarshalIndent(&File{Tasks: tasks}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling tasks: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing task file: %w", err)
	}
	return nil
}

// WriteTemplate creates a starter task definition file at path.
func WriteTemplate(path string) error {
	tasks := []*Task{
		{
			ID:      "sample_task_1",
			Name:    "Sample task 1",
			Command: "echo 'Hello, World!'",
			Conditions: []Condition{
				{Type: OutputContains, Pattern: "Hello"},
			},
			MaxRetries: 3,
			Timeout:    300,
		},
		{
			ID:      "sample_task_2",
			Name:    "Sample task 2",
			Command: "touch sample.txt && echo 'Sample content' > sample.txt",
			Conditions: []Condition{
				{Type: FileExists, Path: "sample.txt"},
				{Type: FileContains, Path: "sample.txt", Pattern: "Sample content"},
			},
			MaxRetries: 5,
			Timeout:    600,
		},
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating template directory: %w", err)
		}
	}
	return Save(path, tasks)
}
