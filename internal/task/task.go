// Package task defines task and completion-condition records and their
// JSON file format.
package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxRetries is the retry budget applied when a task omits max_retries.
	DefaultMaxRetries = 3
	// DefaultTimeout is the per-invocation timeout in seconds when a task omits it.
	DefaultTimeout = 300
)

// Task is a single unit of work: either an explicit shell command or a
// natural-language instruction, plus the conditions that decide completion.
// A loaded task is never mutated; revisions produce derived copies.
type Task struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Command     string      `json:"command,omitempty"`
	Description string      `json:"description,omitempty"`
	Conditions  []Condition `json:"completion_conditions"`
	MaxRetries  int         `json:"max_retries"`
	Timeout     int         `json:"timeout"`

	// ParentID links a sub-task spawned by the improvement engine back to
	// the task it was derived from.
	ParentID string `json:"parent_id,omitempty"`

	// NaturalOrigin marks a task created from a natural-language
	// description. Only these are escalated to the improvement engine on
	// retry; a command task that happens to carry a description is not.
	// Derived copies inherit it, so it survives command generation.
	NaturalOrigin bool `json:"natural_origin,omitempty"`
}

// NewNatural creates a task from a natural-language description. The command
// and conditions are filled in later by the improvement engine.
func NewNatural(name, description string, maxRetries, timeout int) *Task {
	id := "natural-" + uuid.NewString()[:8]
	if name == "" {
		name = "natural task " + id
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Task{
		ID:            id,
		Name:          name,
		Description:   description,
		MaxRetries:    maxRetries,
		Timeout:       timeout,
		NaturalOrigin: true,
	}
}

// Natural reports whether this task is driven by a natural-language
// description rather than an explicit command.
func (t *Task) Natural() bool {
	return t.Command == "" && t.Description != ""
}

// MaxAttempts returns the total number of attempts allowed: the initial
// attempt plus max_retries.
func (t *Task) MaxAttempts() int {
	return t.MaxRetries + 1
}

// TimeoutDuration returns the per-invocation timeout as a duration.
func (t *Task) TimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// WithCommand returns a derived copy of the task running a revised command.
// The original record is left untouched.
func (t *Task) WithCommand(command string) *Task {
	d := *t
	d.Command = command
	d.Conditions = append([]Condition(nil), t.Conditions...)
	return &d
}

// WithConditions returns a derived copy carrying generated conditions.
func (t *Task) WithConditions(conds []Condition) *Task {
	d := *t
	d.Conditions = append([]Condition(nil), conds...)
	return &d
}

// Subtask creates a bounded child task for the improvement engine.
func (t *Task) Subtask(seq int, name, description, command string, conds []Condition) *Task {
	if name == "" {
		name = fmt.Sprintf("improvement sub-task %d", seq)
	}
	return &Task{
		ID:          fmt.Sprintf("%s-sub-%d", t.ID, seq),
		Name:        name,
		Command:     command,
		Description: description,
		Conditions:  append([]Condition(nil), conds...),
		MaxRetries:  1,
		Timeout:     120,
		ParentID:    t.ID,
	}
}

// Validate checks the task record and all of its conditions.
func (t *Task) Validate() error {
	if t.ID == "" {
		return &DefinitionError{TaskID: t.Name, Msg: "task has no id"}
	}
	if t.Name == "" {
		return &DefinitionError{TaskID: t.ID, Msg: "task has no name"}
	}
	if t.Command == "" && t.Description == "" {
		return &DefinitionError{TaskID: t.ID, Msg: "task has neither a command nor a description"}
	}
	if t.MaxRetries < 0 {
		return &DefinitionError{TaskID: t.ID, Msg: fmt.Sprintf("max_retries must be >= 0, got %d", t.MaxRetries)}
	}
	for i, c := range t.Conditions {
		if err := c.Validate(); err != nil {
			return &DefinitionError{TaskID: t.ID, Msg: fmt.Sprintf("condition %d: %v", i+1, err)}
		}
	}
	return nil
}

// DefinitionError reports a schema problem in a task definition. It is fatal
// at load time, before any execution begins.
type DefinitionError struct {
	TaskID string
	Msg    string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("task %q: %s", e.TaskID, e.Msg)
}
