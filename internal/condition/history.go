package condition

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// CheckRecord is one logged condition check.
type CheckRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	Identifier string    `json:"identifier"`
	Passed     bool      `json:"passed"`
	Detail     string    `json:"detail,omitempty"`
}

// History accumulates condition checks keyed by condition type, for offline
// audit. It lives for one evaluator instance.
type History struct {
	checks map[string][]CheckRecord
}

// NewHistory creates an empty check history.
func NewHistory() *History {
	return &History{checks: make(map[string][]CheckRecord)}
}

// Log appends a check record under its condition type.
func (h *History) Log(condType, identifier string, passed bool, detail string) {
	h.checks[condType] = append(h.checks[condType], CheckRecord{
		Timestamp:  time.Now(),
		Type:       condType,
		Identifier: identifier,
		Passed:     passed,
		Detail:     detail,
	})
}

// Len returns the total number of logged checks.
func (h *History) Len() int {
	n := 0
	for _, recs := range h.checks {
		n += len(recs)
	}
	return n
}

// Export writes the history as indented JSON to path.
func (h *History) Export(path string) error {
	data, err := json.MarshalIndent(h.checks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling check history: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing check history: %w", err)
	}
	return nil
}
