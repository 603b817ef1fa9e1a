package task

import "fmt"

// Condition kinds. A task completes only when every one of its conditions
// passes on the same attempt.
const (
	FileExists        = "file_exists"
	OutputContains    = "output_contains"
	OutputNotContains = "output_not_contains"
	FileContains      = "file_contains"
	WebsiteExists     = "website_exists"
	TestCommand       = "test_command"
	AgentConfirmation = "agent_confirmation"
)

// Default per-check timeouts in seconds.
const (
	DefaultWebsiteTimeout = 10
	DefaultCommandTimeout = 60
	DefaultAgentTimeout   = 120
)

// Condition is a tagged variant: Type selects the kind, and the kind decides
// which of the remaining fields are meaningful.
type Condition struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Path    string `json:"path,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	URL     string `json:"url,omitempty"`
	Command string `json:"command,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
	Timeout int    `json:"timeout,omitempty"`
}

// DisplayName returns the condition's name, falling back to its type.
func (c Condition) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type
}

// Validate checks that the condition carries the fields its kind requires.
// Unknown types are rejected here, before any execution begins.
func (c Condition) Validate() error {
	switch c.Type {
	case FileExists:
		if c.Path == "" {
			return fmt.Errorf("%s condition has no path", c.Type)
		}
	case OutputContains, OutputNotContains:
		if c.Pattern == "" {
			return fmt.Errorf("%s condition has no pattern", c.Type)
		}
	case FileContains:
		if c.Path == "" {
			return fmt.Errorf("%s condition has no path", c.Type)
		}
		if c.Pattern == "" {
			return fmt.Errorf("%s condition has no pattern", c.Type)
		}
	case WebsiteExists:
		if c.URL == "" {
			return fmt.Errorf("%s condition has no url", c.Type)
		}
	case TestCommand:
		if c.Command == "" {
			return fmt.Errorf("%s condition has no command", c.Type)
		}
	case AgentConfirmation:
		if c.Prompt == "" {
			return fmt.Errorf("%s condition has no prompt", c.Type)
		}
	case "":
		return fmt.Errorf("condition has no type")
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%s condition has a negative timeout", c.Type)
	}
	return nil
}

// Identifier returns the value the condition is keyed on in check history
// and diagnostics.
func (c Condition) Identifier() string {
	switch c.Type {
	case FileExists:
		return c.Path
	case OutputContains, OutputNotContains:
		return c.Pattern
	case FileContains:
		return c.Path + ":" + c.Pattern
	case WebsiteExists:
		return c.URL
	case TestCommand:
		return c.Command
	case AgentConfirmation:
		return c.Prompt
	}
	return c.Type
}

// CheckTimeout returns the condition's own timeout in seconds, applying the
// per-kind default when unset.
func (c Condition) CheckTimeout() int {
	if c.Timeout > 0 {
		return c.Timeout
	}
	switch c.Type {
	case WebsiteExists:
		return DefaultWebsiteTimeout
	case AgentConfirmation:
		return DefaultAgentTimeout
	default:
		return DefaultCommandTimeout
	}
}
