package condition

import (
	"context"

	"github.com/taskloop/taskloop/internal/agent"
	"github.com/taskloop/taskloop/internal/task"
)

// SimEvaluator reports synthetic success for every condition without touching
// the filesystem, network, or agent. Used in dry-run mode to validate task
// definitions and condition wiring.
type SimEvaluator struct{}

// EvaluateAll returns a passing verdict for each condition.
func (SimEvaluator) EvaluateAll(_ context.Context, conds []task.Condition, _ *agent.Result) []Verdict {
	verdicts := make([]Verdict, 0, len(conds))
	for _, c := range conds {
		verdicts = append(verdicts, Verdict{
			Name:   c.DisplayName(),
			Type:   c.Type,
			Passed: true,
			Detail: "simulated",
		})
	}
	return verdicts
}
