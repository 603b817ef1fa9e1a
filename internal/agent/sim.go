package agent

import (
	"context"
	"sync"
	"time"
)

// SimInvoker is a no-op invoker for dry runs and tests. It never executes
// anything and always reports synthetic success, recording what it was asked
// to do so task wiring can be inspected.
type SimInvoker struct {
	mu           sync.Mutex
	instructions []string
}

// NewSimInvoker creates a simulation invoker.
func NewSimInvoker() *SimInvoker {
	return &SimInvoker{}
}

// Name returns the invoker identifier.
func (s *SimInvoker) Name() string {
	return "sim"
}

// Invoke records the instruction and returns synthetic success without side
// effects.
func (s *SimInvoker) Invoke(_ context.Context, instruction string, _ time.Duration) (*Result, error) {
	s.mu.Lock()
	s.instructions = append(s.instructions, instruction)
	s.mu.Unlock()

	return &Result{
		Stdout:   "simulated: " + instruction + "\n",
		ExitCode: 0,
		Duration: 0,
	}, nil
}

// Instructions returns everything the invoker was asked to run.
func (s *SimInvoker) Instructions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.instructions...)
}
