package controller

// Budget is a shared attempt allowance. A task run and any improvement
// sub-tasks it spawns draw from the same budget, which guarantees the whole
// escalation terminates.
type Budget struct {
	remaining int
}

// NewBudget creates a budget allowing n attempts.
func NewBudget(n int) *Budget {
	return &Budget{remaining: n}
}

// Take consumes one attempt, reporting whether one was available.
func (b *Budget) Take() bool {
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Remaining returns the attempts left.
func (b *Budget) Remaining() int {
	return b.remaining
}
