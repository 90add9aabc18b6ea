package sched

import "fmt"

// InvalidTaskSetError reports a malformed task descriptor. It is detected
// at run construction, before any tick executes.
type InvalidTaskSetError struct {
	Reason string
}

func (e *InvalidTaskSetError) Error() string { return "invalid task set: " + e.Reason }

// InvalidConfigError reports an unusable simulation configuration, such as
// a non-positive round-robin quantum or an empty adaptive rule table.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string { return "invalid config: " + e.Reason }

// SimulationDivergenceError is returned when the tick count exceeds the
// configured ceiling without the run terminating. The partial result up to
// the last completed tick stays attached for diagnosis.
type SimulationDivergenceError struct {
	Ticks int64
}

func (e *SimulationDivergenceError) Error() string {
	return fmt.Sprintf("simulation diverged: no termination after %d ticks", e.Ticks)
}

// DeadlockUnresolvedError signals that resolution could not break a
// wait-for cycle. It marks a broken internal invariant, not a user error.
type DeadlockUnresolvedError struct {
	Tick  int64
	Cycle []TaskID
}

func (e *DeadlockUnresolvedError) Error() string {
	return fmt.Sprintf("deadlock unresolved at tick %d: cycle %v", e.Tick, e.Cycle)
}
