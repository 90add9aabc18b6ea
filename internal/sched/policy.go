package sched

import (
	"fmt"
	"math"
	"strings"

	"github.com/emirpasic/gods/trees/redblacktree"
)

// PolicyKind names a scheduling policy.
type PolicyKind string

const (
	PolicyFCFS     PolicyKind = "FCFS"
	PolicySJF      PolicyKind = "SJF"
	PolicySRTF     PolicyKind = "SRTF"
	PolicyEDF      PolicyKind = "EDF"
	PolicyRR       PolicyKind = "RR"
	PolicyPriority PolicyKind = "PRIORITY"
	PolicyRMS      PolicyKind = "RMS"
	PolicyLLF      PolicyKind = "LLF"
	PolicyHybrid   PolicyKind = "HYBRID"
)

func ParsePolicy(s string) (PolicyKind, error) {
	k := PolicyKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case PolicyFCFS, PolicySJF, PolicySRTF, PolicyEDF, PolicyRR,
		PolicyPriority, PolicyRMS, PolicyLLF, PolicyHybrid:
		return k, nil
	}
	return "", &InvalidConfigError{Reason: fmt.Sprintf("unknown policy %q", s)}
}

// strategy orders a ready set. Implementations are pure: they read the
// given view and return a choice, never mutating scheduler state.
type strategy interface {
	kind() PolicyKind
	// preemptive strategies are re-evaluated every tick against the
	// running task.
	preemptive() bool
	// pick returns the next task to run, or nil when ready is empty.
	pick(ready []*Task, now int64) *Task
}

// keyed selects the ready task with the smallest key. Ties are broken by
// arrival time, then task id, for determinism.
type keyed struct {
	name    PolicyKind
	preempt bool
	key     func(t *Task, now int64) float64
}

func (s *keyed) kind() PolicyKind { return s.name }
func (s *keyed) preemptive() bool { return s.preempt }

func (s *keyed) pick(ready []*Task, now int64) *Task {
	return pickMin(ready, now, s.key)
}

// nodeKey orders candidates in the selection tree.
type nodeKey struct {
	key     float64
	arrival int64
	id      TaskID
}

func cmpNodeKey(a, b any) int {
	ka, kb := a.(nodeKey), b.(nodeKey)
	switch {
	case ka.key < kb.key:
		return -1
	case ka.key > kb.key:
		return 1
	case ka.arrival < kb.arrival:
		return -1
	case ka.arrival > kb.arrival:
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	default:
		return 0
	}
}

func pickMin(ready []*Task, now int64, key func(*Task, int64) float64) *Task {
	if len(ready) == 0 {
		return nil
	}
	rbt := redblacktree.NewWith(cmpNodeKey)
	for _, t := range ready {
		rbt.Put(nodeKey{key: key(t, now), arrival: t.Arrival, id: t.ID}, t)
	}
	return rbt.Left().Value.(*Task)
}

func deadlineKey(t *Task, _ int64) float64 {
	if t.Deadline <= 0 {
		return math.Inf(1)
	}
	return float64(t.Deadline)
}

func laxityKey(t *Task, now int64) float64 {
	if t.Deadline <= 0 {
		return math.Inf(1)
	}
	return float64(t.Laxity(now))
}

func periodKey(t *Task, _ int64) float64 {
	if t.Period <= 0 {
		return math.Inf(1)
	}
	return float64(t.Period)
}

// hybrid delegates every decision to the adaptive controller's currently
// active strategy; it never orders tasks itself.
type hybrid struct {
	ctrl *AdaptiveController
}

func (h *hybrid) kind() PolicyKind                    { return PolicyHybrid }
func (h *hybrid) preemptive() bool                    { return h.ctrl.active.preemptive() }
func (h *hybrid) pick(ready []*Task, now int64) *Task { return h.ctrl.active.pick(ready, now) }

func newStrategy(kind PolicyKind, cfg Config, ctrl *AdaptiveController) (strategy, error) {
	switch kind {
	case PolicyFCFS:
		return &keyed{name: kind, key: func(t *Task, _ int64) float64 { return float64(t.Arrival) }}, nil
	case PolicySJF:
		return &keyed{name: kind, key: func(t *Task, _ int64) float64 { return float64(t.Burst) }}, nil
	case PolicySRTF:
		return &keyed{name: kind, preempt: true, key: func(t *Task, _ int64) float64 { return float64(t.Remaining) }}, nil
	case PolicyEDF:
		return &keyed{name: kind, preempt: true, key: deadlineKey}, nil
	case PolicyRR:
		// rotation order; the quantum itself is enforced by the engine
		return &keyed{name: kind, key: func(t *Task, _ int64) float64 { return float64(t.readySeq) }}, nil
	case PolicyPriority:
		return &keyed{name: kind, preempt: cfg.PriorityPreemptive, key: func(t *Task, _ int64) float64 { return float64(t.Priority) }}, nil
	case PolicyRMS:
		return &keyed{name: kind, preempt: true, key: periodKey}, nil
	case PolicyLLF:
		return &keyed{name: kind, preempt: true, key: laxityKey}, nil
	case PolicyHybrid:
		if ctrl == nil {
			return nil, &InvalidConfigError{Reason: "hybrid policy requires an adaptive controller"}
		}
		return &hybrid{ctrl: ctrl}, nil
	}
	return nil, &InvalidConfigError{Reason: fmt.Sprintf("unknown policy %q", kind)}
}
