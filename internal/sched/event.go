package sched

// EventKind represents the type of scheduler event.
type EventKind int

const (
	EventTaskArrived EventKind = iota
	EventTaskDispatched
	EventTaskPreempted
	EventTaskBlocked
	EventTaskCompleted
	EventDeadlineMissed
	EventDeadlockResolved
	EventPolicySwitched
)

func (k EventKind) String() string {
	switch k {
	case EventTaskArrived:
		return "TaskArrived"
	case EventTaskDispatched:
		return "TaskDispatched"
	case EventTaskPreempted:
		return "TaskPreempted"
	case EventTaskBlocked:
		return "TaskBlocked"
	case EventTaskCompleted:
		return "TaskCompleted"
	case EventDeadlineMissed:
		return "DeadlineMissed"
	case EventDeadlockResolved:
		return "DeadlockResolved"
	case EventPolicySwitched:
		return "PolicySwitched"
	default:
		return "Unknown"
	}
}

// Event is emitted on key scheduler actions, stamped with the simulated
// tick. Task is IdleTask when the event concerns no particular task.
type Event struct {
	Tick     int64
	Kind     EventKind
	Task     TaskID
	Core     int
	Resource ResourceID // TaskBlocked only
	Policy   PolicyKind // PolicySwitched only
	Cycle    []TaskID   // DeadlockResolved only
}
