package sched

import (
	"fmt"
	"sort"
)

// TaskID uniquely identifies a task in the scheduler.
// ID 0 is reserved: intervals recorded with IdleTask mark idle CPU time.
type TaskID uint64

const IdleTask TaskID = 0

const (
	MinPriority = 0 // most urgent
	MaxPriority = 99
)

// ResourceRequest names a resource the task needs once it has executed At
// units of its burst. Requests are acquired in list order and held until
// the task completes (or is preempted by deadlock resolution).
type ResourceRequest struct {
	Resource ResourceID
	At       int64
}

// Task represents one schedulable task unit. The descriptor fields are set
// at construction; the runtime fields are owned and mutated only by the
// engine's tick loop.
type Task struct {
	ID       TaskID
	Name     string
	Arrival  int64
	Burst    int64
	Deadline int64 // absolute tick; 0 means no deadline
	Priority int   // lower is more urgent
	Period   int64 // 0 means aperiodic
	Affinity int   // core pin; -1 means any core
	Requests []ResourceRequest

	Remaining      int64
	FirstRun       int64 // -1 until first dispatched
	Completion     int64 // -1 until complete
	Preemptions    int64
	DeadlineMissed bool

	core     int   // owning ready-set partition
	readySeq int64 // FIFO position, renewed on every ready insertion
	nextReq  int   // index of the next resource request to acquire
	holding  []ResourceID
}

// executed returns how many units of the burst have already run.
func (t *Task) executed() int64 { return t.Burst - t.Remaining }

// Laxity is the slack left before the deadline is missed if the task ran
// from now without interruption.
func (t *Task) Laxity(now int64) int64 { return t.Deadline - now - t.Remaining }

func (t *Task) clone() *Task {
	c := *t
	c.Remaining = t.Burst
	c.FirstRun = -1
	c.Completion = -1
	c.Preemptions = 0
	c.DeadlineMissed = false
	c.nextReq = 0
	c.holding = nil
	c.Requests = append([]ResourceRequest(nil), t.Requests...)
	return &c
}

// TaskSet is the validated, immutable set of task descriptors for one run.
type TaskSet struct {
	Tasks []*Task
}

// NewTaskSet validates descriptors and expands periodic tasks into one
// instance per release up to horizon ticks (horizon 0 disables re-release).
// Expansion happens here so the registry never changes mid-run.
func NewTaskSet(tasks []*Task, horizon int64) (*TaskSet, error) {
	seen := make(map[TaskID]struct{}, len(tasks))
	var nextID TaskID = 1
	for _, t := range tasks {
		if t.ID == IdleTask {
			return nil, &InvalidTaskSetError{Reason: "task id 0 is reserved"}
		}
		if _, dup := seen[t.ID]; dup {
			return nil, &InvalidTaskSetError{Reason: fmt.Sprintf("duplicate task id %d", t.ID)}
		}
		seen[t.ID] = struct{}{}
		if t.ID >= nextID {
			nextID = t.ID + 1
		}
		if t.Burst <= 0 {
			return nil, &InvalidTaskSetError{Reason: fmt.Sprintf("task %d: burst must be positive", t.ID)}
		}
		if t.Arrival < 0 {
			return nil, &InvalidTaskSetError{Reason: fmt.Sprintf("task %d: arrival must not be negative", t.ID)}
		}
		if t.Period < 0 {
			return nil, &InvalidTaskSetError{Reason: fmt.Sprintf("task %d: period must not be negative", t.ID)}
		}
		if t.Deadline != 0 && t.Deadline <= t.Arrival {
			return nil, &InvalidTaskSetError{Reason: fmt.Sprintf("task %d: deadline precedes arrival", t.ID)}
		}
		for _, req := range t.Requests {
			if req.At < 0 || req.At >= t.Burst {
				return nil, &InvalidTaskSetError{Reason: fmt.Sprintf("task %d: resource request offset %d outside burst", t.ID, req.At)}
			}
		}
		if t.Priority < MinPriority {
			t.Priority = MinPriority
		} else if t.Priority > MaxPriority {
			t.Priority = MaxPriority
		}
	}

	all := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		all = append(all, t)
		if t.Period <= 0 || horizon <= 0 {
			continue
		}
		relDeadline := int64(0)
		if t.Deadline > 0 {
			relDeadline = t.Deadline - t.Arrival
		}
		for k := int64(1); t.Arrival+k*t.Period < horizon; k++ {
			inst := t.clone()
			inst.ID = nextID
			nextID++
			inst.Name = fmt.Sprintf("%s#%d", t.Name, k)
			inst.Arrival = t.Arrival + k*t.Period
			if relDeadline > 0 {
				inst.Deadline = inst.Arrival + relDeadline
			}
			all = append(all, inst)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Arrival != all[j].Arrival {
			return all[i].Arrival < all[j].Arrival
		}
		return all[i].ID < all[j].ID
	})

	return &TaskSet{Tasks: all}, nil
}
