package sched

import (
	"fmt"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

// ResourceID identifies a shared mutual-exclusion resource.
type ResourceID int

// Resource is held by at most one task at a time; contenders queue in FIFO
// order.
type Resource struct {
	ID   ResourceID
	Name string

	holder *Task
	waitQ  *linkedlistqueue.Queue
}

func NewResource(id ResourceID, name string) *Resource {
	if name == "" {
		name = fmt.Sprintf("resource-%d", id)
	}
	return &Resource{ID: id, Name: name, waitQ: linkedlistqueue.New()}
}

// Holder returns the holding task's id, or IdleTask when free.
func (r *Resource) Holder() TaskID {
	if r.holder == nil {
		return IdleTask
	}
	return r.holder.ID
}

// ResourceGraph owns all resources of a run plus the wait-for relation
// between blocked requesters and holders.
type ResourceGraph struct {
	byID      map[ResourceID]*Resource
	waitingOn map[TaskID]*Resource
}

func NewResourceGraph(resources []*Resource) (*ResourceGraph, error) {
	g := &ResourceGraph{
		byID:      make(map[ResourceID]*Resource, len(resources)),
		waitingOn: make(map[TaskID]*Resource),
	}
	for _, r := range resources {
		if _, dup := g.byID[r.ID]; dup {
			return nil, &InvalidTaskSetError{Reason: fmt.Sprintf("duplicate resource id %d", r.ID)}
		}
		g.byID[r.ID] = r
	}
	return g, nil
}

func (g *ResourceGraph) Lookup(id ResourceID) (*Resource, bool) {
	r, ok := g.byID[id]
	return r, ok
}

// Acquire grants the resource to t when free or already held by t. On
// contention t is queued on the resource and a wait-for edge t -> holder
// is recorded; the caller must then block t and check for cycles.
func (g *ResourceGraph) Acquire(t *Task, id ResourceID) bool {
	r := g.byID[id]
	if r.holder == t {
		return true
	}
	if r.holder == nil {
		r.holder = t
		t.holding = append(t.holding, id)
		return true
	}
	r.waitQ.Enqueue(t)
	g.waitingOn[t.ID] = r
	return false
}

// ReleaseAll releases every resource t holds. Each freed resource is handed
// to the head of its wait queue; the newly unblocked tasks are returned so
// the engine can move them back to their ready sets.
func (g *ResourceGraph) ReleaseAll(t *Task) []*Task {
	var woken []*Task
	for _, id := range t.holding {
		r := g.byID[id]
		if r.holder != t {
			continue
		}
		r.holder = nil
		if v, ok := r.waitQ.Dequeue(); ok {
			next := v.(*Task)
			delete(g.waitingOn, next.ID)
			r.holder = next
			next.holding = append(next.holding, id)
			woken = append(woken, next)
		}
	}
	t.holding = t.holding[:0]
	return woken
}

// CancelWait removes t from the wait queue of the resource it is blocked
// on, erasing its wait-for edge.
func (g *ResourceGraph) CancelWait(t *Task) {
	r := g.waitingOn[t.ID]
	if r == nil {
		return
	}
	delete(g.waitingOn, t.ID)
	rebuilt := linkedlistqueue.New()
	for _, v := range r.waitQ.Values() {
		if v.(*Task) != t {
			rebuilt.Enqueue(v)
		}
	}
	r.waitQ = rebuilt
}

// DetectCycle follows wait-for edges from start and returns the cycle
// containing it, or nil. A blocked task waits on exactly one resource and
// a resource has one holder, so the walk visits each node once; positions
// along the path double as the recursion-stack marking.
func (g *ResourceGraph) DetectCycle(start *Task) []*Task {
	pos := map[TaskID]int{start.ID: 0}
	path := []*Task{start}
	cur := start
	for {
		r := g.waitingOn[cur.ID]
		if r == nil || r.holder == nil {
			return nil
		}
		next := r.holder
		if p, ok := pos[next.ID]; ok {
			return path[p:]
		}
		pos[next.ID] = len(path)
		path = append(path, next)
		cur = next
	}
}
