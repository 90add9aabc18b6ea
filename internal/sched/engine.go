package sched

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Interval is one contiguous stretch of execution on a core. Task is
// IdleTask for recorded idle time. The ordered interval sequence is the
// canonical timeline artifact any renderer consumes.
type Interval struct {
	Task  TaskID
	Core  int
	Start int64
	End   int64
}

// Result is what a run hands to external consumers: plain records only,
// no engine internals.
type Result struct {
	RunID         uuid.UUID
	Policy        PolicyKind // active policy at run end
	Ticks         int64
	Timeline      []Interval
	Metrics       MetricsSnapshot
	DroppedEvents int64
}

// coreState is one ready-set partition. Partitions are processed in fixed
// core-index order within a shared time step, never in parallel.
type coreState struct {
	id      int
	pending []*Task // sorted by (arrival, id), consumed from the front
	ready   []*Task
	running *Task
	slice   int64 // ticks consumed of the current RR slice
}

// Engine owns all scheduler state and advances it one discrete time unit
// at a time. The tick loop is the only place state mutates, which makes
// identical inputs reproduce identical timelines and metrics.
type Engine struct {
	cfg   Config
	kind  PolicyKind
	strat strategy
	ctrl  *AdaptiveController

	cores   []*coreState
	tasks   []*Task
	graph   *ResourceGraph
	blocked map[TaskID]*Task

	now      int64
	timeline []Interval
	lastIdx  []int // last timeline index per core
	status   []*CoreStatus
	events   *feed

	window    WindowStats
	seq       int64
	completed int
	runID     uuid.UUID
}

// New builds an engine for one run. All validation happens here, before
// the first tick: a returned engine either runs or was never created.
func New(cfg Config, set *TaskSet, resources []*Resource) (*Engine, error) {
	kind, err := ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	if cfg.Cores <= 0 {
		return nil, &InvalidConfigError{Reason: "cores must be positive"}
	}
	if cfg.MaxTicks <= 0 {
		return nil, &InvalidConfigError{Reason: "max ticks must be positive"}
	}

	var ctrl *AdaptiveController
	if kind == PolicyHybrid {
		ctrl, err = newAdaptiveController(cfg)
		if err != nil {
			return nil, err
		}
	}
	if (kind == PolicyRR || (ctrl != nil && ctrl.usesQuantum())) && cfg.Quantum <= 0 {
		return nil, &InvalidConfigError{Reason: "round robin requires a positive quantum"}
	}

	strat, err := newStrategy(kind, cfg, ctrl)
	if err != nil {
		return nil, err
	}

	graph, err := NewResourceGraph(resources)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		kind:    kind,
		strat:   strat,
		ctrl:    ctrl,
		graph:   graph,
		blocked: make(map[TaskID]*Task),
		lastIdx: make([]int, cfg.Cores),
		events:  newFeed(cfg.FeedSize),
		runID:   uuid.New(),
	}
	for c := 0; c < cfg.Cores; c++ {
		e.cores = append(e.cores, &coreState{id: c})
		e.status = append(e.status, NewCoreStatus(cfg.CoreModel))
		e.lastIdx[c] = -1
	}

	// the engine owns private copies so reruns from the same set stay
	// independent
	for i, src := range set.Tasks {
		t := src.clone()
		for _, req := range t.Requests {
			if _, ok := graph.Lookup(req.Resource); !ok {
				return nil, &InvalidTaskSetError{Reason: fmt.Sprintf("task %d: dangling resource id %d", t.ID, req.Resource)}
			}
		}
		switch {
		case t.Affinity >= cfg.Cores:
			return nil, &InvalidTaskSetError{Reason: fmt.Sprintf("task %d: affinity %d beyond core count %d", t.ID, t.Affinity, cfg.Cores)}
		case t.Affinity >= 0:
			t.core = t.Affinity
		default:
			t.core = i % cfg.Cores
		}
		e.tasks = append(e.tasks, t)
		e.cores[t.core].pending = append(e.cores[t.core].pending, t)
	}
	for _, c := range e.cores {
		sort.SliceStable(c.pending, func(i, j int) bool {
			if c.pending[i].Arrival != c.pending[j].Arrival {
				return c.pending[i].Arrival < c.pending[j].Arrival
			}
			return c.pending[i].ID < c.pending[j].ID
		})
	}

	return e, nil
}

// Events exposes the read-only observability stream. It is bounded and
// drop-oldest: consumers can be arbitrarily slow without stalling the run.
// The channel closes when the run ends.
func (e *Engine) Events() <-chan Event { return e.events.ch }

// Run advances the simulation until all tasks complete, the context is
// cancelled, or the divergence ceiling is hit. On error the partial result
// up to the last completed tick is still returned.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	defer e.events.close()

	for !e.finished() {
		if err := ctx.Err(); err != nil {
			return e.result(), err
		}
		if e.now >= e.cfg.MaxTicks {
			return e.result(), &SimulationDivergenceError{Ticks: e.now}
		}
		if err := e.tick(); err != nil {
			return e.result(), err
		}
	}
	return e.result(), nil
}

func (e *Engine) finished() bool {
	if len(e.blocked) > 0 {
		return false
	}
	for _, c := range e.cores {
		if len(c.pending) > 0 || len(c.ready) > 0 || c.running != nil {
			return false
		}
	}
	return true
}

func (e *Engine) tick() error {
	e.admit()
	e.scanDeadlines()
	for _, c := range e.cores {
		if err := e.scheduleCore(c); err != nil {
			return err
		}
	}
	for _, c := range e.cores {
		e.executeCore(c)
	}
	e.now++
	e.maybeAdapt()
	return nil
}

// admit moves newly arrived tasks from the pending lists into their ready
// partitions.
func (e *Engine) admit() {
	for _, c := range e.cores {
		for len(c.pending) > 0 && c.pending[0].Arrival <= e.now {
			t := c.pending[0]
			c.pending = c.pending[1:]
			e.pushReady(t)
			e.publish(Event{Tick: e.now, Kind: EventTaskArrived, Task: t.ID, Core: c.id})
		}
	}
}

// scanDeadlines flags tasks that can no longer finish in time: once
// now + remaining exceeds the deadline the miss is unavoidable whatever
// runs next. The task keeps being scheduled to limit further damage.
func (e *Engine) scanDeadlines() {
	for _, t := range e.tasks {
		if t.Completion >= 0 || t.Deadline <= 0 || t.DeadlineMissed {
			continue
		}
		if t.Arrival > e.now {
			continue
		}
		if e.now+t.Remaining > t.Deadline {
			t.DeadlineMissed = true
			e.window.Misses++
			e.publish(Event{Tick: e.now, Kind: EventDeadlineMissed, Task: t.ID, Core: t.core})
		}
	}
}

// scheduleCore settles who occupies the core this tick, cycling through
// candidates until one holds all of its due resources or the ready set
// runs dry.
func (e *Engine) scheduleCore(c *coreState) error {
	for {
		e.selectNext(c)
		if c.running == nil {
			return nil
		}
		ok, err := e.acquireDue(c)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

func (e *Engine) selectNext(c *coreState) {
	// quantum bookkeeping first: an expired RR slice sends the task to
	// the back of the rotation
	if e.activeKind() == PolicyRR && c.running != nil && c.slice >= e.cfg.Quantum {
		if len(c.ready) > 0 {
			e.preemptRunning(c)
		} else {
			c.slice = 0 // alone on the core, grant a fresh slice
		}
	}

	if c.running != nil {
		if !e.strat.preemptive() {
			return
		}
		candidates := make([]*Task, 0, len(c.ready)+1)
		candidates = append(candidates, c.ready...)
		candidates = append(candidates, c.running)
		winner := e.strat.pick(candidates, e.now)
		if winner == nil || winner == c.running {
			return
		}
		e.preemptRunning(c)
		e.dispatch(c, winner)
		return
	}

	if next := e.strat.pick(c.ready, e.now); next != nil {
		e.dispatch(c, next)
	}
}

func (e *Engine) preemptRunning(c *coreState) {
	t := c.running
	c.running = nil
	t.Preemptions++
	e.window.Preemptions++
	e.pushReady(t)
	e.publish(Event{Tick: e.now, Kind: EventTaskPreempted, Task: t.ID, Core: c.id})
}

func (e *Engine) dispatch(c *coreState, t *Task) {
	c.ready = removeTask(c.ready, t)
	c.running = t
	c.slice = 0
	e.publish(Event{Tick: e.now, Kind: EventTaskDispatched, Task: t.ID, Core: c.id})
}

// acquireDue takes every resource the running task needs at its current
// progress. On contention the task leaves the core for the blocked set and
// the wait-for graph is checked for a cycle.
func (e *Engine) acquireDue(c *coreState) (bool, error) {
	t := c.running
	for t.nextReq < len(t.Requests) && t.Requests[t.nextReq].At <= t.executed() {
		req := t.Requests[t.nextReq]
		if e.graph.Acquire(t, req.Resource) {
			t.nextReq++
			continue
		}
		c.running = nil
		e.blocked[t.ID] = t
		e.publish(Event{Tick: e.now, Kind: EventTaskBlocked, Task: t.ID, Core: c.id, Resource: req.Resource})
		if err := e.resolveDeadlock(t); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// resolveDeadlock breaks wait-for cycles reachable from the task that just
// blocked. The lowest-priority member of a cycle is forcibly preempted: it
// releases everything it holds, rewinds its acquisition cursor, and goes
// back to its ready partition. Cycles are never user-visible errors.
func (e *Engine) resolveDeadlock(from *Task) error {
	for attempts := 0; ; attempts++ {
		cycle := e.graph.DetectCycle(from)
		if cycle == nil {
			return nil
		}
		if attempts > len(e.tasks) {
			return &DeadlockUnresolvedError{Tick: e.now, Cycle: taskIDs(cycle)}
		}

		victim := cycle[0]
		for _, t := range cycle[1:] {
			if t.Priority > victim.Priority ||
				(t.Priority == victim.Priority && t.Arrival > victim.Arrival) ||
				(t.Priority == victim.Priority && t.Arrival == victim.Arrival && t.ID > victim.ID) {
				victim = t
			}
		}

		e.graph.CancelWait(victim)
		delete(e.blocked, victim.ID)
		e.wake(e.graph.ReleaseAll(victim))
		victim.nextReq = 0
		victim.Preemptions++
		e.window.Preemptions++
		e.pushReady(victim)
		e.publish(Event{Tick: e.now, Kind: EventDeadlockResolved, Task: victim.ID, Core: victim.core, Cycle: taskIDs(cycle)})
	}
}

func (e *Engine) executeCore(c *coreState) {
	t := c.running
	busy := t != nil
	if busy {
		// response time is measured to the first executed unit, not to a
		// dispatch that may block on a resource before running
		if t.FirstRun < 0 {
			t.FirstRun = e.now
		}
		t.Remaining--
		c.slice++
		e.record(c.id, t.ID)
		if t.Remaining == 0 {
			e.complete(c, t)
		}
	} else {
		e.record(c.id, IdleTask)
	}
	e.status[c.id].Observe(busy)
}

// record appends one tick to the timeline, extending the core's last
// interval when it continues the same task.
func (e *Engine) record(core int, id TaskID) {
	if i := e.lastIdx[core]; i >= 0 {
		iv := &e.timeline[i]
		if iv.Task == id && iv.End == e.now {
			iv.End++
			return
		}
	}
	e.timeline = append(e.timeline, Interval{Task: id, Core: core, Start: e.now, End: e.now + 1})
	e.lastIdx[core] = len(e.timeline) - 1
}

func (e *Engine) complete(c *coreState, t *Task) {
	c.running = nil
	t.Completion = e.now + 1
	e.completed++
	e.window.Completions++
	e.wake(e.graph.ReleaseAll(t))
	e.publish(Event{Tick: e.now, Kind: EventTaskCompleted, Task: t.ID, Core: c.id})
}

func (e *Engine) wake(tasks []*Task) {
	for _, t := range tasks {
		delete(e.blocked, t.ID)
		e.pushReady(t)
	}
}

func (e *Engine) pushReady(t *Task) {
	t.readySeq = e.seq
	e.seq++
	c := e.cores[t.core]
	c.ready = append(c.ready, t)
}

// maybeAdapt runs the adaptive controller at decision-window boundaries.
// A switch takes effect from the next tick, never mid-tick, so interval
// attribution stays well-defined.
func (e *Engine) maybeAdapt() {
	if e.kind != PolicyHybrid || e.now%e.ctrl.window != 0 {
		return
	}
	e.window.ReadyLen = 0
	for _, c := range e.cores {
		e.window.ReadyLen += len(c.ready)
	}
	next := e.ctrl.decide(e.window)
	if e.ctrl.apply(next) {
		e.publish(Event{Tick: e.now, Kind: EventPolicySwitched, Policy: next})
	}
	e.window = WindowStats{}
}

// activeKind is the policy actually ordering tasks right now; for Hybrid
// that is the controller's current selection.
func (e *Engine) activeKind() PolicyKind {
	if e.kind == PolicyHybrid {
		return e.ctrl.Active()
	}
	return e.kind
}

func (e *Engine) publish(ev Event) { e.events.publish(ev) }

func (e *Engine) result() *Result {
	return &Result{
		RunID:         e.runID,
		Policy:        e.activeKind(),
		Ticks:         e.now,
		Timeline:      append([]Interval(nil), e.timeline...),
		Metrics:       ComputeMetrics(e.tasks, e.timeline, e.now, e.cfg.Cores, e.cfg.CoreModel),
		DroppedEvents: e.events.dropped,
	}
}

func removeTask(list []*Task, t *Task) []*Task {
	for i, x := range list {
		if x == t {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func taskIDs(tasks []*Task) []TaskID {
	ids := make([]TaskID, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
