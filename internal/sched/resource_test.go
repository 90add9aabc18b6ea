package sched

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentionWithoutCycleJustWaits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = string(PolicyFCFS)
	cfg.Cores = 2

	a := testTask(1, "A", 0, 3)
	a.Affinity = 0
	a.Requests = []ResourceRequest{{Resource: 1, At: 0}}
	b := testTask(2, "B", 0, 3)
	b.Affinity = 1
	b.Requests = []ResourceRequest{{Resource: 1, At: 0}}

	res, events := mustRun(t, cfg, []*Task{a, b},
		[]*Resource{NewResource(1, "lock")},
	)

	require.Empty(t, eventsOfKind(events, EventDeadlockResolved))
	require.Len(t, eventsOfKind(events, EventTaskBlocked), 1)

	// the waiter runs only after the holder completes and hands the lock over
	require.Equal(t,
		[]Interval{
			{Task: 1, Core: 0, Start: 0, End: 3},
			{Task: IdleTask, Core: 1, Start: 0, End: 3},
			{Task: IdleTask, Core: 0, Start: 3, End: 6},
			{Task: 2, Core: 1, Start: 3, End: 6},
		},
		res.Timeline,
	)
	require.EqualValues(t, 3, res.Metrics.PerTask[0].Completion)
	require.EqualValues(t, 6, res.Metrics.PerTask[1].Completion)

	// the waiter was dispatched at tick 0 but blocked before executing a
	// single unit; its response time counts from its first executed tick
	require.EqualValues(t, 0, res.Metrics.PerTask[0].Response)
	require.EqualValues(t, 3, res.Metrics.PerTask[1].Response)
}

func TestDeadlockResolvedByPreemptingLowestPriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = string(PolicyFCFS)
	cfg.Cores = 2

	// classic crossed acquisition order: A takes r1 then r2, B takes r2
	// then r1, each needing the second lock one tick into its burst
	a := testTask(1, "A", 0, 3)
	a.Priority = 1
	a.Affinity = 0
	a.Requests = []ResourceRequest{{Resource: 1, At: 0}, {Resource: 2, At: 1}}
	b := testTask(2, "B", 0, 3)
	b.Priority = 5
	b.Affinity = 1
	b.Requests = []ResourceRequest{{Resource: 2, At: 0}, {Resource: 1, At: 1}}

	res, events := mustRun(t, cfg, []*Task{a, b},
		[]*Resource{NewResource(1, "r1"), NewResource(2, "r2")},
	)

	resolved := eventsOfKind(events, EventDeadlockResolved)
	require.Len(t, resolved, 1)
	require.EqualValues(t, 1, resolved[0].Tick)
	require.EqualValues(t, 2, resolved[0].Task) // numerically larger priority loses
	require.ElementsMatch(t, []TaskID{1, 2}, resolved[0].Cycle)

	require.Equal(t,
		[]Interval{
			{Task: 1, Core: 0, Start: 0, End: 1},
			{Task: 2, Core: 1, Start: 0, End: 1},
			{Task: IdleTask, Core: 0, Start: 1, End: 2},
			{Task: IdleTask, Core: 1, Start: 1, End: 4},
			{Task: 1, Core: 0, Start: 2, End: 4},
			{Task: IdleTask, Core: 0, Start: 4, End: 6},
			{Task: 2, Core: 1, Start: 4, End: 6},
		},
		res.Timeline,
	)
	require.EqualValues(t, 4, res.Metrics.PerTask[0].Completion)
	require.EqualValues(t, 6, res.Metrics.PerTask[1].Completion)
	require.Equal(t, 2, res.Metrics.Completed)
}

func TestSingleCoreDeadlockUnderRoundRobin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = string(PolicyRR)
	cfg.Quantum = 1

	newTasks := func() []*Task {
		a := testTask(1, "A", 0, 3)
		a.Priority = 1
		a.Requests = []ResourceRequest{{Resource: 1, At: 0}, {Resource: 2, At: 1}}
		b := testTask(2, "B", 0, 3)
		b.Priority = 5
		b.Requests = []ResourceRequest{{Resource: 2, At: 0}, {Resource: 1, At: 1}}
		return []*Task{a, b}
	}
	newResources := func() []*Resource {
		return []*Resource{NewResource(1, "r1"), NewResource(2, "r2")}
	}

	res, events := mustRun(t, cfg, newTasks(), newResources())

	// the rotation interleaves the crossed acquisitions onto one core, so
	// the cycle forms at tick 2 when each task needs the other's lock
	resolved := eventsOfKind(events, EventDeadlockResolved)
	require.Len(t, resolved, 1)
	require.EqualValues(t, 2, resolved[0].Tick)
	require.EqualValues(t, 2, resolved[0].Task)

	require.Equal(t,
		[]Interval{
			{Task: 1, Core: 0, Start: 0, End: 1},
			{Task: 2, Core: 0, Start: 1, End: 2},
			{Task: 1, Core: 0, Start: 2, End: 4},
			{Task: 2, Core: 0, Start: 4, End: 6},
		},
		res.Timeline,
	)
	require.Equal(t, 2, res.Metrics.Completed)
	require.InDelta(t, 1.0, res.Metrics.Utilization, 1e-9)

	ran := map[TaskID]int64{}
	for _, iv := range res.Timeline {
		ran[iv.Task] += iv.End - iv.Start
	}
	require.EqualValues(t, 3, ran[1])
	require.EqualValues(t, 3, ran[2])

	rerun, _ := mustRun(t, cfg, newTasks(), newResources())
	require.Equal(t, res.Timeline, rerun.Timeline)
	require.Equal(t, res.Metrics, rerun.Metrics)
}

func TestAcquireGrantsFreeAndReentrant(t *testing.T) {
	g, err := NewResourceGraph([]*Resource{NewResource(1, "")})
	require.NoError(t, err)

	a := testTask(1, "A", 0, 1)
	b := testTask(2, "B", 0, 1)

	require.True(t, g.Acquire(a, 1))
	require.True(t, g.Acquire(a, 1)) // already the holder
	require.False(t, g.Acquire(b, 1))

	r, ok := g.Lookup(1)
	require.True(t, ok)
	require.Equal(t, TaskID(1), r.Holder())
}

func TestReleaseAllHandsOffInQueueOrder(t *testing.T) {
	g, err := NewResourceGraph([]*Resource{NewResource(1, "")})
	require.NoError(t, err)

	a := testTask(1, "A", 0, 1)
	b := testTask(2, "B", 0, 1)
	c := testTask(3, "C", 0, 1)

	require.True(t, g.Acquire(a, 1))
	require.False(t, g.Acquire(b, 1))
	require.False(t, g.Acquire(c, 1))

	woken := g.ReleaseAll(a)
	require.Len(t, woken, 1)
	require.Equal(t, TaskID(2), woken[0].ID)

	r, _ := g.Lookup(1)
	require.Equal(t, TaskID(2), r.Holder())

	// C is still queued behind the new holder
	require.Equal(t, TaskID(3), g.ReleaseAll(b)[0].ID)
}

func TestCancelWaitRemovesOnlyTheVictim(t *testing.T) {
	g, err := NewResourceGraph([]*Resource{NewResource(1, "")})
	require.NoError(t, err)

	a := testTask(1, "A", 0, 1)
	b := testTask(2, "B", 0, 1)
	c := testTask(3, "C", 0, 1)

	require.True(t, g.Acquire(a, 1))
	require.False(t, g.Acquire(b, 1))
	require.False(t, g.Acquire(c, 1))

	g.CancelWait(b)

	woken := g.ReleaseAll(a)
	require.Len(t, woken, 1)
	require.Equal(t, TaskID(3), woken[0].ID)
}

func TestDetectCycleWalksWaitForEdges(t *testing.T) {
	g, err := NewResourceGraph([]*Resource{NewResource(1, ""), NewResource(2, "")})
	require.NoError(t, err)

	a := testTask(1, "A", 0, 1)
	b := testTask(2, "B", 0, 1)

	require.True(t, g.Acquire(a, 1))
	require.True(t, g.Acquire(b, 2))
	require.False(t, g.Acquire(a, 2))
	require.Nil(t, g.DetectCycle(a)) // B holds r2 but waits on nothing

	require.False(t, g.Acquire(b, 1))
	cycle := g.DetectCycle(b)
	require.ElementsMatch(t, []TaskID{1, 2}, taskIDs(cycle))
}

func TestResourceGraphRejectsDuplicateIDs(t *testing.T) {
	_, err := NewResourceGraph([]*Resource{NewResource(1, ""), NewResource(1, "")})

	var invalid *InvalidTaskSetError
	require.ErrorAs(t, err, &invalid)
}
