package sched

// TaskMetrics carries the per-task results, fixed once the task completes.
type TaskMetrics struct {
	Task       TaskID
	Name       string
	Arrival    int64
	Burst      int64
	Completion int64
	Turnaround int64
	Waiting    int64
	Response   int64
	Missed     bool
}

// MetricsSnapshot aggregates one run. It is always recomputed from the
// interval log plus the registry's final state and never keeps running
// totals of its own, so it can be rebuilt at any point of a run.
type MetricsSnapshot struct {
	TotalTicks      int64
	Completed       int
	PerTask         []TaskMetrics
	AvgWaiting      float64
	AvgTurnaround   float64
	AvgResponse     float64
	Throughput      float64 // completed tasks per tick
	Utilization     float64 // busy fraction across all cores, 0..1
	CoreUtilization []float64
	MissedDeadlines int
	Preemptions     int64
	Energy          float64 // watt-ticks
	CoreFrequency   []float64
	CoreTemperature []float64
	AvgTemperature  float64
}

// ComputeMetrics derives a snapshot from the registry's final state and the
// append-only timeline. Energy replays the timeline through a fresh core
// status model, so the estimate can never drift from the interval log.
func ComputeMetrics(tasks []*Task, timeline []Interval, totalTicks int64, cores int, model CoreModelConfig) MetricsSnapshot {
	m := MetricsSnapshot{
		TotalTicks:      totalTicks,
		CoreUtilization: make([]float64, cores),
		CoreFrequency:   make([]float64, cores),
		CoreTemperature: make([]float64, cores),
	}

	for _, t := range tasks {
		if t.DeadlineMissed {
			m.MissedDeadlines++
		}
		m.Preemptions += t.Preemptions
		if t.Completion < 0 {
			continue
		}
		turnaround := t.Completion - t.Arrival
		tm := TaskMetrics{
			Task:       t.ID,
			Name:       t.Name,
			Arrival:    t.Arrival,
			Burst:      t.Burst,
			Completion: t.Completion,
			Turnaround: turnaround,
			Waiting:    turnaround - t.Burst,
			Response:   t.FirstRun - t.Arrival,
			Missed:     t.DeadlineMissed,
		}
		m.PerTask = append(m.PerTask, tm)
		m.Completed++
		m.AvgWaiting += float64(tm.Waiting)
		m.AvgTurnaround += float64(tm.Turnaround)
		m.AvgResponse += float64(tm.Response)
	}
	if m.Completed > 0 {
		n := float64(m.Completed)
		m.AvgWaiting /= n
		m.AvgTurnaround /= n
		m.AvgResponse /= n
	}
	if totalTicks > 0 {
		m.Throughput = float64(m.Completed) / float64(totalTicks)
	}

	if totalTicks == 0 || cores == 0 {
		return m
	}

	busy := make([][]bool, cores)
	for c := range busy {
		busy[c] = make([]bool, totalTicks)
	}
	for _, iv := range timeline {
		if iv.Task == IdleTask {
			continue
		}
		for tick := iv.Start; tick < iv.End && tick < totalTicks; tick++ {
			busy[iv.Core][tick] = true
		}
	}

	var busyTotal int64
	for c := 0; c < cores; c++ {
		cs := NewCoreStatus(model)
		var coreBusy int64
		for tick := int64(0); tick < totalTicks; tick++ {
			b := busy[c][tick]
			cs.Observe(b)
			m.Energy += cs.Power(b)
			if b {
				coreBusy++
			}
		}
		busyTotal += coreBusy
		m.CoreUtilization[c] = float64(coreBusy) / float64(totalTicks)
		m.CoreFrequency[c] = cs.Frequency()
		m.CoreTemperature[c] = cs.Temperature()
		m.AvgTemperature += cs.Temperature()
	}
	m.Utilization = float64(busyTotal) / float64(totalTicks*int64(cores))
	m.AvgTemperature /= float64(cores)

	return m
}
