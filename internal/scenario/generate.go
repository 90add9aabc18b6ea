package scenario

import (
	"fmt"
	"math/rand"
)

// Generate builds a synthetic workload of n tasks from the given seed.
// Identical seeds always produce identical scenarios, so generated runs
// replay deterministically.
func Generate(n int, seed int64) *Scenario {
	if n <= 0 {
		n = 8
	}
	rng := rand.New(rand.NewSource(seed))

	tasks := make([]TaskRecord, 0, n)
	for i := 1; i <= n; i++ {
		burst := int64(1 + rng.Intn(8))
		arrival := int64(rng.Intn(2 * n))
		rec := TaskRecord{
			ID:       uint64(i),
			Name:     fmt.Sprintf("task-%d", i),
			Arrival:  arrival,
			Burst:    burst,
			Priority: rng.Intn(10),
		}
		// roughly half the tasks carry a deadline with a little slack
		if rng.Intn(2) == 0 {
			rec.Deadline = arrival + burst + int64(rng.Intn(10))
		}
		tasks = append(tasks, rec)
	}

	return &Scenario{Tasks: tasks}
}
