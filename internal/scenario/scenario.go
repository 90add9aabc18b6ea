// Package scenario describes simulation inputs: task and resource records
// loaded from YAML or generated synthetically from a seed. It is the only
// layer that parses user-supplied data; the engine receives validated
// descriptors.
package scenario

import (
	"fmt"
	"os"

	"github.com/asaskevich/govalidator"
	yaml "github.com/goccy/go-yaml"

	"rtsched/internal/sched"
)

// RequestRecord is one resource request of a task. At is the execution
// progress (in ticks of burst already run) at which the resource becomes
// necessary.
type RequestRecord struct {
	Resource int   `yaml:"resource"`
	At       int64 `yaml:"at"`
}

// TaskRecord mirrors one task entry of a scenario file.
type TaskRecord struct {
	ID       uint64          `yaml:"id" valid:"required"`
	Name     string          `yaml:"name"`
	Arrival  int64           `yaml:"arrival"`
	Burst    int64           `yaml:"burst" valid:"required"`
	Deadline int64           `yaml:"deadline"`
	Priority int             `yaml:"priority"`
	Period   int64           `yaml:"period"`
	Affinity *int            `yaml:"affinity"` // nil = any core
	Requests []RequestRecord `yaml:"requests"`
}

// ResourceRecord mirrors one shared resource entry.
type ResourceRecord struct {
	ID   int    `yaml:"id" valid:"required"`
	Name string `yaml:"name"`
}

// Scenario is a full simulation input description.
type Scenario struct {
	Tasks     []TaskRecord     `yaml:"tasks"`
	Resources []ResourceRecord `yaml:"resources"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate runs struct validation over every record. Deeper semantic
// checks (burst positivity, dangling resource ids) happen in the engine's
// fail-fast construction.
func (s *Scenario) Validate() error {
	for i, t := range s.Tasks {
		if _, err := govalidator.ValidateStruct(t); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
	}
	for i, r := range s.Resources {
		if _, err := govalidator.ValidateStruct(r); err != nil {
			return fmt.Errorf("resource %d: %w", i, err)
		}
	}
	return nil
}

// Build converts the records into engine inputs. Periodic tasks expand up
// to horizon ticks.
func (s *Scenario) Build(horizon int64) (*sched.TaskSet, []*sched.Resource, error) {
	tasks := make([]*sched.Task, 0, len(s.Tasks))
	for _, rec := range s.Tasks {
		name := rec.Name
		if name == "" {
			name = fmt.Sprintf("task-%d", rec.ID)
		}
		affinity := -1
		if rec.Affinity != nil {
			affinity = *rec.Affinity
		}
		t := &sched.Task{
			ID:       sched.TaskID(rec.ID),
			Name:     name,
			Arrival:  rec.Arrival,
			Burst:    rec.Burst,
			Deadline: rec.Deadline,
			Priority: rec.Priority,
			Period:   rec.Period,
			Affinity: affinity,
		}
		for _, req := range rec.Requests {
			t.Requests = append(t.Requests, sched.ResourceRequest{
				Resource: sched.ResourceID(req.Resource),
				At:       req.At,
			})
		}
		tasks = append(tasks, t)
	}

	set, err := sched.NewTaskSet(tasks, horizon)
	if err != nil {
		return nil, nil, err
	}

	resources := make([]*sched.Resource, 0, len(s.Resources))
	for _, rec := range s.Resources {
		resources = append(resources, sched.NewResource(sched.ResourceID(rec.ID), rec.Name))
	}
	return set, resources, nil
}
