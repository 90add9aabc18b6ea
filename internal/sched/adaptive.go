package sched

import "fmt"

// Rolling metric names understood by the adaptive rule table.
const (
	MetricMissRate    = "miss_rate"
	MetricReadyLen    = "ready_len"
	MetricPreemptions = "preemptions"
)

// AdaptiveRule switches the active policy when the named rolling metric
// reaches AtLeast. Rules are evaluated in order; the first match wins.
type AdaptiveRule struct {
	Metric  string  `yaml:"metric"`
	AtLeast float64 `yaml:"at_least"`
	Use     string  `yaml:"use"`
}

// AdaptiveConfig drives the Hybrid policy. The rule table is configuration,
// not code: policy selection is a pure function of the window snapshot,
// which keeps replays deterministic.
type AdaptiveConfig struct {
	Window  int64          `yaml:"window"`
	Default string         `yaml:"default"`
	Rules   []AdaptiveRule `yaml:"rules"`
}

// WindowStats is the rolling snapshot the controller decides on, gathered
// over one decision window.
type WindowStats struct {
	ReadyLen    int
	Completions int64
	Misses      int64
	Preemptions int64
}

// missRate is the share of tasks that missed their deadline among those
// that finished or were flagged during the window.
func (w WindowStats) missRate() float64 {
	done := w.Completions + w.Misses
	if done == 0 {
		return 0
	}
	return float64(w.Misses) / float64(done)
}

type compiledRule struct {
	metric  string
	atLeast float64
	use     PolicyKind
}

// AdaptiveController re-evaluates the rule table at every decision-window
// boundary and swaps the active strategy. Switches never happen mid-tick.
type AdaptiveController struct {
	window     int64
	table      []compiledRule
	def        PolicyKind
	strategies map[PolicyKind]strategy
	active     strategy
}

func newAdaptiveController(cfg Config) (*AdaptiveController, error) {
	ac := cfg.Adaptive
	if ac.Window <= 0 {
		return nil, &InvalidConfigError{Reason: "adaptive window must be positive"}
	}
	if len(ac.Rules) == 0 {
		return nil, &InvalidConfigError{Reason: "adaptive rule table is empty"}
	}

	c := &AdaptiveController{
		window:     ac.Window,
		strategies: make(map[PolicyKind]strategy),
	}

	compile := func(name string) (PolicyKind, error) {
		kind, err := ParsePolicy(name)
		if err != nil {
			return "", err
		}
		if kind == PolicyHybrid {
			return "", &InvalidConfigError{Reason: "adaptive rule table cannot select the hybrid policy"}
		}
		if _, ok := c.strategies[kind]; !ok {
			s, err := newStrategy(kind, cfg, nil)
			if err != nil {
				return "", err
			}
			c.strategies[kind] = s
		}
		return kind, nil
	}

	def, err := compile(ac.Default)
	if err != nil {
		return nil, err
	}
	c.def = def

	for _, r := range ac.Rules {
		switch r.Metric {
		case MetricMissRate, MetricReadyLen, MetricPreemptions:
		default:
			return nil, &InvalidConfigError{Reason: fmt.Sprintf("unknown adaptive metric %q", r.Metric)}
		}
		use, err := compile(r.Use)
		if err != nil {
			return nil, err
		}
		c.table = append(c.table, compiledRule{metric: r.Metric, atLeast: r.AtLeast, use: use})
	}

	c.active = c.strategies[def]
	return c, nil
}

// usesQuantum reports whether any reachable policy is round robin.
func (c *AdaptiveController) usesQuantum() bool {
	_, ok := c.strategies[PolicyRR]
	return ok
}

// Active returns the currently selected underlying policy.
func (c *AdaptiveController) Active() PolicyKind { return c.active.kind() }

// decide maps a window snapshot to a policy. It is pure: identical
// snapshots always yield identical selections.
func (c *AdaptiveController) decide(s WindowStats) PolicyKind {
	for _, r := range c.table {
		var v float64
		switch r.metric {
		case MetricMissRate:
			v = s.missRate()
		case MetricReadyLen:
			v = float64(s.ReadyLen)
		case MetricPreemptions:
			v = float64(s.Preemptions)
		}
		if v >= r.atLeast {
			return r.use
		}
	}
	return c.def
}

// apply switches the active strategy, reporting whether it changed.
func (c *AdaptiveController) apply(kind PolicyKind) bool {
	if c.active.kind() == kind {
		return false
	}
	c.active = c.strategies[kind]
	return true
}
