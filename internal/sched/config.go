package sched

import (
	"os"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml.
type Config struct {
	Policy             string          `yaml:"policy"`
	Cores              int             `yaml:"cores"`
	Quantum            int64           `yaml:"quantum"` // RR slice, ticks
	PriorityPreemptive bool            `yaml:"priority_preemptive"`
	Horizon            int64           `yaml:"horizon"`   // periodic re-release ceiling; 0 disables
	MaxTicks           int64           `yaml:"max_ticks"` // divergence guard
	FeedSize           int             `yaml:"feed_size"` // event buffer, drop-oldest past this
	Adaptive           AdaptiveConfig  `yaml:"adaptive"`
	CoreModel          CoreModelConfig `yaml:"core_model"`
}

func DefaultConfig() Config {
	return Config{
		Policy:   string(PolicyFCFS),
		Cores:    1,
		Quantum:  2,
		MaxTicks: 100000,
		FeedSize: 1024,
		Adaptive: AdaptiveConfig{
			Window:  20,
			Default: string(PolicyPriority),
			Rules: []AdaptiveRule{
				{Metric: MetricMissRate, AtLeast: 0.25, Use: string(PolicyEDF)},
				{Metric: MetricReadyLen, AtLeast: 4, Use: string(PolicySRTF)},
			},
		},
		CoreModel: CoreModelConfig{
			Window:      10,
			FMin:        1.0,
			FMax:        3.0,
			RoomTemp:    20,
			MaxTemp:     100,
			HeatRate:    5,
			CoolRate:    2,
			IdlePower:   2,
			BusyPower:   5,
			PowerPerGHz: 10,
		},
	}
}

// Load reads YAML and overrides defaults; empty path = defaults only.
func Load(path string) Config {
	cfg := DefaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)

	// sanity clamps; the quantum is deliberately not clamped so that a
	// bad round-robin setup fails loudly at engine construction
	if cfg.Cores <= 0 {
		cfg.Cores = 1
	}
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = 100000
	}
	if cfg.FeedSize <= 0 {
		cfg.FeedSize = 1024
	}
	if cfg.CoreModel.Window <= 0 {
		cfg.CoreModel.Window = 10
	}
	if cfg.CoreModel.FMax < cfg.CoreModel.FMin {
		cfg.CoreModel.FMax = cfg.CoreModel.FMin
	}

	return cfg
}
