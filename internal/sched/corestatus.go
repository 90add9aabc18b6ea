package sched

// CoreModelConfig holds the constants of the simulated frequency and
// temperature response. Sustained load scales the core frequency between
// FMin and FMax; busy ticks heat the core, idle ticks cool it back toward
// room temperature.
type CoreModelConfig struct {
	Window      int     `yaml:"window"`        // sliding utilization window, ticks
	FMin        float64 `yaml:"f_min"`         // GHz
	FMax        float64 `yaml:"f_max"`         // GHz
	RoomTemp    float64 `yaml:"room_temp"`     // °C
	MaxTemp     float64 `yaml:"max_temp"`      // °C
	HeatRate    float64 `yaml:"heat_rate"`     // °C per busy tick
	CoolRate    float64 `yaml:"cool_rate"`     // °C per idle tick
	IdlePower   float64 `yaml:"idle_power"`    // W
	BusyPower   float64 `yaml:"busy_power"`    // base W when busy
	PowerPerGHz float64 `yaml:"power_per_ghz"` // W per GHz when busy
}

// CoreStatus maps a sliding window of busy/idle observations onto a
// simulated (frequency, temperature) pair. It is stateless aside from the
// window buffer.
type CoreStatus struct {
	cfg  CoreModelConfig
	ring []bool
	pos  int
	n    int
	busy int
	freq float64
	temp float64
}

func NewCoreStatus(cfg CoreModelConfig) *CoreStatus {
	if cfg.Window <= 0 {
		cfg.Window = 1
	}
	return &CoreStatus{
		cfg:  cfg,
		ring: make([]bool, cfg.Window),
		freq: cfg.FMin,
		temp: cfg.RoomTemp,
	}
}

// Observe records one tick of core activity and advances the response
// curve.
func (c *CoreStatus) Observe(busy bool) {
	if c.n == len(c.ring) {
		if c.ring[c.pos] {
			c.busy--
		}
	} else {
		c.n++
	}
	c.ring[c.pos] = busy
	if busy {
		c.busy++
	}
	c.pos = (c.pos + 1) % len(c.ring)

	c.freq = c.cfg.FMin + (c.cfg.FMax-c.cfg.FMin)*c.Utilization()

	if busy {
		c.temp += c.cfg.HeatRate
		if c.temp > c.cfg.MaxTemp {
			c.temp = c.cfg.MaxTemp
		}
	} else {
		c.temp -= c.cfg.CoolRate
		if c.temp < c.cfg.RoomTemp {
			c.temp = c.cfg.RoomTemp
		}
	}
}

// Utilization is the busy fraction of the sliding window.
func (c *CoreStatus) Utilization() float64 {
	if c.n == 0 {
		return 0
	}
	return float64(c.busy) / float64(c.n)
}

func (c *CoreStatus) Frequency() float64   { return c.freq }
func (c *CoreStatus) Temperature() float64 { return c.temp }

// Power returns the wattage drawn during one tick in the given state at
// the current frequency.
func (c *CoreStatus) Power(busy bool) float64 {
	if !busy {
		return c.cfg.IdlePower
	}
	return c.cfg.BusyPower + c.freq*c.cfg.PowerPerGHz
}
