package sched

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoreStatusStartsCold(t *testing.T) {
	cs := NewCoreStatus(DefaultConfig().CoreModel)

	require.Zero(t, cs.Utilization())
	require.InDelta(t, 1.0, cs.Frequency(), 1e-9)
	require.InDelta(t, 20.0, cs.Temperature(), 1e-9)
	require.InDelta(t, 2.0, cs.Power(false), 1e-9)
	require.InDelta(t, 15.0, cs.Power(true), 1e-9) // 5 W base + 1 GHz * 10 W
}

func TestFrequencyTracksWindowLoad(t *testing.T) {
	cs := NewCoreStatus(DefaultConfig().CoreModel)

	for i := 0; i < 10; i++ {
		cs.Observe(true)
	}
	require.InDelta(t, 1.0, cs.Utilization(), 1e-9)
	require.InDelta(t, 3.0, cs.Frequency(), 1e-9)
	require.InDelta(t, 35.0, cs.Power(true), 1e-9)

	// five idle ticks displace five busy ones from the window
	for i := 0; i < 5; i++ {
		cs.Observe(false)
	}
	require.InDelta(t, 0.5, cs.Utilization(), 1e-9)
	require.InDelta(t, 2.0, cs.Frequency(), 1e-9)
}

func TestTemperatureClampsAndCoolsDown(t *testing.T) {
	cs := NewCoreStatus(DefaultConfig().CoreModel)

	for i := 0; i < 20; i++ {
		cs.Observe(true)
	}
	require.InDelta(t, 100.0, cs.Temperature(), 1e-9) // ceiling, not 20 + 20*5

	cs.Observe(false)
	require.InDelta(t, 98.0, cs.Temperature(), 1e-9)

	for i := 0; i < 100; i++ {
		cs.Observe(false)
	}
	require.InDelta(t, 20.0, cs.Temperature(), 1e-9) // never below room
}

func TestCoreStatusToleratesZeroWindow(t *testing.T) {
	cfg := DefaultConfig().CoreModel
	cfg.Window = 0

	cs := NewCoreStatus(cfg)
	cs.Observe(true)
	require.InDelta(t, 1.0, cs.Utilization(), 1e-9)
	cs.Observe(false)
	require.Zero(t, cs.Utilization())
}
