package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rtsched/internal/scenario"
	"rtsched/internal/sched"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rtsched",
		Short:         "Deterministic real-time CPU scheduling simulator",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		scenarioPath string
		configPath   string
		policy       string
		cores        int
		quantum      int64
		horizon      int64
		csvPath      string
		genTasks     int
		seed         int64
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scheduling simulation and report the timeline and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := sched.Load(configPath)
			if policy != "" {
				cfg.Policy = policy
			}
			if cores > 0 {
				cfg.Cores = cores
			}
			if quantum > 0 {
				cfg.Quantum = quantum
			}
			if horizon > 0 {
				cfg.Horizon = horizon
			}

			var (
				scn *scenario.Scenario
				err error
			)
			if scenarioPath != "" {
				scn, err = scenario.Load(scenarioPath)
				if err != nil {
					return err
				}
			} else {
				scn = scenario.Generate(genTasks, seed)
				log.WithFields(log.Fields{"tasks": genTasks, "seed": seed}).
					Info("generated synthetic workload")
			}

			set, resources, err := scn.Build(cfg.Horizon)
			if err != nil {
				return err
			}

			eng, err := sched.New(cfg, set, resources)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			names := taskNames(set)

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				logEvents(eng.Events(), names, verbose)
			}()

			res, runErr := eng.Run(ctx)
			wg.Wait()

			printReport(res, names)
			if csvPath != "" {
				if err := writeTimelineCSV(csvPath, res.Timeline, names); err != nil {
					return err
				}
				log.WithField("path", csvPath).Info("timeline exported")
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario YAML file (omit to generate)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "simulator config YAML file")
	cmd.Flags().StringVarP(&policy, "policy", "p", "", "scheduling policy (FCFS SJF SRTF EDF RR PRIORITY RMS LLF HYBRID)")
	cmd.Flags().IntVar(&cores, "cores", 0, "number of simulated cores")
	cmd.Flags().Int64Var(&quantum, "quantum", 0, "round-robin time quantum, ticks")
	cmd.Flags().Int64Var(&horizon, "horizon", 0, "periodic re-release horizon, ticks")
	cmd.Flags().StringVar(&csvPath, "csv", "", "export the timeline as CSV to this path")
	cmd.Flags().IntVar(&genTasks, "gen", 8, "number of tasks to generate when no scenario is given")
	cmd.Flags().Int64Var(&seed, "seed", 1, "seed for the synthetic workload generator")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log dispatch/preempt/block events too")
	return cmd
}

func taskNames(set *sched.TaskSet) map[sched.TaskID]string {
	names := make(map[sched.TaskID]string, len(set.Tasks))
	for _, t := range set.Tasks {
		names[t.ID] = t.Name
	}
	return names
}

func logEvents(events <-chan sched.Event, names map[sched.TaskID]string, verbose bool) {
	for ev := range events {
		fields := log.Fields{"tick": ev.Tick, "core": ev.Core}
		if ev.Task != sched.IdleTask {
			fields["task"] = names[ev.Task]
		}
		switch ev.Kind {
		case sched.EventTaskArrived, sched.EventTaskCompleted:
			log.WithFields(fields).Info(ev.Kind.String())
		case sched.EventDeadlineMissed:
			log.WithFields(fields).Warn(ev.Kind.String())
		case sched.EventDeadlockResolved:
			fields["cycle"] = ev.Cycle
			log.WithFields(fields).Warn(ev.Kind.String())
		case sched.EventPolicySwitched:
			fields["policy"] = ev.Policy
			log.WithFields(fields).Info(ev.Kind.String())
		case sched.EventTaskBlocked:
			if verbose {
				fields["resource"] = ev.Resource
				log.WithFields(fields).Info(ev.Kind.String())
			}
		default:
			if verbose {
				log.WithFields(fields).Info(ev.Kind.String())
			}
		}
	}
}

func printReport(res *sched.Result, names map[sched.TaskID]string) {
	fmt.Printf("\nRun %s  policy=%s  ticks=%d\n", res.RunID, res.Policy, res.Ticks)

	fmt.Println("\nTimeline:")
	for _, iv := range res.Timeline {
		name := "idle"
		if iv.Task != sched.IdleTask {
			name = names[iv.Task]
		}
		fmt.Printf("  core %d  [%4d - %4d)  %s\n", iv.Core, iv.Start, iv.End, name)
	}

	m := res.Metrics
	fmt.Println("\nPer-task metrics:")
	for _, tm := range m.PerTask {
		status := "met"
		if tm.Missed {
			status = "MISSED"
		}
		fmt.Printf("  %-12s arrival=%d completion=%d turnaround=%d waiting=%d response=%d deadline=%s\n",
			tm.Name, tm.Arrival, tm.Completion, tm.Turnaround, tm.Waiting, tm.Response, status)
	}

	fmt.Println("\nAggregates:")
	fmt.Printf("  completed:        %d\n", m.Completed)
	fmt.Printf("  cpu utilization:  %.1f%%\n", m.Utilization*100)
	fmt.Printf("  throughput:       %.4f tasks/tick\n", m.Throughput)
	fmt.Printf("  avg waiting:      %.2f\n", m.AvgWaiting)
	fmt.Printf("  avg turnaround:   %.2f\n", m.AvgTurnaround)
	fmt.Printf("  avg response:     %.2f\n", m.AvgResponse)
	fmt.Printf("  missed deadlines: %d\n", m.MissedDeadlines)
	fmt.Printf("  preemptions:      %d\n", m.Preemptions)
	fmt.Printf("  energy estimate:  %.1f watt-ticks\n", m.Energy)
	fmt.Printf("  avg temperature:  %.1f C\n", m.AvgTemperature)
	if res.DroppedEvents > 0 {
		fmt.Printf("  dropped events:   %d\n", res.DroppedEvents)
	}
}

func writeTimelineCSV(path string, timeline []sched.Interval, names map[sched.TaskID]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"core", "task_id", "task", "start", "end"}); err != nil {
		return err
	}
	for _, iv := range timeline {
		name := "idle"
		if iv.Task != sched.IdleTask {
			name = names[iv.Task]
		}
		rec := []string{
			strconv.Itoa(iv.Core),
			strconv.FormatUint(uint64(iv.Task), 10),
			name,
			strconv.FormatInt(iv.Start, 10),
			strconv.FormatInt(iv.End, 10),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
