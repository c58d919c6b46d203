package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/capkit/cap/alloc"
	"github.com/joshuapare/capkit/internal/abi"
)

var (
	simTasks     int
	simExitCodes []int
	simCoverage  bool
	simCapacity  int
	simKeep      int
)

func init() {
	cmd := newSimulateCmd()
	cmd.Flags().IntVarP(&simTasks, "tasks", "n", 4, "Number of child tasks to spawn")
	cmd.Flags().IntSliceVar(&simExitCodes, "exit-codes", nil, "Exit codes, cycled over the tasks")
	cmd.Flags().BoolVar(&simCoverage, "coverage", false, "Request a coverage dump on every exit")
	cmd.Flags().IntVar(&simCapacity, "capacity", 0, "Override the allocator capacity")
	cmd.Flags().IntVar(&simKeep, "keep", 0, "Leave this many tasks running at the end")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Spawn child tasks, deliver their exit signals, and report slot usage",
		Long: `The simulate command boots the root task, spawns child tasks, then
delivers an exit signal to each of them. Every exit must return all three of
the task's capability slots to the allocator.

Example:
  capctl simulate --tasks 8
  capctl simulate --tasks 3 --exit-codes 0,1 --coverage
  capctl simulate --capacity 16 --tasks 10 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context())
		},
	}
	return cmd
}

// SimTask is one simulated child in the report.
type SimTask struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TaskCap   int    `json:"task_cap"`
	ThreadCap int    `json:"thread_cap"`
	RMCap     int    `json:"rm_cap"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	Status    string `json:"status,omitempty"`
}

// SimReport is the result of a simulation.
type SimReport struct {
	Spawned   int         `json:"spawned"`
	Failed    int         `json:"failed"`
	Exited    int         `json:"exited"`
	Running   int         `json:"running"`
	Unmaps    int         `json:"unmaps"`
	Live      int         `json:"live_objects"`
	Coverage  int64       `json:"coverage_dumps"`
	Sigma0    int         `json:"sigma0_calls"`
	Debugger  int         `json:"debugger_calls"`
	Tasks     []SimTask   `json:"tasks"`
	Allocator alloc.Stats `json:"allocator"`
}

func runSimulate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if simTasks < 0 {
		return fmt.Errorf("--tasks must not be negative, got %d", simTasks)
	}
	if simKeep < 0 {
		return fmt.Errorf("--keep must not be negative, got %d", simKeep)
	}

	sys, err := boot(bootOptions{capacity: simCapacity, coverage: simCoverage})
	if err != nil {
		return err
	}
	defer sys.Close()

	report := SimReport{}
	for i := range simTasks {
		name := fmt.Sprintf("app%d", i)
		t, err := sys.spawn(ctx, name)
		if err != nil {
			report.Failed++
			printVerbose("Spawn %s failed: %v\n", name, err)
			continue
		}
		report.Spawned++
		report.Tasks = append(report.Tasks, SimTask{
			ID:        t.ID(),
			Name:      t.Name(),
			TaskCap:   t.TaskCap().Index,
			ThreadCap: t.ThreadCap().Index,
			RMCap:     t.RegionMapCap().Index,
		})
		printVerbose("Spawned %s (%s) task=0x%x thread=0x%x rm=0x%x\n",
			name, t.ID(), t.TaskCap().Index, t.ThreadCap().Index, t.RegionMapCap().Index)
	}

	stop := max(len(report.Tasks)-simKeep, 0)
	for i := 0; i < stop; i++ {
		code := 0
		if len(simExitCodes) > 0 {
			code = simExitCodes[i%len(simExitCodes)]
		}
		st, err := sys.reg.Signal(ctx, report.Tasks[i].ID, abi.SignalExit, uint64(code))
		if err != nil {
			return fmt.Errorf("failed to signal %s: %w", report.Tasks[i].Name, err)
		}
		report.Exited++
		report.Tasks[i].ExitCode = &code
		report.Tasks[i].Status = st.String()
		printVerbose("Exited %s code=%d status=%s\n", report.Tasks[i].Name, code, st)
	}

	report.Running = sys.reg.Len()
	report.Unmaps = len(sys.kern.Unmaps())
	for _, c := range sys.kern.Calls() {
		switch c.Dest {
		case abi.Sigma0Cap:
			report.Sigma0++
		case abi.DebuggerCap:
			report.Debugger++
		}
	}
	for _, st := range report.Tasks {
		report.Live += sys.live(
			alloc.Cap{Index: st.TaskCap, Kind: alloc.KindTask},
			alloc.Cap{Index: st.ThreadCap, Kind: alloc.KindThread},
			alloc.Cap{Index: st.RMCap, Kind: alloc.KindRegionMap},
		)
	}
	report.Coverage = sys.dumps.Load()
	report.Allocator = sys.alloc.Stats()

	if jsonOut {
		return printJSON(report)
	}

	st := report.Allocator
	printInfo("\nSimulation:\n")
	printInfo("  Spawned: %d\n", report.Spawned)
	if report.Failed > 0 {
		printInfo("  Failed: %d\n", report.Failed)
	}
	printInfo("  Exited: %d\n", report.Exited)
	printInfo("  Running: %d\n", report.Running)
	printInfo("  Kernel deletions: %d\n", report.Unmaps)
	printInfo("  Live kernel objects: %d\n", report.Live)
	if simCoverage {
		printInfo("  Coverage dumps: %d\n", report.Coverage)
	}
	printInfo("\nAllocator:\n")
	printInfo("  Pool: [0x%x, 0x%x)\n", st.Base, st.Base+st.Capacity)
	printInfo("  In use: %d/%d\n", st.InUse, st.Capacity)
	printInfo("  High water: 0x%x\n", st.HighWater)
	if st.Exhausted > 0 {
		printInfo("  Exhausted: %d\n", st.Exhausted)
	}
	return nil
}
