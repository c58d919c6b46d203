package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/capkit/cap/alloc"
	"github.com/joshuapare/capkit/internal/abi"
	"github.com/joshuapare/capkit/internal/idgen"
)

var (
	stressWorkers  int
	stressRounds   int
	stressCapacity int
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVarP(&stressWorkers, "workers", "w", 8, "Concurrent goroutines")
	cmd.Flags().IntVarP(&stressRounds, "rounds", "r", 1000, "Spawn/exit cycles per goroutine")
	cmd.Flags().IntVar(&stressCapacity, "capacity", 0, "Override the allocator capacity")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Spawn and reap tasks from many goroutines at once",
		Long: `The stress command runs spawn/exit cycles concurrently and then checks
that every slot came back. Spawns that find the pool exhausted are counted
and retried on the next cycle; any other failure aborts the run.

Example:
  capctl stress --workers 16 --rounds 5000
  capctl stress --capacity 12 --workers 8 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd.Context())
		},
	}
	return cmd
}

// StressReport is the result of a stress run.
type StressReport struct {
	Workers   int           `json:"workers"`
	Rounds    int           `json:"rounds"`
	Cycles    int64         `json:"cycles"`
	Exhausted int64         `json:"exhausted"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Leaked    int           `json:"leaked"`
	Allocator alloc.Stats   `json:"allocator"`
}

func runStress(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if stressWorkers <= 0 || stressRounds <= 0 {
		return fmt.Errorf("--workers and --rounds must be positive")
	}

	sys, err := boot(bootOptions{capacity: stressCapacity, idFunc: idgen.Sequence("stress")})
	if err != nil {
		return err
	}
	defer sys.Close()

	var (
		cycles    atomic.Int64
		exhausted atomic.Int64
		wg        sync.WaitGroup
		errOnce   sync.Once
		firstErr  error
	)
	fail := func(err error) { errOnce.Do(func() { firstErr = err }) }

	printVerbose("Running %d workers x %d rounds\n", stressWorkers, stressRounds)
	start := time.Now()
	for w := range stressWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range stressRounds {
				t, err := sys.spawn(ctx, fmt.Sprintf("s%d.%d", w, i))
				if errors.Is(err, alloc.ErrExhausted) {
					exhausted.Add(1)
					continue
				}
				if err != nil {
					fail(err)
					return
				}
				if _, err := sys.reg.Signal(ctx, t.ID(), abi.SignalExit, uint64(i&1)); err != nil {
					fail(err)
					return
				}
				cycles.Add(1)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)
	if firstErr != nil {
		return fmt.Errorf("stress run failed: %w", firstErr)
	}

	report := StressReport{
		Workers:   stressWorkers,
		Rounds:    stressRounds,
		Cycles:    cycles.Load(),
		Exhausted: exhausted.Load(),
		Elapsed:   elapsed,
		Allocator: sys.alloc.Stats(),
	}
	report.Leaked = report.Allocator.InUse
	if report.Leaked != 0 {
		return fmt.Errorf("%d slots still in use after all tasks exited", report.Leaked)
	}

	if jsonOut {
		return printJSON(report)
	}

	printInfo("\nStress:\n")
	printInfo("  Workers: %d\n", report.Workers)
	printInfo("  Cycles: %d\n", report.Cycles)
	printInfo("  Exhausted spawns: %d\n", report.Exhausted)
	printInfo("  Elapsed: %s\n", report.Elapsed.Round(time.Millisecond))
	if report.Cycles > 0 {
		printInfo("  Per cycle: %s\n", report.Elapsed/time.Duration(report.Cycles))
	}
	printInfo("\nAllocator:\n")
	printInfo("  Alloc calls: %d\n", report.Allocator.AllocCalls)
	printInfo("  Free calls: %d\n", report.Allocator.FreeCalls)
	printInfo("  High water: 0x%x\n", report.Allocator.HighWater)
	printInfo("  ✓ No leaked slots\n")
	return nil
}
