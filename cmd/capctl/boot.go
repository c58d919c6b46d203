package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/joshuapare/capkit/cap/alloc"
	"github.com/joshuapare/capkit/cap/env"
	"github.com/joshuapare/capkit/cap/kernel"
	"github.com/joshuapare/capkit/cap/objpool"
	"github.com/joshuapare/capkit/cap/process"
	"github.com/joshuapare/capkit/cap/task"
	"github.com/joshuapare/capkit/internal/config"
	"github.com/joshuapare/capkit/internal/logger"
	"github.com/joshuapare/capkit/internal/tracing"
)

// bootOptions are per-command adjustments on top of the configuration.
type bootOptions struct {
	capacity int  // overrides allocator.capacity when positive
	coverage bool // installs a coverage hook on the registry
	idFunc   func() string
}

// system is a booted root task.
type system struct {
	cfg    config.Config
	rec    env.Record
	alloc  *alloc.SlotAllocator
	pool   *objpool.Pool
	reg    *task.Registry
	kern   *kernel.Sim
	dumps  atomic.Int64
	closer func()
}

func (s *system) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// boot brings a root task up in the order the process needs: configuration
// and diagnostics, the environment record, the process allocator, then the
// task registry as a registered facility.
func boot(opts bootOptions) (*system, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if opts.capacity > 0 {
		cfg.Allocator.Capacity = opts.capacity
	}

	level := logger.ParseLevel(cfg.Log.Level)
	if verbose {
		level = logger.ParseLevel("debug")
	}
	logger.Init(logger.Options{
		Enabled: !quiet,
		Writer:  os.Stderr,
		Format:  logger.Format(cfg.Log.Format),
		Level:   level,
	})

	s := &system{cfg: cfg, kern: kernel.NewSim()}
	s.kern.Strict = true
	if cfg.Trace.Enabled {
		if err := tracing.Setup("capctl", version, cfg.Trace.File); err != nil {
			return nil, fmt.Errorf("failed to start tracing: %w", err)
		}
		s.closer = func() { _ = tracing.Shutdown(context.Background()) }
	}

	if cfg.Allocator.EnvFile != "" {
		printVerbose("Environment record: %s\n", cfg.Allocator.EnvFile)
		s.rec, err = env.OpenFile(cfg.Allocator.EnvFile, cfg.Allocator.FirstFreeCap)
		if err != nil {
			s.Close()
			return nil, err
		}
	} else {
		s.rec = env.NewMemory(cfg.Allocator.FirstFreeCap)
	}

	process.Reset()
	s.alloc, err = process.Init(s.rec, cfg.Allocator.Capacity, &alloc.Options{
		Deleter:  s.kern,
		LogAlloc: cfg.Log.Alloc,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	err = process.Register(process.Facility{
		Name: "task registry",
		Init: func(a alloc.Allocator) error {
			ropts := &task.Options{Sigma0: s.kern, Debugger: s.kern, IDFunc: opts.idFunc}
			if opts.coverage {
				ropts.Coverage = func() { s.dumps.Add(1) }
			}
			s.pool = objpool.New(a)
			s.reg = task.NewRegistry(a, s.pool, ropts)
			return nil
		},
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := process.Start(); err != nil {
		s.Close()
		return nil, err
	}

	printVerbose("Allocator: base=0x%x capacity=%d\n", s.alloc.Base(), s.alloc.Cap())
	return s, nil
}

// spawn starts a task and creates its kernel objects behind the three
// selectors, the way the loader would after the root task hands them out.
func (s *system) spawn(ctx context.Context, name string) (*task.Task, error) {
	t, err := s.reg.Spawn(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, c := range t.Caps() {
		s.kern.Map(c.Raw())
	}
	return t, nil
}

// live counts the kernel objects still present behind caps.
func (s *system) live(caps ...alloc.Cap) int {
	n := 0
	for _, c := range caps {
		if s.kern.Live(c.Raw()) {
			n++
		}
	}
	return n
}
