// Package task tracks the child tasks of the root task and reclaims their
// capability slots when they exit.
//
// # Ownership
//
// A Task owns three slots: the task itself, its main thread and its region
// map. The region map slot is held by the object pool, which serves the map
// to the child. The task and thread slots are held by the Task.
//
// # Lifecycle
//
//	Spawn            -> Running
//	exit signal      -> Terminating  (Task.OnSignal reports Finished)
//	Registry.Signal  -> Destroyed    (task removed, all three slots freed)
//
// A task never destroys itself. OnSignal only reports the outcome; the
// Registry, which owns every Task, removes it and releases its resources on
// the caller's goroutine.
//
// # Exit diagnostics
//
// A nonzero exit code produces one warning record naming the task and the
// code. When a coverage hook is configured it runs first, then sigma0 and
// the kernel debugger are asked to dump their coverage data. Failures on that path are
// ignored.
package task
