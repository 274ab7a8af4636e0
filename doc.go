// Package aiologic provides synchronization and communication
// primitives that work across heterogeneous concurrency runtimes
// within a single process. A primitive instance can be acquired by a
// plain goroutine, released from a task running on an aiologic event
// loop, and observed by a third runtime registered through the
// lowlevel adapter contract, without deadlocks or lost wake-ups.
//
// Blocking verbs take a context.Context and surface cancellation and
// deadlines through it; Try variants never block and never yield.
// Within one primitive the observable wakeup order is the enqueue
// order (strictly so under perfect fairness, modulo tombstones
// otherwise).
//
// Configuration is read once from the environment
// (AIOLOGIC_PERFECT_FAIRNESS, AIOLOGIC_GREEN_CHECKPOINTS,
// AIOLOGIC_ASYNC_CHECKPOINTS) and can be replaced programmatically via
// the lowlevel package.
package aiologic
