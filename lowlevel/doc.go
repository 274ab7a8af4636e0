// Package lowlevel implements the primitive engine underneath the
// aiologic synchronization primitives: the one-shot rendezvous
// ([Waiter]), the one-shot resolution cell ([WaiterEvent]), the
// lock-free wait queue ([WaitQueue]), and the runtime adapter layer
// that lets a single primitive instance serve waiters belonging to
// different concurrency runtimes within the same process.
//
// Nothing in this package blocks except [Waiter.Park],
// [WaiterEvent.Wait] and the adapters' [Runtime] Sleep; everything
// else is built from atomic operations
// so it remains usable from signal handlers and finalizers running on
// the same thread as regular callers.
package lowlevel
