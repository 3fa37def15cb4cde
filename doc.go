// Package dex provides the core of an asynchronous-computation runtime:
// futures and promises, stackful fibers scheduled cooperatively per
// thread, a bounded future-valued channel, and a dual-backend AIO
// context for submitting reads and writes against file descriptors.
//
// # Architecture
//
// [Future] and [Promise] (future.go, timeout.go) are the settlement
// primitive every other component reports through: a [Fiber] resumes
// when the future it awaited settles, a [Channel] hands a receiver the
// sender's own payload future, and an [AioContext] resolves a submitted
// operation's future from its completion callback.
//
// A [Fiber] (fiber.go) is a unit of sequential, suspend-anywhere
// computation, backed one-to-one by a dedicated goroutine gated by a
// pair of rendezvous channels so that exactly one of {scheduler, fiber}
// ever runs at a time; it runs on its goroutine's own Go-runtime-managed
// stack, not a pooled one (the guarded stack pool in stack.go and its
// platform variants instead backs the AIO thread-pool backend's worker
// goroutines). A fiber suspends only inside [Fiber.Await] and resumes
// only when handed back to a [Scheduler].
//
// A [Scheduler] (scheduler.go) cooperatively runs the fibers migrated
// onto it, one at a time, on whichever goroutine calls [Scheduler.Dispatch].
// It exposes the same Prepare/Check/Dispatch readiness-source shape an
// external host loop would drive it with; [Scheduler.Run] is a minimal
// standalone driver for when no such host loop exists. [SetDefaultScheduler]
// and [SetThreadScheduler] (registry.go) give convenience entrypoints a
// scheduler to fall back on.
//
// A [Channel] (channel.go) is a bounded, ordered, future-valued FIFO:
// Send and Receive both return futures, and closing either side has
// distinct, asymmetric drain semantics.
//
// An [AioContext] (aio.go, aio_uring_linux.go, aio_threadpool.go) submits
// reads and writes against file descriptors and resolves a future per
// operation on completion, backed by io_uring on Linux and a worker-pool
// fallback everywhere else.
//
// # Thread Safety
//
// Futures and promises are safe for concurrent use from any goroutine.
// A [Fiber] runs on exactly one goroutine at a time and must not be
// resumed concurrently with itself; a [Scheduler] enforces this via its
// own recursive execution lock. A [Channel]'s Send, Receive, CloseSend,
// and CloseReceive are all safe to call concurrently.
//
// # Error Types
//
// The package provides a closed set of error kinds:
//   - [ChannelClosedError]: channel send/receive against a closed side
//   - [TimedOutError]: a [TimeoutFuture] deadline elapsed
//   - [CancelledError]: an operation was abandoned, not timed out
//   - [IOError]: an AIO completion reported a kernel error
//   - [InvalidStateError]: a program-logic error, e.g. submitting to a closed [AioContext]
//
// Every error type implements [error], and each supports [errors.Is]
// against its corresponding sentinel (ErrChannelClosed, ErrTimedOut, and
// so on).
package dex
