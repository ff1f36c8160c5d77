package kernelrun

import "context"

// Kernel is the caller-facing handle for one running kernel instance.
//
// A Kernel owns its process, sockets, and execution queue exclusively —
// one handle per instance, held by exactly one owner. Lookup tables
// mapping documents or sessions to kernels belong to the orchestration
// layer, not here.
//
// Executions on one Kernel are never concurrent: Submit requests drain
// strictly FIFO, preserving the kernel's single mutable namespace as a
// sequential invariant.
//
// Kernel is an interface to enable wrapping with logging, metrics, or
// retry middleware.
type Kernel interface {
	// Submit queues code for execution and blocks until the kernel
	// reports it has returned to idle for this request. Events are
	// delivered to sink as they arrive; sink may be nil to only
	// accumulate. Returns the accumulated events and duration.
	//
	// ctx cancellation stops the caller's wait, not the execution —
	// the kernel runs the code to completion regardless, and the
	// queue order is preserved.
	Submit(ctx context.Context, code string, sink EventSink) (*ExecResult, error)

	// Interrupt asks the kernel to abort the currently running
	// execution. Best-effort: if no reply arrives within the
	// configured window, Interrupt returns ErrInterruptTimeout and
	// the in-flight Submit is left untouched — it still completes
	// when the kernel eventually goes idle.
	Interrupt(ctx context.Context) error

	// Dispose terminates the kernel process and rejects any queued
	// or in-flight Submit with ErrDisposed. Idempotent.
	Dispose(ctx context.Context) error

	// Wait blocks until the kernel process exits naturally.
	// Returns nil on clean exit, or an error describing the failure.
	Wait() error
}
