// Package kernelrun drives long-lived, out-of-process compute kernels.
//
// kernelrun starts a kernel process, exchanges HMAC-signed multipart messages
// with it over three ZeroMQ channels (shell, control, iopub), streams
// incremental output back to the caller while the kernel is still computing,
// and supports best-effort interruption of in-flight work. Because the kernel
// is a persistent process, state set by one execution is visible to the next —
// unlike spawning a fresh interpreter per call.
//
// # Core Types
//
//   - [Kernel] — a running kernel instance handle with a serialized execution queue
//   - [Event] — structured output produced while an execution runs
//   - [EventSink] — receives events one at a time, in order
//   - [ExecResult] — accumulated events plus wall-clock duration
//
// # Vocabulary
//
// The root package defines the shared vocabulary: [EventType] constants for
// what kernels produce, sentinel errors for how things fail. The protocol
// machinery lives in subpackages:
//
//   - kernelrun/wire — message framing and signing
//   - kernelrun/kernel — sockets, handshake, execution engine, process supervision
//   - kernelrun/filter — event stream middleware
//
// # Quick Start
//
//	k, err := kernel.Start(ctx, "python3", workdir)
//	if err != nil { log.Fatal(err) }
//	defer k.Dispose(context.Background())
//
//	res, err := k.Submit(ctx, "print('hello')", kernelrun.EventSinkFunc(func(ev kernelrun.Event) {
//	    fmt.Println(ev.Text)
//	}))
package kernelrun
