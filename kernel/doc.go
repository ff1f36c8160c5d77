// Package kernel implements the wire-protocol client for out-of-process
// compute kernels: channel sockets, the startup handshake, the output
// classifier, the serialized execution engine, and process supervision.
//
// Use [Start] to launch a kernel and obtain a [kernelrun.Kernel] handle.
// Everything else in this package is plumbing behind that handle.
//
// # Channels
//
// One kernel instance speaks over three ZeroMQ channels sharing a single
// signing context: shell (DEALER) carries execute requests and their
// acknowledgments, control (DEALER) carries interrupts, iopub (SUB,
// subscribed to all topics) broadcasts every output and status event.
// Replies and events are correlated to requests solely by the request
// header id echoed in their parent header — an execution is complete
// when iopub reports the kernel idle for that id, regardless of what
// the shell channel said.
package kernel
