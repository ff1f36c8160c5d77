package kernelrun

import (
	"errors"
	"strconv"
)

// Sentinel errors for kernel operations.
var (
	// ErrDisposed indicates the kernel was disposed while the request
	// was queued or in flight. Callers must start a new instance —
	// there is no in-place recovery.
	ErrDisposed = errors.New("kernelrun: kernel disposed")

	// ErrHandshakeTimeout indicates the kernel did not answer the
	// introspection handshake within the configured window.
	ErrHandshakeTimeout = errors.New("kernelrun: handshake timed out")

	// ErrProcessExited indicates the kernel process exited before the
	// handshake completed.
	ErrProcessExited = errors.New("kernelrun: kernel process exited during startup")

	// ErrNoAcknowledgment indicates the kernel never acknowledged an
	// execute request on the shell channel. Fatal to that one request
	// only — subsequent submissions still run.
	ErrNoAcknowledgment = errors.New("kernelrun: execute request not acknowledged")

	// ErrInterruptTimeout indicates the kernel did not reply to an
	// interrupt request in time. Non-fatal: the running execution
	// still completes normally.
	ErrInterruptTimeout = errors.New("kernelrun: interrupt timed out")

	// ErrChannelClosed indicates a receive on a channel whose
	// transport connection has been closed. Fatal to the instance.
	ErrChannelClosed = errors.New("kernelrun: channel closed")
)

// ExitError represents a kernel process that exited with a non-zero
// status. Wraps the underlying error to preserve the error chain —
// consumers can errors.As to *exec.ExitError for OS-level detail.
//
// Code semantics: positive = exit status, negative (-1) = signal-killed.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "kernelrun: exit status " + strconv.Itoa(e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode extracts the exit code from an error chain containing
// *ExitError. Returns (0, false) if the chain has none.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
