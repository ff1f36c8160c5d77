package kernel

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dmora/kernelrun"
	"github.com/dmora/kernelrun/wire"
)

// Ports are the three channel ports of one kernel instance.
type Ports struct {
	Control int `json:"control_port"`
	Shell   int `json:"shell_port"`
	IOPub   int `json:"iopub_port"`
}

// conn owns the three channel sockets of one kernel instance plus the
// shared signing context. The shell channel carries execute requests and
// their acknowledgments, control carries interrupts, and iopub is the
// broadcast channel on which the kernel emits all output and status
// events for every execution.
type conn struct {
	control channel
	shell   channel
	iopub   channel

	session session
	log     *zap.Logger
}

// dialConn opens the three channels against 127.0.0.1 at the given ports.
func dialConn(ctx context.Context, ports Ports, signer wire.Signer, log *zap.Logger) (*conn, error) {
	addr := func(port int) string { return fmt.Sprintf("tcp://127.0.0.1:%d", port) }

	control, err := dialDealer(ctx, "control", addr(ports.Control), signer, log)
	if err != nil {
		return nil, err
	}
	shell, err := dialDealer(ctx, "shell", addr(ports.Shell), signer, log)
	if err != nil {
		_ = control.close()
		return nil, err
	}
	iopub, err := dialSub(ctx, "iopub", addr(ports.IOPub), signer, log)
	if err != nil {
		_ = control.close()
		_ = shell.close()
		return nil, err
	}

	return &conn{
		control: control,
		shell:   shell,
		iopub:   iopub,
		session: newSession(),
		log:     log,
	}, nil
}

// close releases all three channels.
func (c *conn) close() error {
	errControl := c.control.close()
	errShell := c.shell.close()
	errIOPub := c.iopub.close()
	if errControl != nil {
		return errControl
	}
	if errShell != nil {
		return errShell
	}
	return errIOPub
}

// awaitReady performs the startup handshake: send a kernel_info_request
// on the shell channel, then read shell replies until one arrives whose
// parent id matches and whose type is kernel_info_reply. The wait races
// the timeout and kernel process exit; whichever resolves first wins.
//
// procExit must be closed when the kernel process exits. Exit and
// timeout fail the attempt with distinct error kinds.
func (c *conn) awaitReady(ctx context.Context, timeout time.Duration, procExit <-chan struct{}) error {
	req, err := c.session.newRequest(msgKernelInfoRequest, struct{}{})
	if err != nil {
		return fmt.Errorf("kernel: build kernel_info_request: %w", err)
	}
	if err := c.shell.send(req); err != nil {
		return err
	}
	corr := req.Header.MsgID

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case in, ok := <-c.shell.messages():
			if !ok {
				if err := c.shell.err(); err != nil {
					return fmt.Errorf("%w: shell: %v", kernelrun.ErrChannelClosed, err)
				}
				return kernelrun.ErrChannelClosed
			}
			if in.err != nil {
				if recoverable(in.err) {
					c.log.Warn("dropping undecodable shell message during handshake", zap.Error(in.err))
					continue
				}
				return in.err
			}
			if in.msg.AnswersTo(corr) && msgType(in.msg.Type()) == msgKernelInfoReply {
				c.log.Debug("kernel handshake complete", zap.String("session", c.session.id))
				return nil
			}
			// A reply to someone else's request, or an unexpected
			// type. Keep reading until ours shows up.

		case <-procExit:
			return kernelrun.ErrProcessExited

		case <-timer.C:
			return kernelrun.ErrHandshakeTimeout

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
