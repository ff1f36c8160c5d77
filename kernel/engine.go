//go:build !windows

package kernel

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dmora/kernelrun"
	"github.com/dmora/kernelrun/wire"
)

// submitQueueSize bounds how many executions can sit queued behind the
// draining one before Submit blocks on enqueue.
const submitQueueSize = 256

// execRequest is one queued execution. Resolved or rejected exactly
// once by the drain loop (or by disposal).
type execRequest struct {
	code string
	sink kernelrun.EventSink

	res  *kernelrun.ExecResult
	err  error
	done chan struct{}
}

func (r *execRequest) resolve(res *kernelrun.ExecResult) {
	r.res = res
	close(r.done)
}

func (r *execRequest) reject(err error) {
	r.err = err
	close(r.done)
}

// instance implements kernelrun.Kernel for one running kernel process.
//
// A single drain goroutine owns the queue: executions are processed
// strictly one at a time, in submission order. Within one execution the
// broadcast consumption loop and the shell send+acknowledge step run
// concurrently with each other and are joined before the request
// resolves.
type instance struct {
	conn     *conn
	proc     *kernelProc // nil in unit tests
	connFile string
	opts     Options
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	submitCh  chan *execRequest
	stop      chan struct{}
	drainDone chan struct{}

	intrMu sync.Mutex // serializes Interrupt's use of the control channel

	disposed    atomic.Bool
	disposeOnce sync.Once
}

var _ kernelrun.Kernel = (*instance)(nil)

// newInstance wires a ready connection and process into a kernel handle
// and starts the drain loop.
func newInstance(ctx context.Context, cancel context.CancelFunc, c *conn, proc *kernelProc, connFile string, opts Options) *instance {
	k := &instance{
		conn:      c,
		proc:      proc,
		connFile:  connFile,
		opts:      opts,
		log:       opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		submitCh:  make(chan *execRequest, submitQueueSize),
		stop:      make(chan struct{}),
		drainDone: make(chan struct{}),
	}
	go k.drainLoop()
	return k
}

// Submit queues code and blocks until the kernel reports idle for this
// request's correlation id.
func (k *instance) Submit(ctx context.Context, code string, sink kernelrun.EventSink) (*kernelrun.ExecResult, error) {
	if k.disposed.Load() {
		return nil, kernelrun.ErrDisposed
	}

	req := &execRequest{code: code, sink: sink, done: make(chan struct{})}
	select {
	case k.submitCh <- req:
	case <-k.stop:
		return nil, kernelrun.ErrDisposed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case <-req.done:
		return req.res, req.err
	case <-k.stop:
		// Disposal may have already resolved the request.
		select {
		case <-req.done:
			return req.res, req.err
		default:
		}
		return nil, kernelrun.ErrDisposed
	case <-ctx.Done():
		// The execution still runs to completion in queue order; only
		// the caller's wait is abandoned.
		return nil, ctx.Err()
	}
}

// drainLoop processes queued requests one at a time, FIFO. Exits on
// disposal, rejecting everything still queued.
func (k *instance) drainLoop() {
	defer close(k.drainDone)
	for {
		select {
		case <-k.stop:
			k.rejectQueued()
			return
		case req := <-k.submitCh:
			k.runRequest(req)
		}
	}
}

// rejectQueued drains the submit queue on disposal.
func (k *instance) rejectQueued() {
	for {
		select {
		case req := <-k.submitCh:
			req.reject(kernelrun.ErrDisposed)
		default:
			return
		}
	}
}

// runRequest drives one execution: a fresh correlation id, the iopub
// consumption loop, and the shell send+acknowledge, joined together.
// Completion is defined by the broadcast terminal signal; the shell
// acknowledgment only confirms the kernel accepted the job.
func (k *instance) runRequest(req *execRequest) {
	start := time.Now()

	msg, err := k.conn.session.newExecuteRequest(req.code)
	if err != nil {
		req.reject(fmt.Errorf("kernel: build execute_request: %w", err))
		return
	}
	corr := msg.Header.MsgID
	k.log.Debug("executing", zap.String("correlation_id", corr))

	var outputs []kernelrun.Event
	g, ctx := errgroup.WithContext(k.ctx)
	g.Go(func() error {
		return k.consumeBroadcast(ctx, corr, req.sink, &outputs)
	})
	g.Go(func() error {
		return k.sendAndAwaitAck(ctx, msg, corr)
	})

	if err := g.Wait(); err != nil {
		if k.disposed.Load() {
			err = kernelrun.ErrDisposed
		}
		req.reject(err)
		return
	}

	req.resolve(&kernelrun.ExecResult{
		Outputs:  outputs,
		Duration: time.Since(start),
	})
}

// consumeBroadcast routes iopub messages through the classifier until
// one correlated to corr reports terminal. Decode failures are logged
// and skipped; one bad frame set cannot wedge the loop.
func (k *instance) consumeBroadcast(ctx context.Context, corr string, sink kernelrun.EventSink, outputs *[]kernelrun.Event) error {
	for {
		select {
		case in, ok := <-k.conn.iopub.messages():
			if !ok {
				return channelDeath("iopub", k.conn.iopub)
			}
			if in.err != nil {
				if recoverable(in.err) {
					k.log.Warn("dropping undecodable broadcast message", zap.Error(in.err))
					continue
				}
				return in.err
			}
			events, terminal := classify(in.msg, corr)
			for _, ev := range events {
				if sink != nil {
					sink.Emit(ev)
				}
				*outputs = append(*outputs, ev)
			}
			if terminal {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sendAndAwaitAck writes the execute request on the shell channel and
// performs one receive to confirm the kernel acknowledged it.
func (k *instance) sendAndAwaitAck(ctx context.Context, msg *wire.Message, corr string) error {
	if err := k.conn.shell.send(msg); err != nil {
		return err
	}
	select {
	case in, ok := <-k.conn.shell.messages():
		if !ok {
			return channelDeath("shell", k.conn.shell)
		}
		if in.err != nil {
			return fmt.Errorf("%w: %v", kernelrun.ErrNoAcknowledgment, in.err)
		}
		if !in.msg.AnswersTo(corr) || msgType(in.msg.Type()) != msgExecuteReply {
			return fmt.Errorf("%w: got %s for parent %q", kernelrun.ErrNoAcknowledgment, in.msg.Type(), in.msg.ParentHeader.MsgID)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interrupt sends interrupt_request on the control channel and waits
// for the matching reply against the configured timeout. Best-effort:
// a timeout is reported to the caller and nothing else changes — the
// draining request still completes when the kernel goes idle.
func (k *instance) Interrupt(ctx context.Context) error {
	if k.disposed.Load() {
		return kernelrun.ErrDisposed
	}

	k.intrMu.Lock()
	defer k.intrMu.Unlock()

	req, err := k.conn.session.newRequest(msgInterruptRequest, interruptContent{})
	if err != nil {
		return fmt.Errorf("kernel: build interrupt_request: %w", err)
	}
	if err := k.conn.control.send(req); err != nil {
		return err
	}
	corr := req.Header.MsgID

	timer := time.NewTimer(k.opts.InterruptTimeout)
	defer timer.Stop()

	for {
		select {
		case in, ok := <-k.conn.control.messages():
			if !ok {
				return channelDeath("control", k.conn.control)
			}
			if in.err != nil {
				if recoverable(in.err) {
					k.log.Warn("dropping undecodable control message", zap.Error(in.err))
					continue
				}
				return in.err
			}
			if in.msg.AnswersTo(corr) && msgType(in.msg.Type()) == msgInterruptReply {
				return nil
			}
			// A stale reply from a previously timed-out interrupt.
			// Skip it rather than let it poison this one.
		case <-timer.C:
			return kernelrun.ErrInterruptTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Dispose terminates the kernel process, closes all channels, and
// rejects queued and in-flight requests. Idempotent; concurrent calls
// block until the first completes.
func (k *instance) Dispose(ctx context.Context) error {
	k.disposeOnce.Do(func() {
		k.disposed.Store(true)
		k.log.Debug("disposing kernel")

		close(k.stop)
		k.cancel()
		_ = k.conn.close()

		if k.proc != nil {
			k.proc.terminate(ctx, k.opts.GracePeriod)
		}
		if k.connFile != "" {
			_ = os.Remove(k.connFile)
		}
	})
	<-k.drainDone
	return nil
}

// Wait blocks until the kernel process exits naturally.
func (k *instance) Wait() error {
	if k.proc == nil {
		<-k.drainDone
		return nil
	}
	<-k.proc.exited
	if k.disposed.Load() {
		return kernelrun.ErrDisposed
	}
	return k.proc.exitErr
}

// channelDeath maps a closed inbound channel to the instance-fatal
// transport error.
func channelDeath(name string, c channel) error {
	if err := c.err(); err != nil {
		return fmt.Errorf("%w: %s: %v", kernelrun.ErrChannelClosed, name, err)
	}
	return fmt.Errorf("%w: %s", kernelrun.ErrChannelClosed, name)
}
