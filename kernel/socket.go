package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmora/kernelrun/wire"
)

// inboundQueueSize buffers decoded messages between the socket read
// goroutine and its consumer, so a briefly slow consumer does not stall
// the transport.
const inboundQueueSize = 1024

// inbound is one receive outcome. err non-nil means this one frame set
// failed to decode (recoverable: drop it, keep reading). Transport death
// is signaled by the messages channel closing, with the cause available
// from channel.err.
type inbound struct {
	msg *wire.Message
	err error
}

// channel is the send/receive surface of one kernel socket. All receives
// flow through a single read goroutine per socket, so no two goroutines
// ever block in Recv on the same transport connection.
type channel interface {
	// send encodes and writes one message.
	send(msg *wire.Message) error

	// messages returns the inbound sequence. Closed when the transport
	// connection dies or the channel is closed.
	messages() <-chan inbound

	// close releases transport resources. Pending receives observe the
	// messages channel closing.
	close() error

	// err returns the terminal transport error after messages() closes,
	// or nil for a clean local close.
	err() error
}

// zmqChannel wraps one ZeroMQ socket as a channel.
type zmqChannel struct {
	name   string
	sock   zmq4.Socket
	signer wire.Signer
	log    *zap.Logger

	in   chan inbound
	done chan struct{}

	sendMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
	termErr   atomic.Value // stores error
}

var _ channel = (*zmqChannel)(nil)

func newZMQChannel(name string, sock zmq4.Socket, signer wire.Signer, log *zap.Logger) *zmqChannel {
	c := &zmqChannel{
		name:   name,
		sock:   sock,
		signer: signer,
		log:    log,
		in:     make(chan inbound, inboundQueueSize),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *zmqChannel) send(msg *wire.Message) error {
	frames, err := wire.Encode(msg, c.signer)
	if err != nil {
		return fmt.Errorf("kernel: encode on %s: %w", c.name, err)
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return fmt.Errorf("kernel: send on %s: %w", c.name, err)
	}
	return nil
}

func (c *zmqChannel) messages() <-chan inbound { return c.in }

func (c *zmqChannel) close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.sock.Close()
	})
	return c.closeErr
}

func (c *zmqChannel) err() error {
	if v := c.termErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// readLoop is the sole receiver on the socket. Decode failures are
// delivered as per-message errors; a transport failure stores the
// terminal error and closes the inbound channel.
func (c *zmqChannel) readLoop() {
	defer close(c.in)
	for {
		msg, err := c.sock.Recv()
		if err != nil {
			select {
			case <-c.done:
				// Local close; not a transport failure.
			default:
				c.termErr.Store(err)
			}
			return
		}
		m, derr := wire.Decode(msg.Frames, c.signer)
		if derr != nil {
			c.deliver(inbound{err: derr})
			continue
		}
		c.deliver(inbound{msg: m})
	}
}

// deliver pushes one inbound entry, giving up if the channel is closing.
func (c *zmqChannel) deliver(in inbound) {
	select {
	case c.in <- in:
	case <-c.done:
	}
}

// dialDealer connects a bidirectional (request/reply) channel.
func dialDealer(ctx context.Context, name, addr string, signer wire.Signer, log *zap.Logger) (*zmqChannel, error) {
	sock := zmq4.NewDealer(ctx, zmq4.WithID(zmq4.SocketIdentity(uuid.NewString())))
	if err := sock.Dial(addr); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("kernel: dial %s %s: %w", name, addr, err)
	}
	return newZMQChannel(name, sock, signer, log), nil
}

// dialSub connects the subscribe-only broadcast channel, subscribed to
// all topics.
func dialSub(ctx context.Context, name, addr string, signer wire.Signer, log *zap.Logger) (*zmqChannel, error) {
	sock := zmq4.NewSub(ctx)
	if err := sock.Dial(addr); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("kernel: dial %s %s: %w", name, addr, err)
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("kernel: subscribe %s: %w", name, err)
	}
	return newZMQChannel(name, sock, signer, log), nil
}

// recoverable reports whether a per-message receive error should be
// dropped and logged rather than treated as channel death.
func recoverable(err error) bool {
	return errors.Is(err, wire.ErrMalformed) || errors.Is(err, wire.ErrSignature)
}
