package kernel

import (
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/dmora/kernelrun/wire"
)

// fakeChannel is an in-memory channel for driving the engine and
// connection without a transport. Tests script inbound traffic by
// delivering messages, optionally reacting to sends via onSend.
type fakeChannel struct {
	in chan inbound

	mu      sync.Mutex
	sent    []*wire.Message
	sendErr error
	onSend  func(*wire.Message)

	termErr   error
	closeOnce sync.Once
}

var _ channel = (*fakeChannel)(nil)

func newFakeChannel() *fakeChannel {
	return &fakeChannel{in: make(chan inbound, 64)}
}

func (c *fakeChannel) send(msg *wire.Message) error {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	sendErr := c.sendErr
	onSend := c.onSend
	c.mu.Unlock()
	if sendErr != nil {
		return sendErr
	}
	if onSend != nil {
		onSend(msg)
	}
	return nil
}

func (c *fakeChannel) setOnSend(fn func(*wire.Message)) {
	c.mu.Lock()
	c.onSend = fn
	c.mu.Unlock()
}

func (c *fakeChannel) messages() <-chan inbound { return c.in }

func (c *fakeChannel) close() error {
	c.closeOnce.Do(func() { close(c.in) })
	return nil
}

func (c *fakeChannel) err() error { return c.termErr }

func (c *fakeChannel) deliver(msg *wire.Message) { c.in <- inbound{msg: msg} }

func (c *fakeChannel) deliverErr(err error) { c.in <- inbound{err: err} }

func (c *fakeChannel) sentMessages() []*wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*wire.Message(nil), c.sent...)
}

// fakeConn bundles three fake channels into a conn.
type fakeConn struct {
	control *fakeChannel
	shell   *fakeChannel
	iopub   *fakeChannel
	conn    *conn
}

func newFakeConn() *fakeConn {
	f := &fakeConn{
		control: newFakeChannel(),
		shell:   newFakeChannel(),
		iopub:   newFakeChannel(),
	}
	f.conn = &conn{
		control: f.control,
		shell:   f.shell,
		iopub:   f.iopub,
		session: newSession(),
		log:     zap.NewNop(),
	}
	return f
}

// --- Inbound message builders ---

func mustContent(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal content: %v", err)
	}
	return b
}

func replyMsg(t *testing.T, mt msgType, parent string, content any) *wire.Message {
	t.Helper()
	return &wire.Message{
		Header: wire.Header{
			MsgID:   "reply-" + string(mt),
			Session: "kernel-session",
			MsgType: string(mt),
			Version: protocolVersion,
		},
		ParentHeader: wire.Header{MsgID: parent},
		Content:      mustContent(t, content),
	}
}

func statusMsg(t *testing.T, parent, state string) *wire.Message {
	t.Helper()
	return replyMsg(t, msgStatus, parent, statusContent{ExecutionState: state})
}

func streamMsg(t *testing.T, parent, name, text string) *wire.Message {
	t.Helper()
	return replyMsg(t, msgStream, parent, streamContent{Name: name, Text: text})
}
