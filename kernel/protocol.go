// protocol.go defines the closed set of message types this client speaks
// and the content payloads it reads and writes. Unknown types never error:
// the classifier maps them to zero events and the engine ignores them.
package kernel

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dmora/kernelrun/wire"
)

// protocolVersion is the wire protocol revision stamped on every request.
const protocolVersion = "5.3"

// msgType enumerates the message types the client understands. Dispatch
// on inbound messages is a closed switch over these values, so new or
// unknown types fail safe (no events) rather than erroring.
type msgType string

const (
	msgExecuteRequest    msgType = "execute_request"
	msgExecuteReply      msgType = "execute_reply"
	msgKernelInfoRequest msgType = "kernel_info_request"
	msgKernelInfoReply   msgType = "kernel_info_reply"
	msgInterruptRequest  msgType = "interrupt_request"
	msgInterruptReply    msgType = "interrupt_reply"
	msgStream            msgType = "stream"
	msgDisplayData       msgType = "display_data"
	msgExecuteResult     msgType = "execute_result"
	msgError             msgType = "error"
	msgStatus            msgType = "status"
)

// executeRequestContent is the payload of an execute_request. The flags
// are the standard non-interactive execution set: history on, stdin off.
type executeRequestContent struct {
	Code            string         `json:"code"`
	Silent          bool           `json:"silent"`
	StoreHistory    bool           `json:"store_history"`
	UserExpressions map[string]any `json:"user_expressions"`
	AllowStdin      bool           `json:"allow_stdin"`
	StopOnError     bool           `json:"stop_on_error"`
}

// streamContent is the payload of a stream message.
type streamContent struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// displayContent is the payload of display_data and execute_result.
// Data maps mime type to representation; Metadata carries per-mime
// sizing hints.
type displayContent struct {
	Data     map[string]json.RawMessage `json:"data"`
	Metadata map[string]map[string]any  `json:"metadata"`
}

// errorContent is the payload of an error message.
type errorContent struct {
	Name      string   `json:"ename"`
	Value     string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

// statusContent is the payload of a status message.
type statusContent struct {
	ExecutionState string `json:"execution_state"`
}

// stateIdle is the execution_state value that terminates an execution's
// broadcast consumption once correlated to it.
const stateIdle = "idle"

// interruptContent is the (empty) payload of an interrupt_request.
type interruptContent struct{}

// session identifies one client connection; stamped on every request
// header so the kernel can distinguish clients.
type session struct {
	id       string
	username string
}

func newSession() session {
	return session{id: uuid.NewString(), username: "kernelrun"}
}

// newRequest builds a request message with a fresh correlation id.
// The returned message's Header.MsgID is the id replies will echo in
// their parent header.
func (s session) newRequest(t msgType, content any) (*wire.Message, error) {
	contentB, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return &wire.Message{
		Header: wire.Header{
			MsgID:    uuid.NewString(),
			Username: s.username,
			Session:  s.id,
			Date:     time.Now().UTC().Format(time.RFC3339),
			MsgType:  string(t),
			Version:  protocolVersion,
		},
		Content: contentB,
	}, nil
}

// newExecuteRequest builds an execute_request for code.
func (s session) newExecuteRequest(code string) (*wire.Message, error) {
	return s.newRequest(msgExecuteRequest, executeRequestContent{
		Code:            code,
		StoreHistory:    true,
		UserExpressions: map[string]any{},
	})
}
