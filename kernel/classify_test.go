package kernel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmora/kernelrun"
	"github.com/dmora/kernelrun/wire"
)

const corr = "corr-1"

func TestClassify_MismatchedParentIgnored(t *testing.T) {
	msg := streamMsg(t, "someone-else", "stdout", "hello")

	events, terminal := classify(msg, corr)

	assert.Empty(t, events)
	assert.False(t, terminal)
}

func TestClassify_Stream(t *testing.T) {
	msg := streamMsg(t, corr, "stderr", "oops\n")

	events, terminal := classify(msg, corr)

	require.Len(t, events, 1)
	assert.Equal(t, kernelrun.EventText, events[0].Type)
	assert.Equal(t, "oops\n", events[0].Text)
	assert.Equal(t, "stderr", events[0].Channel)
	assert.False(t, terminal)
}

func TestClassify_StatusIdleIsTerminal(t *testing.T) {
	_, terminal := classify(statusMsg(t, corr, "idle"), corr)
	assert.True(t, terminal)
}

func TestClassify_StatusBusyNotTerminal(t *testing.T) {
	events, terminal := classify(statusMsg(t, corr, "busy"), corr)
	assert.Empty(t, events)
	assert.False(t, terminal)
}

func TestClassify_StatusIdleForOtherRequestNotTerminal(t *testing.T) {
	_, terminal := classify(statusMsg(t, "other", "idle"), corr)
	assert.False(t, terminal)
}

func TestClassify_Error(t *testing.T) {
	msg := replyMsg(t, msgError, corr, errorContent{
		Name:      "ZeroDivisionError",
		Value:     "division by zero",
		Traceback: []string{"line 1", "line 2"},
	})

	events, terminal := classify(msg, corr)

	require.Len(t, events, 1)
	assert.Equal(t, kernelrun.EventError, events[0].Type)
	assert.Equal(t, "ZeroDivisionError: division by zero", events[0].Message)
	assert.Equal(t, []string{"line 1", "line 2"}, events[0].Trace)
	assert.False(t, terminal)
}

func TestClassify_ExecuteResultText(t *testing.T) {
	msg := replyMsg(t, msgExecuteResult, corr, map[string]any{
		"data": map[string]any{"text/plain": "42"},
	})

	events, terminal := classify(msg, corr)

	require.Len(t, events, 1)
	assert.Equal(t, kernelrun.EventText, events[0].Type)
	assert.Equal(t, "42", events[0].Text)
	assert.False(t, terminal)
}

func TestClassify_DisplayDataWidgetMarker(t *testing.T) {
	payload := widgetUpdateMarker + `{"command":"update"}`
	msg := replyMsg(t, msgDisplayData, corr, map[string]any{
		"data": map[string]any{"text/plain": payload},
	})

	events, _ := classify(msg, corr)

	require.Len(t, events, 1)
	assert.Equal(t, kernelrun.EventWidget, events[0].Type)
	assert.Equal(t, payload, events[0].Payload)
}

func TestClassify_DisplayDataMultipleFormats(t *testing.T) {
	msg := replyMsg(t, msgDisplayData, corr, map[string]any{
		"data": map[string]any{
			"text/plain": "<Figure>",
			"image/png":  "aWJiZXJpc2g=",
			"text/html":  "<table></table>",
		},
		"metadata": map[string]any{
			"image/png": map[string]any{"width": 640, "height": 480},
		},
	})

	events, terminal := classify(msg, corr)

	require.Len(t, events, 3)
	assert.Equal(t, kernelrun.EventText, events[0].Type)
	assert.Equal(t, kernelrun.EventImage, events[1].Type)
	assert.Equal(t, "image/png", events[1].Format)
	assert.Equal(t, "aWJiZXJpc2g=", events[1].Data)
	assert.Equal(t, float64(640), events[1].Metadata["width"])
	assert.Equal(t, kernelrun.EventRich, events[2].Type)
	assert.Equal(t, "<table></table>", events[2].Data)
	assert.False(t, terminal)
}

func TestClassify_DisplayDataMultipleImageFormats(t *testing.T) {
	msg := replyMsg(t, msgDisplayData, corr, map[string]any{
		"data": map[string]any{
			"image/png":     "cG5n",
			"image/svg+xml": "<svg/>",
		},
	})

	events, _ := classify(msg, corr)

	require.Len(t, events, 2)
	assert.Equal(t, "image/png", events[0].Format)
	assert.Equal(t, "image/svg+xml", events[1].Format)
}

func TestClassify_DisplayDataLineSplitText(t *testing.T) {
	msg := replyMsg(t, msgDisplayData, corr, map[string]any{
		"data": map[string]any{"text/plain": []string{"line one\n", "line two"}},
	})

	events, _ := classify(msg, corr)

	require.Len(t, events, 1)
	assert.Equal(t, "line one\nline two", events[0].Text)
}

func TestClassify_UnknownTypeProducesNothing(t *testing.T) {
	msg := replyMsg(t, msgType("comm_msg"), corr, map[string]any{"data": "x"})

	events, terminal := classify(msg, corr)

	assert.Empty(t, events)
	assert.False(t, terminal)
}

func TestClassify_ExecuteReplyOnBroadcastIgnored(t *testing.T) {
	// Reply types never reach iopub in practice; the closed dispatch
	// set means they are harmless if they ever do.
	msg := replyMsg(t, msgExecuteReply, corr, map[string]any{"status": "ok"})

	events, terminal := classify(msg, corr)

	assert.Empty(t, events)
	assert.False(t, terminal)
}

func TestClassify_MalformedContentProducesNothing(t *testing.T) {
	msg := &wire.Message{
		Header:       wire.Header{MsgID: "m", MsgType: string(msgStream)},
		ParentHeader: wire.Header{MsgID: corr},
		Content:      json.RawMessage(`[1,2,3]`),
	}

	events, terminal := classify(msg, corr)

	assert.Empty(t, events)
	assert.False(t, terminal)
}
