package kernelrun

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecResult_Errored(t *testing.T) {
	clean := &ExecResult{Outputs: []Event{
		{Type: EventText, Text: "hello\n", Channel: "stdout"},
		{Type: EventImage, Format: "image/png", Data: "iVBORw0..."},
	}}
	assert.False(t, clean.Errored())

	failed := &ExecResult{Outputs: []Event{
		{Type: EventText, Text: "partial\n", Channel: "stdout"},
		{Type: EventError, Message: "ValueError: bad input"},
	}}
	assert.True(t, failed.Errored())

	empty := &ExecResult{}
	assert.False(t, empty.Errored())
}

func TestEventSinkFunc(t *testing.T) {
	var got []Event
	sink := EventSinkFunc(func(ev Event) { got = append(got, ev) })

	sink.Emit(Event{Type: EventText, Text: "a"})
	sink.Emit(Event{Type: EventError, Message: "boom"})

	assert.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Text)
	assert.Equal(t, "boom", got[1].Message)
}

func TestChanSink(t *testing.T) {
	ch := make(chan Event, 2)
	sink := ChanSink(ch)

	sink.Emit(Event{Type: EventText, Text: "first"})
	sink.Emit(Event{Type: EventText, Text: "second"})
	close(ch)

	var got []Event
	for ev := range ch {
		got = append(got, ev)
	}
	assert.Equal(t, []Event{
		{Type: EventText, Text: "first"},
		{Type: EventText, Text: "second"},
	}, got)
}
