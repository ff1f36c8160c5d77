package kernelrun

// EventSink receives output events from a running execution, one at a
// time, in the order the kernel produced them.
//
// Emit is called from the engine's consumption goroutine — a slow Emit
// delays event delivery (and the detection of the terminal signal) for
// the current execution, but never reorders events and never interleaves
// events from different executions. Implementations that need to do slow
// work should hand the event off to their own goroutine or channel.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(Event)

// Emit calls f(ev).
func (f EventSinkFunc) Emit(ev Event) { f(ev) }

// ChanSink returns an EventSink that sends every event to ch.
// The send blocks — size the channel for the expected event volume,
// or drain it concurrently.
func ChanSink(ch chan<- Event) EventSink {
	return EventSinkFunc(func(ev Event) { ch <- ev })
}
