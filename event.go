package kernelrun

import "time"

// EventType identifies the kind of output event from a kernel execution.
type EventType string

const (
	// EventText is plain text output (a print, or a value's text repr).
	EventText EventType = "text"

	// EventImage is an image produced by the execution (plot, figure).
	EventImage EventType = "image"

	// EventRich is a rich display payload (currently HTML).
	EventRich EventType = "rich"

	// EventError is an exception raised inside the kernel. A normal,
	// non-fatal outcome of running user code — the execution still
	// completes when the kernel returns to idle.
	EventError EventType = "error"

	// EventWidget is a widget-update payload emitted through the
	// display channel by kernel-side helper libraries.
	EventWidget EventType = "widget"
)

// Event is a single output event from a running execution.
//
// Event is a tagged union: Type selects which fields are meaningful.
// The zero values of the unused fields are left in place rather than
// split across per-type structs so events stay cheap to copy and
// straightforward to log.
type Event struct {
	// Type identifies the kind of event.
	Type EventType `json:"type"`

	// Text is the text content (for Text events).
	Text string `json:"text,omitempty"`

	// Channel names the originating stream for Text events
	// ("stdout" or "stderr").
	Channel string `json:"channel,omitempty"`

	// Format is the mime type for Image and Rich events
	// (e.g. "image/png", "text/html").
	Format string `json:"format,omitempty"`

	// Data is the payload for Image (base64) and Rich events.
	Data string `json:"data,omitempty"`

	// Metadata carries per-format sizing hints for Image events
	// (width/height), as provided by the kernel.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Message is the exception summary for Error events.
	Message string `json:"message,omitempty"`

	// Trace holds the traceback lines for Error events.
	Trace []string `json:"trace,omitempty"`

	// Payload is the raw widget-update payload for Widget events.
	Payload string `json:"payload,omitempty"`
}

// ExecResult is the final outcome of one execution: every event the
// broadcast channel produced for it, in arrival order, plus the
// wall-clock time from submission dequeue to the kernel's idle signal.
type ExecResult struct {
	Outputs  []Event
	Duration time.Duration
}

// Errored reports whether the execution surfaced a kernel-side exception.
func (r *ExecResult) Errored() bool {
	for _, ev := range r.Outputs {
		if ev.Type == EventError {
			return true
		}
	}
	return false
}
