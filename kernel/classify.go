// classify.go maps one broadcast-channel message into caller-visible
// output events. Pure function: the engine calls it for every inbound
// iopub message and emits whatever comes back.
package kernel

import (
	"encoding/json"
	"strings"

	"github.com/dmora/kernelrun"
	"github.com/dmora/kernelrun/wire"
)

// widgetUpdateMarker flags a text/plain payload as a widget update.
// Kernel-side helper libraries embed it when pushing widget state
// through the display channel; everything carrying it is routed to the
// widget-directive layer instead of being shown as text.
const widgetUpdateMarker = "__widget_update__"

// imageFormats are the image mime types extracted from display payloads,
// checked in this order so multi-representation payloads produce a
// stable event sequence.
var imageFormats = []string{"image/png", "image/jpeg", "image/svg+xml", "image/gif"}

const (
	mimeTextPlain = "text/plain"
	mimeTextHTML  = "text/html"
)

// classify maps msg to zero or more output events for the execution
// identified by corr, and reports whether msg terminates that
// execution's broadcast consumption.
//
// Messages whose parent id does not match corr are ignored entirely —
// the correlation id is the only filter between interleaved executions
// on the shared broadcast channel. Dispatch is a closed switch over the
// known message types; anything else produces no events.
func classify(msg *wire.Message, corr string) (events []kernelrun.Event, terminal bool) {
	if !msg.AnswersTo(corr) {
		return nil, false
	}

	switch msgType(msg.Type()) {
	case msgStream:
		var c streamContent
		if err := json.Unmarshal(msg.Content, &c); err != nil {
			return nil, false
		}
		return []kernelrun.Event{{
			Type:    kernelrun.EventText,
			Text:    c.Text,
			Channel: c.Name,
		}}, false

	case msgDisplayData, msgExecuteResult:
		var c displayContent
		if err := json.Unmarshal(msg.Content, &c); err != nil {
			return nil, false
		}
		return classifyDisplay(c), false

	case msgError:
		var c errorContent
		if err := json.Unmarshal(msg.Content, &c); err != nil {
			return nil, false
		}
		message := c.Name
		if c.Value != "" {
			message += ": " + c.Value
		}
		return []kernelrun.Event{{
			Type:    kernelrun.EventError,
			Message: message,
			Trace:   c.Traceback,
		}}, false

	case msgStatus:
		var c statusContent
		if err := json.Unmarshal(msg.Content, &c); err != nil {
			return nil, false
		}
		return nil, c.ExecutionState == stateIdle

	default:
		return nil, false
	}
}

// classifyDisplay expands one display payload into events, one per
// recognized mime representation. A single message may carry several.
func classifyDisplay(c displayContent) []kernelrun.Event {
	var events []kernelrun.Event

	if raw, ok := c.Data[mimeTextPlain]; ok {
		if text, ok := decodeString(raw); ok {
			if strings.Contains(text, widgetUpdateMarker) {
				events = append(events, kernelrun.Event{
					Type:    kernelrun.EventWidget,
					Payload: text,
				})
			} else {
				events = append(events, kernelrun.Event{
					Type: kernelrun.EventText,
					Text: text,
				})
			}
		}
	}

	for _, format := range imageFormats {
		raw, ok := c.Data[format]
		if !ok {
			continue
		}
		data, ok := decodeString(raw)
		if !ok {
			continue
		}
		ev := kernelrun.Event{
			Type:   kernelrun.EventImage,
			Format: format,
			Data:   data,
		}
		if meta, ok := c.Metadata[format]; ok {
			ev.Metadata = meta
		}
		events = append(events, ev)
	}

	if raw, ok := c.Data[mimeTextHTML]; ok {
		if html, ok := decodeString(raw); ok {
			events = append(events, kernelrun.Event{
				Type:   kernelrun.EventRich,
				Format: mimeTextHTML,
				Data:   html,
			})
		}
	}

	return events
}

// decodeString unmarshals a JSON string value. Display payloads may also
// carry a mime value as a string array (line-split); join those.
func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, ""), true
	}
	return "", false
}
