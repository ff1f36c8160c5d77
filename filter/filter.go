// Package filter provides composable middleware for kernelrun event
// streams. Consumers wrap an event channel (e.g. one fed by
// kernelrun.ChanSink) with these functions to select the event
// granularity they need.
package filter

import (
	"context"

	"github.com/dmora/kernelrun"
)

// Filter returns a channel that only passes events of the given types.
// Spawns a goroutine that exits when ctx is cancelled or ch is closed.
// The returned channel is closed when the goroutine exits.
func Filter(ctx context.Context, ch <-chan kernelrun.Event, types ...kernelrun.EventType) <-chan kernelrun.Event {
	allowed := make(map[kernelrun.EventType]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return pipe(ctx, ch, func(ev kernelrun.Event) bool {
		_, ok := allowed[ev.Type]
		return ok
	})
}

// TextOnly returns a channel that passes only Text events, dropping
// images, rich payloads, widgets, and errors.
func TextOnly(ctx context.Context, ch <-chan kernelrun.Event) <-chan kernelrun.Event {
	return pipe(ctx, ch, func(ev kernelrun.Event) bool {
		return ev.Type == kernelrun.EventText
	})
}

// Displayable returns a channel that drops Widget events, passing
// everything a plain terminal or log consumer can render directly.
func Displayable(ctx context.Context, ch <-chan kernelrun.Event) <-chan kernelrun.Event {
	return pipe(ctx, ch, func(ev kernelrun.Event) bool {
		return ev.Type != kernelrun.EventWidget
	})
}

// ErrorsOnly returns a channel that passes only Error events.
func ErrorsOnly(ctx context.Context, ch <-chan kernelrun.Event) <-chan kernelrun.Event {
	return pipe(ctx, ch, func(ev kernelrun.Event) bool {
		return ev.Type == kernelrun.EventError
	})
}

// pipe spawns a goroutine that reads from ch, passes events matching
// the predicate to the returned channel, and closes it when ch closes
// or ctx is cancelled. Callers must either drain the returned channel
// or cancel ctx to avoid goroutine leaks. Events accepted by the
// predicate may be silently dropped if ctx is cancelled mid-send.
func pipe(ctx context.Context, ch <-chan kernelrun.Event, accept func(kernelrun.Event) bool) <-chan kernelrun.Event {
	out := make(chan kernelrun.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if accept(ev) && !trySend(ctx, out, ev) {
					return
				}
			}
		}
	}()
	return out
}

// trySend sends ev on out, returning true on success.
// Returns false if ctx is cancelled before the send completes.
func trySend(ctx context.Context, out chan<- kernelrun.Event, ev kernelrun.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
