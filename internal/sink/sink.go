// Package sink provides the destinations that receive captured events.
package sink

import (
	"context"

	"github.com/jsamuelsen/go-scope-hub/internal/event"
)

// Sink receives events routed from a scope stack entry. Sinks are compared
// by identity only.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Capture delivers ev. Implementations must not retain ev after returning.
	Capture(ctx context.Context, ev *event.Event) error

	// Flush blocks until buffered events are delivered or ctx is done.
	Flush(ctx context.Context) error

	// Close releases resources. Capture after Close returns an error.
	Close() error
}

type disabledSink struct{}

func (disabledSink) Name() string { return "disabled" }

func (disabledSink) Capture(context.Context, *event.Event) error {
	return event.NewDroppedError("sink disabled")
}

func (disabledSink) Flush(context.Context) error { return nil }

func (disabledSink) Close() error { return nil }

// Disabled drops every event. It is bound whenever no sink is supplied.
var Disabled Sink = disabledSink{}

// IsEnabled reports whether s delivers events.
func IsEnabled(s Sink) bool {
	return s != nil && s != Disabled
}
