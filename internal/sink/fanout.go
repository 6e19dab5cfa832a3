package sink

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jsamuelsen/go-scope-hub/internal/event"
)

// FanOut delivers each event to several sinks in parallel.
type FanOut struct {
	sinks []Sink
}

// NewFanOut creates a fan-out over sinks. Disabled and nil sinks are skipped.
func NewFanOut(sinks ...Sink) *FanOut {
	enabled := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if IsEnabled(s) {
			enabled = append(enabled, s)
		}
	}

	return &FanOut{sinks: enabled}
}

// Name lists the member sinks.
func (f *FanOut) Name() string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}

	return "fanout(" + strings.Join(names, ",") + ")"
}

// Capture delivers ev to every sink and returns the first error in sink order.
func (f *FanOut) Capture(ctx context.Context, ev *event.Event) error {
	return f.each(func(s Sink) error {
		cp := *ev
		return s.Capture(ctx, &cp)
	})
}

// Flush flushes every sink.
func (f *FanOut) Flush(ctx context.Context) error {
	return f.each(func(s Sink) error { return s.Flush(ctx) })
}

// Close closes every sink and joins their errors.
func (f *FanOut) Close() error {
	errs := make([]error, len(f.sinks))
	for i, s := range f.sinks {
		errs[i] = s.Close()
	}

	return errors.Join(errs...)
}

func (f *FanOut) each(fn func(Sink) error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(f.sinks))

	for i, s := range f.sinks {
		wg.Add(1)
		go func(idx int, s Sink) {
			defer wg.Done()
			errs[idx] = fn(s)
		}(i, s)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}
