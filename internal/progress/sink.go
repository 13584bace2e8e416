package progress

import "context"

// Sink consumes progress events. Implementations must tolerate repeated
// calls and may be invoked from concurrent pipeline stages.
type Sink interface {
	Consume(ctx context.Context, evt Event)
}

// Emitter publishes individual events; Fanout satisfies this interface so
// the pipeline stays agnostic about where milestones end up.
type Emitter interface {
	Emit(ctx context.Context, evt Event)
}

// Fanout delivers each event to every sink, synchronously and in order.
// Per-job event volume is a few dozen lines, so there is no buffering layer.
type Fanout struct {
	sinks []Sink
}

// NewFanout builds a Fanout over the provided sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: append([]Sink(nil), sinks...)}
}

// Emit delivers evt to all sinks. Invalid events are dropped.
func (f *Fanout) Emit(ctx context.Context, evt Event) {
	if f == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		return
	}
	for _, s := range f.sinks {
		if s == nil {
			continue
		}
		s.Consume(ctx, evt)
	}
}
