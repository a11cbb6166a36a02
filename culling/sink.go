package culling

import "context"

// Result is a visibility decision for one object.
type Result struct {
	Handle  Handle
	ID      string
	Visible bool
}

// ResultSink applies visibility decisions to the renderer. Apply is called once per object on
// its first classification and again on every change, never concurrently. An error leaves the
// object marked as unapplied so the decision is retried on the next pass.
//
// Apply must not call SetTickInterval or Close on the engine that invoked it.
type ResultSink interface {
	Apply(ctx context.Context, result Result) error
}

// SinkFunc adapts a function to a ResultSink.
type SinkFunc func(ctx context.Context, result Result) error

// Apply calls f.
func (f SinkFunc) Apply(ctx context.Context, result Result) error {
	return f(ctx, result)
}

var noopSink = SinkFunc(func(context.Context, Result) error { return nil })
