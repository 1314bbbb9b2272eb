// Package audit records security-relevant events: authentication
// outcomes, authorization denials, and membership mutations.
package audit

import "context"

// Logger is the audit sink interface. Implementations must tolerate
// being called from request paths: logging failures are reported but
// must never block or fail the request being audited.
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// Searcher is implemented by sinks that support querying recorded
// events. DBLogger implements it; NopLogger does not.
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter) ([]Event, error)
}

// NopLogger discards all events. Used when auditing is disabled and
// in tests.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }
