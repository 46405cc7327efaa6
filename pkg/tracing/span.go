// Package tracing provides lightweight in-process spans that propagate
// through a context. Spans form parent-child trees; the root span logs the
// whole tree through slog when it ends.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type contextKey struct{}

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration

	parent   *Span
	mu       sync.Mutex
	children []*Span
	attrs    []any
	err      error
}

// Start opens a span named name. It becomes a child of the span already in
// ctx, or a new root with traceID (a fresh uuid when empty) otherwise.
func Start(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := &Span{Name: name, StartTime: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		span.parent = parent
		span.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	} else {
		if traceID == "" {
			traceID = uuid.NewString()
		}
		span.TraceID = traceID
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// FromContext returns the current span in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// SetAttr attaches a key-value attribute to the span. A nil span is a no-op.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// RecordError marks the span as failed.
func (s *Span) RecordError(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// End records the duration. Ending a root span logs the tree at debug level,
// or at warn level when any span in it recorded an error.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
	if s.parent == nil {
		level := slog.LevelDebug
		if s.failed() {
			level = slog.LevelWarn
		}
		s.log(level, 0)
	}
}

// Children returns a snapshot of the direct child spans.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Err returns the error recorded on the span, if any.
func (s *Span) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Span) failed() bool {
	if s.Err() != nil {
		return true
	}
	for _, c := range s.Children() {
		if c.failed() {
			return true
		}
	}
	return false
}

func (s *Span) log(level slog.Level, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", float64(s.Duration.Microseconds()) / 1000,
		"depth", depth,
	}
	attrs = append(attrs, s.attrs...)
	if s.err != nil {
		attrs = append(attrs, "error", s.err)
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	slog.Log(context.Background(), level, "span", attrs...)
	for _, child := range children {
		child.log(level, depth+1)
	}
}
