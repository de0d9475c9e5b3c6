// Package tracing records hierarchical observability spans for each cycle.
// Callers never branch on whether tracing is configured: the no-op variant
// satisfies the same interface.
package tracing

// Observation kinds, mirroring how stages are categorized upstream.
const (
	KindSpan       = "span"
	KindTool       = "tool"
	KindGeneration = "generation"
)

// Span is one observation in a trace. Children are opened from their parent
// so the backend sees the hierarchy.
type Span interface {
	StartSpan(name, kind string, input any) Span
	Update(output any)
	SetMetadata(md map[string]any)
	End()
}

// Tracer opens the root span of a cycle and flushes buffered spans once the
// cycle commits.
type Tracer interface {
	StartTrace(name string, input any) Span
	Flush()
}

// NoopTracer is the zero-configuration default.
type NoopTracer struct{}

func (NoopTracer) StartTrace(string, any) Span { return noopSpan{} }
func (NoopTracer) Flush()                      {}

type noopSpan struct{}

func (noopSpan) StartSpan(string, string, any) Span { return noopSpan{} }
func (noopSpan) Update(any)                         {}
func (noopSpan) SetMetadata(map[string]any)         {}
func (noopSpan) End()                               {}
