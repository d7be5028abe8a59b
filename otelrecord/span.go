package otelrecord

import (
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/arbiterhq/policy-go/internal/engine"
)

// Span adapts a ptrace.Span plus its resource and instrumentation scope.
type Span struct {
	span  ptrace.Span
	attrs attrSet
}

// NewSpan wraps a span with its resource and scope.
func NewSpan(span ptrace.Span, resource pcommon.Resource, scope pcommon.InstrumentationScope) *Span {
	return &Span{
		span: span,
		attrs: attrSet{
			record:   span.Attributes(),
			resource: resource.Attributes(),
			scope:    scope.Attributes(),
		},
	}
}

// GetField implements policy.Record. Span kind and status code stringify via
// ptrace ("Internal", "Server", ... and "Unset", "Ok", "Error").
func (s *Span) GetField(f engine.Field) []byte {
	switch f {
	case engine.FieldSpanName:
		return emptyAsAbsent(s.span.Name())
	case engine.FieldTraceID:
		return traceIDBytes(s.span.TraceID())
	case engine.FieldSpanID:
		return spanIDBytes(s.span.SpanID())
	case engine.FieldParentSpanID:
		return spanIDBytes(s.span.ParentSpanID())
	case engine.FieldSpanKind:
		if s.span.Kind() == ptrace.SpanKindUnspecified {
			return nil
		}
		return []byte(s.span.Kind().String())
	case engine.FieldSpanStatus:
		return []byte(s.span.Status().Code().String())
	case engine.FieldTraceState:
		return emptyAsAbsent(s.span.TraceState().AsRaw())
	default:
		return nil
	}
}

// SetField implements policy.Record. Identity and structural fields are not
// writable.
func (s *Span) SetField(f engine.Field, value string) bool {
	switch f {
	case engine.FieldSpanName:
		s.span.SetName(value)
	case engine.FieldTraceState:
		s.span.TraceState().FromRaw(value)
	default:
		return false
	}
	return true
}

func (s *Span) GetAttr(scope engine.AttrScope, path []string) ([]byte, bool) {
	return s.attrs.getAttr(scope, path)
}

func (s *Span) SetAttr(scope engine.AttrScope, path []string, value string) bool {
	return s.attrs.setAttr(scope, path, value)
}

func (s *Span) RemoveAttr(scope engine.AttrScope, path []string) bool {
	return s.attrs.removeAttr(scope, path)
}

// TraceState implements policy.SpanRecord.
func (s *Span) TraceState() []byte {
	return emptyAsAbsent(s.span.TraceState().AsRaw())
}

// SetTraceState implements policy.SpanRecord.
func (s *Span) SetTraceState(value string) {
	s.span.TraceState().FromRaw(value)
}
