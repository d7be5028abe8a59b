package policy

import "github.com/arbiterhq/policy-go/internal/engine"

// FieldRef identifies a field of a telemetry record: either a well-known
// field or an attribute path in one of the attribute namespaces. Build refs
// with the constructor functions below; the zero FieldRef references nothing
// and is rejected at load.
type FieldRef = engine.FieldSelector

// AttrScope identifies the attribute namespace for attribute references.
type AttrScope = engine.AttrScope

// Attribute namespaces.
const (
	AttrScopeRecord   = engine.AttrScopeRecord
	AttrScopeResource = engine.AttrScopeResource
	AttrScopeScope    = engine.AttrScopeScope
)

// Attr references a record-level attribute (log attribute, datapoint
// attribute, or span attribute) by its path segments.
func Attr(path ...string) FieldRef {
	return FieldRef{AttrScope: engine.AttrScopeRecord, AttrPath: path}
}

// ResourceAttr references a resource attribute by its path segments.
func ResourceAttr(path ...string) FieldRef {
	return FieldRef{AttrScope: engine.AttrScopeResource, AttrPath: path}
}

// ScopeAttr references an instrumentation scope attribute by its path segments.
func ScopeAttr(path ...string) FieldRef {
	return FieldRef{AttrScope: engine.AttrScopeScope, AttrPath: path}
}

// Log field references.

// Body references the log body.
func Body() FieldRef { return FieldRef{Field: engine.FieldBody} }

// SeverityText references the log severity text (e.g. "DEBUG", "ERROR").
func SeverityText() FieldRef { return FieldRef{Field: engine.FieldSeverityText} }

// SeverityNumber references the log severity number, stringified.
func SeverityNumber() FieldRef { return FieldRef{Field: engine.FieldSeverityNumber} }

// EventName references the log or span event name.
func EventName() FieldRef { return FieldRef{Field: engine.FieldEventName} }

// TraceID references the hex trace id of a log record or span.
func TraceID() FieldRef { return FieldRef{Field: engine.FieldTraceID} }

// SpanID references the hex span id of a log record or span.
func SpanID() FieldRef { return FieldRef{Field: engine.FieldSpanID} }

// Metric field references.

// MetricName references the metric name.
func MetricName() FieldRef { return FieldRef{Field: engine.FieldMetricName} }

// MetricDescription references the metric description.
func MetricDescription() FieldRef { return FieldRef{Field: engine.FieldMetricDescription} }

// MetricUnit references the metric unit.
func MetricUnit() FieldRef { return FieldRef{Field: engine.FieldMetricUnit} }

// MetricType references the metric type (gauge, sum, histogram, ...).
func MetricType() FieldRef { return FieldRef{Field: engine.FieldMetricType} }

// Span field references.

// SpanName references the span name.
func SpanName() FieldRef { return FieldRef{Field: engine.FieldSpanName} }

// ParentSpanID references the hex parent span id. Absent on root spans.
func ParentSpanID() FieldRef { return FieldRef{Field: engine.FieldParentSpanID} }

// SpanKind references the span kind, stringified.
func SpanKind() FieldRef { return FieldRef{Field: engine.FieldSpanKind} }

// SpanStatus references the span status code, stringified.
func SpanStatus() FieldRef { return FieldRef{Field: engine.FieldSpanStatus} }

// TraceState references the raw W3C tracestate value of a span.
func TraceState() FieldRef { return FieldRef{Field: engine.FieldTraceState} }
