package engine

// Record is the engine's view of one telemetry record. Implementations
// bridge a concrete record representation (in-memory structs, pdata, ...)
// to the field selectors used by matchers and transforms.
//
// Read accessors return a stringified view of scalar values; absent fields
// and paths that index through a non-map value return nil / false. Write
// accessors report false when the selector cannot be applied to the record,
// which the engine surfaces as a transform diagnostic.
type Record interface {
	// GetField returns the stringified value of a well-known field, or nil
	// when the field is absent or does not apply to this record variant.
	GetField(f Field) []byte

	// GetAttr resolves an attribute path in the given namespace. It reports
	// false when any segment is missing or a non-map value is indexed.
	GetAttr(scope AttrScope, path []string) ([]byte, bool)

	// SetField overwrites a well-known field with a string value.
	SetField(f Field, value string) bool

	// SetAttr sets an attribute, creating intermediate maps as needed.
	SetAttr(scope AttrScope, path []string, value string) bool

	// RemoveAttr deletes an attribute. Removing an absent attribute is a
	// successful no-op.
	RemoveAttr(scope AttrScope, path []string) bool
}

// LogRecord is a log record under evaluation.
type LogRecord interface {
	Record
}

// MetricRecord is a metric under evaluation.
type MetricRecord interface {
	Record
}

// SpanRecord is a span under evaluation. Trace sampling additionally reads
// and writes the W3C tracestate header.
type SpanRecord interface {
	Record

	// TraceState returns the raw W3C tracestate value, or nil when unset.
	TraceState() []byte

	// SetTraceState replaces the raw W3C tracestate value.
	SetTraceState(value string)
}
