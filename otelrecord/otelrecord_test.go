package otelrecord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/arbiterhq/policy-go/internal/engine"
)

func TestLogFields(t *testing.T) {
	lr := plog.NewLogRecord()
	lr.Body().SetStr("hello")
	lr.SetSeverityText("INFO")
	lr.SetSeverityNumber(plog.SeverityNumberInfo)
	lr.SetTraceID(pcommon.TraceID([16]byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}))
	lr.SetSpanID(pcommon.SpanID([8]byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}))
	lr.SetEventName("exception")

	rec := NewLog(lr, pcommon.NewResource(), pcommon.NewInstrumentationScope())

	assert.Equal(t, "hello", string(rec.GetField(engine.FieldBody)))
	assert.Equal(t, "INFO", string(rec.GetField(engine.FieldSeverityText)))
	assert.Equal(t, "9", string(rec.GetField(engine.FieldSeverityNumber)))
	assert.Equal(t, "0123456789abcdef0123456789abcdef", string(rec.GetField(engine.FieldTraceID)))
	assert.Equal(t, "0123456789abcdef", string(rec.GetField(engine.FieldSpanID)))
	assert.Equal(t, "exception", string(rec.GetField(engine.FieldEventName)))
}

func TestLogAbsentFields(t *testing.T) {
	rec := NewLog(plog.NewLogRecord(), pcommon.NewResource(), pcommon.NewInstrumentationScope())

	assert.Nil(t, rec.GetField(engine.FieldBody))
	assert.Nil(t, rec.GetField(engine.FieldSeverityText))
	assert.Nil(t, rec.GetField(engine.FieldSeverityNumber))
	assert.Nil(t, rec.GetField(engine.FieldTraceID))
	assert.Nil(t, rec.GetField(engine.FieldSpanID))
}

func TestLogSetField(t *testing.T) {
	lr := plog.NewLogRecord()
	rec := NewLog(lr, pcommon.NewResource(), pcommon.NewInstrumentationScope())

	require.True(t, rec.SetField(engine.FieldBody, "updated"))
	assert.Equal(t, "updated", lr.Body().Str())

	require.True(t, rec.SetField(engine.FieldSeverityText, "WARN"))
	assert.Equal(t, "WARN", lr.SeverityText())

	require.True(t, rec.SetField(engine.FieldSeverityNumber, "13"))
	assert.Equal(t, plog.SeverityNumber(13), lr.SeverityNumber())

	assert.False(t, rec.SetField(engine.FieldTraceID, "00"), "identity fields are read-only")
}

func TestLogAttrScopes(t *testing.T) {
	lr := plog.NewLogRecord()
	lr.Attributes().PutStr("k", "record")

	res := pcommon.NewResource()
	res.Attributes().PutStr("k", "resource")
	scope := pcommon.NewInstrumentationScope()
	scope.Attributes().PutStr("k", "scope")

	rec := NewLog(lr, res, scope)

	for _, tt := range []struct {
		scope engine.AttrScope
		want  string
	}{
		{engine.AttrScopeRecord, "record"},
		{engine.AttrScopeResource, "resource"},
		{engine.AttrScopeScope, "scope"},
	} {
		v, ok := rec.GetAttr(tt.scope, []string{"k"})
		require.True(t, ok)
		assert.Equal(t, tt.want, string(v))
	}
}

func TestAttrFlatDottedKeysResolve(t *testing.T) {
	lr := plog.NewLogRecord()
	lr.Attributes().PutStr("user.email", "a@b.com")

	rec := NewLog(lr, pcommon.NewResource(), pcommon.NewInstrumentationScope())

	v, ok := rec.GetAttr(engine.AttrScopeRecord, []string{"user", "email"})
	require.True(t, ok)
	assert.Equal(t, "a@b.com", string(v))

	// Mutation updates the flat key in place rather than nesting.
	require.True(t, rec.SetAttr(engine.AttrScopeRecord, []string{"user", "email"}, "[REDACTED]"))
	got, ok := lr.Attributes().Get("user.email")
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", got.Str())

	require.True(t, rec.RemoveAttr(engine.AttrScopeRecord, []string{"user", "email"}))
	_, ok = lr.Attributes().Get("user.email")
	assert.False(t, ok)
}

func TestAttrNestedMapsResolve(t *testing.T) {
	lr := plog.NewLogRecord()
	lr.Attributes().PutEmptyMap("user").PutStr("email", "a@b.com")

	rec := NewLog(lr, pcommon.NewResource(), pcommon.NewInstrumentationScope())

	v, ok := rec.GetAttr(engine.AttrScopeRecord, []string{"user", "email"})
	require.True(t, ok)
	assert.Equal(t, "a@b.com", string(v))

	// Non-string scalars stringify for matching.
	lr.Attributes().PutInt("retries", 3)
	v, ok = rec.GetAttr(engine.AttrScopeRecord, []string{"retries"})
	require.True(t, ok)
	assert.Equal(t, "3", string(v))

	// A map at the final segment has no scalar view but counts as present.
	v, ok = rec.GetAttr(engine.AttrScopeRecord, []string{"user"})
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = rec.GetAttr(engine.AttrScopeRecord, []string{"user", "missing"})
	assert.False(t, ok)
}

func TestAttrSetCreatesIntermediateMaps(t *testing.T) {
	lr := plog.NewLogRecord()
	rec := NewLog(lr, pcommon.NewResource(), pcommon.NewInstrumentationScope())

	require.True(t, rec.SetAttr(engine.AttrScopeRecord, []string{"a", "b"}, "deep"))

	outer, ok := lr.Attributes().Get("a")
	require.True(t, ok)
	require.Equal(t, pcommon.ValueTypeMap, outer.Type())
	inner, ok := outer.Map().Get("b")
	require.True(t, ok)
	assert.Equal(t, "deep", inner.Str())

	// A scalar on the path blocks the write.
	lr.Attributes().PutStr("scalar", "x")
	assert.False(t, rec.SetAttr(engine.AttrScopeRecord, []string{"scalar", "nested"}, "y"))
}

func TestMetricFields(t *testing.T) {
	m := pmetric.NewMetric()
	m.SetName("http.requests")
	m.SetDescription("request count")
	m.SetUnit("1")
	m.SetEmptySum()

	rec := NewMetric(m, pcommon.NewResource(), pcommon.NewInstrumentationScope())

	assert.Equal(t, "http.requests", string(rec.GetField(engine.FieldMetricName)))
	assert.Equal(t, "request count", string(rec.GetField(engine.FieldMetricDescription)))
	assert.Equal(t, "1", string(rec.GetField(engine.FieldMetricUnit)))
	assert.Equal(t, "Sum", string(rec.GetField(engine.FieldMetricType)))

	require.True(t, rec.SetField(engine.FieldMetricName, "renamed"))
	assert.Equal(t, "renamed", m.Name())
	assert.False(t, rec.SetField(engine.FieldMetricType, "Gauge"))
}

func TestMetricDataPointAttrs(t *testing.T) {
	m := pmetric.NewMetric()
	m.SetName("queue.depth")
	gauge := m.SetEmptyGauge()
	dp1 := gauge.DataPoints().AppendEmpty()
	dp1.Attributes().PutStr("queue", "orders")
	dp2 := gauge.DataPoints().AppendEmpty()
	dp2.Attributes().PutStr("queue", "payments")

	rec := NewMetric(m, pcommon.NewResource(), pcommon.NewInstrumentationScope())

	// Reads consult the first datapoint carrying the attribute.
	v, ok := rec.GetAttr(engine.AttrScopeRecord, []string{"queue"})
	require.True(t, ok)
	assert.Equal(t, "orders", string(v))

	// Writes apply to every datapoint.
	require.True(t, rec.SetAttr(engine.AttrScopeRecord, []string{"env"}, "prod"))
	for i := 0; i < gauge.DataPoints().Len(); i++ {
		got, ok := gauge.DataPoints().At(i).Attributes().Get("env")
		require.True(t, ok)
		assert.Equal(t, "prod", got.Str())
	}

	// Removals too.
	require.True(t, rec.RemoveAttr(engine.AttrScopeRecord, []string{"queue"}))
	for i := 0; i < gauge.DataPoints().Len(); i++ {
		_, ok := gauge.DataPoints().At(i).Attributes().Get("queue")
		assert.False(t, ok)
	}
}

func TestSpanFields(t *testing.T) {
	span := ptrace.NewSpan()
	span.SetName("GET /users")
	span.SetTraceID(pcommon.TraceID([16]byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}))
	span.SetSpanID(pcommon.SpanID([8]byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}))
	span.SetKind(ptrace.SpanKindServer)
	span.Status().SetCode(ptrace.StatusCodeError)
	span.TraceState().FromRaw("ot=th:8")

	rec := NewSpan(span, pcommon.NewResource(), pcommon.NewInstrumentationScope())

	assert.Equal(t, "GET /users", string(rec.GetField(engine.FieldSpanName)))
	assert.Equal(t, "0123456789abcdef0123456789abcdef", string(rec.GetField(engine.FieldTraceID)))
	assert.Equal(t, "Server", string(rec.GetField(engine.FieldSpanKind)))
	assert.Equal(t, "Error", string(rec.GetField(engine.FieldSpanStatus)))
	assert.Equal(t, "ot=th:8", string(rec.GetField(engine.FieldTraceState)))

	// Root span: parent id is absent.
	assert.Nil(t, rec.GetField(engine.FieldParentSpanID))
}

func TestSpanTraceStateRoundTrip(t *testing.T) {
	span := ptrace.NewSpan()
	rec := NewSpan(span, pcommon.NewResource(), pcommon.NewInstrumentationScope())

	assert.Nil(t, rec.TraceState(), "empty tracestate reads as absent")

	rec.SetTraceState("ot=th:c000")
	assert.Equal(t, "ot=th:c000", span.TraceState().AsRaw())
	assert.Equal(t, "ot=th:c000", string(rec.TraceState()))
}
