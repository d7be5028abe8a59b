// Package otelrecord adapts OpenTelemetry pdata telemetry to the policy
// engine's record interfaces. Adapters mutate the underlying pdata in place,
// so transforms applied by the engine are visible to the caller's pipeline.
package otelrecord

import (
	"encoding/hex"
	"strconv"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/plog"

	"github.com/arbiterhq/policy-go/internal/engine"
)

// Log adapts a plog.LogRecord plus its resource and instrumentation scope.
type Log struct {
	rec   plog.LogRecord
	attrs attrSet
}

// NewLog wraps a log record with its resource and scope. pdata values are
// references, so the adapter is cheap to construct per record.
func NewLog(rec plog.LogRecord, resource pcommon.Resource, scope pcommon.InstrumentationScope) *Log {
	return &Log{
		rec: rec,
		attrs: attrSet{
			record:   rec.Attributes(),
			resource: resource.Attributes(),
			scope:    scope.Attributes(),
		},
	}
}

// GetField implements policy.Record.
func (l *Log) GetField(f engine.Field) []byte {
	switch f {
	case engine.FieldBody:
		if l.rec.Body().Type() == pcommon.ValueTypeEmpty {
			return nil
		}
		return []byte(l.rec.Body().AsString())
	case engine.FieldSeverityText:
		return emptyAsAbsent(l.rec.SeverityText())
	case engine.FieldSeverityNumber:
		if l.rec.SeverityNumber() == plog.SeverityNumberUnspecified {
			return nil
		}
		return []byte(strconv.FormatInt(int64(l.rec.SeverityNumber()), 10))
	case engine.FieldTraceID:
		return traceIDBytes(l.rec.TraceID())
	case engine.FieldSpanID:
		return spanIDBytes(l.rec.SpanID())
	case engine.FieldEventName:
		return emptyAsAbsent(l.rec.EventName())
	default:
		return nil
	}
}

// SetField implements policy.Record. Trace and span ids are not writable.
func (l *Log) SetField(f engine.Field, value string) bool {
	switch f {
	case engine.FieldBody:
		l.rec.Body().SetStr(value)
	case engine.FieldSeverityText:
		l.rec.SetSeverityText(value)
	case engine.FieldSeverityNumber:
		if value == "" {
			l.rec.SetSeverityNumber(plog.SeverityNumberUnspecified)
			return true
		}
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return false
		}
		l.rec.SetSeverityNumber(plog.SeverityNumber(n))
	case engine.FieldEventName:
		l.rec.SetEventName(value)
	default:
		return false
	}
	return true
}

func (l *Log) GetAttr(scope engine.AttrScope, path []string) ([]byte, bool) {
	return l.attrs.getAttr(scope, path)
}

func (l *Log) SetAttr(scope engine.AttrScope, path []string, value string) bool {
	return l.attrs.setAttr(scope, path, value)
}

func (l *Log) RemoveAttr(scope engine.AttrScope, path []string) bool {
	return l.attrs.removeAttr(scope, path)
}

func emptyAsAbsent(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

func traceIDBytes(id pcommon.TraceID) []byte {
	if id.IsEmpty() {
		return nil
	}
	dst := make([]byte, hex.EncodedLen(len(id)))
	hex.Encode(dst, id[:])
	return dst
}

func spanIDBytes(id pcommon.SpanID) []byte {
	if id.IsEmpty() {
		return nil
	}
	dst := make([]byte, hex.EncodedLen(len(id)))
	hex.Encode(dst, id[:])
	return dst
}
