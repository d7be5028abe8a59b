package policy

import (
	"strconv"

	"github.com/arbiterhq/policy-go/internal/engine"
)

// Record interfaces. Implementations bridge a concrete telemetry
// representation to the engine; see the otelrecord package for pdata-backed
// implementations and the Simple*Record types below for plain in-memory ones.
type (
	Record       = engine.Record
	LogRecord    = engine.LogRecord
	MetricRecord = engine.MetricRecord
	SpanRecord   = engine.SpanRecord
)

// Field is the well-known field enum used by FieldRef.
type Field = engine.Field

// attrMaps is the shared nested-attribute backing for the Simple records.
type attrMaps struct {
	Attributes         map[string]any
	ResourceAttributes map[string]any
	ScopeAttributes    map[string]any
}

func (a *attrMaps) scopeMap(scope AttrScope, create bool) map[string]any {
	var m *map[string]any
	switch scope {
	case AttrScopeResource:
		m = &a.ResourceAttributes
	case AttrScopeScope:
		m = &a.ScopeAttributes
	default:
		m = &a.Attributes
	}
	if *m == nil && create {
		*m = make(map[string]any)
	}
	return *m
}

func (a *attrMaps) getAttr(scope AttrScope, path []string) ([]byte, bool) {
	m := a.scopeMap(scope, false)
	if m == nil || len(path) == 0 {
		return nil, false
	}
	return lookupAttrPath(m, path)
}

func (a *attrMaps) setAttr(scope AttrScope, path []string, value string) bool {
	if len(path) == 0 {
		return false
	}
	return setAttrPath(a.scopeMap(scope, true), path, value)
}

func (a *attrMaps) removeAttr(scope AttrScope, path []string) bool {
	if len(path) == 0 {
		return false
	}
	m := a.scopeMap(scope, false)
	if m == nil {
		return true // removing from an empty namespace is a no-op
	}
	return removeAttrPath(m, path)
}

// lookupAttrPath traverses nested maps segment by segment. It reports false
// when any segment is missing or a non-map value is indexed further; a map
// at the final segment counts as present with an empty scalar view.
func lookupAttrPath(m map[string]any, path []string) ([]byte, bool) {
	cur := m
	for i, seg := range path {
		v, ok := cur[seg]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			if _, isMap := v.(map[string]any); isMap {
				return nil, true
			}
			s, ok := stringifyLeaf(v)
			if !ok {
				return nil, true
			}
			return []byte(s), true
		}
		nested, isMap := v.(map[string]any)
		if !isMap {
			return nil, false
		}
		cur = nested
	}
	return nil, false
}

// setAttrPath sets a leaf value, creating intermediate maps as needed.
// It fails when an existing non-map value sits on the path.
func setAttrPath(m map[string]any, path []string, value string) bool {
	cur := m
	for i, seg := range path {
		if i == len(path)-1 {
			cur[seg] = value
			return true
		}
		v, ok := cur[seg]
		if !ok {
			nested := make(map[string]any)
			cur[seg] = nested
			cur = nested
			continue
		}
		nested, isMap := v.(map[string]any)
		if !isMap {
			return false
		}
		cur = nested
	}
	return false
}

// removeAttrPath deletes a leaf. Removing an absent leaf succeeds as a no-op.
func removeAttrPath(m map[string]any, path []string) bool {
	cur := m
	for i, seg := range path {
		if i == len(path)-1 {
			delete(cur, seg)
			return true
		}
		v, ok := cur[seg]
		if !ok {
			return true
		}
		nested, isMap := v.(map[string]any)
		if !isMap {
			return true
		}
		cur = nested
	}
	return true
}

func stringifyLeaf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	default:
		return "", false
	}
}

// SimpleLogRecord is a plain in-memory LogRecord. Attribute maps nest via
// map[string]any values; empty string fields read as absent.
type SimpleLogRecord struct {
	attrMaps
	Body           string
	SeverityText   string
	SeverityNumber int32
	TraceID        string
	SpanID         string
	EventName      string
}

func strField(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

// GetField implements Record.
func (r *SimpleLogRecord) GetField(f Field) []byte {
	switch f {
	case engine.FieldBody:
		return strField(r.Body)
	case engine.FieldSeverityText:
		return strField(r.SeverityText)
	case engine.FieldSeverityNumber:
		if r.SeverityNumber == 0 {
			return nil
		}
		return []byte(strconv.FormatInt(int64(r.SeverityNumber), 10))
	case engine.FieldTraceID:
		return strField(r.TraceID)
	case engine.FieldSpanID:
		return strField(r.SpanID)
	case engine.FieldEventName:
		return strField(r.EventName)
	default:
		return nil
	}
}

// SetField implements Record.
func (r *SimpleLogRecord) SetField(f Field, value string) bool {
	switch f {
	case engine.FieldBody:
		r.Body = value
	case engine.FieldSeverityText:
		r.SeverityText = value
	case engine.FieldSeverityNumber:
		if value == "" {
			r.SeverityNumber = 0
			return true
		}
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return false
		}
		r.SeverityNumber = int32(n)
	case engine.FieldTraceID:
		r.TraceID = value
	case engine.FieldSpanID:
		r.SpanID = value
	case engine.FieldEventName:
		r.EventName = value
	default:
		return false
	}
	return true
}

func (r *SimpleLogRecord) GetAttr(scope AttrScope, path []string) ([]byte, bool) {
	return r.getAttr(scope, path)
}

func (r *SimpleLogRecord) SetAttr(scope AttrScope, path []string, value string) bool {
	return r.setAttr(scope, path, value)
}

func (r *SimpleLogRecord) RemoveAttr(scope AttrScope, path []string) bool {
	return r.removeAttr(scope, path)
}

// SimpleMetricRecord is a plain in-memory MetricRecord. Attributes is the
// datapoint attribute namespace.
type SimpleMetricRecord struct {
	attrMaps
	Name        string
	Description string
	Unit        string
	Type        string
}

// GetField implements Record.
func (r *SimpleMetricRecord) GetField(f Field) []byte {
	switch f {
	case engine.FieldMetricName:
		return strField(r.Name)
	case engine.FieldMetricDescription:
		return strField(r.Description)
	case engine.FieldMetricUnit:
		return strField(r.Unit)
	case engine.FieldMetricType:
		return strField(r.Type)
	default:
		return nil
	}
}

// SetField implements Record.
func (r *SimpleMetricRecord) SetField(f Field, value string) bool {
	switch f {
	case engine.FieldMetricName:
		r.Name = value
	case engine.FieldMetricDescription:
		r.Description = value
	case engine.FieldMetricUnit:
		r.Unit = value
	default:
		return false
	}
	return true
}

func (r *SimpleMetricRecord) GetAttr(scope AttrScope, path []string) ([]byte, bool) {
	return r.getAttr(scope, path)
}

func (r *SimpleMetricRecord) SetAttr(scope AttrScope, path []string, value string) bool {
	return r.setAttr(scope, path, value)
}

func (r *SimpleMetricRecord) RemoveAttr(scope AttrScope, path []string) bool {
	return r.removeAttr(scope, path)
}

// SimpleSpanRecord is a plain in-memory SpanRecord.
type SimpleSpanRecord struct {
	attrMaps
	Name          string
	TraceID       string
	SpanID        string
	ParentSpanID  string
	Kind          string
	Status        string
	EventName     string
	TraceStateRaw string
}

// GetField implements Record.
func (r *SimpleSpanRecord) GetField(f Field) []byte {
	switch f {
	case engine.FieldSpanName:
		return strField(r.Name)
	case engine.FieldTraceID:
		return strField(r.TraceID)
	case engine.FieldSpanID:
		return strField(r.SpanID)
	case engine.FieldParentSpanID:
		return strField(r.ParentSpanID)
	case engine.FieldSpanKind:
		return strField(r.Kind)
	case engine.FieldSpanStatus:
		return strField(r.Status)
	case engine.FieldEventName:
		return strField(r.EventName)
	case engine.FieldTraceState:
		return strField(r.TraceStateRaw)
	default:
		return nil
	}
}

// SetField implements Record.
func (r *SimpleSpanRecord) SetField(f Field, value string) bool {
	switch f {
	case engine.FieldSpanName:
		r.Name = value
	case engine.FieldParentSpanID:
		r.ParentSpanID = value
	case engine.FieldTraceState:
		r.TraceStateRaw = value
	default:
		return false
	}
	return true
}

func (r *SimpleSpanRecord) GetAttr(scope AttrScope, path []string) ([]byte, bool) {
	return r.getAttr(scope, path)
}

func (r *SimpleSpanRecord) SetAttr(scope AttrScope, path []string, value string) bool {
	return r.setAttr(scope, path, value)
}

func (r *SimpleSpanRecord) RemoveAttr(scope AttrScope, path []string) bool {
	return r.removeAttr(scope, path)
}

// TraceState implements SpanRecord.
func (r *SimpleSpanRecord) TraceState() []byte {
	return strField(r.TraceStateRaw)
}

// SetTraceState implements SpanRecord.
func (r *SimpleSpanRecord) SetTraceState(value string) {
	r.TraceStateRaw = value
}
