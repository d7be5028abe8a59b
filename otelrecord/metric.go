package otelrecord

import (
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/pmetric"

	"github.com/arbiterhq/policy-go/internal/engine"
)

// Metric adapts a pmetric.Metric plus its resource and instrumentation
// scope. Record-scoped attributes live on datapoints: reads consult the
// first datapoint that carries the attribute, writes and removals apply to
// every datapoint so the metric stays internally consistent.
type Metric struct {
	metric   pmetric.Metric
	resource pcommon.Resource
	scope    pcommon.InstrumentationScope
}

// NewMetric wraps a metric with its resource and scope.
func NewMetric(metric pmetric.Metric, resource pcommon.Resource, scope pcommon.InstrumentationScope) *Metric {
	return &Metric{metric: metric, resource: resource, scope: scope}
}

// GetField implements policy.Record. The metric type stringifies via
// pmetric ("Gauge", "Sum", "Histogram", "ExponentialHistogram", "Summary").
func (m *Metric) GetField(f engine.Field) []byte {
	switch f {
	case engine.FieldMetricName:
		return emptyAsAbsent(m.metric.Name())
	case engine.FieldMetricDescription:
		return emptyAsAbsent(m.metric.Description())
	case engine.FieldMetricUnit:
		return emptyAsAbsent(m.metric.Unit())
	case engine.FieldMetricType:
		if m.metric.Type() == pmetric.MetricTypeEmpty {
			return nil
		}
		return []byte(m.metric.Type().String())
	default:
		return nil
	}
}

// SetField implements policy.Record. The metric type is structural and not
// writable.
func (m *Metric) SetField(f engine.Field, value string) bool {
	switch f {
	case engine.FieldMetricName:
		m.metric.SetName(value)
	case engine.FieldMetricDescription:
		m.metric.SetDescription(value)
	case engine.FieldMetricUnit:
		m.metric.SetUnit(value)
	default:
		return false
	}
	return true
}

func (m *Metric) GetAttr(scope engine.AttrScope, path []string) ([]byte, bool) {
	switch scope {
	case engine.AttrScopeResource:
		if len(path) == 0 {
			return nil, false
		}
		return lookupMap(m.resource.Attributes(), path)
	case engine.AttrScopeScope:
		if len(path) == 0 {
			return nil, false
		}
		return lookupMap(m.scope.Attributes(), path)
	default:
		if len(path) == 0 {
			return nil, false
		}
		var value []byte
		found := false
		m.eachDataPointAttrs(func(attrs pcommon.Map) {
			if found {
				return
			}
			if v, ok := lookupMap(attrs, path); ok {
				value, found = v, true
			}
		})
		return value, found
	}
}

func (m *Metric) SetAttr(scope engine.AttrScope, path []string, value string) bool {
	switch scope {
	case engine.AttrScopeResource:
		if len(path) == 0 {
			return false
		}
		return setMap(m.resource.Attributes(), path, value)
	case engine.AttrScopeScope:
		if len(path) == 0 {
			return false
		}
		return setMap(m.scope.Attributes(), path, value)
	default:
		if len(path) == 0 {
			return false
		}
		ok := true
		applied := false
		m.eachDataPointAttrs(func(attrs pcommon.Map) {
			applied = true
			if !setMap(attrs, path, value) {
				ok = false
			}
		})
		return ok && applied
	}
}

func (m *Metric) RemoveAttr(scope engine.AttrScope, path []string) bool {
	switch scope {
	case engine.AttrScopeResource:
		if len(path) == 0 {
			return false
		}
		return removeMap(m.resource.Attributes(), path)
	case engine.AttrScopeScope:
		if len(path) == 0 {
			return false
		}
		return removeMap(m.scope.Attributes(), path)
	default:
		if len(path) == 0 {
			return false
		}
		m.eachDataPointAttrs(func(attrs pcommon.Map) {
			removeMap(attrs, path)
		})
		return true
	}
}

// eachDataPointAttrs visits the attribute map of every datapoint, across all
// metric types.
func (m *Metric) eachDataPointAttrs(fn func(pcommon.Map)) {
	switch m.metric.Type() {
	case pmetric.MetricTypeGauge:
		dps := m.metric.Gauge().DataPoints()
		for i := 0; i < dps.Len(); i++ {
			fn(dps.At(i).Attributes())
		}
	case pmetric.MetricTypeSum:
		dps := m.metric.Sum().DataPoints()
		for i := 0; i < dps.Len(); i++ {
			fn(dps.At(i).Attributes())
		}
	case pmetric.MetricTypeHistogram:
		dps := m.metric.Histogram().DataPoints()
		for i := 0; i < dps.Len(); i++ {
			fn(dps.At(i).Attributes())
		}
	case pmetric.MetricTypeExponentialHistogram:
		dps := m.metric.ExponentialHistogram().DataPoints()
		for i := 0; i < dps.Len(); i++ {
			fn(dps.At(i).Attributes())
		}
	case pmetric.MetricTypeSummary:
		dps := m.metric.Summary().DataPoints()
		for i := 0; i < dps.Len(); i++ {
			fn(dps.At(i).Attributes())
		}
	}
}
