// Package engine contains the policy evaluation engine implementation.
package engine

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Signal identifies a telemetry signal type.
type Signal int

const (
	SignalLog Signal = iota
	SignalMetric
	SignalTrace
)

func (s Signal) String() string {
	switch s {
	case SignalLog:
		return "log"
	case SignalMetric:
		return "metric"
	case SignalTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// Field enumerates the well-known record fields addressable by a selector.
// A record variant reports nil for fields that do not apply to it.
type Field int

const (
	FieldNone Field = iota

	// Log fields.
	FieldBody
	FieldSeverityText
	FieldSeverityNumber
	FieldEventName

	// Shared between logs and spans.
	FieldTraceID
	FieldSpanID

	// Metric fields.
	FieldMetricName
	FieldMetricDescription
	FieldMetricUnit
	FieldMetricType

	// Span fields.
	FieldSpanName
	FieldParentSpanID
	FieldSpanKind
	FieldSpanStatus
	FieldTraceState
)

// AttrScope identifies the attribute namespace for attribute lookups.
type AttrScope int

const (
	// AttrScopeRecord is for record-level attributes (log attributes,
	// datapoint attributes, span attributes).
	AttrScopeRecord AttrScope = iota
	// AttrScopeResource is for resource-level attributes.
	AttrScopeResource
	// AttrScopeScope is for instrumentation scope attributes.
	AttrScopeScope
)

// FieldSelector identifies a specific field to match or transform.
// It is either a well-known field reference or an attribute path lookup
// in one of the attribute namespaces. Selectors are immutable once built.
type FieldSelector struct {
	// Field is the well-known field. FieldNone means this is an attribute lookup.
	Field Field
	// AttrScope specifies where to look for the attribute.
	AttrScope AttrScope
	// AttrPath is the attribute path segments for attribute lookups.
	AttrPath []string
}

// IsAttribute returns true if this selector is an attribute path lookup.
func (s FieldSelector) IsAttribute() bool {
	return len(s.AttrPath) > 0
}

// IsZero returns true if the selector references nothing.
func (s FieldSelector) IsZero() bool {
	return s.Field == FieldNone && len(s.AttrPath) == 0
}

func (s FieldSelector) String() string {
	if !s.IsAttribute() {
		return fmt.Sprintf("field(%d)", s.Field)
	}
	var scope string
	switch s.AttrScope {
	case AttrScopeResource:
		scope = "resource"
	case AttrScopeScope:
		scope = "scope"
	default:
		scope = "attributes"
	}
	return scope + "." + strings.Join(s.AttrPath, ".")
}

// KeepAction represents what to do with matched telemetry.
type KeepAction int

const (
	KeepAll KeepAction = iota
	KeepNone
	KeepSample
	KeepRatePerSecond
	KeepRatePerMinute
)

// Keep represents a keep directive with its parameters.
type Keep struct {
	Action KeepAction
	// Value is the percentage for KeepSample or the limit for the rate actions.
	Value float64
}

// ParseKeep parses a keep string into a Keep struct.
// Accepted forms: "" (keep all), "all", "none", "N%", "N/s", "N/m".
func ParseKeep(s string) (Keep, error) {
	switch {
	case s == "" || s == "all":
		return Keep{Action: KeepAll}, nil
	case s == "none":
		return Keep{Action: KeepNone}, nil
	case strings.HasSuffix(s, "%"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return Keep{}, fmt.Errorf("invalid percentage %q: %w", s, err)
		}
		if v < 0 || v > 100 {
			return Keep{}, fmt.Errorf("percentage %q out of range [0,100]", s)
		}
		return Keep{Action: KeepSample, Value: v}, nil
	case strings.HasSuffix(s, "/s"):
		v, err := strconv.ParseUint(strings.TrimSuffix(s, "/s"), 10, 32)
		if err != nil {
			return Keep{}, fmt.Errorf("invalid rate %q: %w", s, err)
		}
		return Keep{Action: KeepRatePerSecond, Value: float64(v)}, nil
	case strings.HasSuffix(s, "/m"):
		v, err := strconv.ParseUint(strings.TrimSuffix(s, "/m"), 10, 32)
		if err != nil {
			return Keep{}, fmt.Errorf("invalid rate %q: %w", s, err)
		}
		return Keep{Action: KeepRatePerMinute, Value: float64(v)}, nil
	default:
		return Keep{}, fmt.Errorf("unknown keep directive %q", s)
	}
}

// SamplingMode selects the trace sampling algorithm.
type SamplingMode int

const (
	// SamplingModeHashSeed derives randomness from hash(traceID, seed).
	SamplingModeHashSeed SamplingMode = iota
	// SamplingModeProportional adjusts the threshold relative to the
	// probability already encoded in the incoming tracestate.
	SamplingModeProportional
	// SamplingModeEqualizing applies the target threshold only when it is
	// more restrictive than the incoming one.
	SamplingModeEqualizing
)

// TraceSampling is the keep configuration for trace targets. The zero value
// is treated as unset and keeps every matching span; dropping all spans takes
// an explicit marker alongside Percentage 0 (FailClosed or a non-default
// Mode or Precision).
type TraceSampling struct {
	// Percentage of traces to keep, 0-100.
	Percentage float64
	Mode       SamplingMode
	// Precision is the minimum number of hex digits (1-14) emitted when the
	// threshold is written back to tracestate. Zero means the default of 4.
	Precision uint32
	// HashSeed seeds the trace ID hash in hash_seed mode. Zero uses the
	// explicit tracestate randomness or the raw trace ID bits.
	HashSeed uint32
	// FailClosed drops the span when randomness or the incoming tracestate
	// cannot be decoded. When false such spans pass through unmodified.
	FailClosed bool
}

// Matcher represents a single match condition against one field.
// Exactly one of Exact, Regex, StartsWith, EndsWith, Contains, or Exists
// must be set.
type Matcher struct {
	Field FieldSelector

	Exact      string
	Regex      string
	StartsWith string
	EndsWith   string
	Contains   string
	Exists     *bool

	Negate          bool
	CaseInsensitive bool
}

// TransformKind identifies the type of transform operation.
// The declared order is the pipeline stage order.
type TransformKind int

const (
	TransformRemove TransformKind = iota
	TransformRedact
	TransformRename
	TransformAdd
)

func (k TransformKind) String() string {
	switch k {
	case TransformRemove:
		return "remove"
	case TransformRedact:
		return "redact"
	case TransformRename:
		return "rename"
	case TransformAdd:
		return "add"
	default:
		return "unknown"
	}
}

// DefaultRedaction is the replacement used by redact operations that do not
// configure one.
const DefaultRedaction = "[REDACTED]"

// TransformOp is a single transform operation declared on a target.
type TransformOp struct {
	Kind TransformKind
	// Field is the operation target, or the source field for renames.
	Field FieldSelector
	// Value is the replacement string (redact) or the value to set (add).
	Value string
	// To is the new dotted attribute path for renames, resolved in the same
	// attribute namespace as Field.
	To string
	// Upsert overwrites an existing destination (rename/add).
	Upsert bool
}

// Label is an ordered key/value pair attached to a policy.
type Label struct {
	Key   string
	Value string
}

// LogTarget is a policy's log signal bundle.
type LogTarget struct {
	Matchers []Matcher
	Keep     Keep
	// SampleKey optionally selects the field whose value seeds deterministic
	// percent sampling for this policy.
	SampleKey  *FieldSelector
	Transforms []TransformOp
}

// MetricTarget is a policy's metric signal bundle. Metric keep degenerates
// to a boolean: Drop false keeps matching metrics, true drops them.
type MetricTarget struct {
	Matchers   []Matcher
	Drop       bool
	Transforms []TransformOp
}

// TraceTarget is a policy's trace signal bundle.
type TraceTarget struct {
	Matchers   []Matcher
	Sampling   TraceSampling
	Transforms []TransformOp
}

// Policy is a validated, self-contained telemetry processing rule.
// Exactly one of Log, Metric, or Trace must be set.
type Policy struct {
	ID          string
	Name        string
	Description string
	// Disabled excludes the policy from evaluation. Policies are enabled by default.
	Disabled  bool
	Labels    []Label
	CreatedAt time.Time
	UpdatedAt time.Time

	Log    *LogTarget
	Metric *MetricTarget
	Trace  *TraceTarget
}

// Signal returns the signal the policy targets and whether exactly one
// target is set.
func (p *Policy) Signal() (Signal, bool) {
	n := 0
	var sig Signal
	if p.Log != nil {
		n++
		sig = SignalLog
	}
	if p.Metric != nil {
		n++
		sig = SignalMetric
	}
	if p.Trace != nil {
		n++
		sig = SignalTrace
	}
	return sig, n == 1
}

// PolicyStats holds atomic counters for a single policy.
type PolicyStats struct {
	MatchHits   atomic.Uint64
	Drops       atomic.Uint64
	Samples     atomic.Uint64
	RateLimited atomic.Uint64
	Transforms  atomic.Uint64
	Errors      atomic.Uint64
}

func (s *PolicyStats) RecordMatchHit()    { s.MatchHits.Add(1) }
func (s *PolicyStats) RecordDrop()        { s.Drops.Add(1) }
func (s *PolicyStats) RecordSample()      { s.Samples.Add(1) }
func (s *PolicyStats) RecordRateLimited() { s.RateLimited.Add(1) }
func (s *PolicyStats) RecordTransform()   { s.Transforms.Add(1) }
func (s *PolicyStats) RecordError()       { s.Errors.Add(1) }

// PolicyStatsSnapshot is an immutable copy of stats for reporting.
type PolicyStatsSnapshot struct {
	PolicyID    string
	MatchHits   uint64
	Drops       uint64
	Samples     uint64
	RateLimited uint64
	Transforms  uint64
	Errors      uint64
}

// Snapshot drains the counters into an immutable snapshot. Counters reset to
// zero so successive snapshots report deltas.
func (s *PolicyStats) Snapshot(policyID string) PolicyStatsSnapshot {
	return PolicyStatsSnapshot{
		PolicyID:    policyID,
		MatchHits:   s.MatchHits.Swap(0),
		Drops:       s.Drops.Swap(0),
		Samples:     s.Samples.Swap(0),
		RateLimited: s.RateLimited.Swap(0),
		Transforms:  s.Transforms.Swap(0),
		Errors:      s.Errors.Swap(0),
	}
}
