// Package policy implements a telemetry policy evaluation engine: given a
// stream of telemetry records and a set of declarative policies, it decides
// per record whether the record survives and which transforms apply.
//
// Policies never reference each other and evaluation never depends on policy
// order; a broken policy is contained to itself and never causes telemetry
// loss. The engine holds an immutable compiled snapshot of the policy set,
// replaced wholesale by Load, so evaluation is lock-free and safe from any
// number of goroutines.
package policy

import (
	"time"

	"github.com/arbiterhq/policy-go/internal/engine"
)

// Version returns the current version of the policy library.
func Version() string {
	return "0.1.0"
}

// Re-export the policy model from internal/engine. These types are the
// engine boundary: an external loader or control plane builds them (already
// validated and typed) and hands them to Engine.Load.
type (
	Policy       = engine.Policy
	Label        = engine.Label
	LogTarget    = engine.LogTarget
	MetricTarget = engine.MetricTarget
	TraceTarget  = engine.TraceTarget
	Matcher      = engine.Matcher
	TransformOp  = engine.TransformOp
	Signal       = engine.Signal
)

// Signal constants.
const (
	SignalLog    = engine.SignalLog
	SignalMetric = engine.SignalMetric
	SignalTrace  = engine.SignalTrace
)

// Transform kind constants.
type TransformKind = engine.TransformKind

const (
	TransformRemove = engine.TransformRemove
	TransformRedact = engine.TransformRedact
	TransformRename = engine.TransformRename
	TransformAdd    = engine.TransformAdd
)

// DefaultRedaction is the replacement used by redact operations that do not
// configure one.
const DefaultRedaction = engine.DefaultRedaction

// NewPolicy creates a new enabled Policy with the given identity and target.
// Exactly one of the target arguments passed through the option-style setters
// must end up set; Load rejects anything else with a warning.
func NewPolicy(id, name string) *Policy {
	now := time.Now().UTC()
	return &Policy{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Bool returns a pointer to v, for the Matcher.Exists field.
func Bool(v bool) *bool {
	return &v
}
