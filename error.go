package policy

import (
	"errors"
	"fmt"

	"github.com/arbiterhq/policy-go/internal/engine"
)

// ErrorKind categorizes policy engine errors.
type ErrorKind int

const (
	// ErrPolicyLoad indicates a malformed or incomplete policy was skipped
	// at load time.
	ErrPolicyLoad ErrorKind = iota
	// ErrMatchEvaluation indicates a matcher fault during evaluation; the
	// affected policy is treated as a non-match for that record.
	ErrMatchEvaluation
	// ErrTransform indicates a transform operation could not be applied; the
	// operation is treated as a no-op.
	ErrTransform
	// ErrSampling indicates a trace-state decode/encode failure, resolved by
	// the policy's fail-closed flag.
	ErrSampling
)

func (k ErrorKind) String() string {
	switch k {
	case ErrPolicyLoad:
		return "policy_load"
	case ErrMatchEvaluation:
		return "match_evaluation"
	case ErrTransform:
		return "transform"
	case ErrSampling:
		return "sampling"
	default:
		return "unknown"
	}
}

// Stage identifies the evaluation stage that produced a diagnostic.
type Stage int

const (
	StageMatch Stage = iota
	StageKeep
	StageTransform
)

func (s Stage) String() string {
	switch s {
	case StageMatch:
		return "match"
	case StageKeep:
		return "keep"
	case StageTransform:
		return "transform"
	default:
		return "unknown"
	}
}

// Diagnostic reports a contained per-policy failure during evaluation. The
// affected policy acted as if absent for that record; the caller decides how
// to log or count diagnostics.
type Diagnostic struct {
	PolicyID string
	Stage    Stage
	Kind     ErrorKind
	Err      error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("policy %s: %s/%s: %v", d.PolicyID, d.Stage, d.Kind, d.Err)
}

// ValidationWarning describes a policy skipped during Load.
type ValidationWarning = engine.Warning

// PolicyError represents an error in policy operations.
type PolicyError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *PolicyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PolicyError) Unwrap() error {
	return e.Cause
}

// NewError creates a new PolicyError.
func NewError(kind ErrorKind, message string) *PolicyError {
	return &PolicyError{Kind: kind, Message: message}
}

// WrapError creates a new PolicyError wrapping an existing error.
func WrapError(kind ErrorKind, message string, cause error) *PolicyError {
	return &PolicyError{Kind: kind, Message: message, Cause: cause}
}

// IsPolicyLoad returns true if the error is a policy load error.
func IsPolicyLoad(err error) bool {
	var pErr *PolicyError
	return errors.As(err, &pErr) && pErr.Kind == ErrPolicyLoad
}

// IsMatchEvaluation returns true if the error is a match evaluation error.
func IsMatchEvaluation(err error) bool {
	var pErr *PolicyError
	return errors.As(err, &pErr) && pErr.Kind == ErrMatchEvaluation
}

// IsTransform returns true if the error is a transform error.
func IsTransform(err error) bool {
	var pErr *PolicyError
	return errors.As(err, &pErr) && pErr.Kind == ErrTransform
}

// IsSampling returns true if the error is a sampling error.
func IsSampling(err error) bool {
	var pErr *PolicyError
	return errors.As(err, &pErr) && pErr.Kind == ErrSampling
}
