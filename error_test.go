package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPolicyLoad(t *testing.T) {
	err := NewError(ErrPolicyLoad, "policy has no matchers")
	assert.True(t, IsPolicyLoad(err))

	err = NewError(ErrMatchEvaluation, "scan failed")
	assert.False(t, IsPolicyLoad(err))

	assert.False(t, IsPolicyLoad(assert.AnError), "non-PolicyError is never a load error")
}

func TestIsMatchEvaluation(t *testing.T) {
	err := NewError(ErrMatchEvaluation, "scan failed")
	assert.True(t, IsMatchEvaluation(err))

	err = NewError(ErrTransform, "selector not applicable")
	assert.False(t, IsMatchEvaluation(err))
	assert.False(t, IsMatchEvaluation(assert.AnError))
}

func TestIsTransform(t *testing.T) {
	err := NewError(ErrTransform, "selector not applicable")
	assert.True(t, IsTransform(err))

	err = NewError(ErrSampling, "bad tracestate")
	assert.False(t, IsTransform(err))
}

func TestIsSampling(t *testing.T) {
	err := NewError(ErrSampling, "bad tracestate")
	assert.True(t, IsSampling(err))

	err = NewError(ErrPolicyLoad, "missing target")
	assert.False(t, IsSampling(err))
}

func TestPolicyErrorUnwrap(t *testing.T) {
	cause := assert.AnError
	err := WrapError(ErrPolicyLoad, "compiling policy set", cause)
	assert.Equal(t, cause, err.Unwrap())

	errNoCause := NewError(ErrPolicyLoad, "no cause")
	assert.Nil(t, errNoCause.Unwrap())
}

func TestPolicyErrorString(t *testing.T) {
	cause := assert.AnError
	err := WrapError(ErrPolicyLoad, "compiling policy set", cause)
	assert.Contains(t, err.Error(), "policy_load")
	assert.Contains(t, err.Error(), "compiling policy set")
	assert.Contains(t, err.Error(), cause.Error())

	errNoCause := NewError(ErrSampling, "bad tracestate")
	assert.Contains(t, errNoCause.Error(), "sampling")
	assert.Contains(t, errNoCause.Error(), "bad tracestate")
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "policy_load", ErrPolicyLoad.String())
	assert.Equal(t, "match_evaluation", ErrMatchEvaluation.String())
	assert.Equal(t, "transform", ErrTransform.String())
	assert.Equal(t, "sampling", ErrSampling.String())
	assert.Equal(t, "unknown", ErrorKind(999).String())
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{PolicyID: "p1", Stage: StageKeep, Kind: ErrSampling, Err: assert.AnError}
	s := d.String()
	assert.Contains(t, s, "p1")
	assert.Contains(t, s, "keep")
	assert.Contains(t, s, "sampling")
}
