package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchKeyStringDistinguishesSelectors(t *testing.T) {
	body := makeMatchKeyString(MatchKey{Selector: FieldSelector{Field: FieldBody}})
	severity := makeMatchKeyString(MatchKey{Selector: FieldSelector{Field: FieldSeverityText}})
	assert.NotEqual(t, body, severity)

	recordAttr := makeMatchKeyString(MatchKey{
		Selector: FieldSelector{AttrScope: AttrScopeRecord, AttrPath: []string{"user", "email"}},
	})
	resourceAttr := makeMatchKeyString(MatchKey{
		Selector: FieldSelector{AttrScope: AttrScopeResource, AttrPath: []string{"user", "email"}},
	})
	assert.NotEqual(t, recordAttr, resourceAttr)
}

func TestMatchKeyStringDistinguishesFlags(t *testing.T) {
	sel := FieldSelector{Field: FieldBody}

	plain := makeMatchKeyString(MatchKey{Selector: sel})
	negated := makeMatchKeyString(MatchKey{Selector: sel, Negated: true})
	caseless := makeMatchKeyString(MatchKey{Selector: sel, CaseInsensitive: true})

	assert.NotEqual(t, plain, negated)
	assert.NotEqual(t, plain, caseless)
	assert.NotEqual(t, negated, caseless)
}

func TestMatchKeyStringStableForEqualKeys(t *testing.T) {
	a := MatchKey{
		Selector:        FieldSelector{AttrScope: AttrScopeRecord, AttrPath: []string{"http", "method"}},
		CaseInsensitive: true,
	}
	b := MatchKey{
		Selector:        FieldSelector{AttrScope: AttrScopeRecord, AttrPath: []string{"http", "method"}},
		CaseInsensitive: true,
	}
	assert.Equal(t, makeMatchKeyString(a), makeMatchKeyString(b))
}
