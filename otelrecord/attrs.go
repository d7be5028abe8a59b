package otelrecord

import (
	"strings"

	"go.opentelemetry.io/collector/pdata/pcommon"

	"github.com/arbiterhq/policy-go/internal/engine"
)

// attrSet resolves an AttrScope to the three pcommon attribute maps every
// adapter carries.
type attrSet struct {
	record   pcommon.Map
	resource pcommon.Map
	scope    pcommon.Map
}

func (a attrSet) mapFor(scope engine.AttrScope) pcommon.Map {
	switch scope {
	case engine.AttrScopeResource:
		return a.resource
	case engine.AttrScopeScope:
		return a.scope
	default:
		return a.record
	}
}

func (a attrSet) getAttr(scope engine.AttrScope, path []string) ([]byte, bool) {
	if len(path) == 0 {
		return nil, false
	}
	return lookupMap(a.mapFor(scope), path)
}

func (a attrSet) setAttr(scope engine.AttrScope, path []string, value string) bool {
	if len(path) == 0 {
		return false
	}
	return setMap(a.mapFor(scope), path, value)
}

func (a attrSet) removeAttr(scope engine.AttrScope, path []string) bool {
	if len(path) == 0 {
		return false
	}
	return removeMap(a.mapFor(scope), path)
}

// lookupMap resolves a path against a pcommon.Map. OTel attribute keys are
// commonly flat dotted strings ("service.name"), so the joined key is tried
// first; nested map traversal handles producers that emit real map values.
// A map at the final segment counts as present with no scalar view.
func lookupMap(m pcommon.Map, path []string) ([]byte, bool) {
	if len(path) > 1 {
		if v, ok := m.Get(strings.Join(path, ".")); ok {
			return valueBytes(v), true
		}
	}

	cur := m
	for i, seg := range path {
		v, ok := cur.Get(seg)
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return valueBytes(v), true
		}
		if v.Type() != pcommon.ValueTypeMap {
			return nil, false
		}
		cur = v.Map()
	}
	return nil, false
}

// setMap writes a string leaf. An existing flat dotted key is updated in
// place; otherwise the path is traversed with intermediate maps created as
// needed. Fails when a non-map value sits on the path.
func setMap(m pcommon.Map, path []string, value string) bool {
	if len(path) > 1 {
		if v, ok := m.Get(strings.Join(path, ".")); ok && v.Type() != pcommon.ValueTypeMap {
			v.SetStr(value)
			return true
		}
	}

	cur := m
	for i, seg := range path {
		if i == len(path)-1 {
			cur.PutStr(seg, value)
			return true
		}
		v, ok := cur.Get(seg)
		if !ok {
			cur = cur.PutEmptyMap(seg)
			continue
		}
		if v.Type() != pcommon.ValueTypeMap {
			return false
		}
		cur = v.Map()
	}
	return false
}

// removeMap deletes a leaf. Removing an absent leaf succeeds as a no-op.
func removeMap(m pcommon.Map, path []string) bool {
	if len(path) > 1 {
		key := strings.Join(path, ".")
		if _, ok := m.Get(key); ok {
			m.Remove(key)
			return true
		}
	}

	cur := m
	for i, seg := range path {
		if i == len(path)-1 {
			cur.Remove(seg)
			return true
		}
		v, ok := cur.Get(seg)
		if !ok || v.Type() != pcommon.ValueTypeMap {
			return true
		}
		cur = v.Map()
	}
	return true
}

// valueBytes stringifies a scalar pcommon.Value for matching. Map values
// have no scalar view.
func valueBytes(v pcommon.Value) []byte {
	if v.Type() == pcommon.ValueTypeMap {
		return nil
	}
	return []byte(v.AsString())
}
