package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecord is a minimal Record for transform tests. Attributes nest via
// map[string]any values.
type fakeRecord struct {
	fields map[Field]string
	attrs  map[AttrScope]map[string]any
}

func newFakeRecord() *fakeRecord {
	return &fakeRecord{
		fields: make(map[Field]string),
		attrs:  make(map[AttrScope]map[string]any),
	}
}

func (r *fakeRecord) GetField(f Field) []byte {
	v, ok := r.fields[f]
	if !ok || v == "" {
		return nil
	}
	return []byte(v)
}

func (r *fakeRecord) SetField(f Field, value string) bool {
	r.fields[f] = value
	return true
}

func (r *fakeRecord) GetAttr(scope AttrScope, path []string) ([]byte, bool) {
	cur := r.attrs[scope]
	for i, seg := range path {
		v, ok := cur[seg]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			if s, isStr := v.(string); isStr {
				return []byte(s), true
			}
			return nil, true
		}
		nested, isMap := v.(map[string]any)
		if !isMap {
			return nil, false
		}
		cur = nested
	}
	return nil, false
}

func (r *fakeRecord) SetAttr(scope AttrScope, path []string, value string) bool {
	if r.attrs[scope] == nil {
		r.attrs[scope] = make(map[string]any)
	}
	cur := r.attrs[scope]
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

func (r *fakeRecord) RemoveAttr(scope AttrScope, path []string) bool {
	cur := r.attrs[scope]
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

func attrSelector(path ...string) FieldSelector {
	return FieldSelector{AttrScope: AttrScopeRecord, AttrPath: path}
}

func policyWithTransforms(id string, index int, transforms ...CompiledTransform) *CompiledPolicy {
	return &CompiledPolicy{ID: id, Index: index, Transforms: transforms}
}

func TestCompileTransformsDefaultsRedaction(t *testing.T) {
	ops := []TransformOp{
		{Kind: TransformRedact, Field: attrSelector("user", "email")},
		{Kind: TransformRedact, Field: attrSelector("user", "name"), Value: "***"},
	}

	compiled := compileTransforms(ops)
	require.Len(t, compiled, 2)
	assert.Equal(t, DefaultRedaction, compiled[0].Value)
	assert.Equal(t, "***", compiled[1].Value)
}

func TestCompileTransformsSplitsRenameDestination(t *testing.T) {
	ops := []TransformOp{
		{Kind: TransformRename, Field: attrSelector("old"), To: "new.nested.key"},
	}

	compiled := compileTransforms(ops)
	require.Len(t, compiled, 1)
	assert.Equal(t, []string{"new", "nested", "key"}, compiled[0].To)
}

func TestTransformRemoveAttribute(t *testing.T) {
	rec := newFakeRecord()
	rec.SetAttr(AttrScopeRecord, []string{"user", "email"}, "a@b.com")

	p := policyWithTransforms("p1", 0, CompiledTransform{
		Kind:     TransformRemove,
		Selector: attrSelector("user", "email"),
	})
	ApplyTransforms(rec, []*CompiledPolicy{p}, nil)

	_, ok := rec.GetAttr(AttrScopeRecord, []string{"user", "email"})
	assert.False(t, ok)
}

func TestTransformRemoveAbsentIsNoOp(t *testing.T) {
	rec := newFakeRecord()

	p := policyWithTransforms("p1", 0, CompiledTransform{
		Kind:     TransformRemove,
		Selector: attrSelector("missing"),
	})

	var errs int
	ApplyTransforms(rec, []*CompiledPolicy{p}, func(string, CompiledTransform, error) { errs++ })
	assert.Zero(t, errs)
}

func TestTransformRedactOverwritesExisting(t *testing.T) {
	rec := newFakeRecord()
	rec.SetAttr(AttrScopeRecord, []string{"user", "email"}, "a@b.com")

	p := policyWithTransforms("p1", 0, CompiledTransform{
		Kind:     TransformRedact,
		Selector: attrSelector("user", "email"),
		Value:    DefaultRedaction,
	})
	ApplyTransforms(rec, []*CompiledPolicy{p}, nil)

	v, ok := rec.GetAttr(AttrScopeRecord, []string{"user", "email"})
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", string(v))
}

func TestTransformRedactAbsentIsNoOp(t *testing.T) {
	rec := newFakeRecord()

	p := policyWithTransforms("p1", 0, CompiledTransform{
		Kind:     TransformRedact,
		Selector: attrSelector("user", "email"),
		Value:    DefaultRedaction,
	})
	ApplyTransforms(rec, []*CompiledPolicy{p}, nil)

	_, ok := rec.GetAttr(AttrScopeRecord, []string{"user", "email"})
	assert.False(t, ok, "redact must not create the attribute")
}

func TestTransformRenameMovesValue(t *testing.T) {
	rec := newFakeRecord()
	rec.SetAttr(AttrScopeRecord, []string{"old"}, "value")

	p := policyWithTransforms("p1", 0, CompiledTransform{
		Kind:     TransformRename,
		Selector: attrSelector("old"),
		To:       []string{"new"},
	})
	ApplyTransforms(rec, []*CompiledPolicy{p}, nil)

	_, ok := rec.GetAttr(AttrScopeRecord, []string{"old"})
	assert.False(t, ok)
	v, ok := rec.GetAttr(AttrScopeRecord, []string{"new"})
	require.True(t, ok)
	assert.Equal(t, "value", string(v))
}

func TestTransformRenameSkipsWhenDestinationExists(t *testing.T) {
	rec := newFakeRecord()
	rec.SetAttr(AttrScopeRecord, []string{"old"}, "from")
	rec.SetAttr(AttrScopeRecord, []string{"new"}, "existing")

	p := policyWithTransforms("p1", 0, CompiledTransform{
		Kind:     TransformRename,
		Selector: attrSelector("old"),
		To:       []string{"new"},
	})
	ApplyTransforms(rec, []*CompiledPolicy{p}, nil)

	// Skipped entirely: source untouched, destination untouched.
	v, ok := rec.GetAttr(AttrScopeRecord, []string{"old"})
	require.True(t, ok)
	assert.Equal(t, "from", string(v))
	v, _ = rec.GetAttr(AttrScopeRecord, []string{"new"})
	assert.Equal(t, "existing", string(v))
}

func TestTransformRenameUpsertOverwritesDestination(t *testing.T) {
	rec := newFakeRecord()
	rec.SetAttr(AttrScopeRecord, []string{"old"}, "from")
	rec.SetAttr(AttrScopeRecord, []string{"new"}, "existing")

	p := policyWithTransforms("p1", 0, CompiledTransform{
		Kind:     TransformRename,
		Selector: attrSelector("old"),
		To:       []string{"new"},
		Upsert:   true,
	})
	ApplyTransforms(rec, []*CompiledPolicy{p}, nil)

	_, ok := rec.GetAttr(AttrScopeRecord, []string{"old"})
	assert.False(t, ok)
	v, _ := rec.GetAttr(AttrScopeRecord, []string{"new"})
	assert.Equal(t, "from", string(v))
}

func TestTransformRenameToSamePathIsNoOp(t *testing.T) {
	rec := newFakeRecord()
	rec.SetAttr(AttrScopeRecord, []string{"key"}, "value")

	// Source equals destination: the value must survive, upsert or not.
	p := policyWithTransforms("p1", 0, CompiledTransform{
		Kind:     TransformRename,
		Selector: attrSelector("key"),
		To:       []string{"key"},
		Upsert:   true,
	})

	var errs int
	ApplyTransforms(rec, []*CompiledPolicy{p}, func(string, CompiledTransform, error) { errs++ })
	assert.Zero(t, errs)

	v, ok := rec.GetAttr(AttrScopeRecord, []string{"key"})
	require.True(t, ok)
	assert.Equal(t, "value", string(v))
}

func TestTransformAddRespectsUpsert(t *testing.T) {
	rec := newFakeRecord()
	rec.SetAttr(AttrScopeRecord, []string{"env"}, "prod")

	noUpsert := policyWithTransforms("p1", 0, CompiledTransform{
		Kind:     TransformAdd,
		Selector: attrSelector("env"),
		Value:    "staging",
	})
	ApplyTransforms(rec, []*CompiledPolicy{noUpsert}, nil)
	v, _ := rec.GetAttr(AttrScopeRecord, []string{"env"})
	assert.Equal(t, "prod", string(v))

	upsert := policyWithTransforms("p1", 0, CompiledTransform{
		Kind:     TransformAdd,
		Selector: attrSelector("env"),
		Value:    "staging",
		Upsert:   true,
	})
	ApplyTransforms(rec, []*CompiledPolicy{upsert}, nil)
	v, _ = rec.GetAttr(AttrScopeRecord, []string{"env"})
	assert.Equal(t, "staging", string(v))
}

func TestTransformStageOrderRemoveBeforeRedact(t *testing.T) {
	rec := newFakeRecord()
	rec.SetAttr(AttrScopeRecord, []string{"secret"}, "hunter2")

	// Declared redact-then-remove within the policy, but remove runs in an
	// earlier stage, so redact sees an absent attribute and no-ops.
	p := policyWithTransforms("p1", 0,
		CompiledTransform{Kind: TransformRedact, Selector: attrSelector("secret"), Value: DefaultRedaction},
		CompiledTransform{Kind: TransformRemove, Selector: attrSelector("secret")},
	)
	ApplyTransforms(rec, []*CompiledPolicy{p}, nil)

	_, ok := rec.GetAttr(AttrScopeRecord, []string{"secret"})
	assert.False(t, ok, "attribute should be gone, not redacted")
}

func TestTransformRenameSeesPostRedactValues(t *testing.T) {
	rec := newFakeRecord()
	rec.SetAttr(AttrScopeRecord, []string{"user", "email"}, "a@b.com")

	p := policyWithTransforms("p1", 0,
		CompiledTransform{Kind: TransformRedact, Selector: attrSelector("user", "email"), Value: DefaultRedaction},
		CompiledTransform{Kind: TransformRename, Selector: attrSelector("user", "email"), To: []string{"contact"}},
	)
	ApplyTransforms(rec, []*CompiledPolicy{p}, nil)

	v, ok := rec.GetAttr(AttrScopeRecord, []string{"contact"})
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", string(v), "rename should move the redacted value")
}

func TestTransformCrossPolicyLastWriterWins(t *testing.T) {
	rec := newFakeRecord()

	p1 := policyWithTransforms("a", 0, CompiledTransform{
		Kind: TransformAdd, Selector: attrSelector("owner"), Value: "team-a", Upsert: true,
	})
	p2 := policyWithTransforms("b", 1, CompiledTransform{
		Kind: TransformAdd, Selector: attrSelector("owner"), Value: "team-b", Upsert: true,
	})
	ApplyTransforms(rec, []*CompiledPolicy{p1, p2}, nil)

	v, _ := rec.GetAttr(AttrScopeRecord, []string{"owner"})
	assert.Equal(t, "team-b", string(v))
}

func TestTransformFailingOpReportedAndSkipped(t *testing.T) {
	rec := newFakeRecord()
	// A scalar sits where the add needs a map, so SetAttr fails.
	rec.SetAttr(AttrScopeRecord, []string{"user"}, "scalar")

	p := policyWithTransforms("p1", 0,
		CompiledTransform{Kind: TransformAdd, Selector: attrSelector("user", "email"), Value: "x"},
		CompiledTransform{Kind: TransformAdd, Selector: attrSelector("env"), Value: "prod"},
	)

	var failedPolicy string
	ApplyTransforms(rec, []*CompiledPolicy{p}, func(policyID string, op CompiledTransform, err error) {
		failedPolicy = policyID
		assert.Error(t, err)
	})

	assert.Equal(t, "p1", failedPolicy)
	// The failing op never aborts the rest of the pipeline.
	v, ok := rec.GetAttr(AttrScopeRecord, []string{"env"})
	require.True(t, ok)
	assert.Equal(t, "prod", string(v))
}
