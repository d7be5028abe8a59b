package engine

import (
	"fmt"
	"slices"
	"strings"
)

// CompiledTransform is a single compiled transform operation.
type CompiledTransform struct {
	Kind     TransformKind
	Selector FieldSelector // target field (remove/redact/add) or source field (rename)
	Value    string        // replacement string (redact) or value to set (add)
	To       []string      // destination path segments (rename only)
	Upsert   bool          // overwrite if destination exists (rename/add)
}

// transformStages is the fixed pipeline order. Later stages observe only the
// output of earlier stages.
var transformStages = [...]TransformKind{
	TransformRemove,
	TransformRedact,
	TransformRename,
	TransformAdd,
}

// compileTransforms converts declared transform operations into their
// compiled form. Operations are assumed valid (see validateTransform).
func compileTransforms(ops []TransformOp) []CompiledTransform {
	if len(ops) == 0 {
		return nil
	}
	out := make([]CompiledTransform, 0, len(ops))
	for _, op := range ops {
		ct := CompiledTransform{
			Kind:     op.Kind,
			Selector: op.Field,
			Value:    op.Value,
			Upsert:   op.Upsert,
		}
		if op.Kind == TransformRedact && ct.Value == "" {
			ct.Value = DefaultRedaction
		}
		if op.Kind == TransformRename {
			ct.To = strings.Split(op.To, ".")
		}
		out = append(out, ct)
	}
	return out
}

// ApplyTransforms runs the four stages in order over the matched policies.
// Within a stage, policies apply in dense-index (ascending id) order and each
// policy's operations in declared order, so cross-policy conflicts resolve by
// last writer in that order. A failing operation is reported through onError
// and skipped; it never aborts the pipeline.
func ApplyTransforms(rec Record, matched []*CompiledPolicy, onError func(policyID string, op CompiledTransform, err error)) {
	for _, stage := range transformStages {
		for _, p := range matched {
			for _, op := range p.Transforms {
				if op.Kind != stage {
					continue
				}
				if err := applyTransformOp(rec, op); err != nil {
					if onError != nil {
						onError(p.ID, op, err)
					}
				}
			}
		}
	}
}

func applyTransformOp(rec Record, op CompiledTransform) error {
	sel := op.Selector
	switch op.Kind {
	case TransformRemove:
		if sel.IsAttribute() {
			if !rec.RemoveAttr(sel.AttrScope, sel.AttrPath) {
				return fmt.Errorf("remove %s: selector not applicable", sel)
			}
			return nil
		}
		if rec.GetField(sel.Field) == nil {
			return nil
		}
		if !rec.SetField(sel.Field, "") {
			return fmt.Errorf("remove %s: field not writable", sel)
		}

	case TransformRedact:
		if sel.IsAttribute() {
			if _, ok := rec.GetAttr(sel.AttrScope, sel.AttrPath); !ok {
				return nil
			}
			if !rec.SetAttr(sel.AttrScope, sel.AttrPath, op.Value) {
				return fmt.Errorf("redact %s: selector not applicable", sel)
			}
			return nil
		}
		if rec.GetField(sel.Field) == nil {
			return nil
		}
		if !rec.SetField(sel.Field, op.Value) {
			return fmt.Errorf("redact %s: field not writable", sel)
		}

	case TransformRename:
		if slices.Equal(sel.AttrPath, op.To) {
			return nil
		}
		value, ok := rec.GetAttr(sel.AttrScope, sel.AttrPath)
		if !ok {
			return nil
		}
		if _, exists := rec.GetAttr(sel.AttrScope, op.To); exists && !op.Upsert {
			return nil
		}
		if !rec.SetAttr(sel.AttrScope, op.To, string(value)) {
			return fmt.Errorf("rename %s: destination not writable", sel)
		}
		if !rec.RemoveAttr(sel.AttrScope, sel.AttrPath) {
			return fmt.Errorf("rename %s: source not removable", sel)
		}

	case TransformAdd:
		if sel.IsAttribute() {
			if _, exists := rec.GetAttr(sel.AttrScope, sel.AttrPath); exists && !op.Upsert {
				return nil
			}
			if !rec.SetAttr(sel.AttrScope, sel.AttrPath, op.Value) {
				return fmt.Errorf("add %s: selector not applicable", sel)
			}
			return nil
		}
		if rec.GetField(sel.Field) != nil && !op.Upsert {
			return nil
		}
		if !rec.SetField(sel.Field, op.Value) {
			return fmt.Errorf("add %s: field not writable", sel)
		}
	}
	return nil
}
