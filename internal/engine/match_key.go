package engine

import (
	"fmt"
	"strings"
)

// MatchKey identifies a group of patterns that share the same field selector,
// negation, and case sensitivity. Patterns are grouped by MatchKey so each
// distinct field is scanned exactly once per record, regardless of how many
// policies match on it.
type MatchKey struct {
	Selector        FieldSelector
	Negated         bool
	CaseInsensitive bool
}

// matchKeyString is the map key form of a MatchKey, used only during
// compilation for grouping patterns.
type matchKeyString string

func makeMatchKeyString(k MatchKey) matchKeyString {
	var s strings.Builder
	fmt.Fprintf(&s, "%d|%d|", k.Selector.Field, k.Selector.AttrScope)
	s.WriteString(strings.Join(k.Selector.AttrPath, "."))
	fmt.Fprintf(&s, "|%t|%t", k.Negated, k.CaseInsensitive)
	return matchKeyString(s.String())
}
