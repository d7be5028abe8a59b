package engine

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/flier/gohs/hyperscan"
)

// Warning describes a policy that was skipped at load time. Skipped policies
// never block loading of the rest of the set.
type Warning struct {
	PolicyID string
	Reason   string
}

func (w Warning) String() string {
	return fmt.Sprintf("policy %s skipped: %s", w.PolicyID, w.Reason)
}

// Compiler compiles policy sets into per-signal pattern databases.
type Compiler struct{}

// NewCompiler creates a new Compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile validates and compiles a policy set. Invalid policies are skipped
// and reported as warnings; disabled policies are excluded silently. The
// stats map supplies per-policy counters that survive recompilation.
func (c *Compiler) Compile(policies []*Policy, stats map[string]*PolicyStats) (*CompileResult, []Warning, error) {
	var warnings []Warning

	valid := make([]*Policy, 0, len(policies))
	seen := make(map[string]bool, len(policies))
	for _, p := range policies {
		if p == nil {
			continue
		}
		if err := ValidatePolicy(p); err != nil {
			warnings = append(warnings, Warning{PolicyID: p.ID, Reason: err.Error()})
			continue
		}
		if seen[p.ID] {
			warnings = append(warnings, Warning{PolicyID: p.ID, Reason: "duplicate policy id"})
			continue
		}
		seen[p.ID] = true
		if p.Disabled {
			continue
		}
		valid = append(valid, p)
	}

	// Dense indexes are assigned in ascending-id order so index iteration is
	// the deterministic evaluation order.
	sort.Slice(valid, func(i, j int) bool { return valid[i].ID < valid[j].ID })

	// Patterns are pre-validated, but Hyperscan can still reject a pattern
	// the validator accepted. When a group fails to compile, skip the
	// offending policies and retry so one bad pattern never sinks the set.
	excluded := make(map[string]bool)
	for {
		subset := valid
		if len(excluded) > 0 {
			subset = make([]*Policy, 0, len(valid))
			for _, p := range valid {
				if !excluded[p.ID] {
					subset = append(subset, p)
				}
			}
		}

		result, err := c.compileOnce(subset, stats)
		if err == nil {
			return result, warnings, nil
		}

		var gerr *groupCompileError
		if !errors.As(err, &gerr) || len(gerr.PolicyIDs) == 0 {
			return nil, warnings, err
		}
		for _, id := range gerr.PolicyIDs {
			if !excluded[id] {
				excluded[id] = true
				warnings = append(warnings, Warning{PolicyID: id, Reason: gerr.Err.Error()})
			}
		}
	}
}

func (c *Compiler) compileOnce(policies []*Policy, stats map[string]*PolicyStats) (*CompileResult, error) {
	logBuilder := newMatchersBuilder()
	metricBuilder := newMatchersBuilder()
	traceBuilder := newMatchersBuilder()

	for _, p := range policies {
		policyStats := stats[p.ID]

		switch {
		case p.Log != nil:
			idx := logBuilder.reservePolicy(p.ID)
			for i, m := range p.Log.Matchers {
				logBuilder.addMatcher(m, p.ID, idx, i)
			}
			logBuilder.finalizePolicy(compiledPolicyInput{
				id:           p.ID,
				index:        idx,
				keep:         p.Log.Keep,
				matcherCount: len(p.Log.Matchers),
				sampleKey:    p.Log.SampleKey,
				stats:        policyStats,
				transforms:   compileTransforms(p.Log.Transforms),
			})

		case p.Metric != nil:
			idx := metricBuilder.reservePolicy(p.ID)
			keep := Keep{Action: KeepAll}
			if p.Metric.Drop {
				keep = Keep{Action: KeepNone}
			}
			for i, m := range p.Metric.Matchers {
				metricBuilder.addMatcher(m, p.ID, idx, i)
			}
			metricBuilder.finalizePolicy(compiledPolicyInput{
				id:           p.ID,
				index:        idx,
				keep:         keep,
				matcherCount: len(p.Metric.Matchers),
				stats:        policyStats,
				transforms:   compileTransforms(p.Metric.Transforms),
			})

		case p.Trace != nil:
			idx := traceBuilder.reservePolicy(p.ID)
			sampling := p.Trace.Sampling
			if sampling == (TraceSampling{}) {
				// An unset keep means keep everything.
				sampling.Percentage = 100
			}
			for i, m := range p.Trace.Matchers {
				traceBuilder.addMatcher(m, p.ID, idx, i)
			}
			traceBuilder.finalizePolicy(compiledPolicyInput{
				id:           p.ID,
				index:        idx,
				sampling:     &sampling,
				matcherCount: len(p.Trace.Matchers),
				stats:        policyStats,
				transforms:   compileTransforms(p.Trace.Transforms),
			})
		}
	}

	logs, err := logBuilder.build()
	if err != nil {
		return nil, err
	}
	metrics, err := metricBuilder.build()
	if err != nil {
		logs.Close()
		return nil, err
	}
	traces, err := traceBuilder.build()
	if err != nil {
		logs.Close()
		metrics.Close()
		return nil, err
	}

	return &CompileResult{Logs: logs, Metrics: metrics, Traces: traces}, nil
}

// ValidatePolicy checks the structural invariants the engine relies on.
// Callers are expected to hand the engine pre-validated policies; this is the
// engine-side backstop that turns anything else into a load warning.
func ValidatePolicy(p *Policy) error {
	if p.ID == "" {
		return errors.New("policy id is required")
	}
	sig, ok := p.Signal()
	if !ok {
		return errors.New("policy must have exactly one target")
	}

	var matchers []Matcher
	var transforms []TransformOp
	switch sig {
	case SignalLog:
		matchers, transforms = p.Log.Matchers, p.Log.Transforms
		if k := p.Log.Keep; k.Action == KeepSample && (k.Value < 0 || k.Value > 100) {
			return fmt.Errorf("sample percentage %v out of range [0,100]", k.Value)
		}
		if sk := p.Log.SampleKey; sk != nil && sk.IsZero() {
			return errors.New("sample key selector references nothing")
		}
	case SignalMetric:
		matchers, transforms = p.Metric.Matchers, p.Metric.Transforms
	case SignalTrace:
		matchers, transforms = p.Trace.Matchers, p.Trace.Transforms
		s := p.Trace.Sampling
		if s.Percentage < 0 || s.Percentage > 100 {
			return fmt.Errorf("sampling percentage %v out of range [0,100]", s.Percentage)
		}
		if s.Precision > 14 {
			return fmt.Errorf("sampling precision %d out of range [1,14]", s.Precision)
		}
	}

	if len(matchers) == 0 {
		return errors.New("at least one matcher is required")
	}
	for i, m := range matchers {
		if err := validateMatcher(m); err != nil {
			return fmt.Errorf("matcher %d: %w", i, err)
		}
	}
	for i, op := range transforms {
		if err := validateTransform(op); err != nil {
			return fmt.Errorf("transform %d: %w", i, err)
		}
	}
	return nil
}

func validateMatcher(m Matcher) error {
	if m.Field.IsZero() {
		return errors.New("field selector references nothing")
	}
	n := 0
	for _, set := range []bool{
		m.Exact != "", m.Regex != "", m.StartsWith != "", m.EndsWith != "",
		m.Contains != "", m.Exists != nil,
	} {
		if set {
			n++
		}
	}
	if n != 1 {
		return errors.New("exactly one match condition must be set")
	}
	if m.Regex != "" {
		if _, err := regexp.Compile(m.Regex); err != nil {
			return fmt.Errorf("invalid regex %q: %w", m.Regex, err)
		}
	}
	return nil
}

func validateTransform(op TransformOp) error {
	if op.Field.IsZero() {
		return errors.New("field selector references nothing")
	}
	if op.Kind == TransformRename {
		if !op.Field.IsAttribute() {
			return errors.New("rename applies to attributes only")
		}
		if op.To == "" {
			return errors.New("rename requires a destination")
		}
	}
	return nil
}

// compiledPolicyInput carries everything finalizePolicy needs.
type compiledPolicyInput struct {
	id           string
	index        int
	keep         Keep
	sampling     *TraceSampling
	matcherCount int
	sampleKey    *FieldSelector
	stats        *PolicyStats
	transforms   []CompiledTransform
}

// matchersBuilder accumulates matchers for one signal and builds a
// CompiledMatchers.
type matchersBuilder struct {
	groups          map[matchKeyString][]patternEntry
	groupKeys       map[matchKeyString]MatchKey
	existenceChecks []ExistenceCheck
	policies        map[string]*CompiledPolicy
	policyList      []*CompiledPolicy
	policyIndices   map[string]int
	hasTransforms   bool
}

func newMatchersBuilder() *matchersBuilder {
	return &matchersBuilder{
		groups:        make(map[matchKeyString][]patternEntry),
		groupKeys:     make(map[matchKeyString]MatchKey),
		policies:      make(map[string]*CompiledPolicy),
		policyIndices: make(map[string]int),
	}
}

// reservePolicy reserves a dense slot for a policy and returns its index.
// This must be called before adding matchers for the policy.
func (b *matchersBuilder) reservePolicy(policyID string) int {
	if idx, ok := b.policyIndices[policyID]; ok {
		return idx
	}
	idx := len(b.policyList)
	b.policyIndices[policyID] = idx
	b.policyList = append(b.policyList, nil) // placeholder
	return idx
}

// addMatcher adds one matcher to the builder. Existence checks are kept
// aside; everything else becomes a pattern in a MatchKey group.
func (b *matchersBuilder) addMatcher(m Matcher, policyID string, policyIndex, matcherIndex int) {
	if m.Exists != nil {
		mustExist := *m.Exists
		if m.Negate {
			mustExist = !mustExist
		}
		b.existenceChecks = append(b.existenceChecks, ExistenceCheck{
			Selector:    m.Field,
			MustExist:   mustExist,
			PolicyID:    policyID,
			PolicyIndex: policyIndex,
		})
		return
	}

	pattern := extractMatchPattern(m)
	if pattern == "" {
		return
	}

	key := MatchKey{
		Selector:        m.Field,
		Negated:         m.Negate,
		CaseInsensitive: m.CaseInsensitive,
	}
	keyStr := makeMatchKeyString(key)

	b.groups[keyStr] = append(b.groups[keyStr], patternEntry{
		pattern:      pattern,
		policyID:     policyID,
		policyIndex:  policyIndex,
		matcherIndex: matcherIndex,
	})
	b.groupKeys[keyStr] = key
}

// finalizePolicy completes the policy with its keep directive and metadata.
func (b *matchersBuilder) finalizePolicy(in compiledPolicyInput) {
	var rateLimiter *RateLimiter
	switch in.keep.Action {
	case KeepRatePerSecond:
		rateLimiter = NewRateLimiterPerSecond(uint32(in.keep.Value))
	case KeepRatePerMinute:
		rateLimiter = NewRateLimiterPerMinute(uint32(in.keep.Value))
	}

	compiled := &CompiledPolicy{
		ID:           in.id,
		Index:        in.index,
		Keep:         in.keep,
		Sampling:     in.sampling,
		MatcherCount: in.matcherCount,
		SampleKey:    in.sampleKey,
		RateLimiter:  rateLimiter,
		Stats:        in.stats,
		Transforms:   in.transforms,
	}
	b.policies[in.id] = compiled
	b.policyList[in.index] = compiled
	if len(in.transforms) > 0 {
		b.hasTransforms = true
	}
}

// build compiles all pattern groups and returns the CompiledMatchers.
func (b *matchersBuilder) build() (*CompiledMatchers, error) {
	result := &CompiledMatchers{
		databases:       make([]DatabaseEntry, 0, len(b.groups)),
		existenceChecks: b.existenceChecks,
		policies:        b.policies,
		policyList:      b.policyList,
		hasTransforms:   b.hasTransforms,
	}

	for keyStr, entries := range b.groups {
		key := b.groupKeys[keyStr]
		db, err := compileGroup(entries, key.CaseInsensitive)
		if err != nil {
			result.Close()
			ids := make([]string, 0, len(entries))
			for _, e := range entries {
				ids = append(ids, e.policyID)
			}
			return nil, &groupCompileError{PolicyIDs: ids, Err: err}
		}
		result.databases = append(result.databases, DatabaseEntry{
			Key:      key,
			Database: db,
		})
	}

	return result, nil
}

// groupCompileError reports the policies whose patterns made a group fail.
type groupCompileError struct {
	PolicyIDs []string
	Err       error
}

func (e *groupCompileError) Error() string {
	return fmt.Sprintf("pattern group failed to compile: %v", e.Err)
}

func (e *groupCompileError) Unwrap() error { return e.Err }

// patternEntry holds a pattern and its source information.
type patternEntry struct {
	pattern      string
	policyID     string
	policyIndex  int
	matcherIndex int
}

// compileGroup compiles a group of patterns into a Hyperscan database.
func compileGroup(entries []patternEntry, caseInsensitive bool) (*CompiledDatabase, error) {
	patterns := make([]*hyperscan.Pattern, len(entries))
	patternIndex := make([]PatternRef, len(entries))

	flags := hyperscan.SingleMatch
	if caseInsensitive {
		flags |= hyperscan.Caseless
	}

	for i, e := range entries {
		patterns[i] = hyperscan.NewPattern(e.pattern, flags)
		patterns[i].Id = i

		patternIndex[i] = PatternRef{
			PolicyID:     e.policyID,
			PolicyIndex:  e.policyIndex,
			MatcherIndex: e.matcherIndex,
		}
	}

	db, err := hyperscan.NewBlockDatabase(patterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile hyperscan database: %w", err)
	}

	scratch, err := hyperscan.NewScratch(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to allocate scratch: %w", err)
	}

	return &CompiledDatabase{
		db:           db,
		scratch:      scratch,
		patternIndex: patternIndex,
	}, nil
}

// extractMatchPattern converts a matcher into its Hyperscan pattern.
// Exact matches are anchored on both ends; the other literal forms anchor
// one end or none.
func extractMatchPattern(m Matcher) string {
	switch {
	case m.Regex != "":
		return m.Regex
	case m.Exact != "":
		return "^" + escapeRegex(m.Exact) + "$"
	case m.StartsWith != "":
		return "^" + escapeRegex(m.StartsWith)
	case m.EndsWith != "":
		return escapeRegex(m.EndsWith) + "$"
	case m.Contains != "":
		return escapeRegex(m.Contains)
	default:
		return ""
	}
}

// escapeRegex escapes special regex characters for literal matching.
func escapeRegex(s string) string {
	special := `\.+*?^$()[]{}|`
	result := make([]byte, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		for j := 0; j < len(special); j++ {
			if c == special[j] {
				result = append(result, '\\')
				break
			}
		}
		result = append(result, c)
	}
	return string(result)
}
