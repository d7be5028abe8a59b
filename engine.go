package policy

import (
	"sync"
	"sync/atomic"

	"github.com/arbiterhq/policy-go/internal/engine"
)

// Result is the outcome of evaluating one record. When Kept is true the
// record was mutated in place by any matching transforms; when false the
// caller should drop it. Diagnostics report contained per-policy failures;
// the affected policies acted as if absent for this record.
type Result struct {
	Kept            bool
	MatchedPolicies []string
	Diagnostics     []Diagnostic
}

// Engine evaluates telemetry records against the active policy snapshot.
// Evaluation is lock-free: Load builds a complete snapshot off to the side
// and swaps it in atomically, so concurrent evaluations observe either the
// old set or the new set in full, never a mix.
type Engine struct {
	mu       sync.Mutex // serializes Load
	snapshot atomic.Pointer[PolicySnapshot]
	compiler *engine.Compiler

	// stats persists per-policy counters across reloads, keyed by policy id.
	// Guarded by mu; the snapshot shares the same pointers for lock-free
	// recording on the hot path.
	stats map[string]*PolicyStats
}

// NewEngine creates an engine with no policies loaded. Every record is kept
// until the first successful Load.
func NewEngine() *Engine {
	return &Engine{
		compiler: engine.NewCompiler(),
		stats:    make(map[string]*PolicyStats),
	}
}

// Load validates and compiles a policy set and atomically replaces the
// active snapshot. Invalid policies are skipped and reported as warnings;
// they never block loading of the rest. Stats counters carry over for
// policies whose id survives the reload; rate-limit windows do not, since a
// replaced policy is a structurally new entity.
func (e *Engine) Load(policies []*Policy) ([]ValidationWarning, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := make(map[string]*PolicyStats, len(policies))
	for _, p := range policies {
		if p == nil || p.ID == "" {
			continue
		}
		if existing, ok := e.stats[p.ID]; ok {
			stats[p.ID] = existing
		} else {
			stats[p.ID] = &PolicyStats{}
		}
	}

	compiled, warnings, err := e.compiler.Compile(policies, stats)
	if err != nil {
		return warnings, WrapError(ErrPolicyLoad, "compiling policy set", err)
	}

	e.stats = stats

	snap := newPolicySnapshot(compiled, stats)
	if old := e.snapshot.Swap(snap); old != nil {
		old.Release()
	}
	return warnings, nil
}

// Close releases the active snapshot. The engine keeps every record after
// Close; in-flight evaluations finish against the old snapshot.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old := e.snapshot.Swap(nil); old != nil {
		old.Release()
	}
}

// Snapshot returns the active snapshot with a reference held, or nil when
// nothing is loaded. The caller must Release it.
func (e *Engine) Snapshot() *PolicySnapshot {
	return e.acquire()
}

// Stats drains the per-policy counters into snapshots. Counters reset on
// read, so successive calls report deltas.
func (e *Engine) Stats() []PolicyStatsSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]PolicyStatsSnapshot, 0, len(e.stats))
	for id, s := range e.stats {
		out = append(out, s.Snapshot(id))
	}
	return out
}

// StatsCollector returns a collector bound to this engine, for registering
// with whatever reporting pipeline the caller runs. Each call to the
// collector drains the counters like Stats does.
func (e *Engine) StatsCollector() StatsCollector {
	return e.Stats
}

// acquire loads the active snapshot and retains it, retrying if a concurrent
// Load releases the snapshot between the load and the retain.
func (e *Engine) acquire() *PolicySnapshot {
	for {
		snap := e.snapshot.Load()
		if snap == nil {
			return nil
		}
		if snap.tryRetain() {
			return snap
		}
	}
}

// EvaluateLog evaluates a log record against the active log policies,
// applying transforms in place when the record is kept.
func (e *Engine) EvaluateLog(rec LogRecord) Result {
	snap := e.acquire()
	if snap == nil {
		return Result{Kept: true}
	}
	defer snap.Release()

	var diags []Diagnostic
	matched := matchPolicies(snap.logs, rec, &diags)

	kept := true
	for _, p := range matched {
		if p.Stats != nil {
			p.Stats.RecordMatchHit()
		}
		if !logWouldKeep(p, rec) {
			kept = false
		}
	}

	if kept && len(matched) > 0 {
		applyTransforms(rec, matched, &diags)
	}

	return Result{Kept: kept, MatchedPolicies: policyIDs(matched), Diagnostics: diags}
}

// EvaluateMetric evaluates a metric record against the active metric
// policies, applying transforms in place when the record is kept.
func (e *Engine) EvaluateMetric(rec MetricRecord) Result {
	snap := e.acquire()
	if snap == nil {
		return Result{Kept: true}
	}
	defer snap.Release()

	var diags []Diagnostic
	matched := matchPolicies(snap.metrics, rec, &diags)

	kept := true
	for _, p := range matched {
		if p.Stats != nil {
			p.Stats.RecordMatchHit()
		}
		if p.Keep.Action == engine.KeepNone {
			kept = false
			if p.Stats != nil {
				p.Stats.RecordDrop()
			}
		}
	}

	if kept && len(matched) > 0 {
		applyTransforms(rec, matched, &diags)
	}

	return Result{Kept: kept, MatchedPolicies: policyIDs(matched), Diagnostics: diags}
}

// EvaluateTrace evaluates a span against the active trace policies. Matching
// policies apply in ascending policy-id order, threading the tracestate
// threshold through each; the final survive decision is the last one
// successfully evaluated. Transforms apply in place when the span is kept.
func (e *Engine) EvaluateTrace(span SpanRecord) Result {
	snap := e.acquire()
	if snap == nil {
		return Result{Kept: true}
	}
	defer snap.Release()

	var diags []Diagnostic
	matched := matchPolicies(snap.traces, span, &diags)

	kept := true
	forcedDrop := false
	for _, p := range matched {
		if p.Stats != nil {
			p.Stats.RecordMatchHit()
		}
		if p.Sampling == nil {
			continue
		}

		keep, threshold, write, err := sampleSpan(p.Sampling, span)
		if err != nil {
			diags = append(diags, Diagnostic{PolicyID: p.ID, Stage: StageKeep, Kind: ErrSampling, Err: err})
			if p.Stats != nil {
				p.Stats.RecordError()
			}
			if p.Sampling.FailClosed {
				forcedDrop = true
				if p.Stats != nil {
					p.Stats.RecordDrop()
				}
			}
			// fail-open: the policy acts as absent for this span
			continue
		}

		if write {
			propagateThreshold(span, threshold, p.Sampling.Precision)
		}
		kept = keep
		if !keep && p.Stats != nil {
			p.Stats.RecordSample()
		}
	}
	if forcedDrop {
		kept = false
	}

	if kept && len(matched) > 0 {
		applyTransforms(span, matched, &diags)
	}

	return Result{Kept: kept, MatchedPolicies: policyIDs(matched), Diagnostics: diags}
}

// logWouldKeep classifies one matching log policy's keep directive for this
// record. Every matching policy is consulted independently (rate limiters in
// particular consume a slot whether or not another policy already dropped
// the record), and the decisions AND together.
func logWouldKeep(p *engine.CompiledPolicy, rec LogRecord) bool {
	switch p.Keep.Action {
	case engine.KeepNone:
		if p.Stats != nil {
			p.Stats.RecordDrop()
		}
		return false
	case engine.KeepSample:
		keep := samplePercentLog(p, rec)
		if !keep && p.Stats != nil {
			p.Stats.RecordSample()
		}
		return keep
	case engine.KeepRatePerSecond, engine.KeepRatePerMinute:
		if p.RateLimiter == nil {
			return true
		}
		keep := p.RateLimiter.Allow()
		if !keep && p.Stats != nil {
			p.Stats.RecordRateLimited()
		}
		return keep
	default:
		return true
	}
}

// applyTransforms runs the transform pipeline over the matched policies,
// converting per-operation failures into diagnostics.
func applyTransforms(rec Record, matched []*engine.CompiledPolicy, diags *[]Diagnostic) {
	hasTransforms := false
	for _, p := range matched {
		if len(p.Transforms) > 0 {
			hasTransforms = true
			break
		}
	}
	if !hasTransforms {
		return
	}

	failed := make(map[string]bool)
	engine.ApplyTransforms(rec, matched, func(policyID string, op engine.CompiledTransform, err error) {
		*diags = append(*diags, Diagnostic{PolicyID: policyID, Stage: StageTransform, Kind: ErrTransform, Err: err})
		failed[policyID] = true
	})

	for _, p := range matched {
		if len(p.Transforms) == 0 || p.Stats == nil {
			continue
		}
		if failed[p.ID] {
			p.Stats.RecordError()
		} else {
			p.Stats.RecordTransform()
		}
	}
}

func policyIDs(matched []*engine.CompiledPolicy) []string {
	if len(matched) == 0 {
		return nil
	}
	ids := make([]string, len(matched))
	for i, p := range matched {
		ids[i] = p.ID
	}
	return ids
}

// evalState holds per-evaluation scratch arrays indexed by dense policy
// index. Pooled to keep the hot path allocation-free.
type evalState struct {
	matchCounts  []int
	disqualified []bool
}

var evalStatePool = sync.Pool{
	New: func() any { return &evalState{} },
}

func (s *evalState) reset(n int) {
	if cap(s.matchCounts) < n {
		s.matchCounts = make([]int, n)
		s.disqualified = make([]bool, n)
		return
	}
	s.matchCounts = s.matchCounts[:n]
	s.disqualified = s.disqualified[:n]
	for i := range s.matchCounts {
		s.matchCounts[i] = 0
		s.disqualified[i] = false
	}
}

// matchPolicies evaluates all compiled matchers for one signal against a
// record and returns the fully-matched policies in dense-index (ascending
// policy id) order. A scan failure disqualifies only the policies behind the
// failing database, with a diagnostic each; everything else proceeds.
func matchPolicies(m *engine.CompiledMatchers, rec Record, diags *[]Diagnostic) []*engine.CompiledPolicy {
	if m == nil {
		return nil
	}
	n := m.PolicyCount()
	if n == 0 {
		return nil
	}

	state := evalStatePool.Get().(*evalState)
	state.reset(n)
	defer evalStatePool.Put(state)

	for _, check := range m.ExistenceChecks() {
		if state.disqualified[check.PolicyIndex] {
			continue
		}
		if fieldExists(rec, check.Selector) == check.MustExist {
			state.matchCounts[check.PolicyIndex]++
		} else {
			state.disqualified[check.PolicyIndex] = true
		}
	}

	for _, entry := range m.Databases() {
		key := entry.Key
		refs := entry.Database.PatternIndex()

		value := resolveField(rec, key.Selector)
		if len(value) == 0 {
			// Absent field: positive matchers fail, negated matchers succeed.
			for _, ref := range refs {
				if key.Negated {
					state.matchCounts[ref.PolicyIndex]++
				} else {
					state.disqualified[ref.PolicyIndex] = true
				}
			}
			continue
		}

		matched, err := entry.Database.Scan(value)
		if err != nil {
			for _, ref := range refs {
				if state.disqualified[ref.PolicyIndex] {
					continue
				}
				state.disqualified[ref.PolicyIndex] = true
				*diags = append(*diags, Diagnostic{
					PolicyID: ref.PolicyID,
					Stage:    StageMatch,
					Kind:     ErrMatchEvaluation,
					Err:      err,
				})
				if p := m.PolicyByIndex(ref.PolicyIndex); p.Stats != nil {
					p.Stats.RecordError()
				}
			}
			continue
		}

		for i, hit := range matched {
			ref := refs[i]
			if hit != key.Negated {
				state.matchCounts[ref.PolicyIndex]++
			} else {
				state.disqualified[ref.PolicyIndex] = true
			}
		}
		entry.Database.ReleaseMatched(matched)
	}

	var out []*engine.CompiledPolicy
	for i := 0; i < n; i++ {
		if state.disqualified[i] {
			continue
		}
		p := m.PolicyByIndex(i)
		if state.matchCounts[i] == p.MatcherCount {
			out = append(out, p)
		}
	}
	return out
}

// resolveField resolves a selector against a record, returning nil when the
// field is absent or its value is not a scalar.
func resolveField(rec Record, sel engine.FieldSelector) []byte {
	if sel.IsAttribute() {
		value, ok := rec.GetAttr(sel.AttrScope, sel.AttrPath)
		if !ok {
			return nil
		}
		return value
	}
	return rec.GetField(sel.Field)
}

// fieldExists reports presence without reading the value; a non-scalar
// attribute (nested map) still counts as present.
func fieldExists(rec Record, sel engine.FieldSelector) bool {
	if sel.IsAttribute() {
		_, ok := rec.GetAttr(sel.AttrScope, sel.AttrPath)
		return ok
	}
	return rec.GetField(sel.Field) != nil
}
