package policy

import (
	"sync/atomic"

	"github.com/arbiterhq/policy-go/internal/engine"
)

// PolicySnapshot is an immutable, read-only view of one compiled policy set.
// It is safe for concurrent use across multiple goroutines. Readers observe
// either the old or the new snapshot in full, never a mix: Load builds a
// complete snapshot before swapping it in.
type PolicySnapshot struct {
	logs    *engine.CompiledMatchers
	metrics *engine.CompiledMatchers
	traces  *engine.CompiledMatchers
	stats   map[string]*PolicyStats

	// refCount guards the Hyperscan resources. The snapshot holds one
	// reference while active; each in-flight evaluation holds another.
	refCount atomic.Int64
}

func newPolicySnapshot(compiled *engine.CompileResult, stats map[string]*PolicyStats) *PolicySnapshot {
	s := &PolicySnapshot{
		logs:    compiled.Logs,
		metrics: compiled.Metrics,
		traces:  compiled.Traces,
		stats:   stats,
	}
	s.refCount.Store(1)
	return s
}

func (s *PolicySnapshot) matchersFor(sig Signal) *engine.CompiledMatchers {
	switch sig {
	case SignalLog:
		return s.logs
	case SignalMetric:
		return s.metrics
	case SignalTrace:
		return s.traces
	default:
		return nil
	}
}

// GetStats returns the stats for a policy, or nil if not found.
func (s *PolicySnapshot) GetStats(policyID string) *PolicyStats {
	return s.stats[policyID]
}

// PolicyCount returns the number of compiled policies for a signal.
func (s *PolicySnapshot) PolicyCount(sig Signal) int {
	m := s.matchersFor(sig)
	if m == nil {
		return 0
	}
	return m.PolicyCount()
}

// tryRetain increments the reference count unless the snapshot is already
// tearing down. Used by the evaluation path; pairs with Release.
func (s *PolicySnapshot) tryRetain() bool {
	for {
		n := s.refCount.Load()
		if n <= 0 {
			return false
		}
		if s.refCount.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Retain increments the reference count. Call this to keep the snapshot
// alive beyond the current evaluation.
func (s *PolicySnapshot) Retain() {
	s.refCount.Add(1)
}

// Release decrements the reference count. When the count reaches zero, the
// compiled pattern databases are freed.
func (s *PolicySnapshot) Release() {
	if s.refCount.Add(-1) == 0 {
		s.logs.Close()
		s.metrics.Close()
		s.traces.Close()
	}
}
