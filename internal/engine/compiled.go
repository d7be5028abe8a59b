package engine

import (
	"sync"

	"github.com/flier/gohs/hyperscan"
)

// PatternRef links a compiled pattern back to its source policy and matcher.
type PatternRef struct {
	PolicyID     string
	PolicyIndex  int // dense index for array-based tracking
	MatcherIndex int
}

// CompiledDatabase holds a Hyperscan database and scratch space for a group
// of patterns that share a MatchKey.
type CompiledDatabase struct {
	db           hyperscan.BlockDatabase
	scratch      *hyperscan.Scratch
	scratchPool  sync.Pool
	matchedPool  sync.Pool    // pool for []bool match results
	patternIndex []PatternRef // maps pattern ID -> policy
}

// Close releases resources associated with the compiled database.
func (c *CompiledDatabase) Close() error {
	if c.scratch != nil {
		if err := c.scratch.Free(); err != nil {
			return err
		}
		c.scratch = nil
	}
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

// PatternIndex returns the pattern index mapping pattern IDs to policies.
func (c *CompiledDatabase) PatternIndex() []PatternRef {
	return c.patternIndex
}

// Scan scans the input data against the compiled database and returns which
// patterns matched. The caller must call ReleaseMatched when done with the
// result to return it to the pool.
func (c *CompiledDatabase) Scan(data []byte) ([]bool, error) {
	var scratch *hyperscan.Scratch
	if pooled := c.scratchPool.Get(); pooled != nil {
		scratch = pooled.(*hyperscan.Scratch)
	} else {
		var err error
		scratch, err = c.scratch.Clone()
		if err != nil {
			return nil, err
		}
	}

	var matched []bool
	if pooled := c.matchedPool.Get(); pooled != nil {
		matched = pooled.([]bool)
		for i := range matched {
			matched[i] = false
		}
	} else {
		matched = make([]bool, len(c.patternIndex))
	}

	err := c.db.Scan(data, scratch, func(id uint, from, to uint64, flags uint, context any) error {
		matched[id] = true
		return nil
	}, nil)

	c.scratchPool.Put(scratch)

	if err != nil {
		c.matchedPool.Put(matched)
		return nil, err
	}

	return matched, nil
}

// ReleaseMatched returns a matched slice to the pool.
func (c *CompiledDatabase) ReleaseMatched(matched []bool) {
	if matched != nil {
		c.matchedPool.Put(matched)
	}
}

// DatabaseEntry pairs a MatchKey with its compiled database.
type DatabaseEntry struct {
	Key      MatchKey
	Database *CompiledDatabase
}

// ExistenceCheck represents a field existence matcher, which is evaluated
// directly against the record instead of through a pattern database.
type ExistenceCheck struct {
	Selector    FieldSelector
	MustExist   bool
	PolicyID    string
	PolicyIndex int
}

// CompiledPolicy holds the compiled representation of one policy for
// evaluation. Policies are indexed densely in ascending policy-id order, so
// iterating by index yields the deterministic order required for transform
// conflicts and trace threshold chaining.
type CompiledPolicy struct {
	ID           string
	Index        int
	MatcherCount int

	// Keep is the merged keep directive for log and metric targets.
	Keep Keep
	// SampleKey optionally seeds deterministic percent sampling (logs).
	SampleKey *FieldSelector
	// Sampling is set for trace targets.
	Sampling *TraceSampling

	RateLimiter *RateLimiter
	Stats       *PolicyStats
	Transforms  []CompiledTransform
}

// CompiledMatchers holds all compiled pattern databases and policies for one
// signal. It is immutable after build and safe for concurrent use.
type CompiledMatchers struct {
	databases       []DatabaseEntry
	existenceChecks []ExistenceCheck
	policies        map[string]*CompiledPolicy
	policyList      []*CompiledPolicy // index-ordered, ascending by policy id
	hasTransforms   bool
}

// Close releases all resources.
func (c *CompiledMatchers) Close() error {
	if c == nil {
		return nil
	}
	for _, entry := range c.databases {
		if err := entry.Database.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Databases returns the compiled databases.
func (c *CompiledMatchers) Databases() []DatabaseEntry {
	return c.databases
}

// ExistenceChecks returns the existence checks.
func (c *CompiledMatchers) ExistenceChecks() []ExistenceCheck {
	return c.existenceChecks
}

// GetPolicy returns a compiled policy by ID.
func (c *CompiledMatchers) GetPolicy(id string) (*CompiledPolicy, bool) {
	p, ok := c.policies[id]
	return p, ok
}

// PolicyCount returns the number of compiled policies.
func (c *CompiledMatchers) PolicyCount() int {
	return len(c.policyList)
}

// PolicyByIndex returns a compiled policy by its dense index.
func (c *CompiledMatchers) PolicyByIndex(index int) *CompiledPolicy {
	return c.policyList[index]
}

// HasTransforms reports whether any compiled policy carries transforms.
func (c *CompiledMatchers) HasTransforms() bool {
	return c.hasTransforms
}

// CompileResult contains compiled matchers for all telemetry signals.
type CompileResult struct {
	Logs    *CompiledMatchers
	Metrics *CompiledMatchers
	Traces  *CompiledMatchers
}

// Close releases all resources.
func (r *CompileResult) Close() error {
	if err := r.Logs.Close(); err != nil {
		return err
	}
	if err := r.Metrics.Close(); err != nil {
		return err
	}
	return r.Traces.Close()
}
