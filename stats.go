package policy

import "github.com/arbiterhq/policy-go/internal/engine"

// Re-export stats types from internal/engine.
type (
	PolicyStats         = engine.PolicyStats
	PolicyStatsSnapshot = engine.PolicyStatsSnapshot
)

// StatsCollector is a function that returns current stats for all policies.
// Callers can register it with whatever reporting pipeline they run.
type StatsCollector func() []PolicyStatsSnapshot
