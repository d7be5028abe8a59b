package policy

import "github.com/arbiterhq/policy-go/internal/engine"

// Re-export keep types from internal/engine.
type (
	KeepAction    = engine.KeepAction
	Keep          = engine.Keep
	SamplingMode  = engine.SamplingMode
	TraceSampling = engine.TraceSampling
)

// KeepAction constants.
const (
	KeepAll           = engine.KeepAll
	KeepNone          = engine.KeepNone
	KeepSample        = engine.KeepSample
	KeepRatePerSecond = engine.KeepRatePerSecond
	KeepRatePerMinute = engine.KeepRatePerMinute
)

// SamplingMode constants.
const (
	SamplingModeHashSeed     = engine.SamplingModeHashSeed
	SamplingModeProportional = engine.SamplingModeProportional
	SamplingModeEqualizing   = engine.SamplingModeEqualizing
)

// ParseKeep parses a keep string ("", "all", "none", "N%", "N/s", "N/m")
// into a Keep struct.
var ParseKeep = engine.ParseKeep

// KeepAllAction returns a Keep that keeps all telemetry.
func KeepAllAction() Keep {
	return Keep{Action: KeepAll}
}

// KeepNoneAction returns a Keep that drops all telemetry.
func KeepNoneAction() Keep {
	return Keep{Action: KeepNone}
}

// KeepSampleAction returns a Keep that samples at the given percentage.
func KeepSampleAction(percentage float64) Keep {
	return Keep{Action: KeepSample, Value: percentage}
}

// KeepRatePerSecondAction returns a Keep that rate limits per second.
func KeepRatePerSecondAction(rate uint32) Keep {
	return Keep{Action: KeepRatePerSecond, Value: float64(rate)}
}

// KeepRatePerMinuteAction returns a Keep that rate limits per minute.
func KeepRatePerMinuteAction(rate uint32) Keep {
	return Keep{Action: KeepRatePerMinute, Value: float64(rate)}
}
