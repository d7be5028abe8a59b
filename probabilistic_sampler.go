package policy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/arbiterhq/policy-go/internal/engine"
)

// maxThreshold is 2^56, the maximum value for the 56-bit threshold/randomness space.
const maxThreshold uint64 = 1 << 56

var errNoRandomness = errors.New("span has no trace id or tracestate randomness")

// sampleSpan evaluates one trace policy's sampling configuration against a
// span, implementing consistent probability sampling per the OpenTelemetry
// specification:
// https://opentelemetry.io/docs/specs/otel/trace/tracestate-probability-sampling/
//
// It returns the keep decision plus the rejection threshold to propagate
// (writeThreshold false when there is nothing to write back). Errors are
// resolved by the caller via the config's fail-closed flag.
//
// Dispatches on the sampling mode:
//   - hash_seed (default): R >= T using hash(traceID, seed) for randomness
//   - proportional: T is scaled by the incoming tracestate probability so the
//     effective overall rate approximates the configured percentage
//   - equalizing: T applies only when more restrictive than the incoming
//     threshold; already-sampled spans pass through unchanged
func sampleSpan(cfg *engine.TraceSampling, span SpanRecord) (keep bool, threshold uint64, writeThreshold bool, err error) {
	percentage := cfg.Percentage
	if percentage >= 100 {
		return true, 0, false, nil
	}
	if percentage <= 0 {
		return false, 0, false, nil
	}

	switch cfg.Mode {
	case engine.SamplingModeProportional:
		return sampleSpanProportional(percentage, span)
	case engine.SamplingModeEqualizing:
		return sampleSpanEqualizing(percentage, span)
	default:
		return sampleSpanHashSeed(percentage, cfg.HashSeed, span)
	}
}

// sampleSpanHashSeed implements hash_seed sampling. With a non-zero seed the
// trace ID is hashed with the seed, so any process using the same seed makes
// the same decision for the same trace. With a zero seed the explicit
// tracestate randomness (rv) or the raw trace ID bits are used.
func sampleSpanHashSeed(percentage float64, seed uint32, span SpanRecord) (bool, uint64, bool, error) {
	var randomness uint64
	var ok bool

	if seed != 0 {
		randomness, ok = traceRandomnessWithSeed(span, seed)
	} else {
		randomness, ok = traceRandomness(span)
	}
	if !ok {
		return false, 0, false, errNoRandomness
	}

	threshold := calculateRejectionThreshold(percentage)
	return randomness >= threshold, threshold, true, nil
}

// sampleSpanProportional adjusts the threshold relative to the incoming
// tracestate probability: T_o = ProbabilityToThreshold(p * ThresholdToProbability(T_s)).
func sampleSpanProportional(percentage float64, span SpanRecord) (bool, uint64, bool, error) {
	randomness, ok := traceRandomness(span)
	if !ok {
		return false, 0, false, errNoRandomness
	}

	incoming := uint64(0) // T_s=0 means probability 1.0 (no prior sampling)
	if ts := span.TraceState(); len(ts) > 0 {
		if th, thOK := parseTracestateThreshold(ts); thOK {
			incoming = th
		}
	}

	p := percentage / 100.0
	pS := thresholdToProbability(incoming)
	productProb := p * pS
	if productProb <= 0 {
		return false, 0, false, nil
	}
	tO := probabilityToThreshold(productProb)
	if tO >= maxThreshold {
		// Below the minimum expressible probability.
		return false, 0, false, nil
	}

	return randomness >= tO, tO, true, nil
}

// sampleSpanEqualizing aims for all spans leaving this stage to carry equal
// thresholds: spans already sampled harder than the target pass through
// unchanged, everything else gets the target threshold applied.
func sampleSpanEqualizing(percentage float64, span SpanRecord) (bool, uint64, bool, error) {
	randomness, ok := traceRandomness(span)
	if !ok {
		return false, 0, false, errNoRandomness
	}

	incoming := uint64(0)
	if ts := span.TraceState(); len(ts) > 0 {
		if th, thOK := parseTracestateThreshold(ts); thOK {
			incoming = th
		}
	}

	target := calculateRejectionThreshold(percentage)
	if incoming > target {
		return true, 0, false, nil
	}

	return randomness >= target, target, true, nil
}

// propagateThreshold writes the threshold into the span's tracestate ot=
// entry as a compact th sub-key. Thresholds only ever increase: a threshold
// at or below one already present leaves the tracestate untouched.
func propagateThreshold(span SpanRecord, threshold uint64, precision uint32) {
	ts := span.TraceState()
	if existing, ok := parseTracestateThreshold(ts); ok && existing >= threshold {
		return
	}

	span.SetTraceState(tracestateWithThreshold(ts, threshold, precision))
}

// tracestateWithThreshold returns the tracestate with the ot= entry's th
// sub-key set to the encoded threshold, inserting the entry or the sub-key
// as needed.
func tracestateWithThreshold(ts []byte, threshold uint64, precision uint32) string {
	enc := "th:" + encodeThreshold(threshold, precision)

	otStart := findOTelEntry(ts)
	if otStart < 0 {
		if len(ts) == 0 {
			return "ot=" + enc
		}
		return "ot=" + enc + "," + string(ts)
	}

	// Locate the ot entry's value and splice the th sub-key in.
	otEnd := otStart
	for otEnd < len(ts) && ts[otEnd] != ',' {
		otEnd++
	}

	value := ts[otStart:otEnd]
	thStart := findSubKey(value, []byte("th:"))
	var newValue string
	if thStart < 0 {
		if len(value) == 0 {
			newValue = enc
		} else {
			newValue = string(value) + ";" + enc
		}
	} else {
		thEnd := thStart
		for thEnd < len(value) && value[thEnd] != ';' {
			thEnd++
		}
		newValue = string(value[:thStart]) + enc + string(value[thEnd:])
	}

	return string(ts[:otStart]) + newValue + string(ts[otEnd:])
}

// samplePercentLog decides deterministic percent sampling for a log record.
// Randomness is a hash of (policy id, record identity), so re-evaluating the
// same record against the same policy reproduces the decision, and two
// percent policies make independent decisions for the same record. The
// identity is the configured sample key when present, otherwise the trace id,
// otherwise the body; records with no usable identity are kept (fail-open).
func samplePercentLog(p *engine.CompiledPolicy, record LogRecord) bool {
	percentage := p.Keep.Value
	if percentage >= 100 {
		return true
	}
	if percentage <= 0 {
		return false
	}

	var identity []byte
	if p.SampleKey != nil {
		identity = resolveField(record, *p.SampleKey)
	}
	if len(identity) == 0 {
		identity = record.GetField(engine.FieldTraceID)
	}
	if len(identity) == 0 {
		identity = record.GetField(engine.FieldBody)
	}
	if len(identity) == 0 {
		return true
	}

	h := fnv.New64a()
	h.Write([]byte(p.ID))
	h.Write([]byte{0})
	h.Write(identity)
	randomness := h.Sum64() & (maxThreshold - 1)

	return randomness >= calculateRejectionThreshold(percentage)
}

// traceRandomness extracts the 56-bit randomness value for sampling. It
// first checks for explicit randomness in tracestate (rv sub-key), then
// falls back to the least-significant 56 bits of the trace ID.
func traceRandomness(span SpanRecord) (uint64, bool) {
	if ts := span.TraceState(); len(ts) > 0 {
		if rv, ok := parseTracestateRandomness(ts); ok {
			return rv, true
		}
	}

	traceID := span.GetField(engine.FieldTraceID)
	if len(traceID) == 0 {
		return 0, false
	}
	return extractRandomnessFromTraceID(traceID), true
}

// traceRandomnessWithSeed hashes the trace ID with a seed using FNV-64a to
// produce deterministic 56-bit randomness.
func traceRandomnessWithSeed(span SpanRecord, seed uint32) (uint64, bool) {
	traceID := span.GetField(engine.FieldTraceID)
	if len(traceID) == 0 {
		return 0, false
	}

	h := fnv.New64a()
	h.Write(traceID)
	var seedBytes [4]byte
	binary.LittleEndian.PutUint32(seedBytes[:], seed)
	h.Write(seedBytes[:])
	return h.Sum64() & (maxThreshold - 1), true
}

// extractRandomnessFromTraceID extracts the least-significant 56 bits from a
// trace ID. Per the OTel spec this is the source of randomness when explicit
// rv is not present.
func extractRandomnessFromTraceID(traceID []byte) uint64 {
	// Handle both binary (16 bytes) and hex-encoded (32 bytes) trace IDs.
	var raw []byte
	switch {
	case len(traceID) == 32:
		// Hex-encoded, decode the last 14 hex chars (7 bytes = 56 bits).
		raw = make([]byte, 7)
		hexDecode(raw, traceID[len(traceID)-14:])
	case len(traceID) >= 7:
		raw = traceID[len(traceID)-7:]
	case len(traceID) > 0:
		raw = traceID
	default:
		return 0
	}

	var result uint64
	for _, b := range raw {
		result = (result << 8) | uint64(b)
	}
	return result & (maxThreshold - 1)
}

// hexDecode decodes hex bytes into dst. Simple implementation for trace ID parsing.
func hexDecode(dst, src []byte) {
	for i := 0; i < len(dst) && i*2+1 < len(src); i++ {
		dst[i] = hexVal(src[i*2])<<4 | hexVal(src[i*2+1])
	}
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

// parseTracestateRandomness extracts the rv (randomness) value from OTel
// tracestate. Format: "ot=...;rv:XXXXXXXXXXXXXX;..." with exactly 14 hex digits.
func parseTracestateRandomness(traceState []byte) (uint64, bool) {
	otStart := findOTelEntry(traceState)
	if otStart < 0 {
		return 0, false
	}

	rvStart := findSubKey(traceState[otStart:], []byte("rv:"))
	if rvStart < 0 {
		return 0, false
	}
	rvStart += otStart + 3 // skip "rv:"

	if rvStart+14 > len(traceState) {
		return 0, false
	}
	rvHex := traceState[rvStart : rvStart+14]

	var rv uint64
	for _, c := range rvHex {
		rv = (rv << 4) | uint64(hexVal(c))
	}
	return rv, true
}

// parseTracestateThreshold extracts the th (threshold) value from OTel
// tracestate. Format: "ot=...;th:XXXX;..." where th is 1-14 hex digits with
// trailing zeros removed; the value is left-aligned in 56 bits.
func parseTracestateThreshold(traceState []byte) (uint64, bool) {
	otStart := findOTelEntry(traceState)
	if otStart < 0 {
		return 0, false
	}

	thStart := findSubKey(traceState[otStart:], []byte("th:"))
	if thStart < 0 {
		return 0, false
	}
	thStart += otStart + 3 // skip "th:"

	thEnd := thStart
	for thEnd < len(traceState) && traceState[thEnd] != ';' && traceState[thEnd] != ',' {
		thEnd++
	}

	hexDigits := traceState[thStart:thEnd]
	if len(hexDigits) == 0 || len(hexDigits) > 14 {
		return 0, false
	}

	var th uint64
	for _, c := range hexDigits {
		th = (th << 4) | uint64(hexVal(c))
	}
	// Left-shift to fill the remaining bits (missing trailing digits are zero).
	th <<= uint(14-len(hexDigits)) * 4

	return th, true
}

// thresholdToProbability converts a 56-bit rejection threshold to a
// probability in [0, 1]: probability = (maxThreshold - T) / maxThreshold.
func thresholdToProbability(t uint64) float64 {
	if t >= maxThreshold {
		return 0
	}
	return float64(maxThreshold-t) / float64(maxThreshold)
}

// probabilityToThreshold converts a probability in [0, 1] to a 56-bit
// rejection threshold: T = maxThreshold - p * maxThreshold.
func probabilityToThreshold(p float64) uint64 {
	if p >= 1.0 {
		return 0
	}
	if p <= 0 {
		return maxThreshold
	}
	return maxThreshold - uint64(p*float64(maxThreshold))
}

// findOTelEntry finds the "ot=" entry in tracestate, returning the index
// after "ot=", or -1.
func findOTelEntry(traceState []byte) int {
	for i := 0; i <= len(traceState)-3; i++ {
		if traceState[i] == 'o' && traceState[i+1] == 't' && traceState[i+2] == '=' {
			if i == 0 || traceState[i-1] == ',' {
				return i + 3
			}
		}
	}
	return -1
}

// findSubKey finds a sub-key like "rv:" within an OTel tracestate entry.
func findSubKey(data, key []byte) int {
	for i := 0; i <= len(data)-len(key); i++ {
		if i == 0 || data[i-1] == ';' {
			match := true
			for j := 0; j < len(key); j++ {
				if data[i+j] != key[j] {
					match = false
					break
				}
			}
			if match {
				return i
			}
		}
	}
	return -1
}

// encodeThreshold converts a 56-bit threshold to a compact hex string for
// the OTel tracestate th sub-key. Trailing zero digits are removed per the
// OTel spec, but at least precision digits (1-14, default 4) are always
// emitted.
func encodeThreshold(threshold uint64, precision uint32) string {
	if precision < 1 {
		precision = 4
	}
	if precision > 14 {
		precision = 14
	}

	hex := fmt.Sprintf("%014x", threshold)

	lastNonZero := 0
	for i := len(hex) - 1; i >= 0; i-- {
		if hex[i] != '0' {
			lastNonZero = i + 1
			break
		}
	}

	length := int(precision)
	if lastNonZero > length {
		length = lastNonZero
	}
	return hex[:length]
}

// calculateRejectionThreshold calculates the 56-bit rejection threshold from
// a keep percentage: T = (1 - percentage/100) * 2^56.
func calculateRejectionThreshold(percentage float64) uint64 {
	if percentage >= 100 {
		return 0 // R >= 0 is always true
	}
	if percentage <= 0 {
		return maxThreshold
	}

	rejectionProbability := 1.0 - (percentage / 100.0)
	return uint64(rejectionProbability * float64(maxThreshold))
}
