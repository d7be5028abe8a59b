package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeep(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Keep
		wantErr bool
	}{
		{"empty means all", "", Keep{Action: KeepAll}, false},
		{"all", "all", Keep{Action: KeepAll}, false},
		{"none", "none", Keep{Action: KeepNone}, false},
		{"percent", "10%", Keep{Action: KeepSample, Value: 10}, false},
		{"zero percent", "0%", Keep{Action: KeepSample, Value: 0}, false},
		{"full percent", "100%", Keep{Action: KeepSample, Value: 100}, false},
		{"fractional percent", "12.5%", Keep{Action: KeepSample, Value: 12.5}, false},
		{"per second", "100/s", Keep{Action: KeepRatePerSecond, Value: 100}, false},
		{"per minute", "5000/m", Keep{Action: KeepRatePerMinute, Value: 5000}, false},
		{"percent over 100", "101%", Keep{}, true},
		{"negative percent", "-1%", Keep{}, true},
		{"non-numeric percent", "abc%", Keep{}, true},
		{"negative rate", "-5/s", Keep{}, true},
		{"fractional rate", "1.5/s", Keep{}, true},
		{"unknown directive", "everything", Keep{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKeep(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldSelectorIsZero(t *testing.T) {
	var zero FieldSelector
	assert.True(t, zero.IsZero())

	body := FieldSelector{Field: FieldBody}
	assert.False(t, body.IsZero())
	assert.False(t, body.IsAttribute())

	attr := FieldSelector{AttrScope: AttrScopeRecord, AttrPath: []string{"user", "email"}}
	assert.False(t, attr.IsZero())
	assert.True(t, attr.IsAttribute())
}

func TestFieldSelectorString(t *testing.T) {
	attr := FieldSelector{AttrScope: AttrScopeResource, AttrPath: []string{"service", "name"}}
	assert.Equal(t, "resource.service.name", attr.String())

	recAttr := FieldSelector{AttrScope: AttrScopeRecord, AttrPath: []string{"user", "email"}}
	assert.Equal(t, "attributes.user.email", recAttr.String())
}

func TestPolicySignal(t *testing.T) {
	log := &Policy{ID: "p1", Log: &LogTarget{}}
	sig, ok := log.Signal()
	require.True(t, ok)
	assert.Equal(t, SignalLog, sig)

	metric := &Policy{ID: "p2", Metric: &MetricTarget{}}
	sig, ok = metric.Signal()
	require.True(t, ok)
	assert.Equal(t, SignalMetric, sig)

	trace := &Policy{ID: "p3", Trace: &TraceTarget{}}
	sig, ok = trace.Signal()
	require.True(t, ok)
	assert.Equal(t, SignalTrace, sig)

	none := &Policy{ID: "p4"}
	_, ok = none.Signal()
	assert.False(t, ok, "policy without target should not report a signal")

	both := &Policy{ID: "p5", Log: &LogTarget{}, Metric: &MetricTarget{}}
	_, ok = both.Signal()
	assert.False(t, ok, "policy with two targets should not report a signal")
}

func TestPolicyStatsSnapshotDrains(t *testing.T) {
	var s PolicyStats
	s.RecordMatchHit()
	s.RecordMatchHit()
	s.RecordDrop()
	s.RecordSample()
	s.RecordRateLimited()
	s.RecordTransform()
	s.RecordError()

	snap := s.Snapshot("p1")
	assert.Equal(t, "p1", snap.PolicyID)
	assert.Equal(t, uint64(2), snap.MatchHits)
	assert.Equal(t, uint64(1), snap.Drops)
	assert.Equal(t, uint64(1), snap.Samples)
	assert.Equal(t, uint64(1), snap.RateLimited)
	assert.Equal(t, uint64(1), snap.Transforms)
	assert.Equal(t, uint64(1), snap.Errors)

	// Counters reset on read, so the next snapshot is a delta.
	again := s.Snapshot("p1")
	assert.Equal(t, uint64(0), again.MatchHits)
	assert.Equal(t, uint64(0), again.Drops)
}
