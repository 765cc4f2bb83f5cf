package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mchavez/cryptonews-core/internal/model"
)

func daysAgo(now time.Time, days float64) time.Time {
	return now.Add(-time.Duration(days * float64(24*time.Hour)))
}

func TestMomentum(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		ts   []time.Time
		want model.Momentum
	}{
		{
			name: "too few articles is unknown",
			ts:   []time.Time{daysAgo(now, 1), daysAgo(now, 2)},
			want: model.MomentumUnknown,
		},
		{
			name: "more recent activity than older is growing",
			ts: []time.Time{
				daysAgo(now, 0.5), daysAgo(now, 1), daysAgo(now, 1.5), daysAgo(now, 2),
				daysAgo(now, 5),
			},
			want: model.MomentumGrowing,
		},
		{
			name: "less recent activity than older is declining",
			ts: []time.Time{
				daysAgo(now, 0.5),
				daysAgo(now, 4), daysAgo(now, 4.5), daysAgo(now, 5), daysAgo(now, 5.5),
			},
			want: model.MomentumDeclining,
		},
		{
			name: "even split is stable",
			ts: []time.Time{
				daysAgo(now, 1), daysAgo(now, 2),
				daysAgo(now, 5), daysAgo(now, 6),
			},
			want: model.MomentumStable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Momentum(tt.ts, now))
		})
	}
}

func TestVelocityUsesFixedLookbackDenominator(t *testing.T) {
	now := time.Now()
	ts := []time.Time{daysAgo(now, 0.1), daysAgo(now, 0.2)}

	v := Velocity(ts, now)
	assert.InDelta(t, 2.0/7.0, v, 0.0001, "velocity is N/7 regardless of the observed span")
}

func TestVelocityExcludesOutOfWindowTimestamps(t *testing.T) {
	now := time.Now()
	ts := []time.Time{daysAgo(now, 1), daysAgo(now, 10)}

	v := Velocity(ts, now)
	assert.InDelta(t, 1.0/7.0, v, 0.0001)
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want model.LifecycleState
	}{
		{
			name: "few articles always emerging",
			in:   Input{ArticleCount: 2, Velocity: 10, Momentum: model.MomentumGrowing},
			want: model.LifecycleEmerging,
		},
		{
			name: "growing momentum with enough articles is rising",
			in:   Input{ArticleCount: 5, Momentum: model.MomentumGrowing},
			want: model.LifecycleRising,
		},
		{
			name: "high velocity stable momentum is hot",
			in:   Input{ArticleCount: 5, Velocity: 2.5, Momentum: model.MomentumStable},
			want: model.LifecycleHot,
		},
		{
			name: "high velocity declining momentum is cooling",
			in:   Input{ArticleCount: 5, Velocity: 2.5, Momentum: model.MomentumDeclining},
			want: model.LifecycleCooling,
		},
		{
			name: "sustained high volume is mature",
			in:   Input{ArticleCount: 10, Velocity: 3.5, Momentum: model.MomentumUnknown},
			want: model.LifecycleMature,
		},
		{
			name: "recently active narrative goes stale after 3 days",
			in:   Input{ArticleCount: 5, Momentum: model.MomentumDeclining, PreviousState: model.LifecycleHot, DaysSinceUpdate: 4},
			want: model.LifecycleCooling,
		},
		{
			name: "very stale narrative archives",
			in:   Input{ArticleCount: 5, Momentum: model.MomentumStable, PreviousState: model.LifecycleCooling, DaysSinceUpdate: 31},
			want: model.LifecycleArchived,
		},
		{
			name: "moderately stale narrative goes dormant",
			in:   Input{ArticleCount: 5, Momentum: model.MomentumStable, PreviousState: model.LifecycleCooling, DaysSinceUpdate: 10},
			want: model.LifecycleDormant,
		},
		{
			name: "no rule matches, state holds",
			in:   Input{ArticleCount: 5, Momentum: model.MomentumStable, PreviousState: model.LifecycleCooling, DaysSinceUpdate: 1},
			want: model.LifecycleCooling,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transition(tt.in))
		})
	}
}

func TestRecomputeAppendsHistoryOnStateChange(t *testing.T) {
	now := time.Now()
	ts := []time.Time{daysAgo(now, 0.1), daysAgo(now, 0.2)}
	lastUpdated := daysAgo(now, 0.1)

	result := Recompute(model.LifecycleCooling, ts, now, lastUpdated, daysAgo(now, 2))

	assert.Equal(t, model.LifecycleEmerging, result.State)
	if assert.NotNil(t, result.HistoryEntry) {
		assert.Equal(t, model.LifecycleEmerging, result.HistoryEntry.State)
	}
}

func TestRecomputeSkipsHistoryWhenStateHoldsAndHeartbeatNotDue(t *testing.T) {
	now := time.Now()
	ts := []time.Time{daysAgo(now, 0.1)}

	result := Recompute(model.LifecycleEmerging, ts, now, daysAgo(now, 0.1), daysAgo(now, 0.1))

	assert.Equal(t, model.LifecycleEmerging, result.State)
	assert.Nil(t, result.HistoryEntry)
}

func TestRecomputeAppendsHeartbeatEntryEvenWithoutStateChange(t *testing.T) {
	now := time.Now()
	ts := []time.Time{daysAgo(now, 0.1)}

	result := Recompute(model.LifecycleEmerging, ts, now, daysAgo(now, 0.1), daysAgo(now, 2))

	assert.Equal(t, model.LifecycleEmerging, result.State)
	assert.NotNil(t, result.HistoryEntry, "heartbeat due forces a history entry even without a state change")
}

func TestRecomputeDetectsResurrection(t *testing.T) {
	now := time.Now()
	ts := []time.Time{
		daysAgo(now, 0.5), daysAgo(now, 1), daysAgo(now, 1.5), daysAgo(now, 2), daysAgo(now, 2.5),
	}

	result := Recompute(model.LifecycleDormant, ts, now, daysAgo(now, 8), time.Time{})

	assert.True(t, result.Resurrected)
}

func TestRecomputeNoResurrectionWhenStayingDormant(t *testing.T) {
	now := time.Now()
	ts := []time.Time{
		daysAgo(now, 40), daysAgo(now, 41), daysAgo(now, 42), daysAgo(now, 43), daysAgo(now, 44),
	}
	result := Recompute(model.LifecycleDormant, ts, now, daysAgo(now, 40), time.Time{})
	assert.False(t, result.Resurrected)
}
