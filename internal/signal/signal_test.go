package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mchavez/cryptonews-core/internal/model"
)

func mention(hoursAgo int, source string, sentiment model.SentimentLabel) Mention {
	return Mention{Timestamp: time.Now().Add(-time.Duration(hoursAgo) * time.Hour), Source: source, Sentiment: sentiment}
}

func TestScoreVelocityGrowth(t *testing.T) {
	now := time.Now()
	mentions := []Mention{
		// previous window (24h-48h ago): 1 mention
		{Timestamp: now.Add(-30 * time.Hour), Source: "coindesk", Sentiment: model.SentimentNeutral},
		// current window (0-24h ago): 3 mentions
		{Timestamp: now.Add(-1 * time.Hour), Source: "coindesk", Sentiment: model.SentimentPositive},
		{Timestamp: now.Add(-2 * time.Hour), Source: "theblock", Sentiment: model.SentimentPositive},
		{Timestamp: now.Add(-3 * time.Hour), Source: "decrypt", Sentiment: model.SentimentPositive},
	}

	sc := Score(mentions, 24*time.Hour, now)

	assert.Equal(t, 3, sc.Mentions)
	assert.InDelta(t, 200.0, sc.Velocity, 0.01, "100*(3-1)/1 == 200%")
	assert.Greater(t, sc.Score, 0.0)
	assert.LessOrEqual(t, sc.Score, 10.0)
}

func TestScoreNoPreviousMentionsUsesFloorDenominator(t *testing.T) {
	now := time.Now()
	mentions := []Mention{
		{Timestamp: now.Add(-1 * time.Hour), Source: "coindesk", Sentiment: model.SentimentNeutral},
		{Timestamp: now.Add(-2 * time.Hour), Source: "theblock", Sentiment: model.SentimentNeutral},
	}

	sc := Score(mentions, 24*time.Hour, now)
	assert.InDelta(t, 200.0, sc.Velocity, 0.01, "100*(2-0)/max(0,1) == 200%")
}

func TestScoreEmptyMentions(t *testing.T) {
	sc := Score(nil, 24*time.Hour, time.Now())
	assert.Equal(t, 0, sc.Mentions)
	assert.Equal(t, 0.0, sc.Velocity)
	assert.Equal(t, 0.0, sc.Recency)
	assert.Equal(t, 0.0, sc.Score, "a window with zero current-period mentions must score 0")
}

func TestScoreZeroCurrentMentionsScoresZeroEvenWithPriorActivity(t *testing.T) {
	now := time.Now()
	// all mentions fall in the prev sub-window only; N_curr == 0.
	mentions := []Mention{
		{Timestamp: now.Add(-36 * time.Hour), Source: "a", Sentiment: model.SentimentPositive},
		{Timestamp: now.Add(-40 * time.Hour), Source: "b", Sentiment: model.SentimentPositive},
	}
	sc := Score(mentions, 24*time.Hour, now)
	assert.Equal(t, 0, sc.Mentions)
	assert.Equal(t, 0.0, sc.Score)
}

func TestScoreMonotonicInVelocityAndSourceCount(t *testing.T) {
	now := time.Now()
	low := []Mention{
		{Timestamp: now.Add(-1 * time.Hour), Source: "a", Sentiment: model.SentimentNeutral},
	}
	high := []Mention{
		{Timestamp: now.Add(-1 * time.Hour), Source: "a", Sentiment: model.SentimentNeutral},
		{Timestamp: now.Add(-2 * time.Hour), Source: "b", Sentiment: model.SentimentNeutral},
		{Timestamp: now.Add(-3 * time.Hour), Source: "c", Sentiment: model.SentimentNeutral},
		{Timestamp: now.Add(-4 * time.Hour), Source: "d", Sentiment: model.SentimentNeutral},
	}

	scLow := Score(low, 24*time.Hour, now)
	scHigh := Score(high, 24*time.Hour, now)

	assert.GreaterOrEqual(t, scHigh.Score, scLow.Score)
}

func TestAggregate(t *testing.T) {
	now := time.Now()
	mentions := []Mention{
		mention(1, "coindesk", model.SentimentPositive),
		mention(2, "theblock", model.SentimentNegative),
		mention(3, "coindesk", model.SentimentNeutral),
	}

	agg, sourceCount := Aggregate(mentions, 7*24*time.Hour, now)

	assert.Equal(t, 2, sourceCount, "coindesk appears twice but counts once")
	assert.InDelta(t, 0.0, agg.Avg, 0.0001, "(1 + -1 + 0)/3 == 0")
	assert.Equal(t, 1.0, agg.Max)
	assert.Equal(t, -1.0, agg.Min)
	assert.InDelta(t, 1.0, agg.Divergence, 0.0001, "(1 - -1)/2 == 1.0")
}

func TestAggregateEmptyWindow(t *testing.T) {
	agg, sourceCount := Aggregate(nil, 7*24*time.Hour, time.Now())
	assert.Equal(t, 0, sourceCount)
	assert.Equal(t, 0.0, agg.Avg)
}

func TestIsEmerging(t *testing.T) {
	tests := []struct {
		name         string
		narrativeIDs []string
		s24, s7, s30 float64
		floor        float64
		want         bool
	}{
		{"no narrative, above floor on 24h", nil, 5.0, 1.0, 1.0, 3.0, true},
		{"no narrative, above floor on 30d", nil, 1.0, 1.0, 5.0, 3.0, true},
		{"no narrative, below floor everywhere", nil, 1.0, 1.0, 1.0, 3.0, false},
		{"has narrative, above floor but excluded", []string{"n1"}, 9.0, 9.0, 9.0, 3.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsEmerging(tt.narrativeIDs, tt.s24, tt.s7, tt.s30, tt.floor)
			assert.Equal(t, tt.want, got)
		})
	}
}
