// Package signal computes the multi-timeframe (24h/7d/30d) signal score
// for each primary entity (spec §4.4): velocity, source diversity,
// sentiment aggregation, recency, and a composite score in [0,10].
package signal

import (
	"math"
	"time"

	"github.com/mchavez/cryptonews-core/internal/model"
)

// Mention is the minimal per-mention data the scorer needs.
type Mention struct {
	Timestamp time.Time
	Source    string
	Sentiment model.SentimentLabel
}

// Timeframe is one scoring window in hours.
type Timeframe struct {
	Name  string
	Hours int
}

// Timeframes are the three windows scored for every entity (spec §4.4).
var Timeframes = []Timeframe{
	{Name: "24h", Hours: 24},
	{Name: "7d", Hours: 7 * 24},
	{Name: "30d", Hours: 30 * 24},
}

// Score computes one timeframe's TimeframeScore for an entity's mentions.
// N_curr is the count in [now-w, now]; N_prev is the count in
// [now-2w, now-w]. Velocity is a percentage: 100*(N_curr-N_prev)/max(N_prev,1),
// per spec §4.4's explicit bug-fixed semantics (lookback-fixed denominator,
// not observed span).
func Score(mentions []Mention, w time.Duration, now time.Time) model.TimeframeScore {
	currStart := now.Add(-w)
	prevStart := now.Add(-2 * w)

	var curr, prev []Mention
	for _, m := range mentions {
		switch {
		case !m.Timestamp.Before(currStart) && !m.Timestamp.After(now):
			curr = append(curr, m)
		case !m.Timestamp.Before(prevStart) && m.Timestamp.Before(currStart):
			prev = append(prev, m)
		}
	}

	nCurr, nPrev := len(curr), len(prev)
	denom := nPrev
	if denom < 1 {
		denom = 1
	}
	velocity := 100.0 * float64(nCurr-nPrev) / float64(denom)

	sourceCount := distinctSources(curr)
	sentAvg, _, _ := sentimentStats(curr)
	recency := recencyFraction(curr, currStart, now)

	return model.TimeframeScore{
		Score:    composite(nCurr, velocity, sourceCount, recency, sentAvg),
		Velocity: velocity,
		Mentions: nCurr,
		Recency:  recency,
	}
}

// Aggregate computes the SignalScore-level SentimentAggregate and distinct
// source count over the given lookback, independent of the per-timeframe
// composite scores (spec §4.4 "Sentiment aggregation" / "Source diversity").
func Aggregate(mentions []Mention, lookback time.Duration, now time.Time) (model.SentimentAggregate, int) {
	start := now.Add(-lookback)
	var window []Mention
	for _, m := range mentions {
		if !m.Timestamp.Before(start) && !m.Timestamp.After(now) {
			window = append(window, m)
		}
	}

	avg, min, max := sentimentStats(window)
	divergence := (max - min) / 2.0 // sentiment ranges [-1,1]; span normalized to [0,1]

	return model.SentimentAggregate{
		Avg:        avg,
		Min:        min,
		Max:        max,
		Divergence: divergence,
	}, distinctSources(window)
}

func distinctSources(mentions []Mention) int {
	set := map[string]struct{}{}
	for _, m := range mentions {
		set[m.Source] = struct{}{}
	}
	return len(set)
}

func sentimentStats(mentions []Mention) (avg, min, max float64) {
	if len(mentions) == 0 {
		return 0, 0, 0
	}
	min, max = 1, -1
	var sum float64
	for _, m := range mentions {
		s := m.Sentiment.Score()
		sum += s
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return sum / float64(len(mentions)), min, max
}

// recencyFraction is the fraction of current-window mentions falling in
// the most recent 20% of the window.
func recencyFraction(mentions []Mention, windowStart, now time.Time) float64 {
	if len(mentions) == 0 {
		return 0
	}
	span := now.Sub(windowStart)
	recentStart := now.Add(-span / 5) // most recent 20%

	var recent int
	for _, m := range mentions {
		if !m.Timestamp.Before(recentStart) {
			recent++
		}
	}
	return float64(recent) / float64(len(mentions))
}

// composite blends normalized velocity, log source count, recency, and
// sentiment salience into a [0,10] score. The contract is monotonicity,
// not an exact formula: increasing velocity, source_count, or recency
// must not decrease the score (spec §4.4). A window with zero mentions
// always scores 0, regardless of what the other terms compute to.
func composite(nCurr int, velocity float64, sourceCount int, recency float64, sentimentAvg float64) float64 {
	if nCurr == 0 {
		return 0
	}
	normVelocity := clamp01((velocity + 100) / 300) // velocity ranges roughly [-100, +inf); compress
	logSources := clamp01(math.Log1p(float64(sourceCount)) / math.Log1p(10))
	sentimentSalience := clamp01(math.Abs(sentimentAvg)) // distance from neutral, either direction

	score := 10.0 * (0.40*normVelocity + 0.25*logSources + 0.20*recency + 0.15*sentimentSalience)
	return clamp(score, 0, 10)
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IsEmerging reports spec §4.4's is_emerging rule: true iff the entity has
// no narrative association and any timeframe score exceeds floor.
func IsEmerging(narrativeIDs []string, score24h, score7d, score30d float64, floor float64) bool {
	if len(narrativeIDs) > 0 {
		return false
	}
	return score24h > floor || score7d > floor || score30d > floor
}
