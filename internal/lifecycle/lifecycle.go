// Package lifecycle implements the narrative state machine (spec §4.7):
// momentum computation, state transition rules, and resurrection
// detection. It is pure: callers pass in article timestamps and the
// narrative's current state, and get back the new state plus the
// lifecycle_history entries to append. Persistence (optimistic-concurrency
// writes) is the caller's (internal/narrative) concern.
package lifecycle

import (
	"time"

	"github.com/mchavez/cryptonews-core/internal/model"
)

const (
	lookback           = 7 * 24 * time.Hour
	momentumMinArticles = 4
	growingRatio        = 1.25
	decliningRatio      = 0.80
	historyHeartbeat    = 24 * time.Hour
)

// Momentum splits timestamps into the older and newer half of the lookback
// window and compares velocities (spec §4.7).
func Momentum(timestamps []time.Time, now time.Time) model.Momentum {
	windowStart := now.Add(-lookback)
	mid := now.Add(-lookback / 2)

	var older, newer int
	for _, t := range timestamps {
		if t.Before(windowStart) || t.After(now) {
			continue
		}
		if t.Before(mid) {
			older++
		} else {
			newer++
		}
	}

	if older+newer < momentumMinArticles {
		return model.MomentumUnknown
	}

	vOld := float64(older) / (float64(lookback/2) / float64(24*time.Hour))
	vNew := float64(newer) / (float64(lookback/2) / float64(24*time.Hour))

	switch {
	case vOld == 0 && vNew == 0:
		return model.MomentumStable
	case vNew > growingRatio*vOld:
		return model.MomentumGrowing
	case vNew < decliningRatio*vOld:
		return model.MomentumDeclining
	default:
		return model.MomentumStable
	}
}

// Velocity is articles/day over the 7-day lookback: N/7, the denominator
// fixed at the lookback length (spec §4.7's explicit bug-fix note), not
// the observed span of the timestamps.
func Velocity(timestamps []time.Time, now time.Time) float64 {
	windowStart := now.Add(-lookback)
	n := 0
	for _, t := range timestamps {
		if !t.Before(windowStart) && !t.After(now) {
			n++
		}
	}
	return float64(n) / 7.0
}

// Input bundles everything the transition table needs.
type Input struct {
	ArticleCount    int
	Velocity        float64
	Momentum        model.Momentum
	DaysSinceUpdate float64
	PreviousState   model.LifecycleState
}

// Transition evaluates the ordered rule table top-to-bottom; first match
// wins (spec §4.7).
func Transition(in Input) model.LifecycleState {
	switch {
	case in.ArticleCount <= 4:
		return model.LifecycleEmerging
	case in.ArticleCount >= 5 && in.Momentum == model.MomentumGrowing:
		return model.LifecycleRising
	case in.ArticleCount >= 5 && in.Velocity >= 2.0 && (in.Momentum == model.MomentumStable || in.Momentum == model.MomentumGrowing):
		return model.LifecycleHot
	case in.ArticleCount >= 5 && in.Velocity >= 2.0 && in.Momentum == model.MomentumDeclining:
		return model.LifecycleCooling
	case in.ArticleCount >= 8 && in.Velocity >= 3.0:
		return model.LifecycleMature
	case isRecentlyActive(in.PreviousState) && in.DaysSinceUpdate > 3:
		return model.LifecycleCooling
	case in.DaysSinceUpdate > 30:
		return model.LifecycleArchived
	case in.DaysSinceUpdate > 7:
		return model.LifecycleDormant
	default:
		return in.PreviousState
	}
}

func isRecentlyActive(s model.LifecycleState) bool {
	return s == model.LifecycleHot || s == model.LifecycleMature || s == model.LifecycleRising
}

// Result is the outcome of one recompute pass over a narrative.
type Result struct {
	State        model.LifecycleState
	Velocity     float64
	Momentum     model.Momentum
	Resurrected  bool
	HistoryEntry *model.LifecycleEvent // nil if no entry should be appended
}

// Recompute runs momentum + transition + resurrection detection for one
// narrative given its article timestamps, and decides whether a
// lifecycle_history entry should be appended: on every state change, or
// every historyHeartbeat of continued activity for observability (spec
// §4.7), whichever the caller is due for based on lastHistoryAt.
func Recompute(prevState model.LifecycleState, timestamps []time.Time, now time.Time, lastUpdated time.Time, lastHistoryAt time.Time) Result {
	mom := Momentum(timestamps, now)
	vel := Velocity(timestamps, now)
	daysSinceUpdate := now.Sub(lastUpdated).Hours() / 24

	newState := Transition(Input{
		ArticleCount:    len(timestamps),
		Velocity:        vel,
		Momentum:        mom,
		DaysSinceUpdate: daysSinceUpdate,
		PreviousState:   prevState,
	})

	resurrected := wasDormantOrArchived(prevState) && isNewlyActive(newState)

	stateChanged := newState != prevState
	heartbeatDue := now.Sub(lastHistoryAt) >= historyHeartbeat

	var entry *model.LifecycleEvent
	if stateChanged || heartbeatDue {
		entry = &model.LifecycleEvent{
			State:           newState,
			Timestamp:       now,
			ArticleCount:    len(timestamps),
			MentionVelocity: vel,
		}
	}

	return Result{
		State:        newState,
		Velocity:     vel,
		Momentum:     mom,
		Resurrected:  resurrected,
		HistoryEntry: entry,
	}
}

func wasDormantOrArchived(s model.LifecycleState) bool {
	return s == model.LifecycleDormant || s == model.LifecycleArchived
}

// isNewlyActive reports membership in the resurrection target set
// {emerging, rising, hot, mature} (spec §4.7) — narrower than
// LifecycleState.IsActive, which also counts cooling as non-dormant.
func isNewlyActive(s model.LifecycleState) bool {
	switch s {
	case model.LifecycleEmerging, model.LifecycleRising, model.LifecycleHot, model.LifecycleMature:
		return true
	default:
		return false
	}
}
