// Package cost tracks LLM spend. Pricing is a static table keyed by model
// name (spec §4.3 / §8); the package turns a completion's token usage into
// a dollar estimate and keeps running daily/monthly aggregates the
// scheduler can log and the HTTP surface can expose.
package cost

import (
	"context"
	"fmt"
	"time"
)

// Rate is the per-million-token price for one model, split input/output
// since providers price them asymmetrically.
type Rate struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// pricing is intentionally static: provider price changes are infrequent
// and a remote pricing feed would be a second external dependency for a
// number that changes a few times a year.
var pricing = map[string]Rate{
	"claude-haiku-4-5":  {InputPerMillion: 1.00, OutputPerMillion: 5.00},
	"claude-sonnet-4-5": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-opus-4-5":   {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-haiku-3-5":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
}

// Estimate computes the dollar cost of one call given its model and token
// usage. Unknown models return an error rather than silently costing $0,
// since that would understate spend instead of failing loud.
func Estimate(modelName string, inputTokens, outputTokens int) (float64, error) {
	r, ok := pricing[modelName]
	if !ok {
		return 0, fmt.Errorf("cost: no pricing entry for model %q", modelName)
	}
	return float64(inputTokens)/1_000_000*r.InputPerMillion +
		float64(outputTokens)/1_000_000*r.OutputPerMillion, nil
}

// Record is one persisted API call's cost, mirroring model.ApiCostRecord.
type Record struct {
	Model        string
	Operation    string // "entity_extraction" | "narrative_summary"
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	CreatedAt    time.Time
}

// Recorder persists cost records and aggregates spend; internal/store
// implements this against Postgres.
type Recorder interface {
	RecordCost(ctx context.Context, rec Record) error
	SpendSince(ctx context.Context, since time.Time) (float64, error)
}

// Tracker wraps a Recorder with the pricing table so callers only need to
// supply model + token counts, not dollar math.
type Tracker struct {
	store Recorder
}

// NewTracker constructs a Tracker backed by store.
func NewTracker(store Recorder) *Tracker {
	return &Tracker{store: store}
}

// Track estimates and persists the cost of one completion call.
func (t *Tracker) Track(ctx context.Context, modelName, operation string, inputTokens, outputTokens int) error {
	usd, err := Estimate(modelName, inputTokens, outputTokens)
	if err != nil {
		return err
	}
	return t.store.RecordCost(ctx, Record{
		Model:        modelName,
		Operation:    operation,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      usd,
	})
}

// DailySpend returns total spend over the trailing 24 hours.
func (t *Tracker) DailySpend(ctx context.Context) (float64, error) {
	return t.store.SpendSince(ctx, time.Now().Add(-24*time.Hour))
}

// MonthlySpend returns total spend over the trailing 30 days.
func (t *Tracker) MonthlySpend(ctx context.Context) (float64, error) {
	return t.store.SpendSince(ctx, time.Now().Add(-30*24*time.Hour))
}
