package store

import (
	"context"
	"time"

	"github.com/mchavez/cryptonews-core/internal/apperr"
	"github.com/mchavez/cryptonews-core/internal/cost"
)

// RecordCost implements internal/cost.Recorder.
func (s *Store) RecordCost(ctx context.Context, rec cost.Record) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_costs (operation, model, input_tokens, output_tokens, cost_usd, cached)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, rec.Operation, rec.Model, rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.InputTokens == 0 && rec.OutputTokens == 0)
	if err != nil {
		return apperr.New(apperr.KindTransientExternal, "store.RecordCost", err)
	}
	return nil
}

// SpendSince implements internal/cost.Recorder.
func (s *Store) SpendSince(ctx context.Context, since time.Time) (float64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0) FROM api_costs WHERE "timestamp" >= $1
	`, since).Scan(&total)
	if err != nil {
		return 0, apperr.New(apperr.KindTransientExternal, "store.SpendSince", err)
	}
	return total, nil
}
