package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mchavez/cryptonews-core/internal/apperr"
	"github.com/mchavez/cryptonews-core/internal/model"
)

// UpsertSignalScore writes partial updates merged server-side per
// timeframe (spec §4.4 "preserve fields from other timeframes when
// updating one"). Callers pass only the timeframes they recomputed;
// unspecified ones are left as-is via COALESCE against the existing row.
func (s *Store) UpsertSignalScore(ctx context.Context, entityName string, entityType model.EntityType, updated model.SignalScore, which []string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	set := map[string][]byte{}
	if contains(which, "24h") {
		b, _ := json.Marshal(updated.Score24h)
		set["score_24h"] = b
	}
	if contains(which, "7d") {
		b, _ := json.Marshal(updated.Score7d)
		set["score_7d"] = b
	}
	if contains(which, "30d") {
		b, _ := json.Marshal(updated.Score30d)
		set["score_30d"] = b
	}

	narrativeIDs, _ := json.Marshal(updated.NarrativeIDs)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signal_scores (entity, entity_type, first_seen, updated_at,
			score_24h, score_7d, score_30d, sentiment_avg, sentiment_min, sentiment_max,
			sentiment_divergence, source_count, narrative_ids, is_emerging)
		VALUES ($1,$2,$3,$3,
			COALESCE($4, '{}'::jsonb), COALESCE($5, '{}'::jsonb), COALESCE($6, '{}'::jsonb),
			$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (entity) DO UPDATE SET
			updated_at = $3,
			score_24h = COALESCE($4, signal_scores.score_24h),
			score_7d  = COALESCE($5, signal_scores.score_7d),
			score_30d = COALESCE($6, signal_scores.score_30d),
			sentiment_avg = $7, sentiment_min = $8, sentiment_max = $9, sentiment_divergence = $10,
			source_count = $11, narrative_ids = $12, is_emerging = $13
	`, entityName, string(entityType), updated.UpdatedAt,
		nullableJSON(set["score_24h"]), nullableJSON(set["score_7d"]), nullableJSON(set["score_30d"]),
		updated.Sentiment.Avg, updated.Sentiment.Min, updated.Sentiment.Max, updated.Sentiment.Divergence,
		updated.SourceCount, narrativeIDs, updated.IsEmerging,
	)
	if err != nil {
		return apperr.New(apperr.KindTransientExternal, "store.UpsertSignalScore", err)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func contains(items []string, target string) bool {
	for _, it := range items {
		if it == target {
			return true
		}
	}
	return false
}

// TrendingSignals returns signal scores sorted by the given timeframe's
// score descending, for the GET /api/v1/signals/trending endpoint.
func (s *Store) TrendingSignals(ctx context.Context, timeframe string, entityType string, limit int) ([]model.SignalScore, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	column := "score_7d"
	switch timeframe {
	case "24h":
		column = "score_24h"
	case "30d":
		column = "score_30d"
	}

	query := `
		SELECT entity, entity_type, first_seen, updated_at, score_24h, score_7d, score_30d,
		       sentiment_avg, sentiment_min, sentiment_max, sentiment_divergence, source_count,
		       narrative_ids, is_emerging
		FROM signal_scores
	`
	args := []any{}
	if entityType != "" {
		query += ` WHERE entity_type = $1`
		args = append(args, entityType)
	}
	query += fmt.Sprintf(` ORDER BY (%s->>'score')::float8 DESC LIMIT $%d`, column, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "store.TrendingSignals", err)
	}
	defer rows.Close()

	var out []model.SignalScore
	for rows.Next() {
		var sc model.SignalScore
		var score24, score7, score30, narrativeIDs []byte
		var entityTypeStr string
		if err := rows.Scan(&sc.Entity, &entityTypeStr, &sc.FirstSeen, &sc.UpdatedAt, &score24, &score7, &score30,
			&sc.Sentiment.Avg, &sc.Sentiment.Min, &sc.Sentiment.Max, &sc.Sentiment.Divergence, &sc.SourceCount,
			&narrativeIDs, &sc.IsEmerging); err != nil {
			return nil, apperr.New(apperr.KindTransientExternal, "store.TrendingSignals.scan", err)
		}
		sc.EntityType = model.EntityType(entityTypeStr)
		_ = json.Unmarshal(score24, &sc.Score24h)
		_ = json.Unmarshal(score7, &sc.Score7d)
		_ = json.Unmarshal(score30, &sc.Score30d)
		_ = json.Unmarshal(narrativeIDs, &sc.NarrativeIDs)
		out = append(out, sc)
	}
	return out, rows.Err()
}
