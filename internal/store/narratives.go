package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mchavez/cryptonews-core/internal/apperr"
	"github.com/mchavez/cryptonews-core/internal/entity"
	"github.com/mchavez/cryptonews-core/internal/model"
)

// pgUniqueViolation is Postgres SQLSTATE 23505.
const pgUniqueViolation = "23505"

// CandidatesByNucleus implements internal/narrative.Store.
func (s *Store) CandidatesByNucleus(ctx context.Context, nucleus string, topK int) ([]model.Narrative, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+narrativeColumns+`
		FROM narratives
		WHERE lifecycle_state <> 'archived'
		  AND (fingerprint_nucleus_entity = $1 OR lifecycle_state = 'dormant')
		ORDER BY last_updated DESC
		LIMIT $2
	`, nucleus, topK)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "store.CandidatesByNucleus", err)
	}
	defer rows.Close()
	return scanNarratives(rows)
}

// CreateNarrative implements internal/narrative.Store.
func (s *Store) CreateNarrative(ctx context.Context, n model.Narrative) (model.Narrative, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	entitiesJSON, _ := json.Marshal(n.Entities)
	articleIDsJSON, _ := json.Marshal(n.ArticleIDs)
	topActorsJSON, _ := json.Marshal(n.Fingerprint.TopActors)
	keyActionsJSON, _ := json.Marshal(n.Fingerprint.KeyActions)
	historyJSON, _ := json.Marshal(n.LifecycleHistory)

	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO narratives (
			title, summary, theme, entities, article_ids, article_count,
			fingerprint_nucleus_entity, fingerprint_top_actors, fingerprint_key_actions, fingerprint_timestamp,
			lifecycle_state, lifecycle_history, mention_velocity, momentum, recency_score,
			first_seen, last_updated
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id
	`, n.Title, n.Summary, n.Theme, entitiesJSON, articleIDsJSON, n.ArticleCount,
		entity.Normalize(n.Fingerprint.NucleusEntity), topActorsJSON, keyActionsJSON, n.Fingerprint.Timestamp,
		string(n.LifecycleState), historyJSON, n.MentionVelocity, string(n.Momentum), n.RecencyScore,
		n.FirstSeen, n.LastUpdated,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Narrative{}, apperr.New(apperr.KindIntegrityConflict, "store.CreateNarrative", err)
		}
		return model.Narrative{}, apperr.New(apperr.KindTransientExternal, "store.CreateNarrative", err)
	}
	n.ID = id
	n.Version = 1
	return n, nil
}

// UpdateNarrative implements internal/narrative.Store: a CAS write keyed
// on (id, expectedVersion), modeled on the teacher's claim-session
// conditional-update-then-check-rows-affected pattern.
func (s *Store) UpdateNarrative(ctx context.Context, n model.Narrative, expectedVersion int) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	entitiesJSON, _ := json.Marshal(n.Entities)
	articleIDsJSON, _ := json.Marshal(n.ArticleIDs)
	topActorsJSON, _ := json.Marshal(n.Fingerprint.TopActors)
	keyActionsJSON, _ := json.Marshal(n.Fingerprint.KeyActions)
	historyJSON, _ := json.Marshal(n.LifecycleHistory)

	res, err := s.db.ExecContext(ctx, `
		UPDATE narratives SET
			version = version + 1,
			title = $3, summary = $4, entities = $5, article_ids = $6, article_count = $7,
			fingerprint_nucleus_entity = $8, fingerprint_top_actors = $9, fingerprint_key_actions = $10, fingerprint_timestamp = $11,
			lifecycle_state = $12, lifecycle_history = $13, mention_velocity = $14, momentum = $15, recency_score = $16,
			last_updated = $17, reawakening_count = $18, reawakened_from = $19, resurrection_velocity = $20,
			merged_into = $21
		WHERE id = $1 AND version = $2
	`, n.ID, expectedVersion, n.Title, n.Summary, entitiesJSON, articleIDsJSON, n.ArticleCount,
		entity.Normalize(n.Fingerprint.NucleusEntity), topActorsJSON, keyActionsJSON, n.Fingerprint.Timestamp,
		string(n.LifecycleState), historyJSON, n.MentionVelocity, string(n.Momentum), n.RecencyScore,
		n.LastUpdated, n.ReawakeningCount, n.ReawakenedFrom, n.ResurrectionVelocity, n.MergedInto,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.KindIntegrityConflict, "store.UpdateNarrative", err)
		}
		return apperr.New(apperr.KindTransientExternal, "store.UpdateNarrative", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.New(apperr.KindTransientExternal, "store.UpdateNarrative", err)
	}
	if affected == 0 {
		return apperr.New(apperr.KindIntegrityConflict, "store.UpdateNarrative",
			fmt.Errorf("narrative %s: version %d no longer current", n.ID, expectedVersion))
	}
	return nil
}

// GetNarrative implements internal/narrative.Store.
func (s *Store) GetNarrative(ctx context.Context, id string) (model.Narrative, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+narrativeColumns+` FROM narratives WHERE id = $1`, id)
	n, err := scanNarrative(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Narrative{}, apperr.New(apperr.KindValidationFailure, "store.GetNarrative", err)
	}
	if err != nil {
		return model.Narrative{}, apperr.New(apperr.KindTransientExternal, "store.GetNarrative", err)
	}
	return n, nil
}

// ArticleTimestamps implements internal/narrative.Store.
func (s *Store) ArticleTimestamps(ctx context.Context, narrativeID string) ([]time.Time, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT published_at FROM articles WHERE narrative_id = $1`, narrativeID)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "store.ArticleTimestamps", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, apperr.New(apperr.KindTransientExternal, "store.ArticleTimestamps.scan", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ActiveNarrativesByNucleus implements internal/narrative.Store.
func (s *Store) ActiveNarrativesByNucleus(ctx context.Context) (map[string][]model.Narrative, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+narrativeColumns+` FROM narratives WHERE lifecycle_state <> 'archived'
	`)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "store.ActiveNarrativesByNucleus", err)
	}
	defer rows.Close()

	narratives, err := scanNarratives(rows)
	if err != nil {
		return nil, err
	}

	byNucleus := map[string][]model.Narrative{}
	for _, n := range narratives {
		byNucleus[n.Fingerprint.NucleusEntity] = append(byNucleus[n.Fingerprint.NucleusEntity], n)
	}
	return byNucleus, nil
}

const narrativeColumns = `
	id, version, title, summary, theme, entities, article_ids, article_count,
	fingerprint_nucleus_entity, fingerprint_top_actors, fingerprint_key_actions, fingerprint_timestamp,
	lifecycle_state, lifecycle_history, mention_velocity, momentum, recency_score,
	first_seen, last_updated, days_active, reawakening_count, reawakened_from, resurrection_velocity,
	merged_into
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNarrative(row rowScanner) (model.Narrative, error) {
	var n model.Narrative
	var entitiesRaw, articleIDsRaw, topActorsRaw, keyActionsRaw, historyRaw []byte
	var nucleus sql.NullString
	var fpTimestamp sql.NullTime
	var mergedInto sql.NullString

	err := row.Scan(
		&n.ID, &n.Version, &n.Title, &n.Summary, &n.Theme, &entitiesRaw, &articleIDsRaw, &n.ArticleCount,
		&nucleus, &topActorsRaw, &keyActionsRaw, &fpTimestamp,
		&n.LifecycleState, &historyRaw, &n.MentionVelocity, &n.Momentum, &n.RecencyScore,
		&n.FirstSeen, &n.LastUpdated, &n.DaysActive, &n.ReawakeningCount, &n.ReawakenedFrom, &n.ResurrectionVelocity,
		&mergedInto,
	)
	if err != nil {
		return model.Narrative{}, err
	}

	_ = json.Unmarshal(entitiesRaw, &n.Entities)
	_ = json.Unmarshal(articleIDsRaw, &n.ArticleIDs)
	_ = json.Unmarshal(topActorsRaw, &n.Fingerprint.TopActors)
	_ = json.Unmarshal(keyActionsRaw, &n.Fingerprint.KeyActions)
	_ = json.Unmarshal(historyRaw, &n.LifecycleHistory)
	n.Fingerprint.NucleusEntity = nucleus.String
	n.Fingerprint.Timestamp = fpTimestamp.Time
	if mergedInto.Valid {
		v := mergedInto.String
		n.MergedInto = &v
	}
	return n, nil
}

func scanNarratives(rows *sql.Rows) ([]model.Narrative, error) {
	var out []model.Narrative
	for rows.Next() {
		n, err := scanNarrative(rows)
		if err != nil {
			return nil, apperr.New(apperr.KindTransientExternal, "store.scanNarratives", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
