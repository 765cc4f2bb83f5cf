package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mchavez/cryptonews-core/internal/apperr"
	"github.com/mchavez/cryptonews-core/internal/model"
)

// ActiveNarratives serves GET /api/v1/narratives/active.
func (s *Store) ActiveNarratives(ctx context.Context, limit int, lifecycleState string) ([]model.Narrative, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + narrativeColumns + ` FROM narratives WHERE lifecycle_state <> 'archived'`
	args := []any{}
	if lifecycleState != "" {
		query += ` AND lifecycle_state = $1`
		args = append(args, lifecycleState)
	}
	query += fmt.Sprintf(` ORDER BY last_updated DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "store.ActiveNarratives", err)
	}
	defer rows.Close()
	return scanNarratives(rows)
}

// ArchivedNarratives serves GET /api/v1/narratives/archived.
func (s *Store) ArchivedNarratives(ctx context.Context, since time.Time, limit int) ([]model.Narrative, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+narrativeColumns+`
		FROM narratives
		WHERE lifecycle_state IN ('dormant', 'archived') AND last_updated >= $1
		ORDER BY last_updated DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "store.ArchivedNarratives", err)
	}
	defer rows.Close()
	return scanNarratives(rows)
}

// ResurrectedNarratives serves GET /api/v1/narratives/resurrections.
func (s *Store) ResurrectedNarratives(ctx context.Context, since time.Time, limit int) ([]model.Narrative, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+narrativeColumns+`
		FROM narratives
		WHERE reawakening_count >= 1 AND reawakened_from >= $1
		ORDER BY reawakened_from DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "store.ResurrectedNarratives", err)
	}
	defer rows.Close()
	return scanNarratives(rows)
}

// NarrativeWithArticles serves GET /api/v1/narratives/{id}.
func (s *Store) NarrativeWithArticles(ctx context.Context, id string) (model.Narrative, []model.Article, error) {
	n, err := s.GetNarrative(ctx, id)
	if err != nil {
		return model.Narrative{}, nil, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, title, text, source, published_at, created_at
		FROM articles WHERE narrative_id = $1
		ORDER BY published_at DESC
	`, id)
	if err != nil {
		return model.Narrative{}, nil, apperr.New(apperr.KindTransientExternal, "store.NarrativeWithArticles", err)
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		var a model.Article
		if err := rows.Scan(&a.ID, &a.URL, &a.Title, &a.Text, &a.Source, &a.PublishedAt, &a.CreatedAt); err != nil {
			return model.Narrative{}, nil, apperr.New(apperr.KindTransientExternal, "store.NarrativeWithArticles.scan", err)
		}
		articles = append(articles, a)
	}
	return n, articles, rows.Err()
}

// PrimaryMentionsSince returns every primary entity mention since cutoff,
// the signal scorer's raw input (spec §4.4).
func (s *Store) PrimaryMentionsSince(ctx context.Context, cutoff time.Time) ([]model.EntityMention, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT article_id, entity, entity_type, is_primary, sentiment, confidence, source, created_at
		FROM entity_mentions
		WHERE is_primary = true AND created_at >= $1
		ORDER BY entity, created_at DESC
	`, cutoff)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "store.PrimaryMentionsSince", err)
	}
	defer rows.Close()

	var out []model.EntityMention
	for rows.Next() {
		var m model.EntityMention
		var entityType, sentiment string
		if err := rows.Scan(&m.ArticleID, &m.Entity, &entityType, &m.IsPrimary, &sentiment, &m.Confidence, &m.Source, &m.CreatedAt); err != nil {
			return nil, apperr.New(apperr.KindTransientExternal, "store.PrimaryMentionsSince.scan", err)
		}
		m.EntityType = model.EntityType(entityType)
		m.Sentiment = model.SentimentLabel(sentiment)
		out = append(out, m)
	}
	return out, rows.Err()
}
