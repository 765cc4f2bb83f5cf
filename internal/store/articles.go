package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mchavez/cryptonews-core/internal/apperr"
	"github.com/mchavez/cryptonews-core/internal/model"
)

// UpsertArticle inserts a new article or, on a url conflict, leaves the
// existing row untouched, reporting whether the row is new (spec §6
// "upsert_article ... obtain a boolean indicating novelty").
func (s *Store) UpsertArticle(ctx context.Context, a model.Article) (created bool, err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (url, title, text, source, published_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url) DO NOTHING
	`, a.URL, a.Title, a.Text, a.Source, a.PublishedAt)
	if err != nil {
		return false, apperr.New(apperr.KindTransientExternal, "store.UpsertArticle", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.New(apperr.KindTransientExternal, "store.UpsertArticle", err)
	}
	return n > 0, nil
}

// UnenrichedArticles returns articles with no narrative_hash yet, the
// extractor's work queue (spec §4.8 "extract" job).
func (s *Store) UnenrichedArticles(ctx context.Context, limit int) ([]model.Article, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, title, text, source, published_at, created_at
		FROM articles
		WHERE narrative_hash IS NULL
		ORDER BY published_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "store.UnenrichedArticles", err)
	}
	defer rows.Close()

	var out []model.Article
	for rows.Next() {
		var a model.Article
		if err := rows.Scan(&a.ID, &a.URL, &a.Title, &a.Text, &a.Source, &a.PublishedAt, &a.CreatedAt); err != nil {
			return nil, apperr.New(apperr.KindTransientExternal, "store.UnenrichedArticles.scan", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ArticlesSince returns enriched articles published since cutoff, the
// clusterer's and scorer's input window (spec §4.6, §4.4).
func (s *Store) ArticlesSince(ctx context.Context, cutoff time.Time) ([]model.Article, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, title, text, source, published_at, created_at,
		       relevance_tier, relevance_reason, sentiment_label, nucleus_entity,
		       actors, actor_salience, key_actions, narrative_summary, narrative_hash
		FROM articles
		WHERE published_at >= $1 AND narrative_hash IS NOT NULL
		ORDER BY published_at DESC
	`, cutoff)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "store.ArticlesSince", err)
	}
	defer rows.Close()

	var out []model.Article
	for rows.Next() {
		var a model.Article
		var tier sql.NullInt16
		var reason, sentiment, nucleus, summary, hash sql.NullString
		var actorsRaw, salienceRaw, keyActionsRaw []byte
		if err := rows.Scan(&a.ID, &a.URL, &a.Title, &a.Text, &a.Source, &a.PublishedAt, &a.CreatedAt,
			&tier, &reason, &sentiment, &nucleus, &actorsRaw, &salienceRaw, &keyActionsRaw, &summary, &hash); err != nil {
			return nil, apperr.New(apperr.KindTransientExternal, "store.ArticlesSince.scan", err)
		}
		a.RelevanceTier = model.RelevanceTier(tier.Int16)
		a.RelevanceReason = reason.String
		a.SentimentLabel = model.SentimentLabel(sentiment.String)
		a.NucleusEntity = nucleus.String
		a.NarrativeSummary = summary.String
		a.NarrativeHash = hash.String
		if len(actorsRaw) > 0 {
			_ = json.Unmarshal(actorsRaw, &a.Actors)
		}
		if len(salienceRaw) > 0 {
			_ = json.Unmarshal(salienceRaw, &a.ActorSalience)
		}
		if len(keyActionsRaw) > 0 {
			_ = json.Unmarshal(keyActionsRaw, &a.KeyActions)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ArticleNarrativeHash implements internal/extractor.Store.
func (s *Store) ArticleNarrativeHash(ctx context.Context, articleID string) (string, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT narrative_hash FROM articles WHERE id = $1`, articleID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.New(apperr.KindTransientExternal, "store.ArticleNarrativeHash", err)
	}
	return hash.String, hash.Valid && hash.String != "", nil
}

// HasEntityMentions implements internal/extractor.Store.
func (s *Store) HasEntityMentions(ctx context.Context, articleID string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM entity_mentions WHERE article_id = $1)`, articleID).Scan(&exists)
	if err != nil {
		return false, apperr.New(apperr.KindTransientExternal, "store.HasEntityMentions", err)
	}
	return exists, nil
}

// ApplyExtraction persists one article's extraction output: entity
// mentions (upserted on (article_id, entity)), enrichment fields on the
// article, and never a narrative (spec §4.3 "never creates narratives
// directly").
func (s *Store) ApplyExtraction(ctx context.Context, articleID string, sentiment model.SentimentLabel, nucleus string, actors []string, salience map[string]int, keyActions []string, summary, hash string, mentions []model.EntityMention) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.New(apperr.KindTransientExternal, "store.ApplyExtraction.begin", err)
	}
	defer tx.Rollback()

	actorsJSON, _ := json.Marshal(actors)
	salienceJSON, _ := json.Marshal(salience)
	keyActionsJSON, _ := json.Marshal(keyActions)

	_, err = tx.ExecContext(ctx, `
		UPDATE articles
		SET sentiment_label = $2, nucleus_entity = $3, actors = $4, actor_salience = $5,
		    key_actions = $6, narrative_summary = $7, narrative_hash = $8
		WHERE id = $1
	`, articleID, string(sentiment), nucleus, actorsJSON, salienceJSON, keyActionsJSON, summary, hash)
	if err != nil {
		return apperr.New(apperr.KindTransientExternal, "store.ApplyExtraction.article", err)
	}

	for _, m := range mentions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entity_mentions (article_id, entity, entity_type, is_primary, sentiment, confidence, source, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (article_id, entity) DO UPDATE SET
				entity_type = EXCLUDED.entity_type,
				is_primary  = EXCLUDED.is_primary,
				sentiment   = EXCLUDED.sentiment,
				confidence  = EXCLUDED.confidence
		`, m.ArticleID, m.Entity, string(m.EntityType), m.IsPrimary, string(m.Sentiment), m.Confidence, m.Source, m.CreatedAt)
		if err != nil {
			return apperr.New(apperr.KindTransientExternal, "store.ApplyExtraction.mention", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.New(apperr.KindTransientExternal, "store.ApplyExtraction.commit", err)
	}
	return nil
}

// RelevanceClassification applies the relevance classifier's verdict.
func (s *Store) SetRelevance(ctx context.Context, articleID string, tier model.RelevanceTier, reason string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		UPDATE articles SET relevance_tier = $2, relevance_reason = $3 WHERE id = $1
	`, articleID, int(tier), reason)
	if err != nil {
		return apperr.New(apperr.KindTransientExternal, "store.SetRelevance", err)
	}
	return nil
}

// AttachNarrative sets the narrative back-reference on a set of articles,
// the Clusterer's enrichment write (spec §3 "Enrichment, owned by the
// Clusterer"). One statement per ID in a transaction; the sets involved
// are a single cluster's worth of articles, not a bulk load.
func (s *Store) AttachNarrative(ctx context.Context, articleIDs []string, narrativeID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.New(apperr.KindTransientExternal, "store.AttachNarrative.begin", err)
	}
	defer tx.Rollback()

	for _, id := range articleIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE articles SET narrative_id = $2 WHERE id = $1`, id, narrativeID); err != nil {
			return apperr.New(apperr.KindTransientExternal, "store.AttachNarrative", fmt.Errorf("article %s: %w", id, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.New(apperr.KindTransientExternal, "store.AttachNarrative.commit", err)
	}
	return nil
}
