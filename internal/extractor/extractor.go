// Package extractor implements batched LLM entity extraction (spec §4.3):
// batching, content-hash idempotence, prompt-hash caching, output
// validation with retry-then-skip, and cost recording.
package extractor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mchavez/cryptonews-core/internal/apperr"
	"github.com/mchavez/cryptonews-core/internal/cache"
	"github.com/mchavez/cryptonews-core/internal/cost"
	"github.com/mchavez/cryptonews-core/internal/entity"
	"github.com/mchavez/cryptonews-core/internal/llm"
	"github.com/mchavez/cryptonews-core/internal/model"
)

// extractorVersion is folded into the content hash so a prompt/schema
// change invalidates previously-extracted articles.
const extractorVersion = "v1"

// Completer is the subset of internal/llm.Client this package depends on;
// an interface so tests can substitute a fake without a live provider.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (*llm.Response, error)
}

// rawEntity is one entity as emitted by the model, before normalization.
type rawEntity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	IsPrimary  bool    `json:"is_primary"`
}

// rawArticleResult is one article's extraction as emitted by the model.
type rawArticleResult struct {
	ArticleID        string            `json:"article_id"`
	Entities         []rawEntity       `json:"entities"`
	Sentiment        string            `json:"sentiment"`
	NucleusEntity    string            `json:"nucleus_entity"`
	Actors           []string          `json:"actors"`
	ActorSalience    map[string]int    `json:"actor_salience"`
	KeyActions       []string          `json:"key_actions"`
	NarrativeSummary string            `json:"narrative_summary"`
}

// ArticleResult is one article's validated extraction output.
type ArticleResult struct {
	ArticleID        string
	Entities         []model.EntityMention
	Sentiment        model.SentimentLabel
	NucleusEntity    string
	Actors           []string
	ActorSalience    map[string]int
	KeyActions       []string
	NarrativeSummary string
	NarrativeHash    string
	Cached           bool
}

// BatchResult is the outcome of one extract_batch call (spec §4.3).
type BatchResult struct {
	Articles     []ArticleResult
	SkippedCount int
	InputTokens  int
	OutputTokens int
}

// Store is the persistence surface the extractor needs: existing-hash
// lookups for idempotence and entity-mention/article writes.
type Store interface {
	ArticleNarrativeHash(ctx context.Context, articleID string) (string, bool, error)
	HasEntityMentions(ctx context.Context, articleID string) (bool, error)
}

// Extractor batches articles into LLM calls and validates their output.
type Extractor struct {
	llm     Completer
	store   Store
	cache   cache.Cache
	tracker *cost.Tracker
	model   string
	log     *slog.Logger
}

// New constructs an Extractor.
func New(llm Completer, store Store, c cache.Cache, tracker *cost.Tracker, modelName string, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{llm: llm, store: store, cache: c, tracker: tracker, model: modelName, log: log}
}

// ContentHash computes the idempotence key over (title, text, version).
func ContentHash(title, text string) string {
	h := sha256.Sum256([]byte(title + "\x00" + text + "\x00" + extractorVersion))
	return hex.EncodeToString(h[:])
}

// ExtractBatch processes one batch of articles, skipping any that are
// already enriched with a matching content hash, and validating each
// article's output individually so one bad article does not fail the
// batch (spec §4.3 validation semantics).
func (e *Extractor) ExtractBatch(ctx context.Context, articles []model.Article) (*BatchResult, error) {
	pending := make([]model.Article, 0, len(articles))
	for _, a := range articles {
		hash := ContentHash(a.Title, a.Text)
		existing, ok, err := e.store.ArticleNarrativeHash(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if ok && existing == hash {
			hasMentions, err := e.store.HasEntityMentions(ctx, a.ID)
			if err != nil {
				return nil, err
			}
			if hasMentions {
				continue // already enriched under the current extractor version
			}
		}
		pending = append(pending, a)
	}

	if len(pending) == 0 {
		return &BatchResult{}, nil
	}

	result := &BatchResult{}
	raw, cached, err := e.callModel(ctx, pending)
	if err != nil {
		return nil, err
	}
	if !cached {
		result.InputTokens = raw.inputTokens
		result.OutputTokens = raw.outputTokens
	}

	byID := map[string]rawArticleResult{}
	for _, r := range raw.results {
		byID[r.ArticleID] = r
	}

	for _, a := range pending {
		r, ok := byID[a.ID]
		if !ok {
			e.log.Warn("extractor: model omitted article from batch response, retrying individually", "article_id", a.ID)
			retried, err := e.retryOne(ctx, a)
			if err != nil {
				result.SkippedCount++
				e.log.Error("extractor: article skipped after retry failure", "article_id", a.ID, "error", err)
				continue
			}
			result.Articles = append(result.Articles, *retried)
			continue
		}

		validated, err := validate(a, r)
		if err != nil {
			e.log.Warn("extractor: validation failed, retrying individually", "article_id", a.ID, "error", err)
			retried, err := e.retryOne(ctx, a)
			if err != nil {
				result.SkippedCount++
				e.log.Error("extractor: article skipped after retry failure", "article_id", a.ID, "error", err)
				continue
			}
			result.Articles = append(result.Articles, *retried)
			continue
		}
		validated.NarrativeHash = ContentHash(a.Title, a.Text)
		validated.Cached = cached
		result.Articles = append(result.Articles, *validated)
	}

	return result, nil
}

// retryOne re-issues a single-article extraction call; the second failure
// is the caller's responsibility to count as skipped (spec §4.3).
func (e *Extractor) retryOne(ctx context.Context, a model.Article) (*ArticleResult, error) {
	raw, cached, err := e.callModel(ctx, []model.Article{a})
	if err != nil {
		return nil, err
	}
	if len(raw.results) == 0 {
		return nil, fmt.Errorf("extractor: retry produced no result for article %s", a.ID)
	}
	validated, err := validate(a, raw.results[0])
	if err != nil {
		return nil, err
	}
	validated.NarrativeHash = ContentHash(a.Title, a.Text)
	validated.Cached = cached
	return validated, nil
}

type modelCallResult struct {
	results      []rawArticleResult
	inputTokens  int
	outputTokens int
}

// callModel sends the batch prompt, consulting the prompt-hash cache first
// so identical prompts cost zero on a hit (spec §4.3).
func (e *Extractor) callModel(ctx context.Context, articles []model.Article) (*modelCallResult, bool, error) {
	prompt := buildPrompt(articles)
	promptHash := ContentHash(e.model, prompt)
	cacheKey := "llm:prompt:" + promptHash

	if e.cache != nil {
		if cached, ok, _ := e.cache.Get(ctx, cacheKey); ok {
			var results []rawArticleResult
			if err := json.Unmarshal([]byte(cached), &results); err == nil {
				if e.tracker != nil {
					_ = e.tracker.Track(ctx, e.model, "entity_extraction", 0, 0)
				}
				return &modelCallResult{results: results}, true, nil
			}
		}
	}

	resp, err := e.llm.Complete(ctx, prompt, 4096)
	if err != nil {
		return nil, false, err
	}

	var results []rawArticleResult
	if err := json.Unmarshal([]byte(resp.Text), &results); err != nil {
		return nil, false, apperr.New(apperr.KindValidationFailure, "extractor.callModel", err)
	}

	if e.cache != nil {
		if encoded, err := json.Marshal(results); err == nil {
			_ = e.cache.Set(ctx, cacheKey, string(encoded), 24*time.Hour)
		}
	}
	if e.tracker != nil {
		_ = e.tracker.Track(ctx, e.model, "entity_extraction", resp.InputTokens, resp.OutputTokens)
	}

	return &modelCallResult{results: results, inputTokens: resp.InputTokens, outputTokens: resp.OutputTokens}, false, nil
}

// buildPrompt assembles a single request containing every article with
// per-article delimiters (spec §4.3 "batching").
func buildPrompt(articles []model.Article) string {
	var b strings.Builder
	b.WriteString(instructionPreamble)
	for _, a := range articles {
		fmt.Fprintf(&b, "\n---ARTICLE id=%s---\nTITLE: %s\nTEXT: %s\n", a.ID, a.Title, truncate(a.Text, 4000))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

const instructionPreamble = `Extract, for each article below, a JSON array of objects with fields:
article_id, entities (list of {type, value, confidence, is_primary}),
sentiment (positive|neutral|negative), nucleus_entity, actors (list of strings),
actor_salience (map actor->int 1-5), key_actions (list of strings), narrative_summary.
Respond with only the JSON array, no prose.`

var allowedEntityTypes = map[string]model.EntityType{
	string(model.EntityCryptocurrency): model.EntityCryptocurrency,
	string(model.EntityBlockchain):     model.EntityBlockchain,
	string(model.EntityProtocol):       model.EntityProtocol,
	string(model.EntityCompany):        model.EntityCompany,
	string(model.EntityOrganization):   model.EntityOrganization,
	string(model.EntityPerson):         model.EntityPerson,
	string(model.EntityLocation):       model.EntityLocation,
	string(model.EntityConcept):        model.EntityConcept,
	string(model.EntityEvent):          model.EntityEvent,
}

var allowedSentiments = map[string]model.SentimentLabel{
	string(model.SentimentPositive): model.SentimentPositive,
	string(model.SentimentNeutral):  model.SentimentNeutral,
	string(model.SentimentNegative): model.SentimentNegative,
}

// validate enforces spec §4.3's required-field and range checks.
func validate(a model.Article, r rawArticleResult) (*ArticleResult, error) {
	articleID := a.ID
	if r.NucleusEntity == "" {
		return nil, apperr.New(apperr.KindValidationFailure, "extractor.validate",
			fmt.Errorf("article %s: nucleus_entity is empty", articleID))
	}
	if r.Actors == nil {
		return nil, apperr.New(apperr.KindValidationFailure, "extractor.validate",
			fmt.Errorf("article %s: actors must be a list", articleID))
	}
	for actor, salience := range r.ActorSalience {
		if salience < 1 || salience > 5 {
			return nil, apperr.New(apperr.KindValidationFailure, "extractor.validate",
				fmt.Errorf("article %s: actor %q salience %d out of [1,5]", articleID, actor, salience))
		}
	}
	sentiment, ok := allowedSentiments[r.Sentiment]
	if !ok {
		return nil, apperr.New(apperr.KindValidationFailure, "extractor.validate",
			fmt.Errorf("article %s: sentiment %q not in allowed set", articleID, r.Sentiment))
	}

	mentions := make([]model.EntityMention, 0, len(r.Entities))
	for _, e := range r.Entities {
		et, ok := allowedEntityTypes[e.Type]
		if !ok {
			continue // unknown entity type; drop rather than fail the whole article
		}
		mentions = append(mentions, model.EntityMention{
			ArticleID:  articleID,
			Entity:     entity.Normalize(e.Value),
			EntityType: et,
			IsPrimary:  et.IsPrimary(),
			Sentiment:  sentiment,
			Confidence: e.Confidence,
			Source:     a.Source,
			CreatedAt:  a.PublishedAt,
		})
	}

	return &ArticleResult{
		ArticleID:        articleID,
		Entities:         mentions,
		Sentiment:        sentiment,
		NucleusEntity:    r.NucleusEntity,
		Actors:           r.Actors,
		ActorSalience:    r.ActorSalience,
		KeyActions:       r.KeyActions,
		NarrativeSummary: r.NarrativeSummary,
	}, nil
}
