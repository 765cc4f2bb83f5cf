package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchavez/cryptonews-core/internal/cache"
	"github.com/mchavez/cryptonews-core/internal/llm"
	"github.com/mchavez/cryptonews-core/internal/model"
)

type fakeCompleter struct {
	responses []string // one per call, popped in order
	calls     int
	err       error
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, _ int) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.responses) {
		return nil, errors.New("fakeCompleter: out of canned responses")
	}
	text := f.responses[f.calls]
	f.calls++
	return &llm.Response{Text: text, InputTokens: 100, OutputTokens: 50}, nil
}

type fakeStore struct {
	hashes   map[string]string
	mentions map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{hashes: map[string]string{}, mentions: map[string]bool{}}
}

func (f *fakeStore) ArticleNarrativeHash(_ context.Context, articleID string) (string, bool, error) {
	h, ok := f.hashes[articleID]
	return h, ok, nil
}

func (f *fakeStore) HasEntityMentions(_ context.Context, articleID string) (bool, error) {
	return f.mentions[articleID], nil
}

func validResultJSON(articleID string) string {
	results := []rawArticleResult{
		{
			ArticleID:        articleID,
			Entities:         []rawEntity{{Type: "cryptocurrency", Value: "Bitcoin", Confidence: 0.9, IsPrimary: true}},
			Sentiment:        "positive",
			NucleusEntity:    "Bitcoin",
			Actors:           []string{"SEC"},
			ActorSalience:    map[string]int{"SEC": 4},
			KeyActions:       []string{"files lawsuit"},
			NarrativeSummary: "summary",
		},
	}
	b, _ := json.Marshal(results)
	return string(b)
}

func TestExtractBatchSkipsAlreadyEnrichedArticles(t *testing.T) {
	a := model.Article{ID: "a1", Title: "t", Text: "x"}
	store := newFakeStore()
	store.hashes["a1"] = ContentHash(a.Title, a.Text)
	store.mentions["a1"] = true

	completer := &fakeCompleter{}
	ex := New(completer, store, cache.NoOp{}, nil, "claude-haiku", nil)

	result, err := ex.ExtractBatch(context.Background(), []model.Article{a})
	require.NoError(t, err)
	assert.Empty(t, result.Articles)
	assert.Equal(t, 0, completer.calls, "already-enriched article must not call the model")
}

func TestExtractBatchValidatesAndReturnsArticle(t *testing.T) {
	a := model.Article{ID: "a1", Title: "t", Text: "x"}
	store := newFakeStore()
	completer := &fakeCompleter{responses: []string{validResultJSON("a1")}}
	ex := New(completer, store, cache.NoOp{}, nil, "claude-haiku", nil)

	result, err := ex.ExtractBatch(context.Background(), []model.Article{a})
	require.NoError(t, err)
	require.Len(t, result.Articles, 1)
	assert.Equal(t, "Bitcoin", result.Articles[0].NucleusEntity)
	assert.Equal(t, model.SentimentPositive, result.Articles[0].Sentiment)
	assert.Equal(t, ContentHash(a.Title, a.Text), result.Articles[0].NarrativeHash)
	assert.Equal(t, 100, result.InputTokens)
	assert.Equal(t, 50, result.OutputTokens)
}

func TestExtractBatchRetriesOmittedArticleThenSkipsOnSecondFailure(t *testing.T) {
	a := model.Article{ID: "a1", Title: "t", Text: "x"}
	store := newFakeStore()
	// first batch call omits a1 entirely; retryOne's canned response also omits it.
	completer := &fakeCompleter{responses: []string{`[]`, `[]`}}
	ex := New(completer, store, cache.NoOp{}, nil, "claude-haiku", nil)

	result, err := ex.ExtractBatch(context.Background(), []model.Article{a})
	require.NoError(t, err)
	assert.Empty(t, result.Articles)
	assert.Equal(t, 1, result.SkippedCount)
}

func TestExtractBatchRetriesInvalidThenSucceeds(t *testing.T) {
	a := model.Article{ID: "a1", Title: "t", Text: "x"}
	store := newFakeStore()
	invalid := []rawArticleResult{{ArticleID: "a1", Sentiment: "not-a-real-sentiment"}}
	invalidJSON, _ := json.Marshal(invalid)
	completer := &fakeCompleter{responses: []string{string(invalidJSON), validResultJSON("a1")}}
	ex := New(completer, store, cache.NoOp{}, nil, "claude-haiku", nil)

	result, err := ex.ExtractBatch(context.Background(), []model.Article{a})
	require.NoError(t, err)
	require.Len(t, result.Articles, 1)
	assert.Equal(t, 0, result.SkippedCount)
}

func TestExtractBatchEmptyWhenAllSkipped(t *testing.T) {
	store := newFakeStore()
	completer := &fakeCompleter{}
	ex := New(completer, store, cache.NoOp{}, nil, "claude-haiku", nil)

	result, err := ex.ExtractBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Articles)
	assert.Equal(t, 0, completer.calls)
}

func TestContentHashStableAndSensitiveToInput(t *testing.T) {
	h1 := ContentHash("title", "text")
	h2 := ContentHash("title", "text")
	h3 := ContentHash("title", "different text")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

func TestValidateRejectsOutOfRangeSalience(t *testing.T) {
	r := rawArticleResult{
		ArticleID:     "a1",
		NucleusEntity: "Bitcoin",
		Actors:        []string{"SEC"},
		ActorSalience: map[string]int{"SEC": 9},
		Sentiment:     "positive",
	}
	_, err := validate(model.Article{ID: "a1"}, r)
	require.Error(t, err)
}

func TestValidateDropsUnknownEntityTypesWithoutFailing(t *testing.T) {
	r := rawArticleResult{
		ArticleID:     "a1",
		NucleusEntity: "Bitcoin",
		Actors:        []string{},
		ActorSalience: map[string]int{},
		Sentiment:     "neutral",
		Entities: []rawEntity{
			{Type: "cryptocurrency", Value: "Bitcoin"},
			{Type: "not-a-type", Value: "whatever"},
		},
	}
	got, err := validate(model.Article{ID: "a1", Source: "coindesk"}, r)
	require.NoError(t, err)
	require.Len(t, got.Entities, 1)
	assert.Equal(t, model.EntityCryptocurrency, got.Entities[0].EntityType)
	assert.Equal(t, "coindesk", got.Entities[0].Source)
}
