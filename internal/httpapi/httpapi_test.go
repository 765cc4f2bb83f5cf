package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchavez/cryptonews-core/internal/apperr"
	"github.com/mchavez/cryptonews-core/internal/model"
)

type fakeQueries struct {
	trending         []model.SignalScore
	active           []model.Narrative
	archived         []model.Narrative
	resurrected      []model.Narrative
	narrative        model.Narrative
	articles         []model.Article
	narrativeErr     error
	trendingCalls    int
	activeCalls      int
}

func (f *fakeQueries) TrendingSignals(_ context.Context, _ string, _ string, _ int) ([]model.SignalScore, error) {
	f.trendingCalls++
	return f.trending, nil
}

func (f *fakeQueries) ActiveNarratives(_ context.Context, _ int, _ string) ([]model.Narrative, error) {
	f.activeCalls++
	return f.active, nil
}

func (f *fakeQueries) ArchivedNarratives(_ context.Context, _ time.Time, _ int) ([]model.Narrative, error) {
	return f.archived, nil
}

func (f *fakeQueries) ResurrectedNarratives(_ context.Context, _ time.Time, _ int) ([]model.Narrative, error) {
	return f.resurrected, nil
}

func (f *fakeQueries) NarrativeWithArticles(_ context.Context, _ string) (model.Narrative, []model.Article, error) {
	if f.narrativeErr != nil {
		return model.Narrative{}, nil, f.narrativeErr
	}
	return f.narrative, f.articles, nil
}

type fakeCache struct {
	store map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{store: map[string]string{}} }

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.store[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.store[key] = value
	return nil
}

func (c *fakeCache) InvalidatePrefix(_ context.Context, prefix string) error {
	for k := range c.store {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.store, k)
		}
	}
	return nil
}

func newTestServer(q *fakeQueries, c *fakeCache) (*Server, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	s := NewServer(q, c)
	r := gin.New()
	s.Register(r)
	return s, r
}

func TestTrendingSignalsServesFromStoreThenCache(t *testing.T) {
	q := &fakeQueries{trending: []model.SignalScore{{Entity: "Bitcoin"}}}
	c := newFakeCache()
	_, r := newTestServer(q, c)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/trending?timeframe=24h", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, q.trendingCalls)

	var got []model.SignalScore
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Bitcoin", got[0].Entity)

	// second request should be served from cache, not the store.
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/api/v1/signals/trending?timeframe=24h", nil))
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, 1, q.trendingCalls, "cache hit must not call the store again")
}

func TestActiveNarrativesUsesDefaultLimit(t *testing.T) {
	q := &fakeQueries{active: []model.Narrative{{ID: "n1"}}}
	c := newFakeCache()
	_, r := newTestServer(q, c)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/narratives/active", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, q.activeCalls)
}

func TestNarrativeByIDReturnsNotFoundOnValidationFailure(t *testing.T) {
	q := &fakeQueries{narrativeErr: apperr.New(apperr.KindValidationFailure, "store.GetNarrative", errors.New("no rows"))}
	c := newFakeCache()
	_, r := newTestServer(q, c)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/narratives/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNarrativeByIDReturnsInternalErrorOnOtherFailures(t *testing.T) {
	q := &fakeQueries{narrativeErr: apperr.New(apperr.KindTransientExternal, "store.GetNarrative", errors.New("connection reset"))}
	c := newFakeCache()
	_, r := newTestServer(q, c)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/narratives/n1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNarrativeByIDReturnsNarrativeAndArticles(t *testing.T) {
	q := &fakeQueries{
		narrative: model.Narrative{ID: "n1", Title: "Bitcoin narrative"},
		articles:  []model.Article{{ID: "a1", Title: "headline"}},
	}
	c := newFakeCache()
	_, r := newTestServer(q, c)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/narratives/n1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "narrative")
	assert.Contains(t, body, "articles")
}

func TestQueryIntFallsBackToDefaultOnMalformedValue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var got int
	r.GET("/x", func(c *gin.Context) {
		got = queryInt(c, "limit", 42)
	})

	req := httptest.NewRequest(http.MethodGet, "/x?limit=not-a-number", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, 42, got)
}
