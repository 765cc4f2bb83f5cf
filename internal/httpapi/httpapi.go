// Package httpapi is the thin gin wrapper over the cache-backed listing
// endpoints (spec §6). All writes happen through the scheduler's jobs;
// this surface only reads.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mchavez/cryptonews-core/internal/apperr"
	"github.com/mchavez/cryptonews-core/internal/cache"
	"github.com/mchavez/cryptonews-core/internal/model"
)

// Queries is the read surface this API needs from the store.
type Queries interface {
	TrendingSignals(ctx context.Context, timeframe string, entityType string, limit int) ([]model.SignalScore, error)
	ActiveNarratives(ctx context.Context, limit int, lifecycleState string) ([]model.Narrative, error)
	ArchivedNarratives(ctx context.Context, since time.Time, limit int) ([]model.Narrative, error)
	ResurrectedNarratives(ctx context.Context, since time.Time, limit int) ([]model.Narrative, error)
	NarrativeWithArticles(ctx context.Context, id string) (model.Narrative, []model.Article, error)
}

// Server wires the listing endpoints to a Queries implementation through
// the two-tier cache.
type Server struct {
	store Queries
	cache cache.Cache
}

// NewServer constructs a Server.
func NewServer(store Queries, c cache.Cache) *Server {
	return &Server{store: store, cache: c}
}

// Register mounts every endpoint under /api/v1 on r.
func (s *Server) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.GET("/signals/trending", s.trendingSignals)
	v1.GET("/narratives/active", s.activeNarratives)
	v1.GET("/narratives/archived", s.archivedNarratives)
	v1.GET("/narratives/resurrections", s.resurrections)
	v1.GET("/narratives/:id", s.narrativeByID)
}

func (s *Server) trendingSignals(c *gin.Context) {
	timeframe := c.DefaultQuery("timeframe", "7d")
	entityType := c.Query("entity_type")
	limit := queryInt(c, "limit", 20)

	key := "signals:trending:" + timeframe + ":" + strconv.Itoa(limit) + ":" + entityType
	s.serveCached(c, key, 120*time.Second, func(ctx context.Context) (any, error) {
		return s.store.TrendingSignals(ctx, timeframe, entityType, limit)
	})
}

func (s *Server) activeNarratives(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	state := c.Query("lifecycle_state")

	key := "narratives:active:" + strconv.Itoa(limit) + ":" + state
	s.serveCached(c, key, 300*time.Second, func(ctx context.Context) (any, error) {
		return s.store.ActiveNarratives(ctx, limit, state)
	})
}

func (s *Server) archivedNarratives(c *gin.Context) {
	days := queryInt(c, "days", 30)
	limit := queryInt(c, "limit", 20)
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	key := "narratives:archived:" + strconv.Itoa(days) + ":" + strconv.Itoa(limit)
	s.serveCached(c, key, 600*time.Second, func(ctx context.Context) (any, error) {
		return s.store.ArchivedNarratives(ctx, since, limit)
	})
}

func (s *Server) resurrections(c *gin.Context) {
	days := queryInt(c, "days", 30)
	limit := queryInt(c, "limit", 20)
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	key := "narratives:resurrections:" + strconv.Itoa(days) + ":" + strconv.Itoa(limit)
	s.serveCached(c, key, 600*time.Second, func(ctx context.Context) (any, error) {
		return s.store.ResurrectedNarratives(ctx, since, limit)
	})
}

func (s *Server) narrativeByID(c *gin.Context) {
	id := c.Param("id")
	n, articles, err := s.store.NarrativeWithArticles(c.Request.Context(), id)
	if err != nil {
		if apperr.Is(err, apperr.KindValidationFailure) {
			c.JSON(http.StatusNotFound, gin.H{"error": "narrative not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"narrative": n, "articles": articles})
}

// serveCached reads key from cache, falling back to load on miss and
// populating the cache with ttl (spec §4.9 read-through cache).
func (s *Server) serveCached(c *gin.Context, key string, ttl time.Duration, load func(context.Context) (any, error)) {
	ctx := c.Request.Context()

	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		c.Data(http.StatusOK, "application/json", []byte(cached))
		return
	}

	data, err := load(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	_ = s.cache.Set(ctx, key, string(encoded), ttl)
	c.Data(http.StatusOK, "application/json", encoded)
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
