// Command cryptonews-core is the single operational binary: it wires
// config, the Postgres store, the two-tier cache, the LLM client, cost
// tracking, and the pipeline packages into the scheduler's named jobs,
// then serves the read-only HTTP surface. Modeled on cmd/tarsy/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mchavez/cryptonews-core/internal/cache"
	"github.com/mchavez/cryptonews-core/internal/cluster"
	"github.com/mchavez/cryptonews-core/internal/config"
	"github.com/mchavez/cryptonews-core/internal/cost"
	"github.com/mchavez/cryptonews-core/internal/events"
	"github.com/mchavez/cryptonews-core/internal/extractor"
	"github.com/mchavez/cryptonews-core/internal/httpapi"
	"github.com/mchavez/cryptonews-core/internal/lifecycle"
	"github.com/mchavez/cryptonews-core/internal/llm"
	"github.com/mchavez/cryptonews-core/internal/model"
	"github.com/mchavez/cryptonews-core/internal/narrative"
	"github.com/mchavez/cryptonews-core/internal/relevance"
	"github.com/mchavez/cryptonews-core/internal/scheduler"
	signalscorer "github.com/mchavez/cryptonews-core/internal/signal"
	"github.com/mchavez/cryptonews-core/internal/store"
)

func main() {
	envPath := flag.String("env-file", getEnv("ENV_FILE", ".env"), "path to a .env file to load before reading the environment")
	httpPort := flag.String("http-port", getEnv("HTTP_PORT", "8080"), "HTTP listen port")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(*envPath); err != nil {
		log.Warn("main: no .env file loaded, relying on process environment", "path", *envPath, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("main: invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		log.Error("main: failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	bus := events.NewBus()
	memCache, err := cache.NewLRUCache(cfg.Cache.Tier1MaxEntries)
	if err != nil {
		log.Error("main: failed to construct tier-1 cache", "error", err)
		os.Exit(1)
	}

	var appCache cache.Cache = memCache
	if cfg.Cache.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Cache.URL)
		if err != nil {
			log.Error("main: failed to construct tier-2 cache", "error", err)
			os.Exit(1)
		}
		defer func() { _ = redisCache.Close() }()
		appCache = cache.New(memCache, redisCache, log)
	}

	bus.Subscribe(events.TopicSignalsChanged, func() {
		if err := appCache.InvalidatePrefix(ctx, cache.PrefixSignals); err != nil {
			log.Warn("main: cache invalidation failed", "prefix", cache.PrefixSignals, "error", err)
		}
	})
	bus.Subscribe(events.TopicNarrativesChanged, func() {
		if err := appCache.InvalidatePrefix(ctx, cache.PrefixNarratives); err != nil {
			log.Warn("main: cache invalidation failed", "prefix", cache.PrefixNarratives, "error", err)
		}
	})

	llmClient := llm.New(llm.Config{
		APIKey:              cfg.LLM.APIKey,
		BaseURL:             cfg.LLM.BaseURL,
		Model:               cfg.LLM.ModelEntity,
		RequestTimeout:      cfg.LLM.RequestTimeout,
		TokensPerMinute:     cfg.LLM.TokensPerMinute,
		SafetyFactor:        cfg.LLM.SafetyFactor,
		MaxRetries:          cfg.LLM.MaxRetries,
		RetryBaseDelay:      cfg.LLM.RetryBaseDelay,
		RetryMaxDelay:       cfg.LLM.RetryMaxDelay,
		CircuitBreakerTrips: cfg.LLM.CircuitBreakerTrips,
		CircuitBreakerReset: cfg.LLM.CircuitBreakerReset,
	})

	tracker := cost.NewTracker(db)
	extract := extractor.New(llmClient, db, appCache, tracker, cfg.LLM.ModelEntity, log)
	matcher := narrative.New(db, log)
	merger := narrative.NewMerger(db, log)

	sched := scheduler.New(ctx, log)
	registerJobs(sched, db, extract, matcher, merger, bus, cfg, log)
	sched.Start()
	defer sched.Stop()

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		healthCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := db.DB().PingContext(healthCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	httpapi.NewServer(db, appCache).Register(router)

	srv := &http.Server{Addr: ":" + *httpPort, Handler: router}
	go func() {
		log.Info("main: http server starting", "port", *httpPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("main: http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("main: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("main: http server shutdown error", "error", err)
	}
}

// BriefingPublisher is the out-of-scope briefing-generation collaborator
// (spec §1 non-goal); the default implementation just logs.
type BriefingPublisher interface {
	Publish(ctx context.Context, slot string) error
}

type noopBriefingPublisher struct{ log *slog.Logger }

func (p noopBriefingPublisher) Publish(_ context.Context, slot string) error {
	p.log.Info("briefing: publisher not configured, skipping", "slot", slot)
	return nil
}

func registerJobs(
	sched *scheduler.Scheduler,
	db *store.Store,
	extract *extractor.Extractor,
	matcher *narrative.Matcher,
	merger *narrative.Merger,
	bus *events.Bus,
	cfg config.Config,
	log *slog.Logger,
) {
	briefing := BriefingPublisher(noopBriefingPublisher{log: log})

	must(sched.Register("ingest", "*/5 * * * *", func(ctx context.Context) error {
		log.Info("ingest: no RSS adapter configured, nothing to do")
		return nil
	}))

	must(sched.Register("extract", "*/5 * * * *", func(ctx context.Context) error {
		articles, err := db.UnenrichedArticles(ctx, cfg.LLM.BatchSizeExtraction)
		if err != nil {
			return err
		}
		if len(articles) == 0 {
			return nil
		}

		byID := map[string]model.Article{}
		for _, a := range articles {
			byID[a.ID] = a
		}

		result, err := extract.ExtractBatch(ctx, articles)
		if err != nil {
			return err
		}
		for _, a := range result.Articles {
			src := byID[a.ArticleID]
			cls := relevance.Classify(src.Title, src.Text)
			if err := db.SetRelevance(ctx, a.ArticleID, cls.Tier, cls.Reason); err != nil {
				log.Error("extract: relevance write failed", "article_id", a.ArticleID, "error", err)
				continue
			}
			if err := db.ApplyExtraction(ctx, a.ArticleID, a.Sentiment, a.NucleusEntity, a.Actors, a.ActorSalience, a.KeyActions, a.NarrativeSummary, a.NarrativeHash, a.Entities); err != nil {
				log.Error("extract: persist failed", "article_id", a.ArticleID, "error", err)
			}
		}
		log.Info("extract: batch complete", "processed", len(result.Articles), "skipped", result.SkippedCount)
		return nil
	}))

	must(sched.Register("cluster", "*/10 * * * *", func(ctx context.Context) error {
		cutoff := time.Now().UTC().Add(-time.Duration(cfg.Pipeline.LookbackHoursCluster) * time.Hour)
		articles, err := db.ArticlesSince(ctx, cutoff)
		if err != nil {
			return err
		}

		candidates := cluster.Build(articles, cfg.Pipeline.MinClusterSize)
		now := time.Now().UTC()
		for _, c := range candidates {
			if err := matcher.ProcessCluster(ctx, c, now); err != nil {
				log.Error("cluster: process failed", "nucleus", c.Nucleus, "error", err)
				continue
			}
		}

		if _, err := merger.Run(ctx, now); err != nil {
			log.Error("cluster: merge pass failed", "error", err)
		}

		bus.Publish(events.TopicNarrativesChanged)
		return nil
	}))

	must(sched.Register("score", "*/10 * * * *", func(ctx context.Context) error {
		// the 30d timeframe's prev window reaches back 60 days; fetch at
		// least that far regardless of the configured lookback, or its
		// N_prev silently undercounts.
		lookbackHours := cfg.Pipeline.LookbackHoursSignal
		if lookbackHours < minSignalLookbackHours {
			lookbackHours = minSignalLookbackHours
		}
		cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
		mentions, err := db.PrimaryMentionsSince(ctx, cutoff)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		byEntity := map[string][]signalscorer.Mention{}
		entityTypes := map[string]model.EntityType{}
		for _, m := range mentions {
			byEntity[m.Entity] = append(byEntity[m.Entity], signalscorer.Mention{Timestamp: m.CreatedAt, Source: m.Source, Sentiment: m.Sentiment})
			entityTypes[m.Entity] = m.EntityType
		}

		for entityName, ms := range byEntity {
			score24 := signalscorer.Score(ms, 24*time.Hour, now)
			score7 := signalscorer.Score(ms, 7*24*time.Hour, now)
			score30 := signalscorer.Score(ms, 30*24*time.Hour, now)
			sentiment, sourceCount := signalscorer.Aggregate(ms, 30*24*time.Hour, now)
			isEmerging := signalscorer.IsEmerging(nil, score24.Score, score7.Score, score30.Score, cfg.Pipeline.EmergingScoreFloor)

			sc := model.SignalScore{
				Entity:      entityName,
				EntityType:  entityTypes[entityName],
				UpdatedAt:   now,
				Score24h:    score24,
				Score7d:     score7,
				Score30d:    score30,
				Sentiment:   sentiment,
				SourceCount: sourceCount,
				IsEmerging:  isEmerging,
			}
			if err := db.UpsertSignalScore(ctx, entityName, entityTypes[entityName], sc, []string{"24h", "7d", "30d"}); err != nil {
				log.Error("score: upsert failed", "entity", entityName, "error", err)
			}
		}

		bus.Publish(events.TopicSignalsChanged)
		return nil
	}))

	must(sched.Register("lifecycle_sweep", "0 * * * *", func(ctx context.Context) error {
		active, err := db.ActiveNarratives(ctx, 10000, "")
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, n := range active {
			timestamps, err := db.ArticleTimestamps(ctx, n.ID)
			if err != nil {
				log.Error("lifecycle_sweep: timestamps failed", "narrative_id", n.ID, "error", err)
				continue
			}
			lastHistoryAt := time.Time{}
			if len(n.LifecycleHistory) > 0 {
				lastHistoryAt = n.LifecycleHistory[len(n.LifecycleHistory)-1].Timestamp
			}
			result := lifecycle.Recompute(n.LifecycleState, timestamps, now, n.LastUpdated, lastHistoryAt)
			if result.State == n.LifecycleState && result.HistoryEntry == nil {
				continue
			}

			n.LifecycleState = result.State
			n.MentionVelocity = result.Velocity
			n.Momentum = result.Momentum
			if result.HistoryEntry != nil {
				n.LifecycleHistory = append(n.LifecycleHistory, *result.HistoryEntry)
			}
			if result.Resurrected {
				n.ReawakeningCount++
				n.ReawakenedFrom = &now
				n.ResurrectionVelocity = result.Velocity
			}

			if err := db.UpdateNarrative(ctx, n, n.Version); err != nil {
				log.Error("lifecycle_sweep: update failed", "narrative_id", n.ID, "error", err)
			}
		}

		bus.Publish(events.TopicNarrativesChanged)
		return nil
	}))

	must(sched.Register("briefing_digest_am", "0 8 * * *", func(ctx context.Context) error {
		return briefing.Publish(ctx, "am")
	}))
	must(sched.Register("briefing_digest_pm", "0 18 * * *", func(ctx context.Context) error {
		return briefing.Publish(ctx, "pm")
	}))
}

// minSignalLookbackHours covers the 30d timeframe's prev window (days 30-60).
const minSignalLookbackHours = 60 * 24

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("main: job registration failed: %v", err))
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
