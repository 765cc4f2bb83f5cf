// Command cryptonews-cli is the operational CLI surface: one subcommand
// per pipeline stage, invoking the same core operations the scheduler
// runs on its cron schedule. Replaces the original's sprawl of ad hoc
// maintenance scripts with a single binary. Modeled on slcli's
// os.Args-switch dispatch.
//
// Usage:
//
//	cryptonews-cli extract [batch-size]      - run one extraction batch
//	cryptonews-cli cluster                   - run one clustering pass
//	cryptonews-cli score                     - recompute signal scores
//	cryptonews-cli lifecycle-sweep           - recompute narrative lifecycle states
//	cryptonews-cli backfill <url> <title> <source> <published-rfc3339> - insert one article
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mchavez/cryptonews-core/internal/cache"
	"github.com/mchavez/cryptonews-core/internal/cluster"
	"github.com/mchavez/cryptonews-core/internal/config"
	"github.com/mchavez/cryptonews-core/internal/cost"
	"github.com/mchavez/cryptonews-core/internal/extractor"
	"github.com/mchavez/cryptonews-core/internal/lifecycle"
	"github.com/mchavez/cryptonews-core/internal/llm"
	"github.com/mchavez/cryptonews-core/internal/model"
	"github.com/mchavez/cryptonews-core/internal/narrative"
	"github.com/mchavez/cryptonews-core/internal/relevance"
	signalscorer "github.com/mchavez/cryptonews-core/internal/signal"
	"github.com/mchavez/cryptonews-core/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "extract":
		runExtract(ctx, db, cfg, log, args)
	case "cluster":
		runCluster(ctx, db, cfg, log)
	case "score":
		runScore(ctx, db, cfg, log)
	case "lifecycle-sweep":
		runLifecycleSweep(ctx, db, log)
	case "backfill":
		runBackfill(ctx, db, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`cryptonews-cli - pipeline operational surface

Usage:
  cryptonews-cli <command> [arguments]

Commands:
  extract [batch-size]        Run one extraction batch over unenriched articles
  cluster                     Re-cluster recent articles; attach/create/merge narratives
  score                       Recompute signal_scores for recently mentioned entities
  lifecycle-sweep             Recompute lifecycle_state for every non-archived narrative
  backfill <url> <title> <source> <published-rfc3339>
                               Insert one article directly (no RSS adapter in this build)`)
}

func newLLMClient(cfg config.Config) *llm.Client {
	return llm.New(llm.Config{
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
}

func runExtract(ctx context.Context, db *store.Store, cfg config.Config, log *slog.Logger, args []string) {
	batchSize := cfg.LLM.BatchSizeExtraction
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			batchSize = n
		}
	}

	articles, err := db.UnenrichedArticles(ctx, batchSize)
	if err != nil {
		fatal(err)
	}
	if len(articles) == 0 {
		fmt.Println("no unenriched articles")
		return
	}

	tracker := cost.NewTracker(db)
	ex := extractor.New(newLLMClient(cfg), db, cache.NoOp{}, tracker, cfg.LLM.ModelEntity, log)

	byID := map[string]model.Article{}
	for _, a := range articles {
		byID[a.ID] = a
	}

	result, err := ex.ExtractBatch(ctx, articles)
	if err != nil {
		fatal(err)
	}
	for _, a := range result.Articles {
		src := byID[a.ArticleID]
		cls := relevance.Classify(src.Title, src.Text)
		if err := db.SetRelevance(ctx, a.ArticleID, cls.Tier, cls.Reason); err != nil {
			fmt.Fprintf(os.Stderr, "relevance write failed for %s: %v\n", a.ArticleID, err)
			continue
		}
		if err := db.ApplyExtraction(ctx, a.ArticleID, a.Sentiment, a.NucleusEntity, a.Actors, a.ActorSalience, a.KeyActions, a.NarrativeSummary, a.NarrativeHash, a.Entities); err != nil {
			fmt.Fprintf(os.Stderr, "persist failed for %s: %v\n", a.ArticleID, err)
		}
	}
	fmt.Printf("extracted %d, skipped %d\n", len(result.Articles), result.SkippedCount)
}

func runCluster(ctx context.Context, db *store.Store, cfg config.Config, log *slog.Logger) {
	cutoff := time.Now().UTC().Add(-time.Duration(cfg.Pipeline.LookbackHoursCluster) * time.Hour)
	articles, err := db.ArticlesSince(ctx, cutoff)
	if err != nil {
		fatal(err)
	}

	candidates := cluster.Build(articles, cfg.Pipeline.MinClusterSize)
	matcher := narrative.New(db, log)
	now := time.Now().UTC()
	for _, c := range candidates {
		if err := matcher.ProcessCluster(ctx, c, now); err != nil {
			fmt.Fprintf(os.Stderr, "cluster %s failed: %v\n", c.Nucleus, err)
		}
	}

	merger := narrative.NewMerger(db, log)
	merged, err := merger.Run(ctx, now)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("processed %d clusters, merged %d narratives\n", len(candidates), merged)
}

func runScore(ctx context.Context, db *store.Store, cfg config.Config, log *slog.Logger) {
	cutoff := time.Now().UTC().Add(-time.Duration(cfg.Pipeline.LookbackHoursSignal) * time.Hour)
	mentions, err := db.PrimaryMentionsSince(ctx, cutoff)
	if err != nil {
		fatal(err)
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
			fmt.Fprintf(os.Stderr, "score upsert failed for %s: %v\n", entityName, err)
		}
	}
	fmt.Printf("scored %d entities\n", len(byEntity))
}

func runLifecycleSweep(ctx context.Context, db *store.Store, log *slog.Logger) {
	active, err := db.ActiveNarratives(ctx, 10000, "")
	if err != nil {
		fatal(err)
	}

	now := time.Now().UTC()
	updated := 0
	for _, n := range active {
		timestamps, err := db.ArticleTimestamps(ctx, n.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "timestamps failed for %s: %v\n", n.ID, err)
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
			fmt.Fprintf(os.Stderr, "update failed for %s: %v\n", n.ID, err)
			continue
		}
		updated++
	}
	fmt.Printf("swept %d narratives, %d changed\n", len(active), updated)
}

func runBackfill(ctx context.Context, db *store.Store, args []string) {
	if len(args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: cryptonews-cli backfill <url> <title> <source> <published-rfc3339>")
		os.Exit(1)
	}
	url, title, source, publishedRaw := args[0], args[1], args[2], args[3]
	published, err := time.Parse(time.RFC3339, publishedRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid published-at timestamp: %v\n", err)
		os.Exit(1)
	}

	created, err := db.UpsertArticle(ctx, model.Article{
		URL:         url,
		Title:       title,
		Source:      source,
		PublishedAt: published.UTC(),
	})
	if err != nil {
		fatal(err)
	}
	if created {
		fmt.Println("article inserted")
	} else {
		fmt.Println("article already existed, skipped")
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
