// Package narrative implements the matcher/merger (spec §4.6): for each
// candidate cluster, attach to an existing narrative or create a new one;
// periodically merge highly similar existing narratives. All narrative
// mutations go through optimistic-concurrency writes, modeled on the
// teacher's claim-with-conditional-update-and-refetch pattern.
package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/mchavez/cryptonews-core/internal/apperr"
	"github.com/mchavez/cryptonews-core/internal/cluster"
	"github.com/mchavez/cryptonews-core/internal/fingerprint"
	"github.com/mchavez/cryptonews-core/internal/lifecycle"
	"github.com/mchavez/cryptonews-core/internal/model"
)

const (
	topKCandidates  = 5
	maxRetries      = 3
	recentThreshold = 0.5
	oldThreshold    = 0.6
	recentAge       = 48 * time.Hour
)

// Store is the persistence surface the matcher/merger needs.
type Store interface {
	// CandidatesByNucleus returns up to topK non-archived narratives
	// sharing (or near) the given canonical nucleus, most-recent first.
	CandidatesByNucleus(ctx context.Context, nucleus string, topK int) ([]model.Narrative, error)
	// CreateNarrative inserts a new narrative, rejecting if a non-archived
	// narrative with the same nucleus already exists (unique index).
	CreateNarrative(ctx context.Context, n model.Narrative) (model.Narrative, error)
	// UpdateNarrative performs a CAS write keyed on (ID, expectedVersion);
	// returns apperr.KindIntegrityConflict if the version didn't match.
	UpdateNarrative(ctx context.Context, n model.Narrative, expectedVersion int) error
	// GetNarrative re-reads a narrative after a conflict for retry.
	GetNarrative(ctx context.Context, id string) (model.Narrative, error)
	// ArticleTimestamps returns the published_at of every article currently
	// attached to a narrative, for lifecycle recompute.
	ArticleTimestamps(ctx context.Context, narrativeID string) ([]time.Time, error)
	// ActiveNarrativesByNucleus groups all non-archived narratives by
	// canonical nucleus for the merger pass.
	ActiveNarrativesByNucleus(ctx context.Context) (map[string][]model.Narrative, error)
	// AttachNarrative sets the narrative back-reference on a cluster's
	// articles, owned by the Clusterer (spec §3).
	AttachNarrative(ctx context.Context, articleIDs []string, narrativeID string) error
}

// Matcher attaches clusters to existing narratives or creates new ones.
type Matcher struct {
	store Store
	log   *slog.Logger
}

// New constructs a Matcher.
func New(store Store, log *slog.Logger) *Matcher {
	if log == nil {
		log = slog.Default()
	}
	return &Matcher{store: store, log: log}
}

// ProcessCluster handles one candidate cluster: compute its fingerprint,
// find the best matching candidate narrative, and either attach or create
// (spec §4.6 steps 1-5).
func (m *Matcher) ProcessCluster(ctx context.Context, c cluster.Candidate, now time.Time) error {
	fp := fingerprint.Compute(toClusterArticles(c.Articles), now)

	candidates, err := m.store.CandidatesByNucleus(ctx, c.Nucleus, topKCandidates)
	if err != nil {
		return err
	}

	best, bestSim := bestMatch(fp, candidates)
	threshold := mergeThreshold(best, now)

	if best != nil && bestSim >= threshold {
		return m.attach(ctx, *best, c.ArticleIDs, fp, now)
	}

	created, err := m.store.CreateNarrative(ctx, model.Narrative{
		Title:          fmt.Sprintf("%s narrative", c.Nucleus),
		Theme:          c.Nucleus,
		Entities:       fp.TopActors,
		ArticleIDs:     c.ArticleIDs,
		ArticleCount:   len(c.ArticleIDs),
		Fingerprint:    fp,
		LifecycleState: model.LifecycleEmerging,
		FirstSeen:      now,
		LastUpdated:    now,
	})
	if err != nil {
		if apperr.Is(err, apperr.KindIntegrityConflict) {
			// A concurrent cycle created this nucleus first; fall back to
			// attach (spec §4.6 step 5).
			candidates, err2 := m.store.CandidatesByNucleus(ctx, c.Nucleus, topKCandidates)
			if err2 != nil {
				return err2
			}
			best, _ := bestMatch(fp, candidates)
			if best == nil {
				return err
			}
			return m.attach(ctx, *best, c.ArticleIDs, fp, now)
		}
		return err
	}
	return m.store.AttachNarrative(ctx, c.ArticleIDs, created.ID)
}

func toClusterArticles(articles []model.Article) []fingerprint.ClusterArticle {
	out := make([]fingerprint.ClusterArticle, 0, len(articles))
	for _, a := range articles {
		out = append(out, fingerprint.ClusterArticle{
			NucleusEntity: a.NucleusEntity,
			Actors:        a.Actors,
			ActorSalience: a.ActorSalience,
			KeyActions:    a.KeyActions,
		})
	}
	return out
}

func bestMatch(fp model.Fingerprint, candidates []model.Narrative) (*model.Narrative, float64) {
	var best *model.Narrative
	var bestSim float64
	for i := range candidates {
		sim := fingerprint.Similarity(fp, candidates[i].Fingerprint)
		if sim > bestSim {
			bestSim = sim
			best = &candidates[i]
		}
	}
	return best, bestSim
}

// mergeThreshold returns the attach threshold: 0.5 if the candidate is
// recent (last_updated within 48h), else 0.6 (spec §4.5). A nil candidate
// (no match found) gets the stricter threshold, which is moot since the
// caller only compares against an actual best match.
func mergeThreshold(n *model.Narrative, now time.Time) float64 {
	if n == nil {
		return oldThreshold
	}
	if now.Sub(n.LastUpdated) <= recentAge {
		return recentThreshold
	}
	return oldThreshold
}

// attach appends articles to an existing narrative with retry-on-conflict
// (spec §5: read, apply, write-with-expected-version, retry up to 3 times).
func (m *Matcher) attach(ctx context.Context, target model.Narrative, newArticleIDs []string, newFP model.Fingerprint, now time.Time) error {
	n := target
	for attempt := 0; attempt < maxRetries; attempt++ {
		updated := mergeArticles(n, newArticleIDs, newFP)

		timestamps, err := m.store.ArticleTimestamps(ctx, updated.ID)
		if err != nil {
			return err
		}
		lastHistoryAt := time.Time{}
		if len(updated.LifecycleHistory) > 0 {
			lastHistoryAt = updated.LifecycleHistory[len(updated.LifecycleHistory)-1].Timestamp
		}
		result := lifecycle.Recompute(updated.LifecycleState, timestamps, now, updated.LastUpdated, lastHistoryAt)
		updated.LifecycleState = result.State
		updated.MentionVelocity = result.Velocity
		updated.Momentum = result.Momentum
		updated.LastUpdated = now
		if result.HistoryEntry != nil {
			updated.LifecycleHistory = append(updated.LifecycleHistory, *result.HistoryEntry)
		}
		if result.Resurrected {
			updated.ReawakeningCount++
			updated.ReawakenedFrom = &now
			updated.ResurrectionVelocity = result.Velocity
		}

		err = m.store.UpdateNarrative(ctx, updated, n.Version)
		if err == nil {
			return m.store.AttachNarrative(ctx, newArticleIDs, updated.ID)
		}
		if !apperr.Is(err, apperr.KindIntegrityConflict) {
			return err
		}

		m.log.Warn("narrative: optimistic concurrency conflict, retrying", "narrative_id", n.ID, "attempt", attempt+1)
		n, err = m.store.GetNarrative(ctx, n.ID)
		if err != nil {
			return err
		}
	}
	return apperr.New(apperr.KindIntegrityConflict, "narrative.attach",
		fmt.Errorf("narrative %s: exhausted %d retries", n.ID, maxRetries))
}

func mergeArticles(n model.Narrative, newArticleIDs []string, newFP model.Fingerprint) model.Narrative {
	ids := dedupeStrings(append(append([]string{}, n.ArticleIDs...), newArticleIDs...))
	entities := dedupeStrings(append(append([]string{}, n.Entities...), newFP.TopActors...))

	n.ArticleIDs = ids
	n.ArticleCount = len(ids)
	n.Entities = entities
	n.Fingerprint = newFP
	return n
}

func dedupeStrings(items []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

// Merger runs the periodic merge pass over active narratives grouped by
// shared nucleus (spec §4.6).
type Merger struct {
	store Store
	log   *slog.Logger
}

// NewMerger constructs a Merger.
func NewMerger(store Store, log *slog.Logger) *Merger {
	if log == nil {
		log = slog.Default()
	}
	return &Merger{store: store, log: log}
}

// Run performs one merge pass: for every pair of active narratives sharing
// a nucleus bucket scoring above the merge threshold, merge the smaller
// into the larger, archiving the loser with a merged_into pointer.
func (mg *Merger) Run(ctx context.Context, now time.Time) (int, error) {
	byNucleus, err := mg.store.ActiveNarrativesByNucleus(ctx)
	if err != nil {
		return 0, err
	}

	merged := 0
	for _, group := range byNucleus {
		sort.SliceStable(group, func(i, j int) bool { return group[i].ArticleCount > group[j].ArticleCount })

		absorbed := map[string]bool{}
		for i := 0; i < len(group); i++ {
			if absorbed[group[i].ID] {
				continue
			}
			for j := i + 1; j < len(group); j++ {
				if absorbed[group[j].ID] {
					continue
				}
				sim := fingerprint.Similarity(group[i].Fingerprint, group[j].Fingerprint)
				// the lower of the two narratives' own thresholds wins, so a
				// recent duplicate still merges into an old survivor.
				threshold := math.Min(mergeThreshold(&group[i], now), mergeThreshold(&group[j], now))
				if sim < threshold {
					continue
				}

				survivor, loser := group[i], group[j]
				survivorMerged := mergeArticles(survivor, loser.ArticleIDs, survivor.Fingerprint)
				if err := mg.store.UpdateNarrative(ctx, survivorMerged, survivor.Version); err != nil {
					mg.log.Warn("narrative: merge update failed", "survivor_id", survivor.ID, "error", err)
					continue
				}

				loserID := survivor.ID
				loser.MergedInto = &loserID
				loser.LifecycleState = model.LifecycleArchived
				if err := mg.store.UpdateNarrative(ctx, loser, loser.Version); err != nil {
					mg.log.Warn("narrative: archiving merge loser failed", "loser_id", loser.ID, "error", err)
					continue
				}

				absorbed[loser.ID] = true
				merged++
			}
		}
	}
	return merged, nil
}
