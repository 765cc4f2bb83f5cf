// Package cluster groups enriched articles into candidate narrative
// clusters by shared canonical nucleus entity (spec §4.6).
package cluster

import (
	"sort"

	"github.com/mchavez/cryptonews-core/internal/entity"
	"github.com/mchavez/cryptonews-core/internal/model"
)

// Candidate is one surviving cluster: a set of article IDs sharing a
// canonical nucleus entity.
type Candidate struct {
	Nucleus    string
	ArticleIDs []string
	Articles   []model.Article
}

// Build groups articles by canonical nucleus_entity, dropping clusters
// smaller than minSize. Only articles with a non-null nucleus_entity and
// relevance_tier in {1,2} are eligible (the lookback-window filter is the
// caller's responsibility, applied at the query that produces articles).
func Build(articles []model.Article, minSize int) []Candidate {
	byNucleus := map[string][]model.Article{}

	for _, a := range articles {
		if a.NucleusEntity == "" {
			continue
		}
		if a.RelevanceTier != model.RelevanceTierHigh && a.RelevanceTier != model.RelevanceTierMedium {
			continue
		}
		canon := entity.Normalize(a.NucleusEntity)
		byNucleus[canon] = append(byNucleus[canon], a)
	}

	candidates := make([]Candidate, 0, len(byNucleus))
	for nucleus, arts := range byNucleus {
		if len(arts) < minSize {
			continue
		}
		ids := make([]string, 0, len(arts))
		for _, a := range arts {
			ids = append(ids, a.ID)
		}
		candidates = append(candidates, Candidate{Nucleus: nucleus, ArticleIDs: ids, Articles: arts})
	}

	// Deterministic processing order: size desc, then nucleus alpha (spec §4.6, §5).
	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].ArticleIDs) != len(candidates[j].ArticleIDs) {
			return len(candidates[i].ArticleIDs) > len(candidates[j].ArticleIDs)
		}
		return candidates[i].Nucleus < candidates[j].Nucleus
	})

	return candidates
}
