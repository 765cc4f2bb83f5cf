// Package fingerprint computes the {nucleus_entity, top_actors, key_actions}
// triple that identifies a narrative and scores similarity between two
// fingerprints for matching and merge decisions. The weighting scheme is
// grounded on the Python original's Jaccard-based narrative deduplication,
// extended with a nucleus term and a small semantic boost per spec §4.5.
package fingerprint

import (
	"sort"
	"strings"
	"time"

	"github.com/mchavez/cryptonews-core/internal/entity"
	"github.com/mchavez/cryptonews-core/internal/model"
)

const (
	weightNucleus      = 0.45
	weightActorJaccard = 0.35
	weightActionJaccard = 0.20
	semanticBoost      = 0.10

	maxTopActors  = 5
	maxKeyActions = 3
)

// ClusterArticle is the subset of article fields a cluster needs to
// compute a fingerprint; decoupled from model.Article so this package
// doesn't need the full enriched record.
type ClusterArticle struct {
	NucleusEntity string
	Actors        []string
	ActorSalience map[string]int
	KeyActions    []string
}

// Compute derives a fingerprint from a cluster of articles (spec §4.5).
func Compute(articles []ClusterArticle, now time.Time) model.Fingerprint {
	nucleus := dominantNucleus(articles)

	salience := map[string]int{}
	for _, a := range articles {
		for actor, s := range a.ActorSalience {
			canon := entity.Normalize(actor)
			if s > salience[canon] {
				salience[canon] = s
			}
		}
		for _, actor := range a.Actors {
			canon := entity.Normalize(actor)
			if _, ok := salience[canon]; !ok {
				salience[canon] = 1
			}
		}
	}
	topActors := rankActors(salience, maxTopActors)

	actionCounts := map[string]int{}
	var actionOrder []string
	for _, a := range articles {
		for _, act := range a.KeyActions {
			key := strings.ToLower(strings.TrimSpace(act))
			if key == "" {
				continue
			}
			if actionCounts[key] == 0 {
				actionOrder = append(actionOrder, key)
			}
			actionCounts[key]++
		}
	}
	keyActions := rankActions(actionOrder, actionCounts, maxKeyActions)

	return model.Fingerprint{
		NucleusEntity: nucleus,
		TopActors:     topActors,
		KeyActions:    keyActions,
		Timestamp:     now,
	}
}

// dominantNucleus picks the most common nucleus_entity across the cluster,
// breaking ties by highest aggregate salience of that nucleus as an actor.
func dominantNucleus(articles []ClusterArticle) string {
	counts := map[string]int{}
	aggSalience := map[string]int{}
	var order []string

	for _, a := range articles {
		if a.NucleusEntity == "" {
			continue
		}
		canon := entity.Normalize(a.NucleusEntity)
		if counts[canon] == 0 {
			order = append(order, canon)
		}
		counts[canon]++
		aggSalience[canon] += a.ActorSalience[a.NucleusEntity]
	}

	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		if aggSalience[order[i]] != aggSalience[order[j]] {
			return aggSalience[order[i]] > aggSalience[order[j]]
		}
		return order[i] < order[j]
	})

	if len(order) == 0 {
		return ""
	}
	return order[0]
}

// rankActors returns up to n actors ordered by salience desc, then alpha,
// per spec §4 "top_actors (≤5, by salience desc then alpha)".
func rankActors(salience map[string]int, n int) []string {
	actors := make([]string, 0, len(salience))
	for a := range salience {
		actors = append(actors, a)
	}
	sort.SliceStable(actors, func(i, j int) bool {
		if salience[actors[i]] != salience[actors[j]] {
			return salience[actors[i]] > salience[actors[j]]
		}
		return actors[i] < actors[j]
	})
	if len(actors) > n {
		actors = actors[:n]
	}
	return actors
}

// rankActions returns up to n actions ordered by frequency desc, then by
// first-seen order, matching the "key_actions (≤3)" cap.
func rankActions(order []string, counts map[string]int, n int) []string {
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}

// Similarity scores two fingerprints in [0,1] per spec §4.5: nucleus
// equality contributes 0.45, actor Jaccard up to 0.35, action Jaccard up
// to 0.20, plus a 0.10 semantic boost when nucleus matches, capped at 1.0.
func Similarity(a, b model.Fingerprint) float64 {
	if a.NucleusEntity == "" || b.NucleusEntity == "" {
		return 0
	}

	var score float64
	nucleusMatch := entity.Equal(a.NucleusEntity, b.NucleusEntity)
	if nucleusMatch {
		score += weightNucleus
		score += semanticBoost
	}

	score += weightActorJaccard * jaccard(a.TopActors, b.TopActors)
	score += weightActionJaccard * jaccard(a.KeyActions, b.KeyActions)

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1 // vacuously identical, needed for sim(fp, fp) == 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := toSet(a)
	setB := toSet(b)

	intersection := 0
	for k := range setA {
		if setB[k] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[strings.ToLower(strings.TrimSpace(it))] = true
	}
	return set
}
