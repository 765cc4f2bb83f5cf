package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mchavez/cryptonews-core/internal/model"
)

func TestComputeDominantNucleusAndTopActors(t *testing.T) {
	now := time.Now()
	articles := []ClusterArticle{
		{
			NucleusEntity: "BTC",
			ActorSalience: map[string]int{"BTC": 5, "SEC": 3},
			KeyActions:    []string{"files lawsuit"},
		},
		{
			NucleusEntity: "bitcoin",
			ActorSalience: map[string]int{"bitcoin": 4, "coinbase": 2},
			KeyActions:    []string{"Files Lawsuit", "appeals ruling"},
		},
		{
			NucleusEntity: "Bitcoin",
			Actors:        []string{"Binance"},
			ActorSalience: map[string]int{"Bitcoin": 5},
			KeyActions:    []string{"files lawsuit"},
		},
	}

	fp := Compute(articles, now)

	assert.Equal(t, "Bitcoin", fp.NucleusEntity, "BTC/bitcoin/Bitcoin normalize to the same canonical nucleus")
	assert.Contains(t, fp.TopActors, "SEC")
	assert.Contains(t, fp.TopActors, "Coinbase")
	assert.Contains(t, fp.TopActors, "Binance")
	assert.LessOrEqual(t, len(fp.TopActors), maxTopActors)
	assert.Equal(t, []string{"files lawsuit", "appeals ruling"}, fp.KeyActions, "most frequent action ranked first")
	assert.Equal(t, now, fp.Timestamp)
}

func TestComputeCapsTopActorsAndKeyActions(t *testing.T) {
	articles := []ClusterArticle{
		{
			NucleusEntity: "Bitcoin",
			ActorSalience: map[string]int{
				"A": 5, "B": 4, "C": 3, "D": 2, "E": 1, "F": 5,
			},
			KeyActions: []string{"act1", "act2", "act3", "act4"},
		},
	}

	fp := Compute(articles, time.Now())
	assert.Len(t, fp.TopActors, maxTopActors)
	assert.Len(t, fp.KeyActions, maxKeyActions)
}

func TestComputeNoNucleusYieldsEmptyString(t *testing.T) {
	fp := Compute([]ClusterArticle{{}}, time.Now())
	assert.Empty(t, fp.NucleusEntity)
}

func TestSimilarity(t *testing.T) {
	base := model.Fingerprint{
		NucleusEntity: "Bitcoin",
		TopActors:     []string{"SEC", "Coinbase"},
		KeyActions:    []string{"files lawsuit"},
	}

	tests := []struct {
		name string
		a, b model.Fingerprint
		want float64
	}{
		{
			name: "identical fingerprints score 1.0",
			a:    base,
			b:    base,
			want: 1.0,
		},
		{
			name: "different nucleus scores from shared overlap only",
			a:    base,
			b:    model.Fingerprint{NucleusEntity: "Ethereum", TopActors: []string{"SEC", "Coinbase"}, KeyActions: []string{"files lawsuit"}},
			want: weightActorJaccard + weightActionJaccard,
		},
		{
			name: "empty nucleus on either side scores zero",
			a:    model.Fingerprint{},
			b:    base,
			want: 0,
		},
		{
			name: "same nucleus no actor/action overlap",
			a:    model.Fingerprint{NucleusEntity: "Bitcoin", TopActors: []string{"X"}, KeyActions: []string{"Y"}},
			b:    model.Fingerprint{NucleusEntity: "Bitcoin", TopActors: []string{"Z"}, KeyActions: []string{"W"}},
			want: weightNucleus + semanticBoost,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestSimilarityNeverExceedsOne(t *testing.T) {
	a := model.Fingerprint{NucleusEntity: "Bitcoin", TopActors: []string{"X", "Y"}, KeyActions: []string{"Z"}}
	got := Similarity(a, a)
	assert.LessOrEqual(t, got, 1.0)
}
