package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchavez/cryptonews-core/internal/model"
)

func mkArticle(id, nucleus string, tier model.RelevanceTier) model.Article {
	return model.Article{ID: id, NucleusEntity: nucleus, RelevanceTier: tier}
}

func TestBuildGroupsByCanonicalNucleus(t *testing.T) {
	articles := []model.Article{
		mkArticle("1", "BTC", model.RelevanceTierHigh),
		mkArticle("2", "bitcoin", model.RelevanceTierMedium),
		mkArticle("3", "Bitcoin", model.RelevanceTierHigh),
	}

	candidates := Build(articles, 2)

	require.Len(t, candidates, 1)
	assert.Equal(t, "Bitcoin", candidates[0].Nucleus)
	assert.ElementsMatch(t, []string{"1", "2", "3"}, candidates[0].ArticleIDs)
}

func TestBuildDropsClustersSmallerThanMinSize(t *testing.T) {
	articles := []model.Article{
		mkArticle("1", "Solana", model.RelevanceTierHigh),
		mkArticle("2", "Ethereum", model.RelevanceTierHigh),
		mkArticle("3", "Ethereum", model.RelevanceTierMedium),
	}

	candidates := Build(articles, 2)

	require.Len(t, candidates, 1)
	assert.Equal(t, "Ethereum", candidates[0].Nucleus)
}

func TestBuildExcludesMissingNucleusAndLowTier(t *testing.T) {
	articles := []model.Article{
		mkArticle("1", "", model.RelevanceTierHigh),
		mkArticle("2", "Bitcoin", model.RelevanceTierLow),
		mkArticle("3", "Bitcoin", model.RelevanceTierHigh),
		mkArticle("4", "Bitcoin", model.RelevanceTierMedium),
	}

	candidates := Build(articles, 2)

	require.Len(t, candidates, 1)
	assert.ElementsMatch(t, []string{"3", "4"}, candidates[0].ArticleIDs)
}

func TestBuildOrdersBySizeDescThenNucleusAlpha(t *testing.T) {
	articles := []model.Article{
		mkArticle("1", "Ethereum", model.RelevanceTierHigh),
		mkArticle("2", "Ethereum", model.RelevanceTierHigh),
		mkArticle("3", "Bitcoin", model.RelevanceTierHigh),
		mkArticle("4", "Bitcoin", model.RelevanceTierHigh),
		mkArticle("5", "Bitcoin", model.RelevanceTierHigh),
		mkArticle("6", "Solana", model.RelevanceTierHigh),
		mkArticle("7", "Solana", model.RelevanceTierHigh),
	}

	candidates := Build(articles, 2)

	require.Len(t, candidates, 3)
	assert.Equal(t, "Bitcoin", candidates[0].Nucleus, "largest cluster first")
	assert.Equal(t, "Ethereum", candidates[1].Nucleus, "ties broken alphabetically")
	assert.Equal(t, "Solana", candidates[2].Nucleus)
}
