package relevance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mchavez/cryptonews-core/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		title          string
		text           string
		wantTier       model.RelevanceTier
		wantPattern    string
	}{
		{
			name:        "price prediction excluded",
			title:       "Bitcoin price prediction for next week",
			text:        "analysts speculate on where BTC goes next",
			wantTier:    model.RelevanceTierLow,
			wantPattern: "price_prediction",
		},
		{
			name:        "listicle excluded",
			title:       "Top 10 coins to watch this month",
			text:        "",
			wantTier:    model.RelevanceTierLow,
			wantPattern: "top_n_listicle",
		},
		{
			name:        "SEC enforcement promoted",
			title:       "SEC charges exchange with securities violations",
			text:        "the commission filed suit in federal court",
			wantTier:    model.RelevanceTierHigh,
			wantPattern: "enforcement_action",
		},
		{
			name:        "exploit promoted",
			title:       "DeFi protocol drained in exploit",
			text:        "attackers hacked the bridge contract",
			wantTier:    model.RelevanceTierHigh,
			wantPattern: "exploit_or_hack",
		},
		{
			name:        "protocol upgrade promoted",
			title:       "Ethereum mainnet upgrade goes live",
			text:        "the hard fork activated at block height X",
			wantTier:    model.RelevanceTierHigh,
			wantPattern: "protocol_upgrade",
		},
		{
			name:     "routine reporting is tier 2",
			title:    "Exchange adds new trading pair",
			text:     "the listing goes live next week",
			wantTier: model.RelevanceTierMedium,
		},
		{
			name:        "tier-3 exclusion wins over tier-1 when both present",
			title:       "Will Bitcoin hit $100k this week?",
			text:        "analysts weigh in on the speculation",
			wantTier:    model.RelevanceTierLow,
			wantPattern: "will_it_hit",
		},
		{
			name:        "astrology pattern matched on its own",
			title:       "Your crypto horoscope for this week",
			text:        "the stars align for altcoins",
			wantTier:    model.RelevanceTierLow,
			wantPattern: "astrology",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.title, tt.text)
			assert.Equal(t, tt.wantTier, got.Tier)
			if tt.wantPattern != "" {
				assert.Equal(t, tt.wantPattern, got.MatchedPattern)
			} else {
				assert.Empty(t, got.MatchedPattern)
			}
			assert.NotEmpty(t, got.Reason)
		})
	}
}
