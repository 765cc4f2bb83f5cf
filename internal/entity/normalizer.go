// Package entity canonicalizes the many surface forms an entity name can
// take in raw article text — tickers, dollar-prefixed symbols, case
// variants — into a single stable canonical name. It is applied at every
// boundary where an entity name enters the system: before insert into
// entity_mentions, before querying signal_scores, before cluster key
// derivation.
package entity

import "strings"

// aliases maps a lowercased, unprefixed surface form to its canonical name.
// Unknown inputs are returned unchanged by Normalize.
var aliases = map[string]string{
	"btc":     "Bitcoin",
	"bitcoin": "Bitcoin",
	"xbt":     "Bitcoin",

	"eth":      "Ethereum",
	"ethereum": "Ethereum",
	"ether":    "Ethereum",

	"sol":    "Solana",
	"solana": "Solana",

	"xrp":    "XRP",
	"ripple": "Ripple",

	"bnb":    "BNB",
	"usdt":   "Tether",
	"tether": "Tether",
	"usdc":   "USD Coin",

	"ada":     "Cardano",
	"cardano": "Cardano",

	"doge":      "Dogecoin",
	"dogecoin":  "Dogecoin",

	"matic":   "Polygon",
	"polygon": "Polygon",

	"link":      "Chainlink",
	"chainlink": "Chainlink",

	"avax":    "Avalanche",
	"avalanche": "Avalanche",

	"dot":        "Polkadot",
	"polkadot":   "Polkadot",

	"ltc":      "Litecoin",
	"litecoin": "Litecoin",

	"shib":        "Shiba Inu",
	"shiba inu":   "Shiba Inu",

	"sec":                           "SEC",
	"securities and exchange commission": "SEC",

	"cz":              "CZ",
	"changpeng zhao":  "CZ",
	"binance":         "Binance",
	"coinbase":        "Coinbase",
	"kraken":          "Kraken",

	"cftc": "CFTC",
	"fed":  "Federal Reserve",
	"federal reserve": "Federal Reserve",

	"imf": "IMF",
	"fatf": "FATF",
}

// Normalize canonicalizes a raw entity surface form. Matching is
// case-insensitive and tolerant of a leading "$" (as in "$BTC"); the
// returned canonical form preserves whatever casing is stored as the
// alias table's value. Unknown inputs are returned unchanged, trimmed of
// surrounding whitespace only.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}

	key := strings.ToLower(strings.TrimPrefix(trimmed, "$"))
	if canonical, ok := aliases[key]; ok {
		return canonical
	}
	return trimmed
}

// Equal reports whether two raw entity names normalize to the same
// canonical entity.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
