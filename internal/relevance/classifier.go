// Package relevance assigns each article a relevance tier by ordered
// keyword/regex pattern matching. It is a pure, deterministic, side-effect
// free classifier: the same (title, text) always yields the same
// Classification.
package relevance

import (
	"regexp"
	"strings"

	"github.com/mchavez/cryptonews-core/internal/model"
)

// Classification is the result of classifying one article.
type Classification struct {
	Tier           model.RelevanceTier
	Reason         string
	MatchedPattern string
}

// orderedPattern is one named pattern within a tier's pattern set.
type orderedPattern struct {
	name string
	re   *regexp.Regexp
}

func compileAll(pairs [][2]string) []orderedPattern {
	out := make([]orderedPattern, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, orderedPattern{name: p[0], re: regexp.MustCompile(p[1])})
	}
	return out
}

// Tier 3 (exclusion) patterns: noise unrelated to crypto infrastructure,
// or content whose primary intent is speculation rather than reporting.
var tier3Patterns = compileAll([][2]string{
	{"price_prediction", `(?i)price predicti`},
	{"will_it_hit", `(?i)\bwill\s+\S+\s+hit\s+\$?\d`},
	{"top_n_listicle", `(?i)\btop\s+\d+\s+coins?\s+to\s+watch\b`},
	{"listicle", `(?i)\b\d+\s+(crypto|coins?|tokens?)\s+(to|you)\b`},
	{"astrology", `(?i)\b(horoscope|astrolog\w*|zodiac)\b`},
	{"entertainment", `(?i)\b(celebrity|box office|movie review|tv show)\b`},
	{"unrelated_sports", `(?i)\b(football|basketball|world cup|super bowl)\b`},
})

// Tier 1 (promotion) patterns: high-signal, protocol- or market-structure-
// level events.
var tier1Patterns = compileAll([][2]string{
	{"enforcement_action", `(?i)\b(sec|cftc|doj|fbi)\b.{0,40}\b(charges?|lawsuit|enforcement|sues?)\b`},
	{"exploit_or_hack", `(?i)\b(exploit(ed)?|hack(ed)?|drained|rug\s*pull)\b`},
	{"regulatory_decision", `(?i)\b(approves?|rejects?|bans?)\b.{0,40}\b(etf|regulation|license)\b`},
	{"etf_flows", `(?i)\betf\b.{0,40}\$\s?(\d{3,}(\.\d+)?\s?(m|million))\b`},
	{"protocol_upgrade", `(?i)\b(hard fork|mainnet upgrade|protocol upgrade|network upgrade)\b`},
	{"nation_state_adoption", `(?i)\b(legal tender|central bank|sovereign (wealth|reserve)|nation-?state)\b.{0,40}\b(bitcoin|crypto|blockchain)\b`},
})

// Classify assigns a tier by evaluating ordered pattern sets: tier-3
// exclusions first, then tier-1 promotions; anything left over is tier-2.
// The first match in each set wins.
func Classify(title, text string) Classification {
	haystack := strings.ToLower(title + "\n" + text)

	for _, p := range tier3Patterns {
		if p.re.MatchString(haystack) {
			return Classification{
				Tier:           model.RelevanceTierLow,
				Reason:         "matched tier-3 exclusion pattern: " + p.name,
				MatchedPattern: p.name,
			}
		}
	}

	for _, p := range tier1Patterns {
		if p.re.MatchString(haystack) {
			return Classification{
				Tier:           model.RelevanceTierHigh,
				Reason:         "matched tier-1 promotion pattern: " + p.name,
				MatchedPattern: p.name,
			}
		}
	}

	return Classification{
		Tier:   model.RelevanceTierMedium,
		Reason: "no tier-1 or tier-3 pattern matched",
	}
}
