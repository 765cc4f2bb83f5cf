// Package model holds the explicit data types shared across the ingestion,
// extraction, clustering, lifecycle, and scoring pipeline. Every type here
// maps to one persisted collection; fields owned by a single component are
// called out in that component's package comment rather than re-documented
// on every struct.
package model

import "time"

// RelevanceTier classifies how central an article is to crypto infrastructure.
// Tier3 articles are excluded from signal scoring.
type RelevanceTier int

const (
	RelevanceTierHigh   RelevanceTier = 1
	RelevanceTierMedium RelevanceTier = 2
	RelevanceTierLow    RelevanceTier = 3
)

// SentimentLabel is the coarse article- or mention-level sentiment.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Score maps a SentimentLabel to its numeric value for aggregation:
// positive=+1, neutral=0, negative=-1.
func (s SentimentLabel) Score() float64 {
	switch s {
	case SentimentPositive:
		return 1
	case SentimentNegative:
		return -1
	default:
		return 0
	}
}

// Article is immutable after ingestion except for the enrichment fields
// written once by the Entity Extractor and the narrative back-reference
// written by the Clusterer.
type Article struct {
	ID          string
	URL         string
	Title       string
	Text        string
	Source      string
	PublishedAt time.Time
	CreatedAt   time.Time

	// Enrichment, owned by the Entity Extractor. Written once per content hash.
	RelevanceTier   RelevanceTier
	RelevanceReason string
	SentimentLabel  SentimentLabel
	NucleusEntity   string
	Actors          []string
	ActorSalience   map[string]int // entity -> 1..5
	KeyActions      []string
	NarrativeSummary string
	NarrativeHash   string

	// Enrichment, owned by the Clusterer.
	NarrativeID *string
}

// EntityType classifies an EntityMention. Primary types participate in
// signal scoring; the rest are descriptive context only.
type EntityType string

const (
	EntityCryptocurrency EntityType = "cryptocurrency"
	EntityBlockchain     EntityType = "blockchain"
	EntityProtocol       EntityType = "protocol"
	EntityCompany        EntityType = "company"
	EntityOrganization   EntityType = "organization"
	EntityPerson         EntityType = "person"
	EntityLocation       EntityType = "location"
	EntityConcept        EntityType = "concept"
	EntityEvent          EntityType = "event"
)

// IsPrimary reports whether mentions of this type are scored as primary
// entities (spec GLOSSARY: "Primary entity").
func (t EntityType) IsPrimary() bool {
	switch t {
	case EntityCryptocurrency, EntityBlockchain, EntityProtocol, EntityCompany, EntityOrganization:
		return true
	default:
		return false
	}
}

// EntityMention is one row per (article, entity) pair, owned exclusively by
// the Entity Extractor and idempotent on (ArticleID, Entity).
type EntityMention struct {
	ArticleID  string
	Entity     string // canonical form
	EntityType EntityType
	IsPrimary  bool
	Sentiment  SentimentLabel
	Confidence float64 // [0,1]
	Source     string  // propagated from article.source
	CreatedAt  time.Time // = article.published_at
}

// Fingerprint is the compact similarity key for a narrative cluster.
type Fingerprint struct {
	NucleusEntity string
	TopActors     []string // up to 5, salience desc then alpha
	KeyActions    []string // up to 3, deduped
	Timestamp     time.Time
}

// Momentum categorizes a narrative's short-term trajectory.
type Momentum string

const (
	MomentumGrowing   Momentum = "growing"
	MomentumStable    Momentum = "stable"
	MomentumDeclining Momentum = "declining"
	MomentumUnknown   Momentum = "unknown"
)

// LifecycleState is one of the seven states a narrative can occupy.
type LifecycleState string

const (
	LifecycleEmerging LifecycleState = "emerging"
	LifecycleRising   LifecycleState = "rising"
	LifecycleHot      LifecycleState = "hot"
	LifecycleMature   LifecycleState = "mature"
	LifecycleCooling  LifecycleState = "cooling"
	LifecycleDormant  LifecycleState = "dormant"
	LifecycleArchived LifecycleState = "archived"
)

// IsActive reports whether a state counts as "active" for resurrection and
// listing purposes (everything except dormant/archived).
func (s LifecycleState) IsActive() bool {
	return s != LifecycleDormant && s != LifecycleArchived
}

// LifecycleEvent is one append-only entry in a narrative's history log.
type LifecycleEvent struct {
	State          LifecycleState
	Timestamp      time.Time
	ArticleCount   int
	MentionVelocity float64
}

// PeakActivity records the single highest-velocity day observed for a narrative.
type PeakActivity struct {
	Date         time.Time
	ArticleCount int
	Velocity     float64
}

// Narrative is the aggregate of a coherent story over a set of articles.
// Owned exclusively by the Clusterer/Matcher/Lifecycle engine.
type Narrative struct {
	ID      string
	Version int // optimistic-concurrency token

	Title   string
	Summary string
	Theme   string // deprecated/read-only; = nucleus_entity at creation time, never updated again

	Entities    []string // deduped set of all actors across referenced articles
	ArticleIDs  []string
	ArticleCount int

	Fingerprint Fingerprint

	LifecycleState   LifecycleState
	LifecycleHistory []LifecycleEvent

	MentionVelocity float64 // articles/day over 7-day lookback
	Momentum        Momentum
	RecencyScore    float64 // [0,1]

	FirstSeen   time.Time
	LastUpdated time.Time
	DaysActive  int

	ReawakeningCount     int
	ReawakenedFrom       *time.Time
	ResurrectionVelocity float64

	PeakActivity PeakActivity

	// MergedInto points at the surviving narrative's ID when this one was
	// archived as the loser of a merge (spec §9: archive + pointer, never delete).
	MergedInto *string
}

// SentimentAggregate summarizes mention-level sentiment over a window.
type SentimentAggregate struct {
	Avg        float64
	Min        float64
	Max        float64
	Divergence float64 // (max-min) normalized to [0,1]
}

// TimeframeScore holds the per-window components of a SignalScore.
type TimeframeScore struct {
	Score    float64 // [0,10]
	Velocity float64 // percent growth, e.g. 67.0 == +67%
	Mentions int
	Recency  float64 // [0,1]
}

// SignalScore is one row per canonical entity, owned exclusively by the
// Signal Scorer.
type SignalScore struct {
	Entity     string
	EntityType EntityType
	FirstSeen  time.Time
	UpdatedAt  time.Time

	Score24h TimeframeScore
	Score7d  TimeframeScore
	Score30d TimeframeScore

	Sentiment   SentimentAggregate
	SourceCount int

	NarrativeIDs []string
	IsEmerging   bool
}

// ApiCostRecord is an append-only record of a single LLM call's cost.
type ApiCostRecord struct {
	Timestamp    time.Time
	Operation    string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Cached       bool
	CacheKey     *string
}
