package cache

import (
	"context"
	"log/slog"
	"time"
)

// TwoTier checks Tier 1 (LRU) first, then Tier 2 (Redis) on miss,
// populating Tier 1 from a Tier-2 hit. Writes go to both tiers. Tier-2
// errors are logged and treated as misses/no-ops rather than propagated,
// since Tier 1 alone keeps the system correct, only slower.
type TwoTier struct {
	tier1 Cache
	tier2 Cache // nil when Tier 2 is not configured
	log   *slog.Logger
}

// New constructs a two-tier cache. tier2 may be nil.
func New(tier1 Cache, tier2 Cache, log *slog.Logger) *TwoTier {
	if log == nil {
		log = slog.Default()
	}
	return &TwoTier{tier1: tier1, tier2: tier2, log: log}
}

func (t *TwoTier) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok, err := t.tier1.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}
	if t.tier2 == nil {
		return "", false, nil
	}
	v, ok, err := t.tier2.Get(ctx, key)
	if err != nil {
		t.log.Warn("cache: tier2 get failed", "key", key, "error", err)
		return "", false, nil
	}
	if ok {
		_ = t.tier1.Set(ctx, key, v, 30*time.Second)
	}
	return v, ok, nil
}

func (t *TwoTier) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := t.tier1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if t.tier2 != nil {
		if err := t.tier2.Set(ctx, key, value, ttl); err != nil {
			t.log.Warn("cache: tier2 set failed", "key", key, "error", err)
		}
	}
	return nil
}

func (t *TwoTier) InvalidatePrefix(ctx context.Context, prefix string) error {
	if err := t.tier1.InvalidatePrefix(ctx, prefix); err != nil {
		return err
	}
	if t.tier2 != nil {
		if err := t.tier2.InvalidatePrefix(ctx, prefix); err != nil {
			t.log.Warn("cache: tier2 invalidate failed", "prefix", prefix, "error", err)
		}
	}
	return nil
}

// NoOp is a cache that never stores anything; used in tests and anywhere
// caching correctness (not performance) is under test.
type NoOp struct{}

func (NoOp) Get(context.Context, string) (string, bool, error)      { return "", false, nil }
func (NoOp) Set(context.Context, string, string, time.Duration) error { return nil }
func (NoOp) InvalidatePrefix(context.Context, string) error          { return nil }
