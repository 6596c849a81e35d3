package oracle

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/patrickmn/go-cache"

	"nftmarket/native/marketplace"
)

// Cached memoises positive lookups of a slower oracle. Misses and errors
// always reach the source.
type Cached struct {
	source marketplace.AuthenticityOracle
	cache  *cache.Cache
}

// NewCached wraps source with a TTL cache.
func NewCached(source marketplace.AuthenticityOracle, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{source: source, cache: cache.New(ttl, 2*ttl)}
}

// AssetMetadata implements marketplace.AuthenticityOracle.
func (c *Cached) AssetMetadata(ctx context.Context, asset solana.PublicKey) (*marketplace.AssetMetadata, bool, error) {
	key := asset.String()
	if hit, found := c.cache.Get(key); found {
		meta := hit.(marketplace.AssetMetadata)
		return &meta, true, nil
	}
	meta, ok, err := c.source.AssetMetadata(ctx, asset)
	if err != nil || !ok || meta == nil {
		return meta, ok, err
	}
	c.cache.Set(key, *meta, cache.DefaultExpiration)
	clone := *meta
	return &clone, true, nil
}

// Invalidate drops any cached entry for asset.
func (c *Cached) Invalidate(asset solana.PublicKey) {
	c.cache.Delete(asset.String())
}
