package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"

	"billtrack/recurring"
)

// VerdictCache stores split verdicts so an unchanged set of clusters never
// costs a second AI call
type VerdictCache struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewVerdictCache creates a verdict cache; a nil client disables it
func NewVerdictCache(redis *RedisClient, ttl time.Duration) *VerdictCache {
	return &VerdictCache{
		redis: redis,
		ttl:   ttl,
	}
}

func verdictKey(merchant, dataHash string) string {
	return fmt.Sprintf("billtrack:verdict:%s:%s", merchant, dataHash)
}

// GetVerdict retrieves a cached verdict.
// Returns the verdict and true if found, a zero verdict and false otherwise.
func (c *VerdictCache) GetVerdict(ctx context.Context, merchant, dataHash string) (recurring.SplitVerdict, bool) {
	if c == nil || c.redis == nil {
		return recurring.SplitVerdict{}, false
	}

	var v recurring.SplitVerdict
	if err := c.redis.Get(ctx, verdictKey(merchant, dataHash), &v); err != nil {
		return recurring.SplitVerdict{}, false
	}
	return v, true
}

// SetVerdict caches a verdict for the given cluster hash
func (c *VerdictCache) SetVerdict(ctx context.Context, merchant, dataHash string, v recurring.SplitVerdict) error {
	if c == nil || c.redis == nil {
		return ErrNotInitialized
	}
	return c.redis.Set(ctx, verdictKey(merchant, dataHash), v, c.ttl)
}

// GenerateDataHash creates a short hash of data to detect whether the input changed
func GenerateDataHash(data interface{}) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf("%x", hash[:8]) // Use first 8 bytes for shorter hash
}
