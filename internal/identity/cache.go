package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CachePrefix is the Redis key prefix for cached identity records.
	CachePrefix = "identity:"

	// CacheTTL is the lifetime of a cached record.
	CacheTTL = 10 * time.Minute
)

// CachedDirectory is a Redis read-through cache in front of another
// Directory. Cache failures fall through to the inner directory: a Redis
// outage degrades latency, never correctness. Negative results are not
// cached; an unknown id means a connection refusal, a rare path.
type CachedDirectory struct {
	inner  Directory
	client *redis.Client
}

// NewCachedDirectory wraps inner with a Redis cache.
func NewCachedDirectory(inner Directory, client *redis.Client) *CachedDirectory {
	return &CachedDirectory{inner: inner, client: client}
}

// Resolve implements Directory.
func (d *CachedDirectory) Resolve(ctx context.Context, id int64) (*Identity, error) {
	key := fmt.Sprintf("%s%d", CachePrefix, id)

	raw, err := d.client.Get(ctx, key).Bytes()
	if err == nil {
		var ident Identity
		if err := json.Unmarshal(raw, &ident); err == nil {
			return &ident, nil
		}
		// Corrupt cache entry: drop it and fall through.
		_ = d.client.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) {
		log.Printf("identity: cache read for %d: %v", id, err)
	}

	ident, err := d.inner.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(ident); err == nil {
		if err := d.client.Set(ctx, key, data, CacheTTL).Err(); err != nil {
			log.Printf("identity: cache write for %d: %v", id, err)
		}
	}
	return ident, nil
}
