package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedShareStore puts a Redis read-through cache in front of the share pool
// row. Price lookups are the hot read path (every buy/sell quote hits them);
// settlement writes go to postgres and invalidate the cached pool so the next
// read re-populates.
type CachedShareStore struct {
	*ShareStore
	rdb *redis.Client
	ttl time.Duration
}

func NewCachedShareStore(primary *ShareStore, rdb *redis.Client, ttl time.Duration) *CachedShareStore {
	return &CachedShareStore{ShareStore: primary, rdb: rdb, ttl: ttl}
}

func poolKey(poolID string) string {
	return "sharepool:" + poolID
}

func (s *CachedShareStore) GetPool(ctx context.Context, poolID string) (SharePool, error) {
	data, err := s.rdb.Get(ctx, poolKey(poolID)).Bytes()
	if err == nil {
		var pool SharePool
		if json.Unmarshal(data, &pool) == nil {
			return pool, nil
		}
	}
	pool, err := s.ShareStore.GetPool(ctx, poolID)
	if err != nil {
		return SharePool{}, err
	}
	if payload, err := json.Marshal(pool); err == nil {
		s.rdb.Set(ctx, poolKey(poolID), payload, s.ttl)
	}
	return pool, nil
}

// InvalidatePool drops the cached pool row. Called after any settlement that
// changes available shares; a stale availability read is acceptable only for
// display, never inside the settlement transaction itself.
func (s *CachedShareStore) InvalidatePool(ctx context.Context, poolID string) {
	s.rdb.Del(ctx, poolKey(poolID))
}
