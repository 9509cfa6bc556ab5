package knowledge

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/deepresearch-backend/internal/platform/envutil"
	"github.com/yungbote/deepresearch-backend/internal/platform/logger"
)

// redisCatalog keeps session catalogs in redis so a session can survive a
// process restart. Backend failures are logged and surface as cache misses;
// the pipeline then falls back to normalization, which at worst duplicates a
// concept instead of corrupting one.
type redisCatalog struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewRedisCatalog(log *logger.Logger) (CatalogStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisCatalog{
		log: log.With("service", "RedisCatalog"),
		rdb: rdb,
		// Safety net for sessions that never reach Dispose.
		ttl: envutil.Seconds("CATALOG_TTL_SECONDS", 24*time.Hour),
	}, nil
}

func (r *redisCatalog) mapKey(sessionID string) string   { return "catalog:" + sessionID + ":map" }
func (r *redisCatalog) orderKey(sessionID string) string { return "catalog:" + sessionID + ":order" }
func (r *redisCatalog) seenKey(sessionID string) string  { return "catalog:" + sessionID + ":seen" }

func (r *redisCatalog) Create(ctx context.Context, sessionID string) {
	// Sessions are new ids; clear any stale keys from an id collision.
	if err := r.rdb.Del(ctx, r.mapKey(sessionID), r.orderKey(sessionID), r.seenKey(sessionID)).Err(); err != nil {
		r.log.Warn("catalog create failed", "session_id", sessionID, "error", err)
	}
}

func (r *redisCatalog) Lookup(ctx context.Context, sessionID, surfaceName string) (string, bool) {
	val, err := r.rdb.HGet(ctx, r.mapKey(sessionID), surfaceName).Result()
	if err == goredis.Nil {
		return "", false
	}
	if err != nil {
		r.log.Warn("catalog lookup failed", "session_id", sessionID, "error", err)
		return "", false
	}
	return val, true
}

func (r *redisCatalog) Insert(ctx context.Context, sessionID, surfaceName, canonicalName string) {
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.mapKey(sessionID), surfaceName, canonicalName)
	added := pipe.SAdd(ctx, r.seenKey(sessionID), canonicalName)
	pipe.Expire(ctx, r.mapKey(sessionID), r.ttl)
	pipe.Expire(ctx, r.seenKey(sessionID), r.ttl)
	pipe.Expire(ctx, r.orderKey(sessionID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn("catalog insert failed", "session_id", sessionID, "error", err)
		return
	}
	if added.Val() > 0 {
		if err := r.rdb.RPush(ctx, r.orderKey(sessionID), canonicalName).Err(); err != nil {
			r.log.Warn("catalog order push failed", "session_id", sessionID, "error", err)
		}
	}
}

func (r *redisCatalog) Canonicals(ctx context.Context, sessionID string) []string {
	vals, err := r.rdb.LRange(ctx, r.orderKey(sessionID), 0, -1).Result()
	if err != nil {
		r.log.Warn("catalog canonicals failed", "session_id", sessionID, "error", err)
		return nil
	}
	return vals
}

func (r *redisCatalog) Dispose(ctx context.Context, sessionID string) {
	if err := r.rdb.Del(ctx, r.mapKey(sessionID), r.orderKey(sessionID), r.seenKey(sessionID)).Err(); err != nil {
		r.log.Warn("catalog dispose failed", "session_id", sessionID, "error", err)
	}
}
