// Package cache keeps rendered report rows in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"clientregistry/internal/domain/client"
	"clientregistry/pkg/logger"
)

const (
	keyPrefix     = "clientregistry:reports"
	generationKey = keyPrefix + ":generation"

	DefaultReportTTL = 5 * time.Minute
)

// ReportLoader computes report rows on a cache miss.
type ReportLoader func(ctx context.Context) ([]client.ReportRow, error)

// ReportCache caches report rows per filter. Entries are keyed by a
// generation counter; Invalidate bumps the counter so every older entry is
// unreachable and expires by TTL. Redis failures degrade to loading directly.
type ReportCache struct {
	rdb redis.Cmdable
	ttl time.Duration
	sf  singleflight.Group
}

// NewReportCache creates a new report cache.
func NewReportCache(rdb redis.Cmdable, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = DefaultReportTTL
	}
	return &ReportCache{rdb: rdb, ttl: ttl}
}

// Rows returns cached rows for filter or loads and stores them. Concurrent
// misses for the same key share one load.
func (c *ReportCache) Rows(ctx context.Context, filter client.ReportFilter, load ReportLoader) ([]client.ReportRow, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		logger.Warn(ctx, "report cache unavailable", "error", err)
		return load(ctx)
	}
	key := reportKey(gen, filter)

	cached, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rows []client.ReportRow
		if err := json.Unmarshal(cached, &rows); err == nil {
			return rows, nil
		}
		logger.Warn(ctx, "discarding corrupt report cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		logger.Warn(ctx, "report cache read failed", "key", key, "error", err)
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		rows, err := load(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(rows)
		if err != nil {
			return rows, nil
		}
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			logger.Warn(ctx, "report cache write failed", "key", key, "error", err)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]client.ReportRow), nil
}

// Invalidate makes every cached report stale.
func (c *ReportCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("bump report generation: %w", err)
	}
	return nil
}

// InvalidateHook adapts Invalidate to the client service's after-commit hooks.
func (c *ReportCache) InvalidateHook(ctx context.Context, _ *client.Client) error {
	return c.Invalidate(ctx)
}

func (c *ReportCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func reportKey(gen int64, filter client.ReportFilter) string {
	active := "any"
	if filter.Active != nil {
		active = strconv.FormatBool(*filter.Active)
	}
	kind := string(filter.Kind)
	if kind == "" {
		kind = "any"
	}
	key := fmt.Sprintf("%s:%d:%s:%s", keyPrefix, gen, kind, active)
	// Name stays last so a colon inside it cannot shift the other segments.
	if name := strings.ToLower(strings.TrimSpace(filter.Name)); name != "" {
		key += ":" + name
	}
	return key
}
