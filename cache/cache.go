// Copyright 2026 The kwmetricsd Authors
// This file is part of kwmetricsd.
//
// kwmetricsd is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// kwmetricsd is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with kwmetricsd. If not, see <http://www.gnu.org/licenses/>.

// Package cache maps keywords to resolved metric records with a TTL.
// Redis is the primary backend; when it is unreachable at startup the
// process falls back to an on-disk bounded cache for its whole lifetime.
// Backend errors never propagate: a failing read is a miss, a failing
// write reports false.
package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kwmetrics/kwmetricsd/clock"
	"github.com/kwmetrics/kwmetricsd/config"
	"github.com/kwmetrics/kwmetricsd/metric"
	"github.com/kwmetrics/kwmetricsd/telemetry"
)

const keyPrefix = "keyword:"

// Backend is the capability set both cache implementations satisfy.
type Backend interface {
	Get(ctx context.Context, key string) (metric.Record, bool)
	Set(ctx context.Context, key string, rec metric.Record, ttl time.Duration) bool
	Exists(ctx context.Context, key string) bool
	Delete(ctx context.Context, key string) bool
}

// Cache is the keyword-level front over the selected backend.
type Cache struct {
	backend Backend
	ttl     time.Duration
	clk     clock.Clock
	log     *zap.SugaredLogger
	tel     *telemetry.Metrics
}

// New probes Redis and selects the backend for the process lifetime,
// falling back to the file cache on any connection failure.
func New(ctx context.Context, cfg config.Config, clk clock.Clock, log *zap.SugaredLogger, tel *telemetry.Metrics) *Cache {
	var backend Backend
	if r, err := NewRedis(ctx, cfg.RedisAddr(), cfg.RedisDB, cfg.RedisPassword, log); err == nil {
		log.Infow("using redis cache backend", "addr", cfg.RedisAddr())
		backend = r
	} else {
		log.Warnw("redis unavailable, falling back to file cache", "addr", cfg.RedisAddr(), "err", err)
		backend = NewFile(cfg.CacheFile, cfg.CacheMaxEntries, clk, log)
	}
	return NewWithBackend(backend, cfg.CacheTTL, clk, log, tel)
}

// NewWithBackend wires an explicit backend; used by tests and by New.
func NewWithBackend(b Backend, ttl time.Duration, clk clock.Clock, log *zap.SugaredLogger, tel *telemetry.Metrics) *Cache {
	return &Cache{backend: b, ttl: ttl, clk: clk, log: log, tel: tel}
}

// GetKeyword returns the cached record for a keyword, if any.
func (c *Cache) GetKeyword(ctx context.Context, keyword string) (metric.Record, bool) {
	return c.backend.Get(ctx, keyPrefix+keyword)
}

// SetKeyword writes a record through to the backend. Both fields may be
// nil; the write still happens so a resolved "undetermined" is cached too.
func (c *Cache) SetKeyword(ctx context.Context, keyword string, ads *int64, trends *float64) bool {
	rec := metric.Record{
		AdsMonthlyVolume: ads,
		TrendsScore:      metric.Round1p(trends),
		CachedAt:         c.clk.Now().Unix(),
	}
	return c.backend.Set(ctx, keyPrefix+keyword, rec, c.ttl)
}

// GetBatch partitions keywords into cached hits and misses.
func (c *Cache) GetBatch(ctx context.Context, keywords []string) (map[string]metric.Record, []string) {
	hits := make(map[string]metric.Record)
	var misses []string
	for _, kw := range keywords {
		if rec, ok := c.GetKeyword(ctx, kw); ok {
			hits[kw] = rec
		} else {
			misses = append(misses, kw)
		}
	}
	c.tel.CacheHit(len(hits))
	c.tel.CacheMiss(len(misses))
	return hits, misses
}

// Delete removes a keyword from the cache.
func (c *Cache) Delete(ctx context.Context, keyword string) bool {
	return c.backend.Delete(ctx, keyPrefix+keyword)
}
