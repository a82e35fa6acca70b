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

// Package coordinator fans keyword batches out to the two upstream
// adapters, merges per-keyword results, and writes them through the cache.
// It also runs the background worker draining the async job queue.
package coordinator

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kwmetrics/kwmetricsd/cache"
	"github.com/kwmetrics/kwmetricsd/clock"
	"github.com/kwmetrics/kwmetricsd/metric"
	"github.com/kwmetrics/kwmetricsd/queue"
	"github.com/kwmetrics/kwmetricsd/telemetry"
)

const (
	// DefaultChunkSize bounds one fan-out unit; callers may pick 1..50.
	DefaultChunkSize = 20
	MaxChunkSize     = 50
)

// AdsProvider resolves monthly search volumes for a keyword list.
type AdsProvider interface {
	BulkMetrics(ctx context.Context, keywords []string) (map[string]*int64, error)
}

// TrendsProvider resolves popularity scores for a keyword list.
type TrendsProvider interface {
	BulkTrends(ctx context.Context, keywords []string) (map[string]*float64, error)
}

type Coordinator struct {
	cache  *cache.Cache
	ads    AdsProvider
	trends TrendsProvider
	queue  *queue.Queue

	workerMu      sync.Mutex
	workerRunning bool

	clk clock.Clock
	log *zap.SugaredLogger
	tel *telemetry.Metrics
}

func New(c *cache.Cache, ads AdsProvider, trends TrendsProvider, q *queue.Queue, clk clock.Clock, log *zap.SugaredLogger, tel *telemetry.Metrics) *Coordinator {
	return &Coordinator{
		cache:  c,
		ads:    ads,
		trends: trends,
		queue:  q,
		clk:    clk,
		log:    log,
		tel:    tel,
	}
}

// ProcessBatch resolves metrics for a keyword list: cache hits are emitted
// immediately, misses are fetched in chunks with both upstreams queried
// concurrently per chunk, and resolved misses are written through the
// cache. Result order is unspecified; callers key on the keyword field.
// ctx carries the caller's wall-clock timeout; on expiry partial state is
// abandoned and the context error surfaces.
func (c *Coordinator) ProcessBatch(ctx context.Context, keywords []string, chunkSize int) ([]metric.KeywordMetric, error) {
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		chunkSize = DefaultChunkSize
	}
	kws := dedup(keywords)

	hits, misses := c.cache.GetBatch(ctx, kws)
	c.log.Infow("batch lookup", "keywords", len(kws), "cached", len(hits), "missing", len(misses))

	out := make([]metric.KeywordMetric, 0, len(kws))
	for kw, rec := range hits {
		out = append(out, metric.KeywordMetric{
			Keyword:          kw,
			AdsMonthlyVolume: rec.AdsMonthlyVolume,
			TrendsScore:      metric.Round1p(rec.TrendsScore),
		})
	}

	for ci, ck := range chunks(misses, chunkSize) {
		if ci > 0 {
			pause := time.Duration(math.Min(5+2*float64(ci), 15) * float64(time.Second))
			if err := c.clk.Sleep(ctx, pause); err != nil {
				return nil, err
			}
		}
		ads, trends := c.fetchBoth(ctx, ck)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, kw := range ck {
			av := ads[kw]
			tv := metric.Round1p(trends[kw])
			out = append(out, metric.KeywordMetric{Keyword: kw, AdsMonthlyVolume: av, TrendsScore: tv})
			c.cache.SetKeyword(ctx, kw, av, tv)
		}
	}
	return out, nil
}

// fetchBoth queries the two adapters concurrently. A failing adapter
// degrades to all-nil for its side of the chunk; it never fails the other
// side or the request.
func (c *Coordinator) fetchBoth(ctx context.Context, keywords []string) (map[string]*int64, map[string]*float64) {
	var (
		ads    map[string]*int64
		trends map[string]*float64
	)
	var g errgroup.Group
	g.Go(func() error {
		m, err := c.ads.BulkMetrics(ctx, keywords)
		if err != nil {
			c.log.Warnw("ads adapter degraded", "keywords", len(keywords), "err", err)
		}
		ads = m
		return nil
	})
	g.Go(func() error {
		m, err := c.trends.BulkTrends(ctx, keywords)
		if err != nil {
			c.log.Warnw("trends adapter degraded", "keywords", len(keywords), "err", err)
		}
		trends = m
		return nil
	})
	g.Wait()

	if ads == nil {
		ads = make(map[string]*int64, len(keywords))
	}
	if trends == nil {
		trends = make(map[string]*float64, len(keywords))
	}
	return ads, trends
}

func dedup(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

func chunks(keywords []string, size int) [][]string {
	var out [][]string
	for len(keywords) > size {
		out = append(out, keywords[:size])
		keywords = keywords[size:]
	}
	if len(keywords) > 0 {
		out = append(out, keywords)
	}
	return out
}
