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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kwmetrics/kwmetricsd/clock"
	"github.com/kwmetrics/kwmetricsd/config"
	"github.com/kwmetrics/kwmetricsd/logging"
)

func newTestCache(t *testing.T) (*Cache, *clock.Simulated) {
	t.Helper()
	f, clk, _ := newTestFile(t, 100)
	return NewWithBackend(f, time.Hour, clk, logging.Nop(), nil), clk
}

func TestSetKeywordRounds(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()

	ads, trends := int64(880), 63.333333
	require.True(t, c.SetKeyword(ctx, "coffee", &ads, &trends))

	got, ok := c.GetKeyword(ctx, "coffee")
	require.True(t, ok)
	require.Equal(t, int64(880), *got.AdsMonthlyVolume)
	require.Equal(t, 63.3, *got.TrendsScore)
	require.Equal(t, clk.Now().Unix(), got.CachedAt)
}

// A write with both metrics undetermined still caches; the resolution
// itself is the cacheable fact.
func TestSetKeywordAllNil(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.True(t, c.SetKeyword(ctx, "obscure", nil, nil))
	got, ok := c.GetKeyword(ctx, "obscure")
	require.True(t, ok)
	require.Nil(t, got.AdsMonthlyVolume)
	require.Nil(t, got.TrendsScore)
}

func TestGetBatchPartitions(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	ads := int64(100)
	c.SetKeyword(ctx, "hit1", &ads, nil)
	c.SetKeyword(ctx, "hit2", &ads, nil)

	hits, misses := c.GetBatch(ctx, []string{"hit1", "miss1", "hit2", "miss2"})
	require.Len(t, hits, 2)
	require.Contains(t, hits, "hit1")
	require.Contains(t, hits, "hit2")
	require.Equal(t, []string{"miss1", "miss2"}, misses)
}

func TestCacheDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	ads := int64(1)
	c.SetKeyword(ctx, "k", &ads, nil)
	require.True(t, c.Delete(ctx, "k"))
	_, ok := c.GetKeyword(ctx, "k")
	require.False(t, ok)
}

// With no Redis listening, New must come up on the file backend rather
// than fail.
func TestNewFallsBackToFile(t *testing.T) {
	cfg := config.Defaults()
	cfg.RedisHost = "127.0.0.1"
	cfg.RedisPort = 1
	cfg.CacheFile = t.TempDir() + "/cache.snap"

	c := New(context.Background(), cfg, clock.NewSimulated(), logging.Nop(), nil)
	ctx := context.Background()
	ads := int64(5)
	require.True(t, c.SetKeyword(ctx, "k", &ads, nil))
	_, ok := c.GetKeyword(ctx, "k")
	require.True(t, ok)
}
