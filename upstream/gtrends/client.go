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

// Package gtrends adapts the web-trends provider. The upstream rate-limits
// aggressively, so the adapter serializes calls, paces them adaptively,
// caps requests per hour, and persists progress so a long bulk run survives
// a crash.
package gtrends

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kwmetrics/kwmetricsd/clock"
	"github.com/kwmetrics/kwmetricsd/telemetry"
	"github.com/kwmetrics/kwmetricsd/upstream"
)

const (
	batchSize       = 3
	maxQuotaRetries = 3
	hourlyLimit     = 50

	breakerThreshold = 3
	breakerCooldown  = 600 * time.Second

	// Adaptive pacing bounds, in seconds.
	initialDelay    = 5.0
	minDelay        = 3.0
	maxFailureDelay = 20.0
	maxQuotaDelay   = 30.0
	streakToSpeedUp = 5
)

// quotaRetryDelays back off hard on quota-class failures before giving up.
var quotaRetryDelays = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second, 300 * time.Second}

// Client is the trends adapter.
type Client struct {
	api     trendsAPI
	sem     *semaphore.Weighted
	breaker *upstream.Breaker

	mu            sync.Mutex
	delay         float64 // seconds between calls, adapted on the fly
	streak        int     // consecutive successes
	requestCount  int     // calls in the current hourly window
	lastHourReset time.Time
	failed        map[string]struct{}

	progressPath string

	clk clock.Clock
	log *zap.SugaredLogger
	tel *telemetry.Metrics
}

func New(progressPath string, clk clock.Clock, log *zap.SugaredLogger, tel *telemetry.Metrics) *Client {
	return &Client{
		api:          newRESTClient(),
		sem:          semaphore.NewWeighted(1),
		breaker:      upstream.NewBreaker("trends", breakerThreshold, breakerCooldown, clk, log, tel),
		delay:        initialDelay,
		failed:       make(map[string]struct{}),
		progressPath: progressPath,
		clk:          clk,
		log:          log,
		tel:          tel,
	}
}

// Breaker exposes the adapter's circuit breaker.
func (c *Client) Breaker() *upstream.Breaker { return c.breaker }

// BulkTrends resolves a 12-month popularity score for every keyword. The
// returned map's key set equals the input key set exactly; unresolved
// keywords map to nil. Saved progress younger than 24h seeds the run; on
// quota exhaustion the run aborts with progress persisted and partial
// results returned. The error is non-nil only when ctx ends the run.
func (c *Client) BulkTrends(ctx context.Context, keywords []string) (map[string]*float64, error) {
	results := c.loadProgress()

	seen := make(map[string]struct{}, len(keywords))
	var remaining []string
	for _, kw := range keywords {
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		if _, done := results[kw]; !done {
			remaining = append(remaining, kw)
		}
	}

	if len(remaining) == 0 {
		c.log.Infow("all keywords already resolved from saved progress", "keywords", len(seen))
		c.removeProgress()
		return project(results, keywords), nil
	}

	batches := chunk(remaining, batchSize)
	for bi, batch := range batches {
		if bi > 0 {
			pause := time.Duration(math.Min(10+2*float64(bi), 30) * float64(time.Second))
			c.log.Infow("pausing before next trends batch", "batch", bi+1, "batches", len(batches), "pause", pause)
			if err := c.clk.Sleep(ctx, pause); err != nil {
				return project(results, keywords), err
			}
		}

		for i, kw := range batch {
			val, err := c.score(ctx, kw)
			switch {
			case err == nil:
				results[kw] = val

			case errors.Is(err, upstream.ErrQuotaExceeded):
				// Burn the rest of the hourly window so follow-up calls
				// fail fast instead of poking the upstream again.
				c.mu.Lock()
				c.requestCount = hourlyLimit
				c.mu.Unlock()

				c.markFailed(kw)
				var unprocessed []string
				for _, rest := range batch[i+1:] {
					c.markFailed(rest)
				}
				for _, rb := range batches[bi+1:] {
					for _, rest := range rb {
						c.markFailed(rest)
						unprocessed = append(unprocessed, rest)
					}
				}
				c.saveProgress(results, unprocessed)
				c.log.Errorw("quota exhausted, aborting trends run",
					"completed", len(results), "requested", len(seen))
				return project(results, keywords), nil

			case ctx.Err() != nil:
				return project(results, keywords), ctx.Err()

			default:
				c.log.Errorw("trends fetch failed", "keyword", kw, "err", err)
				results[kw] = nil
				c.markFailed(kw)
			}
		}

		if bi%5 == 4 {
			var unprocessed []string
			for _, rb := range batches[bi+1:] {
				unprocessed = append(unprocessed, rb...)
			}
			c.saveProgress(results, unprocessed)
		}
	}

	c.removeProgress()
	success := 0
	for kw := range seen {
		if v, ok := results[kw]; ok && v != nil {
			success++
		}
	}
	c.log.Infow("trends run complete", "success", success, "requested", len(seen))
	return project(results, keywords), nil
}

// score fetches one keyword, retrying quota-class failures with the fixed
// delay schedule. Exhausting those retries force-opens the breaker and
// reports ErrQuotaExceeded. Non-quota failures are not retried.
func (c *Client) score(ctx context.Context, keyword string) (*float64, error) {
	for retry := 0; ; retry++ {
		val, err := c.fetchOnce(ctx, keyword)
		if err == nil {
			return val, nil
		}
		if !upstream.IsQuota(err) {
			return nil, err
		}
		if retry < maxQuotaRetries {
			pause := quotaRetryDelays[retry]
			c.log.Warnw("quota-class trends failure, retrying",
				"keyword", keyword, "retry", retry+1, "max", maxQuotaRetries, "pause", pause)
			if serr := c.clk.Sleep(ctx, pause); serr != nil {
				return nil, serr
			}
			continue
		}
		c.breaker.ForceOpen()
		return nil, fmt.Errorf("keyword %q: %w", keyword, upstream.ErrQuotaExceeded)
	}
}

// fetchOnce performs a single paced upstream call under the in-flight
// semaphore and updates the adaptive delay counters.
func (c *Client) fetchOnce(ctx context.Context, keyword string) (*float64, error) {
	if err := c.admit(); err != nil {
		return nil, err
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	c.mu.Lock()
	delay := c.delay
	c.mu.Unlock()
	pause := time.Duration(delay * (0.5 + rand.Float64()) * float64(time.Second))
	if err := c.clk.Sleep(ctx, pause); err != nil {
		return nil, err
	}

	start := c.clk.Now()
	points, err := c.api.interestOverTime(ctx, keyword)
	elapsed := c.clk.Now().Sub(start)
	if err != nil {
		c.tel.UpstreamCall("trends", "failure", elapsed.Seconds())
		c.mu.Lock()
		c.streak = 0
		if upstream.IsQuota(err) {
			c.delay = math.Min(maxQuotaDelay, c.delay*2)
		} else {
			c.delay = math.Min(maxFailureDelay, c.delay*1.2)
		}
		c.mu.Unlock()
		if !upstream.IsQuota(err) {
			c.breaker.Failure()
		}
		c.log.Warnw("trends request failed", "keyword", keyword, "duration", elapsed, "err", err)
		return nil, err
	}

	c.breaker.Success()
	c.tel.UpstreamCall("trends", "success", elapsed.Seconds())
	c.mu.Lock()
	c.requestCount++
	c.streak++
	if c.streak > streakToSpeedUp {
		c.delay = math.Max(minDelay, c.delay*0.95)
	}
	count, newDelay := c.requestCount, c.delay
	c.mu.Unlock()
	c.log.Debugw("trends request ok",
		"keyword", keyword, "duration", elapsed,
		"hourly", fmt.Sprintf("%d/%d", count, hourlyLimit), "delay", newDelay)

	score := 0.0
	if len(points) > 0 {
		sum := 0.0
		for _, p := range points {
			sum += p
		}
		score = sum / float64(len(points))
	}
	return &score, nil
}

// admit enforces the hourly cap and the circuit breaker before any
// upstream work is attempted.
func (c *Client) admit() error {
	c.mu.Lock()
	now := c.clk.Now()
	if c.lastHourReset.IsZero() {
		c.lastHourReset = now
	}
	if now.Sub(c.lastHourReset) >= time.Hour {
		c.requestCount = 0
		c.lastHourReset = now
		c.log.Infow("hourly request counter reset")
	}
	if c.requestCount >= hourlyLimit {
		retry := time.Hour - now.Sub(c.lastHourReset)
		c.mu.Unlock()
		return &upstream.OverLimitError{RetryAfter: retry}
	}
	c.mu.Unlock()
	return c.breaker.Allow()
}

func (c *Client) markFailed(keyword string) {
	c.mu.Lock()
	c.failed[keyword] = struct{}{}
	c.mu.Unlock()
}

// project restricts results to exactly the requested key set.
func project(results map[string]*float64, keywords []string) map[string]*float64 {
	out := make(map[string]*float64, len(keywords))
	for _, kw := range keywords {
		out[kw] = results[kw]
	}
	return out
}

func chunk(keywords []string, size int) [][]string {
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
