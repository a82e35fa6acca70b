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

// Package gads adapts the ad-platform historical-metrics API. One call
// resolves a whole keyword list; retries use exponential backoff with
// jitter and a circuit breaker isolates a failing upstream.
package gads

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/kwmetrics/kwmetricsd/clock"
	"github.com/kwmetrics/kwmetricsd/config"
	"github.com/kwmetrics/kwmetricsd/telemetry"
	"github.com/kwmetrics/kwmetricsd/upstream"
)

const (
	maxRetries    = 3
	backoffFactor = 2.0
	retryJitter   = 0.2

	breakerThreshold = 5
	breakerCooldown  = 300 * time.Second
)

// Client is the ads adapter. Construction never fails: with incomplete
// credentials the client stays uninitialized and every call reports all
// keywords as undetermined.
type Client struct {
	api         metricsAPI
	breaker     *upstream.Breaker
	initialized bool

	clk clock.Clock
	log *zap.SugaredLogger
	tel *telemetry.Metrics
}

func New(creds config.AdsCredentials, clk clock.Clock, log *zap.SugaredLogger, tel *telemetry.Metrics) *Client {
	c := &Client{
		breaker: upstream.NewBreaker("ads", breakerThreshold, breakerCooldown, clk, log, tel),
		clk:     clk,
		log:     log,
		tel:     tel,
	}
	if !creds.Complete() {
		log.Warnw("ads credentials incomplete, adapter disabled", "customer_id_set", creds.CustomerID != "")
		return c
	}
	c.api = newRESTClient(creds)
	c.initialized = true
	return c
}

// Breaker exposes the adapter's circuit breaker for health reporting and
// tests.
func (c *Client) Breaker() *upstream.Breaker { return c.breaker }

// BulkMetrics resolves the average monthly search volume for every
// keyword. The returned map covers exactly the input keywords: a value,
// 0 when the upstream reported no metric, or nil when the call failed.
// A non-nil error describes why values are nil; the map is usable either
// way.
func (c *Client) BulkMetrics(ctx context.Context, keywords []string) (map[string]*int64, error) {
	out := make(map[string]*int64, len(keywords))
	for _, kw := range keywords {
		out[kw] = nil
	}
	if !c.initialized {
		c.log.Errorw("ads client not initialized, returning undetermined metrics", "keywords", len(keywords))
		return out, nil
	}

	start := c.clk.Now()
	resp, err := c.callWithRetry(ctx, keywords)
	elapsed := c.clk.Now().Sub(start)
	if err != nil {
		c.tel.UpstreamCall("ads", "failure", elapsed.Seconds())
		c.log.Warnw("ads bulk metrics failed", "keywords", len(keywords), "duration", elapsed, "err", err)
		return out, err
	}
	c.tel.UpstreamCall("ads", "success", elapsed.Seconds())
	c.log.Infow("ads bulk metrics resolved", "keywords", len(keywords), "results", len(resp.Results), "duration", elapsed)

	// Results are positional; trailing keywords without a result stay nil.
	for i, kw := range keywords {
		if i < len(resp.Results) {
			v := resp.Results[i].volume()
			out[kw] = &v
		}
	}
	return out, nil
}

func (c *Client) callWithRetry(ctx context.Context, keywords []string) (*historicalMetricsResponse, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := c.api.generateHistoricalMetrics(ctx, keywords)
		if err == nil {
			c.breaker.Success()
			return resp, nil
		}
		lastErr = err
		c.breaker.Failure()

		if !upstream.IsTransient(err) {
			c.log.Errorw("ads call failed, not retrying", "err", err)
			break
		}
		if attempt < maxRetries-1 {
			delay := backoffDelay(attempt)
			c.log.Warnw("ads call failed, retrying", "attempt", attempt+1, "max", maxRetries, "delay", delay, "err", err)
			if serr := c.clk.Sleep(ctx, delay); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, fmt.Errorf("ads call failed after %d attempts: %w", maxRetries, lastErr)
}

// backoffDelay is backoffFactor^attempt seconds plus uniform jitter in
// [-retryJitter, +retryJitter].
func backoffDelay(attempt int) time.Duration {
	secs := math.Pow(backoffFactor, float64(attempt)) + (rand.Float64()*2-1)*retryJitter
	if secs < 0 {
		secs = 0
	}
	return time.Duration(secs * float64(time.Second))
}
