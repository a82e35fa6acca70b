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

// Package queue implements the in-process keyword work queue backing the
// async endpoints. Keywords move pending -> processing -> completed|failed;
// the four sets stay pairwise disjoint and a keyword is add-once until
// Reset.
package queue

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/kwmetrics/kwmetricsd/clock"
	"github.com/kwmetrics/kwmetricsd/telemetry"
)

const (
	// DefaultMaxConcurrent bounds the batch handed to the worker.
	DefaultMaxConcurrent = 20
	// DefaultBatchDelay is the minimum gap between successive batches.
	DefaultBatchDelay = 5 * time.Second
)

// Result is a completed keyword's record.
type Result struct {
	Ads         *int64
	Trends      *float64
	CompletedAt int64
}

// ResultView is the per-keyword lookup shape returned by Results. For
// completed keywords the metric fields are set; failed keywords carry
// Error; everything else carries a pending/processing Status marker.
type ResultView struct {
	Ads    *int64
	Trends *float64
	Error  string
	Status string
}

// Status is a snapshot of the four set sizes.
type Status struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

type Queue struct {
	mu         sync.Mutex
	pending    []string // FIFO order
	pendingSet mapset.Set[string]
	processing mapset.Set[string]
	completed  map[string]Result
	failed     mapset.Set[string]

	maxConcurrent int
	batchDelay    time.Duration
	lastBatch     time.Time

	clk clock.Clock
	log *zap.SugaredLogger
	tel *telemetry.Metrics
}

func New(maxConcurrent int, batchDelay time.Duration, clk clock.Clock, log *zap.SugaredLogger, tel *telemetry.Metrics) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Queue{
		pendingSet:    mapset.NewThreadUnsafeSet[string](),
		processing:    mapset.NewThreadUnsafeSet[string](),
		completed:     make(map[string]Result),
		failed:        mapset.NewThreadUnsafeSet[string](),
		maxConcurrent: maxConcurrent,
		batchDelay:    batchDelay,
		clk:           clk,
		log:           log,
		tel:           tel,
	}
}

// AddKeywords enqueues keywords not yet known to any of the four sets.
func (q *Queue) AddKeywords(keywords []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	added := 0
	for _, kw := range keywords {
		if q.knownLocked(kw) {
			continue
		}
		q.pending = append(q.pending, kw)
		q.pendingSet.Add(kw)
		added++
	}
	q.log.Infow("keywords queued",
		"requested", len(keywords), "added", added,
		"pending", len(q.pending), "processing", q.processing.Cardinality(),
		"completed", len(q.completed))
	q.reportLocked()
}

// NextBatch pops up to maxConcurrent pending keywords into processing.
// It enforces the minimum inter-batch gap by sleeping the remainder while
// holding the lock, so callers observe a blocking call.
func (q *Queue) NextBatch(ctx context.Context) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.lastBatch.IsZero() {
		if gap := q.clk.Now().Sub(q.lastBatch); gap < q.batchDelay {
			wait := q.batchDelay - gap
			q.log.Debugw("batch rate gate", "wait", wait)
			if err := q.clk.Sleep(ctx, wait); err != nil {
				return nil
			}
		}
	}

	var batch []string
	for len(batch) < q.maxConcurrent && len(q.pending) > 0 {
		kw := q.pending[0]
		q.pending = q.pending[1:]
		q.pendingSet.Remove(kw)
		q.processing.Add(kw)
		batch = append(batch, kw)
	}
	if len(batch) > 0 {
		q.lastBatch = q.clk.Now()
		q.log.Infow("batch dispatched", "size", len(batch))
	}
	q.reportLocked()
	return batch
}

// MarkCompleted records a keyword's result and moves it out of processing.
func (q *Queue) MarkCompleted(keyword string, ads *int64, trends *float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.processing.Remove(keyword)
	q.failed.Remove(keyword)
	q.completed[keyword] = Result{Ads: ads, Trends: trends, CompletedAt: q.clk.Now().Unix()}
	q.reportLocked()
}

// MarkFailed moves a keyword out of processing into failed. A keyword that
// already completed stays completed.
func (q *Queue) MarkFailed(keyword string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, done := q.completed[keyword]; done {
		return
	}
	q.processing.Remove(keyword)
	q.failed.Add(keyword)
	q.reportLocked()
}

// Status snapshots the set sizes.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		Pending:    len(q.pending),
		Processing: q.processing.Cardinality(),
		Completed:  len(q.completed),
		Failed:     q.failed.Cardinality(),
	}
}

// Results looks up each requested keyword: its completed record, a failure
// marker, or its current queue state.
func (q *Queue) Results(keywords []string) map[string]ResultView {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[string]ResultView, len(keywords))
	for _, kw := range keywords {
		switch {
		case q.hasCompletedLocked(kw):
			res := q.completed[kw]
			out[kw] = ResultView{Ads: res.Ads, Trends: res.Trends}
		case q.failed.Contains(kw):
			out[kw] = ResultView{Error: "Processing failed"}
		case q.pendingSet.Contains(kw):
			out[kw] = ResultView{Status: "pending"}
		default:
			out[kw] = ResultView{Status: "processing"}
		}
	}
	return out
}

// Reset clears all queue state.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = nil
	q.pendingSet = mapset.NewThreadUnsafeSet[string]()
	q.processing = mapset.NewThreadUnsafeSet[string]()
	q.completed = make(map[string]Result)
	q.failed = mapset.NewThreadUnsafeSet[string]()
	q.lastBatch = time.Time{}
	q.log.Infow("queue reset")
	q.reportLocked()
}

func (q *Queue) knownLocked(kw string) bool {
	if q.pendingSet.Contains(kw) || q.processing.Contains(kw) || q.failed.Contains(kw) {
		return true
	}
	_, done := q.completed[kw]
	return done
}

func (q *Queue) hasCompletedLocked(kw string) bool {
	_, ok := q.completed[kw]
	return ok
}

func (q *Queue) reportLocked() {
	q.tel.QueueDepth(len(q.pending), q.processing.Cardinality(), len(q.completed), q.failed.Cardinality())
}
