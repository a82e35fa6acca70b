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

package coordinator

import (
	"context"

	"github.com/kwmetrics/kwmetricsd/metric"
)

// Submit enqueues keywords for background processing and makes sure a
// worker goroutine is draining the queue. Keywords already known to the
// queue are skipped by the queue itself.
func (c *Coordinator) Submit(keywords []string) {
	c.queue.AddKeywords(dedup(keywords))
	c.ensureWorker()
}

// WorkerRunning reports whether the background worker is alive.
func (c *Coordinator) WorkerRunning() bool {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()
	return c.workerRunning
}

func (c *Coordinator) ensureWorker() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()
	if c.workerRunning {
		return
	}
	c.workerRunning = true
	go c.runWorker()
}

// runWorker drains the queue batch by batch and exits when it is empty.
// Callers cannot cancel it; it is re-spawned by the next submission.
func (c *Coordinator) runWorker() {
	defer func() {
		c.workerMu.Lock()
		c.workerRunning = false
		c.workerMu.Unlock()
	}()

	ctx := context.Background()
	c.log.Infow("async worker started")
	for {
		batch := c.queue.NextBatch(ctx)
		if len(batch) == 0 {
			c.log.Infow("async worker drained queue, exiting")
			return
		}
		c.processQueueBatch(ctx, batch)
	}
}

func (c *Coordinator) processQueueBatch(ctx context.Context, batch []string) {
	// A panic inside the fan-out must not kill the worker silently;
	// the whole batch is marked failed and the loop continues.
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorw("async batch panicked, failing batch", "keywords", len(batch), "panic", r)
			for _, kw := range batch {
				c.queue.MarkFailed(kw)
			}
		}
	}()

	ads, trends := c.fetchBoth(ctx, batch)
	for _, kw := range batch {
		av := ads[kw]
		tv := metric.Round1p(trends[kw])
		if av == nil && tv == nil {
			c.queue.MarkFailed(kw)
			continue
		}
		c.queue.MarkCompleted(kw, av, tv)
		c.cache.SetKeyword(ctx, kw, av, tv)
	}
}
