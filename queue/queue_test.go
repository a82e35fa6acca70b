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

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kwmetrics/kwmetricsd/clock"
	"github.com/kwmetrics/kwmetricsd/logging"
)

func newTestQueue(t *testing.T, maxConcurrent int) (*Queue, *clock.Simulated) {
	t.Helper()
	clk := clock.NewSimulated()
	return New(maxConcurrent, DefaultBatchDelay, clk, logging.Nop(), nil), clk
}

func TestAddOnce(t *testing.T) {
	q, _ := newTestQueue(t, 10)

	q.AddKeywords([]string{"a", "b", "a"})
	q.AddKeywords([]string{"b", "c"})

	st := q.Status()
	require.Equal(t, 3, st.Pending)

	batch := q.NextBatch(context.Background())
	require.Equal(t, []string{"a", "b", "c"}, batch)
}

// A keyword stays known through its whole lifecycle: re-adding it while
// processing, completed or failed is a no-op.
func TestAddKnownSkipped(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	ctx := context.Background()

	q.AddKeywords([]string{"done", "broken", "busy"})
	q.NextBatch(ctx)
	ads := int64(10)
	q.MarkCompleted("done", &ads, nil)
	q.MarkFailed("broken")

	q.AddKeywords([]string{"done", "broken", "busy"})
	require.Equal(t, 0, q.Status().Pending)
}

func TestNextBatchCapped(t *testing.T) {
	q, _ := newTestQueue(t, 2)
	ctx := context.Background()

	q.AddKeywords([]string{"a", "b", "c"})
	require.Equal(t, []string{"a", "b"}, q.NextBatch(ctx))

	st := q.Status()
	require.Equal(t, 1, st.Pending)
	require.Equal(t, 2, st.Processing)
}

// Successive batches are separated by the minimum gap; the queue sleeps
// the remainder itself.
func TestNextBatchGap(t *testing.T) {
	q, clk := newTestQueue(t, 1)
	ctx := context.Background()

	q.AddKeywords([]string{"a", "b"})
	q.NextBatch(ctx)
	require.Equal(t, time.Duration(0), clk.Slept())

	q.NextBatch(ctx)
	require.Equal(t, DefaultBatchDelay, clk.Slept())
}

func TestNextBatchGapElapsed(t *testing.T) {
	q, clk := newTestQueue(t, 1)
	ctx := context.Background()

	q.AddKeywords([]string{"a", "b"})
	q.NextBatch(ctx)
	clk.Advance(DefaultBatchDelay)

	q.NextBatch(ctx)
	require.Equal(t, time.Duration(0), clk.Slept())
}

func TestNextBatchCancelled(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx, cancel := context.WithCancel(context.Background())

	q.AddKeywords([]string{"a", "b"})
	q.NextBatch(ctx)
	cancel()
	require.Nil(t, q.NextBatch(ctx))
}

func TestMarkCompleted(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	ctx := context.Background()

	q.AddKeywords([]string{"kw"})
	q.NextBatch(ctx)

	ads, trends := int64(500), 42.5
	q.MarkCompleted("kw", &ads, &trends)

	st := q.Status()
	require.Equal(t, Status{Completed: 1}, st)

	views := q.Results([]string{"kw"})
	require.Equal(t, int64(500), *views["kw"].Ads)
	require.Equal(t, 42.5, *views["kw"].Trends)
	require.Empty(t, views["kw"].Error)
}

// Completion wins: a failure mark after completion must not demote the
// keyword, and a completion after failure clears the failure.
func TestCompletionWins(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	ctx := context.Background()

	q.AddKeywords([]string{"a", "b"})
	q.NextBatch(ctx)

	ads := int64(1)
	q.MarkCompleted("a", &ads, nil)
	q.MarkFailed("a")
	require.Equal(t, 1, q.Status().Completed)
	require.Equal(t, 0, q.Status().Failed)

	q.MarkFailed("b")
	q.MarkCompleted("b", &ads, nil)
	require.Equal(t, 2, q.Status().Completed)
	require.Equal(t, 0, q.Status().Failed)
}

func TestResultsShapes(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()

	q.AddKeywords([]string{"inflight", "waiting"})
	q.NextBatch(ctx) // pops "inflight"
	q.AddKeywords([]string{"x"})

	views := q.Results([]string{"inflight", "waiting", "unknown"})
	require.Equal(t, "processing", views["inflight"].Status)
	require.Equal(t, "pending", views["waiting"].Status)
	// Unknown keywords read as processing rather than erroring.
	require.Equal(t, "processing", views["unknown"].Status)

	q.MarkFailed("inflight")
	views = q.Results([]string{"inflight"})
	require.Equal(t, "Processing failed", views["inflight"].Error)
}

func TestReset(t *testing.T) {
	q, _ := newTestQueue(t, 10)
	ctx := context.Background()

	q.AddKeywords([]string{"a", "b", "c"})
	q.NextBatch(ctx)
	ads := int64(1)
	q.MarkCompleted("a", &ads, nil)
	q.MarkFailed("b")

	q.Reset()
	require.Equal(t, Status{}, q.Status())

	// Previously known keywords are addable again.
	q.AddKeywords([]string{"a"})
	require.Equal(t, 1, q.Status().Pending)
}
