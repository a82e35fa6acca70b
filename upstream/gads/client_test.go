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

package gads

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/kwmetrics/kwmetricsd/clock"
	"github.com/kwmetrics/kwmetricsd/config"
	"github.com/kwmetrics/kwmetricsd/logging"
	"github.com/kwmetrics/kwmetricsd/upstream"
)

// stubAPI scripts the transport seam: call n consults errs[n] first, then
// returns resp.
type stubAPI struct {
	resp  *historicalMetricsResponse
	errs  []error
	calls int
}

func (s *stubAPI) generateHistoricalMetrics(ctx context.Context, keywords []string) (*historicalMetricsResponse, error) {
	n := s.calls
	s.calls++
	if n < len(s.errs) && s.errs[n] != nil {
		return nil, s.errs[n]
	}
	return s.resp, nil
}

func respWithVolumes(volumes ...int64) *historicalMetricsResponse {
	resp := &historicalMetricsResponse{}
	for _, v := range volumes {
		var r historicalMetricsResult
		r.KeywordMetrics.AvgMonthlySearches = json.Number(strconv.FormatInt(v, 10))
		resp.Results = append(resp.Results, r)
	}
	return resp
}

func newTestClient(t *testing.T, api metricsAPI) (*Client, *clock.Simulated) {
	t.Helper()
	clk := clock.NewSimulated()
	c := New(config.AdsCredentials{}, clk, logging.Nop(), nil)
	c.api = api
	c.initialized = true
	return c, clk
}

func TestBulkMetricsPositional(t *testing.T) {
	api := &stubAPI{resp: respWithVolumes(1200, 0, 880)}
	c, _ := newTestClient(t, api)

	got, err := c.BulkMetrics(context.Background(), []string{"coffee", "obscure", "espresso"})
	if err != nil {
		t.Fatalf("BulkMetrics failed: %v", err)
	}
	if *got["coffee"] != 1200 || *got["obscure"] != 0 || *got["espresso"] != 880 {
		t.Errorf("got %v", got)
	}
}

// Fewer results than keywords leaves the trailing keywords undetermined.
func TestBulkMetricsShortResponse(t *testing.T) {
	api := &stubAPI{resp: respWithVolumes(1200)}
	c, _ := newTestClient(t, api)

	got, err := c.BulkMetrics(context.Background(), []string{"coffee", "espresso"})
	if err != nil {
		t.Fatalf("BulkMetrics failed: %v", err)
	}
	if *got["coffee"] != 1200 {
		t.Errorf("coffee = %v", got["coffee"])
	}
	if got["espresso"] != nil {
		t.Errorf("espresso = %v, want nil", *got["espresso"])
	}
}

func TestBulkMetricsUninitialized(t *testing.T) {
	c := New(config.AdsCredentials{}, clock.NewSimulated(), logging.Nop(), nil)

	got, err := c.BulkMetrics(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("uninitialized client returned error: %v", err)
	}
	if len(got) != 2 || got["a"] != nil || got["b"] != nil {
		t.Errorf("got %v, want all-nil map", got)
	}
}

func TestTransientRetries(t *testing.T) {
	boom := &upstream.TransientError{Provider: "ads", Err: errors.New("503")}
	api := &stubAPI{resp: respWithVolumes(10), errs: []error{boom, boom}}
	c, clk := newTestClient(t, api)

	got, err := c.BulkMetrics(context.Background(), []string{"kw"})
	if err != nil {
		t.Fatalf("BulkMetrics failed after retries: %v", err)
	}
	if api.calls != 3 {
		t.Errorf("calls = %d, want 3", api.calls)
	}
	if *got["kw"] != 10 {
		t.Errorf("kw = %v", got["kw"])
	}
	// Two backoff sleeps happened, roughly 1s and 2s with jitter.
	if slept := clk.Slept().Seconds(); slept < 2.5 || slept > 3.5 {
		t.Errorf("total backoff %vs outside [2.5, 3.5]", slept)
	}
}

func TestTransientRetriesExhausted(t *testing.T) {
	boom := &upstream.TransientError{Provider: "ads", Err: errors.New("503")}
	api := &stubAPI{errs: []error{boom, boom, boom}}
	c, _ := newTestClient(t, api)

	got, err := c.BulkMetrics(context.Background(), []string{"kw"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if api.calls != 3 {
		t.Errorf("calls = %d, want 3", api.calls)
	}
	// The map is still fully populated.
	if v, ok := got["kw"]; !ok || v != nil {
		t.Errorf("kw = %v ok=%v, want nil entry", v, ok)
	}
}

func TestNonTransientAborts(t *testing.T) {
	fatal := errors.New("http 400: bad request")
	api := &stubAPI{errs: []error{fatal}}
	c, _ := newTestClient(t, api)

	_, err := c.BulkMetrics(context.Background(), []string{"kw"})
	if err == nil {
		t.Fatal("expected error")
	}
	if api.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on non-transient)", api.calls)
	}
}

func TestBreakerShortCircuits(t *testing.T) {
	boom := &upstream.TransientError{Provider: "ads", Err: errors.New("503")}
	api := &stubAPI{errs: []error{boom, boom, boom, boom, boom, boom}}
	c, _ := newTestClient(t, api)

	// Two exhausted calls push the failure counter past the threshold.
	c.BulkMetrics(context.Background(), []string{"kw"})
	c.BulkMetrics(context.Background(), []string{"kw"})
	callsBefore := api.calls

	_, err := c.BulkMetrics(context.Background(), []string{"kw"})
	if !upstream.IsBreakerOpen(err) {
		t.Fatalf("err = %v, want BreakerOpenError", err)
	}
	if api.calls != callsBefore {
		t.Errorf("upstream touched while breaker open: %d calls", api.calls-callsBefore)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		quota     bool
		transient bool
	}{
		{429, `{}`, true, false},
		{500, `{}`, false, true},
		{503, `{}`, false, true},
		{400, `{"error":{"status":"INVALID_ARGUMENT","message":"bad"}}`, false, true},
		{400, `not json`, false, false},
		{403, `{}`, false, false},
	}
	for _, tt := range tests {
		err := classifyStatus(tt.status, []byte(tt.body))
		if got := upstream.IsQuota(err); got != tt.quota {
			t.Errorf("status %d: IsQuota = %v", tt.status, got)
		}
		if got := upstream.IsTransient(err); got != tt.transient {
			t.Errorf("status %d: IsTransient = %v", tt.status, got)
		}
	}
}
