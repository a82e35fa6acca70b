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

// Package telemetry holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid everywhere and disables instrumentation, which
// keeps test wiring small.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	upstreamCalls   *prometheus.CounterVec
	upstreamSeconds *prometheus.HistogramVec
	breakerOpen     *prometheus.GaugeVec
	queueDepth      *prometheus.GaugeVec
}

// New registers all collectors on reg and returns the handle components
// report through.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kwmetricsd", Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, path and status code.",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kwmetricsd", Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "kwmetricsd", Subsystem: "cache", Name: "hits_total",
			Help: "Keyword cache hits.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "kwmetricsd", Subsystem: "cache", Name: "misses_total",
			Help: "Keyword cache misses.",
		}),
		upstreamCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kwmetricsd", Subsystem: "upstream", Name: "calls_total",
			Help: "Upstream calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		upstreamSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kwmetricsd", Subsystem: "upstream", Name: "call_duration_seconds",
			Help:    "Upstream call latency by provider.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider"}),
		breakerOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kwmetricsd", Subsystem: "upstream", Name: "breaker_open",
			Help: "1 while the provider's circuit breaker is open.",
		}, []string{"provider"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kwmetricsd", Subsystem: "queue", Name: "keywords",
			Help: "Keywords per queue state.",
		}, []string{"state"}),
	}
}

func (m *Metrics) ObserveHTTP(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(path).Observe(seconds)
}

func (m *Metrics) CacheHit(n int) {
	if m == nil {
		return
	}
	m.cacheHits.Add(float64(n))
}

func (m *Metrics) CacheMiss(n int) {
	if m == nil {
		return
	}
	m.cacheMisses.Add(float64(n))
}

func (m *Metrics) UpstreamCall(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(provider, outcome).Inc()
	m.upstreamSeconds.WithLabelValues(provider).Observe(seconds)
}

func (m *Metrics) BreakerState(provider string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.breakerOpen.WithLabelValues(provider).Set(v)
}

func (m *Metrics) QueueDepth(pending, processing, completed, failed int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues("pending").Set(float64(pending))
	m.queueDepth.WithLabelValues("processing").Set(float64(processing))
	m.queueDepth.WithLabelValues("completed").Set(float64(completed))
	m.queueDepth.WithLabelValues("failed").Set(float64(failed))
}
