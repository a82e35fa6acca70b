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

// Package api exposes the HTTP surface: the synchronous and asynchronous
// batch endpoints, the status poll, the health probe and the Prometheus
// exposition.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/kwmetrics/kwmetricsd/clock"
	"github.com/kwmetrics/kwmetricsd/config"
	"github.com/kwmetrics/kwmetricsd/coordinator"
	"github.com/kwmetrics/kwmetricsd/queue"
	"github.com/kwmetrics/kwmetricsd/telemetry"
)

type Server struct {
	cfg      config.Config
	coord    *coordinator.Coordinator
	queue    *queue.Queue
	gatherer prometheus.Gatherer

	srv      *http.Server
	listener net.Listener

	clk clock.Clock
	log *zap.SugaredLogger
	tel *telemetry.Metrics
}

func NewServer(cfg config.Config, coord *coordinator.Coordinator, q *queue.Queue, gatherer prometheus.Gatherer, clk clock.Clock, log *zap.SugaredLogger, tel *telemetry.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		coord:    coord,
		queue:    q,
		gatherer: gatherer,
		clk:      clk,
		log:      log,
		tel:      tel,
	}
}

// Handler builds the full middleware and routing stack. Exposed so tests
// can drive it through httptest without opening a socket.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(s.accessLog)

	r.Post("/batch_search_volume", s.handleBatch)
	r.Post("/async/batch_search_volume", s.handleAsyncSubmit)
	r.Get("/async/status", s.handleAsyncStatus)
	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost", "http://127.0.0.1"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return newVHostHandler([]string{"localhost", "127.0.0.1"}, c.Handler(r))
}

// Start opens the listener and serves in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.srv = &http.Server{Handler: s.Handler()}
	go s.srv.Serve(ln)
	s.log.Infow("HTTP endpoint opened", "url", fmt.Sprintf("http://%v/", ln.Addr()))
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	s.log.Infow("HTTP endpoint closed")
	return err
}

// virtualHostHandler rejects requests whose Host header names anything
// but the allowed vhosts, as a cheap DNS-rebinding guard. IP-literal
// hosts always pass.
type virtualHostHandler struct {
	vhosts map[string]struct{}
	next   http.Handler
}

func newVHostHandler(vhosts []string, next http.Handler) http.Handler {
	m := make(map[string]struct{}, len(vhosts))
	for _, v := range vhosts {
		m[strings.ToLower(v)] = struct{}{}
	}
	return &virtualHostHandler{vhosts: m, next: next}
}

func (h *virtualHostHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Host == "" {
		h.next.ServeHTTP(w, r)
		return
	}
	host := r.Host
	if hp, _, err := net.SplitHostPort(host); err == nil {
		host = hp
	}
	if ip := net.ParseIP(host); ip != nil {
		h.next.ServeHTTP(w, r)
		return
	}
	if _, ok := h.vhosts[strings.ToLower(host)]; ok {
		h.next.ServeHTTP(w, r)
		return
	}
	http.Error(w, "invalid host specified", http.StatusForbidden)
}
