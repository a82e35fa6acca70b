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

package api

import (
	"net"
	"net/http"
	"strconv"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// accessLog records one line per request with the fields the access log
// has always carried: method, path, status, client IP, latency.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clk.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := s.clk.Now().Sub(start)

		clientIP := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			clientIP = host
		}
		s.log.Infow("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"client_ip", clientIP,
			"latency_ms", float64(elapsed.Microseconds())/1000.0,
		)
		s.tel.ObserveHTTP(r.Method, r.URL.Path, strconv.Itoa(sw.status), elapsed.Seconds())
	})
}

// recoverer converts handler panics into plain 500s so one bad request
// cannot take the server down.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Errorw("handler panic", "path", r.URL.Path, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
