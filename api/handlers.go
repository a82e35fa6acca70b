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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kwmetrics/kwmetricsd/coordinator"
	"github.com/kwmetrics/kwmetricsd/metric"
)

const (
	maxKeywords = 200

	// baseTimeout is the floor of the sync endpoint's wall clock; large
	// batches get 2 seconds per keyword instead.
	baseTimeout = 90 * time.Second
)

type batchRequest struct {
	Keywords  []string `json:"keywords"`
	ChunkSize *int     `json:"chunk_size"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (req *batchRequest) validate() error {
	if len(req.Keywords) < 1 || len(req.Keywords) > maxKeywords {
		return fmt.Errorf("keywords must contain between 1 and %d entries", maxKeywords)
	}
	for _, kw := range req.Keywords {
		if kw == "" {
			return errors.New("keywords must be non-empty strings")
		}
	}
	if req.ChunkSize != nil && (*req.ChunkSize < 1 || *req.ChunkSize > coordinator.MaxChunkSize) {
		return fmt.Errorf("chunk_size must be between 1 and %d", coordinator.MaxChunkSize)
	}
	return nil
}

func (req *batchRequest) chunkSize() int {
	if req.ChunkSize == nil {
		return coordinator.DefaultChunkSize
	}
	return *req.ChunkSize
}

// syncTimeout scales the wall clock with the batch size.
func syncTimeout(n int) time.Duration {
	if t := time.Duration(2*n) * time.Second; t > baseTimeout {
		return t
	}
	return baseTimeout
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: "malformed request body"})
		return
	}
	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: err.Error()})
		return
	}

	timeout := syncTimeout(len(req.Keywords))
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	results, err := s.coord.ProcessBatch(ctx, req.Keywords, req.chunkSize())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{
			Detail: fmt.Sprintf("request timed out after %s", timeout),
		})
	case err != nil:
		s.log.Errorw("batch processing failed", "keywords", len(req.Keywords), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "internal server error"})
	default:
		if results == nil {
			results = []metric.KeywordMetric{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}

type asyncAccepted struct {
	JobID                string `json:"job_id"`
	KeywordsCount        int    `json:"keywords_count"`
	EstimatedTimeSeconds int    `json:"estimated_time_seconds"`
	Message              string `json:"message"`
}

func (s *Server) handleAsyncSubmit(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: "malformed request body"})
		return
	}
	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: err.Error()})
		return
	}

	s.coord.Submit(req.Keywords)
	writeJSON(w, http.StatusAccepted, asyncAccepted{
		JobID:                "current",
		KeywordsCount:        len(req.Keywords),
		EstimatedTimeSeconds: 3 * len(req.Keywords),
		Message:              "keywords accepted for background processing",
	})
}

type statusResult struct {
	Keyword          string   `json:"keyword"`
	AdsMonthlyVolume *int64   `json:"googleAdsAvgMonthlySearches"`
	TrendsScore      *float64 `json:"googleTrendsScore"`
	Error            string   `json:"error,omitempty"`
	Status           string   `json:"status,omitempty"`
}

type statusResponse struct {
	JobID      string         `json:"job_id"`
	Status     string         `json:"status"`
	Pending    int            `json:"pending"`
	Processing int            `json:"processing"`
	Completed  int            `json:"completed"`
	Failed     int            `json:"failed"`
	Results    []statusResult `json:"results,omitempty"`
}

func (s *Server) handleAsyncStatus(w http.ResponseWriter, r *http.Request) {
	st := s.queue.Status()

	resp := statusResponse{
		JobID:      "current",
		Pending:    st.Pending,
		Processing: st.Processing,
		Completed:  st.Completed,
		Failed:     st.Failed,
	}
	switch {
	case st.Pending == 0 && st.Processing == 0:
		resp.Status = "completed"
	case st.Processing > 0:
		resp.Status = "processing"
	default:
		resp.Status = "pending"
	}

	if raw := r.URL.Query().Get("keywords"); raw != "" {
		var keywords []string
		for _, kw := range strings.Split(raw, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		views := s.queue.Results(keywords)
		for _, kw := range keywords {
			v := views[kw]
			resp.Results = append(resp.Results, statusResult{
				Keyword:          kw,
				AdsMonthlyVolume: v.Ads,
				TrendsScore:      v.Trends,
				Error:            v.Error,
				Status:           v.Status,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.clk.Now().Unix(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
