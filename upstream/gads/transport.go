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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/kwmetrics/kwmetricsd/config"
	"github.com/kwmetrics/kwmetricsd/upstream"
)

const (
	defaultEndpoint = "https://googleads.googleapis.com/v16"

	// English language and United States geo target constants; the
	// service always queries this fixed market.
	languageEnglish = "languageConstants/1000"
	geoUnitedStates = "geoTargetConstants/2840"
)

// metricsAPI is the transport seam; tests substitute a stub.
type metricsAPI interface {
	generateHistoricalMetrics(ctx context.Context, keywords []string) (*historicalMetricsResponse, error)
}

type historicalMetricsRequest struct {
	Keywords           []string `json:"keywords"`
	Language           string   `json:"language"`
	GeoTargetConstants []string `json:"geoTargetConstants"`
}

type historicalMetricsResponse struct {
	Results []historicalMetricsResult `json:"results"`
}

type historicalMetricsResult struct {
	Text           string `json:"text"`
	KeywordMetrics struct {
		AvgMonthlySearches json.Number `json:"avgMonthlySearches"`
	} `json:"keywordMetrics"`
}

// volume returns the reported monthly searches, 0 when the upstream sent
// no metric for the position.
func (r historicalMetricsResult) volume() int64 {
	v, err := r.KeywordMetrics.AvgMonthlySearches.Int64()
	if err != nil {
		return 0
	}
	return v
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// restClient talks to the historical-metrics REST surface with an OAuth2
// refresh-token source and the developer-token header.
type restClient struct {
	http       *http.Client
	endpoint   string
	devToken   string
	customerID string
}

func newRESTClient(creds config.AdsCredentials) *restClient {
	oc := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: "https://oauth2.googleapis.com/token",
		},
	}
	src := oc.TokenSource(context.Background(), &oauth2.Token{RefreshToken: creds.RefreshToken})
	return &restClient{
		http: &http.Client{
			Transport: &oauth2.Transport{Source: src},
			Timeout:   60 * time.Second,
		},
		endpoint:   defaultEndpoint,
		devToken:   creds.DeveloperToken,
		customerID: creds.CustomerID,
	}
}

func (c *restClient) generateHistoricalMetrics(ctx context.Context, keywords []string) (*historicalMetricsResponse, error) {
	body, err := json.Marshal(historicalMetricsRequest{
		Keywords:           keywords,
		Language:           languageEnglish,
		GeoTargetConstants: []string{geoUnitedStates},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/customers/%s:generateKeywordHistoricalMetrics", c.endpoint, c.customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("developer-token", c.devToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &upstream.TransientError{Provider: "ads", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &upstream.TransientError{Provider: "ads", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, raw)
	}

	var out historicalMetricsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("ads response malformed: %w", err)
	}
	return &out, nil
}

// classifyStatus maps non-200 responses into the typed taxonomy: 429 is
// quota-class, 5xx and structured API errors are transient, anything else
// aborts retries.
func classifyStatus(status int, raw []byte) error {
	var ae apiError
	_ = json.Unmarshal(raw, &ae)
	msg := ae.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	err := fmt.Errorf("http %d: %s", status, msg)

	switch {
	case status == http.StatusTooManyRequests:
		return &upstream.QuotaError{Provider: "ads", Err: err}
	case status >= 500, ae.Error.Status != "":
		return &upstream.TransientError{Provider: "ads", Err: err}
	default:
		return err
	}
}
