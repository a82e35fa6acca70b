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

package gtrends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/kwmetrics/kwmetricsd/upstream"
)

const (
	trendsBase = "https://trends.google.com/trends/api"
	hostLang   = "en-US"
	tzOffset   = "360"
	timeframe  = "today 12-m"
	geo        = "US"
)

// trendsAPI is the transport seam; tests substitute a stub.
type trendsAPI interface {
	// interestOverTime returns the weekly popularity points for one
	// keyword over the last 12 months. An empty slice means the upstream
	// has no data for the keyword.
	interestOverTime(ctx context.Context, keyword string) ([]float64, error)
}

// restClient drives the two-step widget flow the public endpoint expects:
// an explore call that yields a per-request token, then the timeseries
// widget download.
type restClient struct {
	http *http.Client
}

func newRESTClient() *restClient {
	jar, _ := cookiejar.New(nil)
	return &restClient{
		http: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

type exploreWidget struct {
	ID      string          `json:"id"`
	Token   string          `json:"token"`
	Request json.RawMessage `json:"request"`
}

type exploreResponse struct {
	Widgets []exploreWidget `json:"widgets"`
}

type timelineResponse struct {
	Default struct {
		TimelineData []struct {
			Value []float64 `json:"value"`
		} `json:"timelineData"`
	} `json:"default"`
}

func (c *restClient) interestOverTime(ctx context.Context, keyword string) ([]float64, error) {
	widget, err := c.explore(ctx, keyword)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("hl", hostLang)
	q.Set("tz", tzOffset)
	q.Set("token", widget.Token)
	q.Set("req", string(widget.Request))
	raw, err := c.get(ctx, trendsBase+"/widgetdata/multiline?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var tl timelineResponse
	if err := json.Unmarshal(stripPrefix(raw), &tl); err != nil {
		return nil, fmt.Errorf("trends timeline malformed: %w", err)
	}
	points := make([]float64, 0, len(tl.Default.TimelineData))
	for _, d := range tl.Default.TimelineData {
		if len(d.Value) > 0 {
			points = append(points, d.Value[0])
		}
	}
	return points, nil
}

func (c *restClient) explore(ctx context.Context, keyword string) (*exploreWidget, error) {
	req := map[string]any{
		"comparisonItem": []map[string]string{{
			"keyword": keyword,
			"geo":     geo,
			"time":    timeframe,
		}},
		"category": 0,
		"property": "",
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("hl", hostLang)
	q.Set("tz", tzOffset)
	q.Set("req", string(reqJSON))
	raw, err := c.get(ctx, trendsBase+"/explore?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var exp exploreResponse
	if err := json.Unmarshal(stripPrefix(raw), &exp); err != nil {
		return nil, fmt.Errorf("trends explore malformed: %w", err)
	}
	for i := range exp.Widgets {
		if exp.Widgets[i].ID == "TIMESERIES" {
			return &exp.Widgets[i], nil
		}
	}
	return nil, fmt.Errorf("trends explore: no timeseries widget for %q", keyword)
}

func (c *restClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &upstream.TransientError{Provider: "trends", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &upstream.TransientError{Provider: "trends", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp.StatusCode, raw)
	}
	return raw, nil
}

// classify maps upstream failures into the typed taxonomy. This is the one
// place payload text is inspected: the endpoint reports quota pressure as
// CAPTCHA interstitials and "too many requests" bodies as often as plain
// 429s.
func classify(status int, raw []byte) error {
	body := strings.ToLower(string(raw))
	err := fmt.Errorf("http %d", status)
	switch {
	case status == http.StatusTooManyRequests,
		strings.Contains(body, "captcha"),
		strings.Contains(body, "too many requests"),
		strings.Contains(body, "quota"):
		return &upstream.QuotaError{Provider: "trends", Err: err}
	case status >= 500:
		return &upstream.TransientError{Provider: "trends", Err: err}
	default:
		return err
	}
}

// stripPrefix drops the anti-JSON-hijacking prefix the endpoint prepends.
func stripPrefix(raw []byte) []byte {
	if i := strings.IndexByte(string(raw), '{'); i > 0 {
		return raw[i:]
	}
	return raw
}
